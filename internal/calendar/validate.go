package calendar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks input rejected before anything is persisted.
var ErrValidation = errors.New("validation failed")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterStructValidation(eventInputRules, EventInput{})
	v.RegisterStructValidation(taskInputRules, TaskInput{})
	return v
}

// validationError converts validator output into an ErrValidation-wrapped
// error with one readable clause per failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "end_before_start":
		return "end must not be before start"
	case "recurrence_end_before_start":
		return "recurrence_end_date must not be before the start date"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func eventInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(EventInput)
	if !in.AllDay && in.End == nil {
		sl.ReportError(in.End, "end", "End", "required", "")
	}
	if !in.AllDay && in.End != nil && in.End.Before(in.Start) {
		sl.ReportError(in.End, "end", "End", "end_before_start", "")
	}
	if in.IsRecurring && in.RecurrenceEndDate != nil && dayBefore(*in.RecurrenceEndDate, in.Start) {
		sl.ReportError(in.RecurrenceEndDate, "recurrence_end_date", "RecurrenceEndDate", "recurrence_end_before_start", "")
	}
}

func taskInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(TaskInput)
	if in.IsRecurring && in.DueDate == nil {
		sl.ReportError(in.DueDate, "due_date", "DueDate", "required", "")
	}
	if in.IsRecurring && in.DueDate != nil && in.RecurrenceEndDate != nil && dayBefore(*in.RecurrenceEndDate, *in.DueDate) {
		sl.ReportError(in.RecurrenceEndDate, "recurrence_end_date", "RecurrenceEndDate", "recurrence_end_before_start", "")
	}
}
