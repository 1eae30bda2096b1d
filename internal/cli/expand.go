package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"orderlyflow/internal/calendar"
	"orderlyflow/internal/web"
)

type expandOptions struct {
	title    string
	start    string
	end      string
	pattern  string
	until    string
	timezone string
	max      int
}

// newExpandCommand previews a recurring event without touching the
// database.
func newExpandCommand() *cobra.Command {
	o := &expandOptions{}
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the instances a recurring event would produce",
		Example: `  orderlyflow expand --title "Clean gutters" --start 2024-01-31 --pattern monthly
  orderlyflow expand --start 2024-03-01T09:00 --end 2024-03-01T10:00 --pattern weekly --until 2024-04-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(o.timezone)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", o.timezone, err)
			}
			in, err := o.input(loc)
			if err != nil {
				return err
			}

			svc := calendar.NewService(nil, calendar.Options{Location: loc, MaxInstances: o.max})
			res, err := svc.PreviewExpansion(in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&o.title, "title", "Preview", "Event title")
	cmd.Flags().StringVar(&o.start, "start", "", "First occurrence; a bare date makes an all-day event")
	cmd.Flags().StringVar(&o.end, "end", "", "End of the first occurrence")
	cmd.Flags().StringVar(&o.pattern, "pattern", "", "Recurrence pattern (daily, weekly, bi-weekly, monthly, quarterly, semi-annually, annually)")
	cmd.Flags().StringVar(&o.until, "until", "", "Last date of the series (inclusive)")
	cmd.Flags().StringVar(&o.timezone, "timezone", "UTC", "IANA timezone for times without an offset")
	cmd.Flags().IntVar(&o.max, "max", 0, "Instance cap (at most 100)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func (o *expandOptions) input(loc *time.Location) (calendar.EventInput, error) {
	start, dateOnly, err := web.ParseTime(o.start, loc)
	if err != nil {
		return calendar.EventInput{}, fmt.Errorf("--start: %w", err)
	}
	in := calendar.EventInput{
		OwnerID:           "cli",
		Title:             o.title,
		Start:             start,
		AllDay:            dateOnly,
		IsRecurring:       o.pattern != "",
		RecurrencePattern: o.pattern,
	}
	if o.end != "" {
		end, _, err := web.ParseTime(o.end, loc)
		if err != nil {
			return in, fmt.Errorf("--end: %w", err)
		}
		in.End = &end
	}
	if o.until != "" {
		until, _, err := web.ParseTime(o.until, loc)
		if err != nil {
			return in, fmt.Errorf("--until: %w", err)
		}
		in.RecurrenceEndDate = &until
	}
	return in, nil
}
