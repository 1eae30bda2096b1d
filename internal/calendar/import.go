package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderlyflow/internal/ics"
	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/metrics"
	"orderlyflow/internal/model"
	"orderlyflow/internal/recurrence"
)

// ImportOptions says whose calendar imported events land in.
type ImportOptions struct {
	OwnerID string
	HomeID  string
	Color   model.Color
	// Origin labels the import in metrics and logs ("upload" or a
	// subscription id).
	Origin string
}

// ImportResult summarizes one import.
type ImportResult struct {
	Items     int      `json:"items"`
	Instances int      `json:"instances"`
	Inserted  int64    `json:"inserted"`
	Skipped   int64    `json:"skipped"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ImportEvents stores feed items for an owner. Each item keeps its feed UID
// as external_uid, so importing the same feed again only adds instances
// that are new. Recurring items get a series id derived from owner and UID,
// stable across imports.
func (s *Service) ImportEvents(ctx context.Context, opts ImportOptions, items []ics.Imported) (ImportResult, error) {
	opts.OwnerID = strings.TrimSpace(opts.OwnerID)
	if opts.OwnerID == "" {
		return ImportResult{}, fmt.Errorf("%w: owner_id is required", ErrValidation)
	}
	if opts.Color == "" {
		opts.Color = model.ColorGray
	}
	if !opts.Color.Valid() {
		return ImportResult{}, fmt.Errorf("%w: color %q is not supported", ErrValidation, opts.Color)
	}
	if opts.Origin == "" {
		opts.Origin = "import"
	}

	res := ImportResult{Items: len(items)}
	events := make([]model.EventInstance, 0, len(items))
	for _, item := range items {
		anchor := item.Anchor
		anchor.OwnerID = opts.OwnerID
		anchor.LinkedHomeID = opts.HomeID
		anchor.Color = opts.Color
		if strings.TrimSpace(anchor.Title) == "" {
			anchor.Title = "(untitled)"
		}

		var batch []model.EventInstance
		switch {
		case len(item.Occurrences) > 0:
			anchor.SeriesID = importSeriesID(opts.OwnerID, item.UID)
			batch = fromOccurrences(anchor, item.Occurrences)
			if item.Truncated {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: stopped at %d occurrences", item.UID, len(batch)))
			}
		case anchor.RecurrencePattern != "":
			anchor.SeriesID = importSeriesID(opts.OwnerID, item.UID)
			exp := recurrence.ExpandWithConfig(anchor, recurrence.ExpandConfig{MaxInstances: s.maxInstances})
			metrics.TrackExpansion(len(exp.Instances), exp.Truncated, exp.UnknownPattern)
			batch = exp.Instances
			if exp.Truncated {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: stopped at %d occurrences", item.UID, len(batch)))
			}
		default:
			batch = []model.EventInstance{singleInstance(anchor)}
		}

		for i := range batch {
			batch[i].ExternalUID = item.UID
		}
		events = append(events, batch...)
	}
	res.Instances = len(events)

	inserted, err := s.repo.InsertImportedEvents(ctx, events)
	if err != nil {
		metrics.TrackError("import")
		return ImportResult{}, fmt.Errorf("import events: %w", err)
	}
	res.Inserted = inserted
	res.Skipped = int64(len(events)) - inserted
	metrics.TrackEventsCreated("import", int(inserted))

	appLog.Info("calendar import completed",
		"owner", opts.OwnerID,
		"origin", opts.Origin,
		"items", res.Items,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
	)
	return res, nil
}

func importSeriesID(ownerID, uid string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ownerID+"|"+uid)).String()
}

// fromOccurrences builds instances for explicitly listed starts, keeping
// the anchor's duration.
func fromOccurrences(anchor model.AnchorEvent, starts []time.Time) []model.EventInstance {
	var duration time.Duration
	hasEnd := !anchor.End.IsZero()
	if hasEnd {
		duration = anchor.End.Sub(anchor.Start)
	}

	out := make([]model.EventInstance, 0, len(starts))
	for _, start := range starts {
		inst := singleInstance(anchor)
		inst.Start = start
		inst.End = nil
		if hasEnd {
			end := start.Add(duration)
			inst.End = &end
		}
		inst.IsRecurring = true
		inst.SeriesID = anchor.SeriesID
		out = append(out, inst)
	}
	return out
}
