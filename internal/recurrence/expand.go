package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

const untilFormat = "20060102T150405Z"

// Expand materializes a recurrence rule into half-open occurrence
// ranges [start, start+duration), bounded by the rule's own termination
// (COUNT/UNTIL) intersected with windowEnd. The anchor is pinned into
// loc so wall-clock times survive daylight-saving transitions.
//
// Expansion is deterministic: re-running with the same inputs and a
// later windowEnd reproduces every earlier occurrence unchanged and
// only appends new ones.
func Expand(rule string, anchor time.Time, duration time.Duration, loc *time.Location, windowEnd time.Time, maxOccurrences int) ([]models.TimeRange, error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRule.Code, appErrors.ErrInvalidRule.Status, "parse recurrence rule")
	}

	start := anchor.In(loc)
	opt.Dtstart = time.Date(
		start.Year(), start.Month(), start.Day(),
		start.Hour(), start.Minute(), start.Second(), 0,
		loc,
	)

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRule.Code, appErrors.ErrInvalidRule.Status, "build recurrence rule")
	}

	starts := r.Between(opt.Dtstart, windowEnd.In(loc), true)
	if maxOccurrences > 0 && len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	ranges := make([]models.TimeRange, 0, len(starts))
	for _, s := range starts {
		ranges = append(ranges, models.TimeRange{Start: s, End: s.Add(duration)})
	}
	return ranges, nil
}

// RewriteUntil replaces a rule's termination clause (COUNT or UNTIL)
// with an UNTIL bound at the given instant. Used when a split closes
// the prior series version so its stored rule matches its effective
// window.
func RewriteUntil(rule string, until time.Time) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	parts := strings.Split(trimmed, ";")
	kept := make([]string, 0, len(parts)+1)
	for _, part := range parts {
		if part == "" {
			continue
		}
		key := strings.ToUpper(strings.SplitN(part, "=", 2)[0])
		if key == "COUNT" || key == "UNTIL" {
			continue
		}
		kept = append(kept, part)
	}
	kept = append(kept, fmt.Sprintf("UNTIL=%s", until.UTC().Format(untilFormat)))
	return strings.Join(kept, ";")
}
