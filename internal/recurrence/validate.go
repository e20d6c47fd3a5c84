package recurrence

import (
	"strings"

	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

// Frequencies accepted by the engine. Sub-hourly frequencies are
// rejected outright to bound expansion cost.
var supportedFrequencies = map[string]struct{}{
	"HOURLY":  {},
	"DAILY":   {},
	"WEEKLY":  {},
	"MONTHLY": {},
	"YEARLY":  {},
}

var blockedFrequencies = map[string]struct{}{
	"SECONDLY": {},
	"MINUTELY": {},
}

// Validate checks a recurrence-rule string for a usable frequency.
// It fails with INVALID_RULE when the FREQ token is missing or
// unrecognized and with UNSUPPORTED_FREQUENCY for sub-hourly rules.
func Validate(rule string) error {
	freq, ok := frequencyToken(rule)
	if !ok {
		return appErrors.Clone(appErrors.ErrInvalidRule, "recurrence rule has no FREQ component")
	}
	if _, blocked := blockedFrequencies[freq]; blocked {
		return appErrors.Clone(appErrors.ErrUnsupportedFrequency, "frequency "+freq+" is not supported")
	}
	if _, supported := supportedFrequencies[freq]; !supported {
		return appErrors.Clone(appErrors.ErrInvalidRule, "unknown frequency "+freq)
	}
	return nil
}

func frequencyToken(rule string) (string, bool) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	for _, part := range strings.Split(rule, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(kv[0]), "FREQ") {
			freq := strings.ToUpper(strings.TrimSpace(kv[1]))
			if freq == "" {
				return "", false
			}
			return freq, true
		}
	}
	return "", false
}
