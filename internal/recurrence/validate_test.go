package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

func TestValidateAcceptsSupportedFrequencies(t *testing.T) {
	for _, rule := range []string{
		"FREQ=HOURLY",
		"FREQ=DAILY;INTERVAL=2",
		"FREQ=WEEKLY;BYDAY=MO,WE,FR",
		"FREQ=MONTHLY;BYMONTHDAY=15",
		"FREQ=YEARLY",
		"RRULE:FREQ=WEEKLY;COUNT=12",
		"freq=daily",
	} {
		require.NoError(t, Validate(rule), "rule %q", rule)
	}
}

func TestValidateRejectsSubHourly(t *testing.T) {
	for _, rule := range []string{"FREQ=SECONDLY", "FREQ=MINUTELY;INTERVAL=30"} {
		err := Validate(rule)
		require.Error(t, err, "rule %q", rule)
		assert.Equal(t, appErrors.ErrUnsupportedFrequency.Code, appErrors.FromError(err).Code)
	}
}

func TestValidateRejectsMalformedRules(t *testing.T) {
	for _, rule := range []string{"", "INTERVAL=2;BYDAY=MO", "FREQ=", "FREQ=FORTNIGHTLY"} {
		err := Validate(rule)
		require.Error(t, err, "rule %q", rule)
		assert.Equal(t, appErrors.ErrInvalidRule.Code, appErrors.FromError(err).Code)
	}
}
