package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		state TestState
	}{
		{
			name:  "configuration error aborts",
			err:   NewConfigurationError(errors.New("missing key nicName")),
			state: TestStateAborted,
		},
		{
			name:  "infrastructure error aborts",
			err:   NewInfrastructureError(errors.New("dial tcp: connection refused")),
			state: TestStateAborted,
		},
		{
			name:  "assertion failure fails",
			err:   NewAssertionFailure("expected clocksource hyperv_clocksource_tsc_page, found acpi_pm"),
			state: TestStateFailed,
		},
		{
			name:  "timeout fails",
			err:   NewTimeoutError("pktgen result", "still sending"),
			state: TestStateFailed,
		},
		{
			name:  "unknown error aborts",
			err:   errors.New("something odd"),
			state: TestStateAborted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, StateForError(tt.err))
		})
	}
}

func TestErrorHelpersUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := fmt.Errorf("during setup: %w", NewInfrastructureError(cause))

	assert.True(t, IsInfrastructureError(wrapped))
	assert.False(t, IsConfigurationError(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestTimeoutErrorDetail(t *testing.T) {
	err := NewTimeoutError("forwarded packet count", "8500000")
	assert.Contains(t, err.Error(), "forwarded packet count")
	assert.Contains(t, err.Error(), "last observed: 8500000")
	assert.True(t, IsTimeoutError(err))
}
