package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: OK},
		{name: "bare code", err: SignalLost, want: SignalLost},
		{name: "wrapped code", err: fmt.Errorf("read settings: %w", ResourceTimeout), want: ResourceTimeout},
		{name: "E", err: New(Validation, "modify", "pressure max below min"), want: Validation},
		{name: "wrapped E", err: fmt.Errorf("open: %w", New(StorageExhausted, "create", "")), want: StorageExhausted},
		{name: "foreign", err: errors.New("boom"), want: Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.err))
		})
	}
}

func TestE_Is(t *testing.T) {
	err := fmt.Errorf("scheduler: %w", New(UnderVoltage, "check", "2.9 V"))
	assert.True(t, errors.Is(err, UnderVoltage))
	assert.False(t, errors.Is(err, StorageExhausted))
	assert.Equal(t, "check: under_voltage: 2.9 V", errors.Unwrap(err).Error())
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(StorageExhausted))
	assert.True(t, Fatal(New(UnderVoltage, "", "")))
	assert.False(t, Fatal(ResourceTimeout))
	assert.False(t, Fatal(nil))
}
