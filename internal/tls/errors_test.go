package tls

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationError_Error(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *ConfigurationError
		want string
	}{
		{"field", NewConfigurationError("protocol", "bad value"), "TLS config error at protocol: bad value"},
		{"field and cause", NewConfigurationErrorWithCause("protocol", "bad value", cause),
			"TLS config error at protocol: bad value: boom"},
		{"message only", NewConfigurationError("", "bad value"), "TLS config error: bad value"},
		{"message and cause", NewConfigurationErrorWithCause("", "bad value", cause),
			"TLS config error: bad value: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestConfigurationError_Is(t *testing.T) {
	err := NewConfigurationErrorWithCause("cipher-suites", "unknown suite", ErrCipherSuiteInvalid)

	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.ErrorIs(t, err, ErrCipherSuiteInvalid)
	assert.NotErrorIs(t, err, ErrUnknownProtocol)
	assert.Equal(t, ErrCipherSuiteInvalid, errors.Unwrap(err))

	var cfgErr *ConfigurationError
	require.ErrorAs(t, error(err), &cfgErr)
	assert.Equal(t, "cipher-suites", cfgErr.Field)
}
