package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			for _, format := range []string{"json", "console"} {
				l, err := New(tt.level, format)
				require.NoError(t, err)
				assert.True(t, l.Core().Enabled(tt.enabled))
				assert.False(t, l.Core().Enabled(tt.muted))
			}
		})
	}
}

func TestNewRejectsUnknownInput(t *testing.T) {
	_, err := New("trace", "json")
	assert.ErrorContains(t, err, "invalid log level")
	_, err = New("info", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
