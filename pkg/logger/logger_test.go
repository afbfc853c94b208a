package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("Nil config uses defaults", func(t *testing.T) {
		l, err := NewLogger(nil)
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("Debug overrides level", func(t *testing.T) {
		l, err := NewLogger(&LoggerConfig{Debug: true, Level: "error"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("JSON encoder", func(t *testing.T) {
		l, err := NewLogger(&LoggerConfig{JSON: true, Level: "warn"})
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("Invalid level", func(t *testing.T) {
		_, err := NewLogger(&LoggerConfig{Level: "loud"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported log level")
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"INFO":    zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"trace":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"WARN":    zapcore.WarnLevel,
		" fatal ": zapcore.FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseLevel_Unsupported(t *testing.T) {
	for _, in := range []string{"loud", "verbose", "5"} {
		_, err := ParseLevel(in)
		require.Error(t, err, in)
		assert.Contains(t, err.Error(), "unsupported log level")
	}
}
