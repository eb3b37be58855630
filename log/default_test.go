package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger(t *testing.T) {
	output := bytes.NewBuffer(nil)
	l := DefaultLogger(output)
	logger, ok := l.(*defaultLogger)
	require.True(t, ok)

	t.Run("panic", func(t *testing.T) {
		defer output.Reset()

		assert.PanicsWithValue(t, "paaaaaanic", func() {
			logger.Log(PanicLevel, "paaaaaanic")
		})
	})

	t.Run("default info level", func(t *testing.T) {
		defer output.Reset()

		logger.Log(DebugLevel, "debug")
		logger.Log(TraceLevel, "trace")
		assert.Empty(t, output.String())
	})

	t.Run("set level", func(t *testing.T) {
		defer output.Reset()

		l.SetLevel(DebugLevel)
		logger.Log(DebugLevel, "debug")

		assert.Contains(t, output.String(), "debug")
	})

	t.Run("logf", func(t *testing.T) {
		defer output.Reset()

		logger.Logf(InfoLevel, "processed %d messages", 42)

		assert.Contains(t, output.String(), "processed 42 messages")
	})

	t.Run("with fields", func(t *testing.T) {
		defer output.Reset()

		child := l.WithFields(Fields{"orderUID": "xyz"})
		child.Log(InfoLevel, "loaded")

		assert.Contains(t, output.String(), "loaded")
		assert.Contains(t, output.String(), "orderUID")
	})
}
