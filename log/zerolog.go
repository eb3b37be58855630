package log

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologAdapter wraps a zerolog.Logger into the module's Logger contract.
// The service binary uses it; libraries stay decoupled from zerolog.
func ZerologAdapter(l zerolog.Logger) Logger {
	return &zerologLogger{l: l}
}

type zerologLogger struct {
	l zerolog.Logger
}

var zerologLevels = map[Level]zerolog.Level{
	PanicLevel: zerolog.PanicLevel,
	FatalLevel: zerolog.FatalLevel,
	ErrorLevel: zerolog.ErrorLevel,
	WarnLevel:  zerolog.WarnLevel,
	InfoLevel:  zerolog.InfoLevel,
	DebugLevel: zerolog.DebugLevel,
	TraceLevel: zerolog.TraceLevel,
}

func (z *zerologLogger) Log(level Level, v ...interface{}) {
	z.l.WithLevel(zerologLevels[level]).Msg(fmt.Sprint(v...))
}

func (z *zerologLogger) Logf(level Level, template string, args ...interface{}) {
	z.l.WithLevel(zerologLevels[level]).Msgf(template, args...)
}

func (z *zerologLogger) SetLevel(level Level) {
	z.l = z.l.Level(zerologLevels[level])
}

func (z *zerologLogger) WithFields(fields Fields) Logger {
	ctx := z.l.With()

	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}

	return &zerologLogger{l: ctx.Logger()}
}
