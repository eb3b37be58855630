package log

import (
	"fmt"
	"io"
	"log"
)

// DefaultLogger returns a logger backed by the standard library, used when no
// other implementation is supplied.
func DefaultLogger(out io.Writer) Logger {
	return &defaultLogger{
		internalLogger: log.New(out, "[orderwise] ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		level:          InfoLevel,
	}
}

type defaultLogger struct {
	internalLogger *log.Logger
	level          Level
	fields         Fields
}

func (l *defaultLogger) Log(level Level, v ...interface{}) {
	if level == FatalLevel {
		l.internalLogger.Fatal(v...)
		return
	}

	if level == PanicLevel {
		l.internalLogger.Panic(v...)
		return
	}

	if level <= l.level {
		entry := fmt.Sprint(v...)

		if len(l.fields) > 0 {
			entry = fmt.Sprintf("%s %v", entry, l.fields)
		}

		if err := l.internalLogger.Output(3, entry); err != nil {
			l.internalLogger.Printf("err logging an entry: %s. %s\n", err, v)
		}
	}
}

func (l *defaultLogger) Logf(level Level, template string, args ...interface{}) {
	l.Log(level, fmt.Sprintf(template, args...))
}

func (l *defaultLogger) SetLevel(level Level) {
	l.level = level

	l.internalLogger.SetPrefix(fmt.Sprintf("[orderwise] %s ", levelNames[level]))
}

func (l *defaultLogger) WithFields(fields Fields) Logger {
	merged := make(Fields, len(l.fields)+len(fields))

	for k, v := range l.fields {
		merged[k] = v
	}

	for k, v := range fields {
		merged[k] = v
	}

	return &defaultLogger{internalLogger: l.internalLogger, level: l.level, fields: merged}
}
