package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// StdOutLogger writes levelled messages through a standard library logger.
// Messages below the configured level are dropped.
type StdOutLogger struct {
	logLevel LogLevel
	out      *log.Logger
}

// NewStdOutLogger creates a logger writing to os.Stdout at the given level.
func NewStdOutLogger(level LogLevel) *StdOutLogger {
	return NewWriterLogger(os.Stdout, level)
}

// NewWriterLogger creates a logger writing to w at the given level.
func NewWriterLogger(w io.Writer, level LogLevel) *StdOutLogger {
	return &StdOutLogger{
		logLevel: level,
		out:      log.New(w, "", log.LstdFlags),
	}
}

func (l *StdOutLogger) Printf(level LogLevel, format string, a ...interface{}) {
	if level < l.logLevel {
		return
	}
	txt := level.String() + ": " + fmt.Sprintf(format, a...)
	if l.out == nil {
		log.Println(txt)
		return
	}
	l.out.Println(txt)
}
func (l *StdOutLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}
func (l *StdOutLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}
func (l *StdOutLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *StdOutLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}
func (l *StdOutLogger) GetLogLevel() LogLevel {
	return l.logLevel
}
