package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cenkalti/log"
)

var handler log.Handler

func init() {
	SetHandler(log.NewFileHandler(os.Stderr))
}

// SetHandler replaces the handler used by all loggers created by New.
func SetHandler(h log.Handler) {
	handler = h
	handler.SetFormatter(lineFormatter{})
}

// SetLevel sets the logging level on the global handler.
func SetLevel(l log.Level) {
	handler.SetLevel(l)
}

// SetDebug lowers the global handler level so debug messages are written.
func SetDebug() {
	SetLevel(log.DEBUG)
}

// Logger is the leveled logger used across the project.
type Logger log.Logger

// New returns a new Logger with a name.
// The name is printed in every line written through the default handler.
func New(name string) Logger {
	l := log.NewLogger(name)
	l.SetLevel(log.DEBUG) // level filtering is done by the handler
	l.SetHandler(handler)
	return l
}

type lineFormatter struct{}

// Format outputs a message like "2014-02-28 18:15:57 INFO     [example] logger.go:42 something happened"
func (lineFormatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s [%s] %s %s",
		fmt.Sprint(rec.Time)[:19],
		rec.Level,
		rec.LoggerName,
		filepath.Base(rec.Filename)+":"+strconv.Itoa(rec.Line),
		rec.Message)
}
