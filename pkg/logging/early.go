package logging

import (
	"fmt"
	"os"
	"time"
)

// EarlyLog covers the startup window before configuration is loaded and the
// structured logger exists: flag errors, config load failures, logger init.
// Unlike the structured logger, Error does not exit; callers decide whether a
// startup failure is fatal.
type EarlyLog struct {
	service string
}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{service: "decision-service"}
}

func (l *EarlyLog) write(out *os.File, level, msg string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s [%s] "+msg+"\n",
		append([]interface{}{time.Now().UTC().Format(time.RFC3339), level, l.service}, args...)...)
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write(os.Stderr, "ERROR", msg, args...)
}

func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.write(os.Stderr, "FATAL", msg, args...)
	os.Exit(1)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write(os.Stderr, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write(os.Stdout, "INFO", msg, args...)
}
