package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// std is the process-wide logrus logger. Setup reconfigures it in place, so
// Loggers created before Setup pick up the new level and format.
var std = newStd()

func newStd() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

type Logger struct {
	name     string
	file     string
	function string
	fields   logrus.Fields
}

func Setup(level string, format string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}

	std.SetOutput(out)
	std.SetLevel(ParseLevel(level))

	switch strings.ToLower(format) {
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{})
	default:
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func New(name string) Logger {
	return Logger{name: name}
}

func (l Logger) File(file string) Logger {
	l.file = file
	return l
}

func (l Logger) Function(function string) Logger {
	l.function = function
	return l
}

// With returns a Logger that attaches the key/value pairs to every entry.
func (l Logger) With(args ...any) Logger {
	fields := make(logrus.Fields, len(l.fields)+len(args)/2)
	for k, v := range l.fields {
		fields[k] = v
	}
	addFields(fields, args)
	l.fields = fields
	return l
}

func addFields(fields logrus.Fields, args []any) {
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 == len(args) {
			fields["!BADKEY"] = args[i]
			return
		}
		fields[key] = args[i+1]
	}
}

func (l Logger) entry(args []any) *logrus.Entry {
	fields := make(logrus.Fields, len(l.fields)+len(args)/2+3)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields["package"] = l.name
	if l.file != "" {
		fields["file"] = l.file
	}
	if l.function != "" {
		fields["function"] = l.function
	}
	addFields(fields, args)
	return std.WithFields(fields)
}

func (l Logger) log(level logrus.Level, msg string, args ...any) {
	if !std.IsLevelEnabled(level) {
		return
	}
	l.entry(args).Log(level, msg)
}

func (l Logger) Debug(msg string, args ...any) {
	l.log(logrus.DebugLevel, msg, args...)
}

func (l Logger) Info(msg string, args ...any) {
	l.log(logrus.InfoLevel, msg, args...)
}

func (l Logger) Warn(msg string, args ...any) {
	l.log(logrus.WarnLevel, msg, args...)
}

// Printf lets a Logger stand in for the writer GORM's logger expects.
func (l Logger) Printf(format string, args ...any) {
	l.log(logrus.InfoLevel, fmt.Sprintf(format, args...))
}

// Error logs msg at error level and returns it as an error.
func (l Logger) Error(msg string, args ...any) error {
	l.log(logrus.ErrorLevel, msg, args...)
	return errors.New(msg)
}

// Err logs msg with err attached and returns err wrapped with msg.
func (l Logger) Err(msg string, err error, args ...any) error {
	l.log(logrus.ErrorLevel, msg, append([]any{"error", err}, args...)...)
	return fmt.Errorf("%s: %w", msg, err)
}

// Er logs msg with err attached without returning anything.
func (l Logger) Er(msg string, err error, args ...any) {
	l.log(logrus.ErrorLevel, msg, append([]any{"error", err}, args...)...)
}

func (l Logger) ErMsg(msg string, args ...any) {
	l.log(logrus.ErrorLevel, msg, args...)
}

func (l Logger) ErrMsg(msg string, args ...any) error {
	l.log(logrus.ErrorLevel, msg, args...)
	return errors.New(msg)
}
