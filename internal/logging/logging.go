package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-kit/log/term"
)

const (
	LevelNone  = "none"
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"

	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// New builds the leveled logger used for console messages during a run.
func New(w io.Writer, logLevel, format string, useColor bool) (log.Logger, error) {
	var allow level.Option

	switch strings.ToLower(logLevel) {
	case LevelNone:
		allow = level.AllowNone()
	case LevelError:
		allow = level.AllowError()
	case LevelWarn:
		allow = level.AllowWarn()
	case LevelInfo, "":
		allow = level.AllowInfo()
	case LevelDebug:
		allow = level.AllowDebug()
	default:
		return nil, fmt.Errorf("unknown log level %q", logLevel)
	}

	var newLogger func(io.Writer) log.Logger
	switch strings.ToLower(format) {
	case FormatLogfmt, "":
		newLogger = log.NewLogfmtLogger
	case FormatJSON:
		newLogger = log.NewJSONLogger
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	var logger log.Logger
	if useColor {
		logger = term.NewLogger(w, newLogger, colorByLevel)
	} else {
		logger = newLogger(log.NewSyncWriter(w))
	}

	logger = level.NewFilter(logger, allow)

	return log.With(logger, "ts", log.DefaultTimestamp), nil
}

func colorByLevel(keyvals ...any) term.FgBgColor {
	for i := 0; i < len(keyvals)-1; i += 2 {
		if keyvals[i] != level.Key() {
			continue
		}

		switch keyvals[i+1] {
		case level.DebugValue():
			return term.FgBgColor{Fg: term.Gray}
		case level.WarnValue():
			return term.FgBgColor{Fg: term.Yellow}
		case level.ErrorValue():
			return term.FgBgColor{Fg: term.Red}
		default:
			return term.FgBgColor{}
		}
	}

	return term.FgBgColor{}
}
