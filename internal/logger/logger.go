package logger

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

const (
	LevelsHelp   = "Log level for stderr and the log file."
	FileFlagHelp = "Also append log output to this file."
	ColorHelp    = "Color stderr log output."
)

// Log is the process-wide logger. It starts at info level writing to stderr.
//
//nolint:gochecknoglobals
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Flags holds the logging options exposed on the command line.
type Flags struct {
	Level string `name:"log-level" help:"${loglevelhelp}" enum:"${loglevelvalues}" default:"info"`
	File  string `name:"log-file" help:"${logfilehelp}" type:"path"`
	Color string `name:"log-color" help:"${logcolorhelp}" enum:"always,auto,never" default:"auto"`
}

// Levels lists the accepted --log-level values.
func Levels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		levels = append(levels, l.String())
	}
	return levels
}

// Vars returns the kong interpolation variables used by Flags.
func Vars() map[string]string {
	return map[string]string{
		"loglevelhelp":   LevelsHelp,
		"loglevelvalues": strings.Join(Levels(), ","),
		"logfilehelp":    FileFlagHelp,
		"logcolorhelp":   ColorHelp,
	}
}

// Init configures Log from flags. The returned closer releases the log file, if any.
func Init(f Flags) (io.Closer, error) {
	level := logrus.InfoLevel
	if f.Level != "" {
		var err error
		level, err = logrus.ParseLevel(f.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "parse log level %q", f.Level)
		}
	}
	Log.SetLevel(level)

	formatter := &logrus.TextFormatter{FullTimestamp: true}
	switch f.Color {
	case "always":
		formatter.ForceColors = true
	case "never":
		formatter.DisableColors = true
	}
	Log.SetFormatter(formatter)

	if f.File == "" {
		Log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	file, err := os.OpenFile(f.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", f.File)
	}
	Log.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
