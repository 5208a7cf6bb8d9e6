package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileName is the log file name inside the data directory.
const FileName = "reminder.log"

const timeFormat = "2006-01-02 15:04:05.000"

// NewLogger writes human-readable lines to w. Write failures are dropped.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorHandler = func(error) {}
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: timeFormat}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// Setup opens the rotating log in dataDir and installs it as the global
// logger. Extra writers (stderr in foreground mode) receive the same lines.
func Setup(dataDir string, maxSize int64, level zerolog.Level, extra ...io.Writer) (*RotatingFile, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	rf, err := OpenRotating(filepath.Join(dataDir, FileName), maxSize)
	if err != nil {
		return nil, err
	}
	var w io.Writer = rf
	if len(extra) > 0 {
		w = zerolog.MultiLevelWriter(append([]io.Writer{rf}, extra...)...)
	}
	log.Logger = NewLogger(w, level)
	return rf, nil
}
