// Package logging configures the application logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirrors the [logging] config section.
type Options struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Setup builds a logger. Output goes to stderr, or to a rotated file when
// File is set. The returned closer releases the file.
func Setup(opts Options) (*logrus.Logger, io.Closer) {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return log, io.NopCloser(nil)
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}
	log.SetOutput(lj)
	return log, lj
}
