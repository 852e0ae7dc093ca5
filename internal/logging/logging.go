// Package logging builds the application logger. The terminal belongs to
// the UI, so logs go to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"hlsradio/internal/prefs"
)

const fileName = "hlsradio.log"

type Options struct {
	Level string
	JSON  bool
	// File is the log path. Empty means hlsradio.log in the state
	// directory.
	File string
}

// Open creates the log file and a logger writing to it. Level "off"
// returns a null logger and no file.
func Open(opts Options) (hclog.Logger, io.Closer, error) {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	if level == hclog.Off {
		return hclog.NewNullLogger(), nopCloser{}, nil
	}

	path := opts.File
	if path == "" {
		dir, err := prefs.Dir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, fileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return New(f, level, opts.JSON), f, nil
}

// New returns the root logger writing to w.
func New(w io.Writer, level hclog.Level, json bool) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "hlsradio",
		Output:     w,
		Level:      level,
		JSONFormat: json,
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
