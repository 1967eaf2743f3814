package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// DirArchiver writes reports into a local directory. Files are written to a
// temporary name first so a crash never leaves a truncated report behind.
type DirArchiver struct {
	Dir string
}

func (a DirArchiver) Store(ctx context.Context, filename string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid report name %q", filename)
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(a.Dir, filename+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(a.Dir, filename))
}

// ZerologLogger adapts a zerolog logger to Logger. Fields are key/value pairs.
type ZerologLogger struct {
	Logger zerolog.Logger
}

func (l ZerologLogger) Info(msg string, fields ...interface{}) {
	l.Logger.Info().Fields(fields).Msg(msg)
}

func (l ZerologLogger) Error(msg string, fields ...interface{}) {
	l.Logger.Error().Fields(fields).Msg(msg)
}

func (l ZerologLogger) Debug(msg string, fields ...interface{}) {
	l.Logger.Debug().Fields(fields).Msg(msg)
}
