package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Staging is the directory holding raw uploaded files.
type Staging struct {
	dir string
}

// NewStaging creates dir if needed.
func NewStaging(dir string) (*Staging, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Staging{dir: dir}, nil
}

// Dir returns the staging directory.
func (s *Staging) Dir() string {
	return s.dir
}

// Stage writes data to <dir>/<base name of filename>, replacing any earlier
// upload of the same name. The file appears complete or not at all.
func (s *Staging) Stage(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(filepath.FromSlash(filename))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return fmt.Errorf("%w: file name %q", ErrInvalidIdentifier, filename)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("staging upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("staging upload: %w", err)
	}
	return nil
}

// Clear removes every regular file in the directory and returns how many
// were removed. Subdirectories are left alone.
func (s *Staging) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading upload directory: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}

// Health reports whether the directory exists.
func (s *Staging) Health() error {
	return checkDir(s.dir)
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
