package validator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

const (
	filePrefix = "amman-config_"
	// amman loads its config with require(), which needs the .json suffix
	fileSuffix = ".json"
	fileMode   = 0o600
)

// File is a config written to disk for one validator start.
type File struct {
	Path string
}

// Materialize writes cfg to a fresh file in dir. An empty dir uses the
// system temp directory. The file is written atomically so amman never
// sees a partial config.
func Materialize(dir string, cfg *Config) (*File, error) {
	if cfg == nil {
		return nil, errors.New("no config to materialize")
	}
	if dir == "" {
		dir = os.TempDir()
	}

	data, err := cfg.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	path := filepath.Join(dir, filePrefix+uuid.NewString()+fileSuffix)
	if err := renameio.WriteFile(path, data, fileMode); err != nil {
		return nil, fmt.Errorf("failed to write config %s: %w", path, err)
	}

	slog.Debug("Materialized validator config", "path", path, "bytes", len(data))
	return &File{Path: path}, nil
}

// Remove deletes the file. Removing a file that is already gone is not an error.
func (f *File) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove config %s: %w", f.Path, err)
	}
	return nil
}
