package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"masskribbl/internal/app/user"
	"masskribbl/internal/protocol"
)

const (
	// StorageName names the persisted record in every backend.
	StorageName = "masskribbl-storage"

	// recordVersion is written with every record; bump it when Persisted changes shape.
	recordVersion = 0
)

// Persisted is the subset of State that survives restarts.
type Persisted struct {
	User         *user.User    `json:"user"`
	SoundEnabled bool          `json:"soundEnabled"`
	CurrentTool  protocol.Tool `json:"currentTool"`
	BrushSize    int           `json:"brushSize"`
	BrushColor   string        `json:"brushColor"`
}

func (p Persisted) equal(o Persisted) bool {
	if (p.User == nil) != (o.User == nil) {
		return false
	}
	if p.User != nil && *p.User != *o.User {
		return false
	}
	return p.SoundEnabled == o.SoundEnabled &&
		p.CurrentTool == o.CurrentTool &&
		p.BrushSize == o.BrushSize &&
		p.BrushColor == o.BrushColor
}

// Persister loads and saves the persisted record.
type Persister interface {
	// Load returns the stored record merged over defaults, or nil when nothing is stored.
	Load(ctx context.Context, defaults Persisted) (*Persisted, error)

	// Save replaces the stored record.
	Save(ctx context.Context, p Persisted) error
}

type record struct {
	State   Persisted `json:"state"`
	Version int       `json:"version"`
}

func encodeRecord(p Persisted) ([]byte, error) {
	data, err := json.Marshal(record{State: p, Version: recordVersion})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", StorageName, err)
	}
	return data, nil
}

// decodeRecord unmarshals over defaults so fields absent from an older record keep
// their default values.
func decodeRecord(data []byte, defaults Persisted) (*Persisted, error) {
	rec := record{State: defaults}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StorageName, err)
	}
	return &rec.State, nil
}

// FilePersister keeps the record as a JSON file.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister writing to path. The directory is created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// DefaultFilePath returns <user config dir>/masskribbl/masskribbl-storage.json.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "masskribbl", StorageName+".json"), nil
}

func (f *FilePersister) Load(_ context.Context, defaults Persisted) (*Persisted, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return decodeRecord(data, defaults)
}

// Save writes to a temporary file and renames it over the target so readers never see
// a partial record.
func (f *FilePersister) Save(_ context.Context, p Persisted) error {
	data, err := encodeRecord(p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), StorageName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
