package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-dispatch/pkg/compression"
	"github.com/ajitpratap0/nebula-dispatch/pkg/config"
	"github.com/ajitpratap0/nebula-dispatch/pkg/errors"
	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// Store persists state snapshots between reads.
type Store interface {
	// Load returns the last saved snapshot; an empty map when none exists
	Load(ctx context.Context) (map[string]stream.State, error)
	// Save replaces the persisted state of every stream in snapshot
	Save(ctx context.Context, snapshot map[string]stream.State) error
	Close() error
}

// NewStore opens the store selected by cfg. It returns nil, nil when no
// backend is configured.
func NewStore(ctx context.Context, cfg config.StateConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "file":
		alg, err := compression.ParseAlgorithm(cfg.Compression)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid state compression")
		}
		return NewFileStore(cfg.Path, alg)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, cfg.Table, logger)
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown state backend %q", cfg.Backend)
}

// FileStore keeps the snapshot in one JSON file, optionally compressed.
type FileStore struct {
	path       string
	compressor compression.Compressor
	mu         sync.Mutex
}

// NewFileStore creates a store at path.
func NewFileStore(path string, alg compression.Algorithm) (*FileStore, error) {
	c, err := compression.NewCompressor(alg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid state compression")
	}
	return &FileStore{path: path, compressor: c}, nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (map[string]stream.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]stream.State{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file")
	}
	raw, err := s.compressor.Decompress(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decompress state file")
	}
	m, err := ParsePrior(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decode state file")
	}
	return m.Snapshot(), nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, snapshot map[string]stream.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode state")
	}
	data, err := s.compressor.Compress(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to compress state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create state directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary state file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to replace state file")
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// String describes the store for logs.
func (s *FileStore) String() string {
	return fmt.Sprintf("file:%s (%s)", s.path, s.compressor.Algorithm())
}
