package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/rs/zerolog"
)

// CheckpointStore is the per-store counterpart used for crash recovery
// of long initial pushes. It shares StateStore's
// atomic-write discipline but, unlike StateStore, does not maintain a
// backup file — losing a checkpoint only costs a re-push of already
// in-flight batches, never a mass-disable.
type CheckpointStore interface {
	Load(storeID int) (types.CheckpointRecord, bool, error)
	Save(storeID int, checkpoint types.CheckpointRecord) error
	Delete(storeID int) error
}

// FileCheckpointStore persists one JSON file per store under dir.
type FileCheckpointStore struct {
	dir    string
	mode   WriteMode
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileCheckpointStore creates a checkpoint store rooted at dir.
func NewFileCheckpointStore(dir string, mode WriteMode) (*FileCheckpointStore, error) {
	if mode == "" {
		mode = WriteModeAtomic
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileCheckpointStore{
		dir:    dir,
		mode:   mode,
		logger: log.WithComponent("checkpoint-store"),
	}, nil
}

func (c *FileCheckpointStore) path(storeID int) string {
	return filepath.Join(c.dir, fmt.Sprintf(".checkpoint-store-%d.json", storeID))
}

// Load returns the checkpoint for storeID and whether one was found.
func (c *FileCheckpointStore) Load(storeID int) (types.CheckpointRecord, bool, error) {
	raw, err := os.ReadFile(c.path(storeID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.CheckpointRecord{}, false, nil
		}
		return types.CheckpointRecord{}, false, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp types.CheckpointRecord
	if err := json.Unmarshal(raw, &cp); err != nil {
		c.logger.Warn().Int("store_id", storeID).Err(err).Msg("checkpoint file corrupt, treating as absent")
		return types.CheckpointRecord{}, false, nil
	}
	return cp, true, nil
}

// Save persists the checkpoint, logging and swallowing failures.
func (c *FileCheckpointStore) Save(storeID int, checkpoint types.CheckpointRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(checkpoint)
	if err != nil {
		c.logger.Error().Int("store_id", storeID).Err(err).Msg("failed to marshal checkpoint, skipping save")
		return nil
	}

	path := c.path(storeID)
	if c.mode == WriteModeDirect {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			c.logger.Error().Int("store_id", storeID).Err(err).Msg("direct checkpoint write failed")
		}
		return nil
	}
	if err := atomicWrite(path, data); err != nil {
		c.logger.Error().Int("store_id", storeID).Err(err).Msg("atomic checkpoint save degraded")
	}
	return nil
}

// Delete removes the checkpoint file for storeID.
func (c *FileCheckpointStore) Delete(storeID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.path(storeID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
