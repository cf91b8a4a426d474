package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/rs/zerolog"
)

// WriteMode selects how Save durably persists a file.
type WriteMode string

const (
	// WriteModeAtomic writes to a temp sibling and renames over the
	// primary (the default).
	WriteModeAtomic WriteMode = "atomic"
	// WriteModeDirect writes straight to the primary path, for hosts
	// where rename is unreliable. A knob, not a default.
	WriteModeDirect WriteMode = "direct"
)

const renameRetries = 3

// Store is the durable per-store state contract.
type Store interface {
	Load(storeID int) (types.StateMap, error)
	Save(storeID int, state types.StateMap) error
	Exists(storeID int) bool
	Delete(storeID int) error
}

// FileStateStore persists one JSON file per store under dir, with a
// sibling ".bak" backup and crash-atomic writes.
type FileStateStore struct {
	dir    string
	mode   WriteMode
	logger zerolog.Logger

	mu sync.Mutex // serializes writes; callers must still serialize per store
}

// NewFileStateStore creates a store rooted at dir, creating it if absent.
func NewFileStateStore(dir string, mode WriteMode) (*FileStateStore, error) {
	if mode == "" {
		mode = WriteModeAtomic
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStateStore{
		dir:    dir,
		mode:   mode,
		logger: log.WithComponent("state-store"),
	}, nil
}

func (s *FileStateStore) primaryPath(storeID int) string {
	return filepath.Join(s.dir, fmt.Sprintf(".state-store-%d.json", storeID))
}

func (s *FileStateStore) backupPath(storeID int) string {
	return s.primaryPath(storeID) + ".bak"
}

// Load implements the corruption-vs-absence protocol: an absent
// primary is empty state (no backup consulted); a corrupt primary
// falls back to the backup; both failing degrades to empty.
func (s *FileStateStore) Load(storeID int) (types.StateMap, error) {
	primary := s.primaryPath(storeID)

	raw, err := os.ReadFile(primary)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.StateMap{}, nil
		}
		return types.StateMap{}, fmt.Errorf("read state file: %w", err)
	}

	state, decodeErr := validateAndDecode(raw)
	if decodeErr == nil {
		return state, nil
	}

	s.logger.Warn().
		Int("store_id", storeID).
		Err(decodeErr).
		Msg("primary state file is corrupt or fails schema validation, falling back to backup")

	backupRaw, err := os.ReadFile(s.backupPath(storeID))
	if err != nil {
		s.logger.Error().
			Int("store_id", storeID).
			Msg("no usable backup state file, treating state as empty")
		return types.StateMap{}, nil
	}

	backupState, backupErr := validateAndDecode(backupRaw)
	if backupErr != nil {
		s.logger.Error().
			Int("store_id", storeID).
			Err(backupErr).
			Msg("backup state file is also corrupt, treating state as empty")
		return types.StateMap{}, nil
	}

	return backupState, nil
}

// Save crash-atomically persists state, best-effort copying the prior
// primary to the backup path first. Failures are logged, never returned
// as fatal: the prior file is left intact and the next run re-diffs.
func (s *FileStateStore) Save(storeID int, state types.StateMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	primary := s.primaryPath(storeID)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.logger.Error().Int("store_id", storeID).Err(err).Msg("failed to marshal state, skipping save")
		return nil
	}

	if _, err := os.Stat(primary); err == nil {
		if copyErr := copyFile(primary, s.backupPath(storeID)); copyErr != nil {
			s.logger.Warn().Int("store_id", storeID).Err(copyErr).Msg("failed to refresh backup before save")
		}
	}

	if s.mode == WriteModeDirect {
		if err := os.WriteFile(primary, data, 0o644); err != nil {
			s.logger.Error().Int("store_id", storeID).Err(err).Msg("direct write failed, prior state left intact")
		}
		return nil
	}

	if err := atomicWrite(primary, data); err != nil {
		s.logger.Error().Int("store_id", storeID).Err(err).Msg("atomic save degraded, prior state left intact")
	}
	return nil
}

// Exists reports whether a primary state file exists for storeID.
func (s *FileStateStore) Exists(storeID int) bool {
	_, err := os.Stat(s.primaryPath(storeID))
	return err == nil
}

// Delete removes the primary and backup files for storeID.
func (s *FileStateStore) Delete(storeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, p := range []string{s.primaryPath(storeID), s.backupPath(storeID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// atomicWrite writes data to a temp sibling of path and renames it into
// place. Transient rename failures (busy/locked/permission) are retried
// a few times before falling back to a non-atomic copy+delete.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	var renameErr error
	for attempt := 0; attempt < renameRetries; attempt++ {
		renameErr = os.Rename(tmp, path)
		if renameErr == nil {
			return nil
		}
		if !isTransientRenameError(renameErr) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}

	// Persistent failure: degrade to copy+delete rather than lose the write.
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename failed (%v) and direct fallback write failed: %w", renameErr, err)
	}
	_ = os.Remove(tmp)
	return nil
}

func isTransientRenameError(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrExist) || errors.Is(err, os.ErrClosed)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
