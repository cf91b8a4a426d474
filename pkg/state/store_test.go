package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func price(v float64) *float64 { return &v }

func newTestStore(t *testing.T) *FileStateStore {
	t.Helper()
	s, err := NewFileStateStore(t.TempDir(), WriteModeAtomic)
	require.NoError(t, err)
	return s
}

func TestLoadAbsentReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load(1)
	require.NoError(t, err)
	require.Empty(t, got)
	require.False(t, s.Exists(1))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := types.StateMap{
		"A": {Quantity: 5, Enabled: true, Price: price(100), LastSeen: 1000},
		"B": {Quantity: 0, Enabled: false, Price: price(200)},
	}

	require.NoError(t, s.Save(7, want))
	require.True(t, s.Exists(7))

	got, err := s.Load(7)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadCorruptPrimaryFallsBackToBackup(t *testing.T) {
	s := newTestStore(t)
	good := types.StateMap{"A": {Quantity: 1, Enabled: true}}

	require.NoError(t, s.Save(3, good))
	// A second, different save turns the first save into the backup.
	require.NoError(t, s.Save(3, types.StateMap{"A": {Quantity: 2, Enabled: true}}))

	// Now corrupt the primary directly.
	require.NoError(t, os.WriteFile(s.primaryPath(3), []byte("not json"), 0o644))

	got, err := s.Load(3)
	require.NoError(t, err)
	require.Equal(t, good, got)
}

func TestLoadCorruptPrimaryAndBackupReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.primaryPath(4), []byte("not json"), 0o644))
	require.NoError(t, os.WriteFile(s.backupPath(4), []byte("also not json"), 0o644))

	got, err := s.Load(4)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSchemaValidationRejectsBadEntries(t *testing.T) {
	s := newTestStore(t)
	bad := `{"A": {"quantity": "five", "enabled": true}}`
	require.NoError(t, os.WriteFile(s.primaryPath(5), []byte(bad), 0o644))

	got, err := s.Load(5)
	require.NoError(t, err)
	require.Empty(t, got, "a schema-invalid primary with no backup must degrade to empty state, not error")
}

func TestDeleteRemovesPrimaryAndBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(9, types.StateMap{"A": {Quantity: 1}}))
	require.NoError(t, s.Save(9, types.StateMap{"A": {Quantity: 2}}))
	require.FileExists(t, s.backupPath(9))

	require.NoError(t, s.Delete(9))
	require.False(t, s.Exists(9))
	_, err := os.Stat(s.backupPath(9))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveFailureLeavesPriorStateIntact(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStateStore(dir, WriteModeAtomic)
	require.NoError(t, err)

	require.NoError(t, s.Save(1, types.StateMap{"A": {Quantity: 1}}))

	// Make the temp sibling path an existing directory so the next
	// save's temp-file write fails regardless of process privileges;
	// Save must not propagate the error, and the previous file must survive.
	require.NoError(t, os.Mkdir(s.primaryPath(1)+".tmp", 0o755))

	err = s.Save(1, types.StateMap{"A": {Quantity: 99}})
	require.NoError(t, err, "Save must never return an error to the caller")

	got, loadErr := s.Load(1)
	require.NoError(t, loadErr)
	require.Equal(t, types.StateMap{"A": {Quantity: 1}}, got)
}

func TestDeletingPrimaryForcesFullOnNextLoad(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(2, types.StateMap{"A": {Quantity: 1}}))
	require.NoError(t, s.Delete(2))

	got, err := s.Load(2)
	require.NoError(t, err)
	require.Empty(t, got, "deleting the primary must force an empty load, not a backup-derived one")
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	cs, err := NewFileCheckpointStore(dir, WriteModeAtomic)
	require.NoError(t, err)

	_, found, err := cs.Load(1)
	require.NoError(t, err)
	require.False(t, found)

	want := types.CheckpointRecord{CompletedBatches: 2, TotalBatches: 5}
	require.NoError(t, cs.Save(1, want))

	got, found, err := cs.Load(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, want.CompletedBatches, got.CompletedBatches)
	require.Equal(t, want.TotalBatches, got.TotalBatches)

	require.NoError(t, cs.Delete(1))
	_, found, err = cs.Load(1)
	require.NoError(t, err)
	require.False(t, found)
}
