// ABOUTME: Backup ledger: timestamped sibling backups and one-shot undo of the last mutation
// ABOUTME: Persists the most recent backup set per project in recovery_state.json

package revert

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mauromedda/pi-effector/internal/types"
)

// StateFileName is the per-project recovery record.
const StateFileName = "recovery_state.json"

const tsLayout = "20060102_150405"

// BackupEntry links a mutated file to the copy taken just before the mutation.
// A Created entry has no backup: the mutation brought Original into
// existence, so undo removes it.
type BackupEntry struct {
	Original string `json:"original"`
	Backup   string `json:"backup"`
	TS       string `json:"ts"`
	Created  bool   `json:"created,omitempty"`
}

// State is the persisted recovery record.
type State struct {
	Last []BackupEntry `json:"last"`
}

// UndoReport lists what undo restored, what it removed, and which backups
// had disappeared.
type UndoReport struct {
	Restored []BackupEntry `json:"restored"`
	Removed  []BackupEntry `json:"removed"`
	Missing  []BackupEntry `json:"missing"`
}

// Ledger records the backups of the most recently completed mutating action
// for one project.
type Ledger struct {
	statePath string
	now       func() time.Time
}

// NewLedger creates a ledger whose state lives in projectDir/stateDir.
func NewLedger(projectDir, stateDir string) *Ledger {
	return &Ledger{
		statePath: filepath.Join(projectDir, stateDir, StateFileName),
		now:       time.Now,
	}
}

// StatePath returns the location of the recovery record.
func (l *Ledger) StatePath() string {
	return l.statePath
}

// BackupIfExists copies path to <name>.bak.<timestamp> when path is an
// existing regular file. It returns nil when there is nothing to back up.
// Backups taken within the same second get a numeric suffix.
func (l *Ledger) BackupIfExists(path string) (*BackupEntry, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	ts := l.now().Format(tsLayout)
	bak := path + ".bak." + ts
	for i := 2; exists(bak); i++ {
		bak = path + ".bak." + ts + "." + strconv.Itoa(i)
	}

	if err := copyFile(path, bak); err != nil {
		return nil, fmt.Errorf("backing up %s: %w", path, err)
	}
	return &BackupEntry{Original: path, Backup: bak, TS: ts}, nil
}

// Created returns the entry recording that path did not exist before the
// current mutation.
func (l *Ledger) Created(path string) BackupEntry {
	return BackupEntry{Original: path, TS: l.now().Format(tsLayout), Created: true}
}

// RecordLast replaces the recorded set with entries (which may be empty).
func (l *Ledger) RecordLast(entries []BackupEntry) error {
	if entries == nil {
		entries = []BackupEntry{}
	}
	return l.save(State{Last: entries})
}

// Last returns the recorded backup set. A missing or corrupt record is empty.
func (l *Ledger) Last() []BackupEntry {
	data, err := os.ReadFile(l.statePath)
	if err != nil {
		return nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	return st.Last
}

// UndoLast restores every recorded backup over its original path and
// removes paths the mutation created. Entries whose backup file is gone are
// reported as missing without blocking the rest. The record is cleared
// afterwards regardless, so undo is one-shot.
func (l *Ledger) UndoLast() (UndoReport, error) {
	entries := l.Last()
	if len(entries) == 0 {
		return UndoReport{}, types.Errorf(types.KindNoBackupAvailable, "no backup to restore")
	}

	report := UndoReport{Restored: []BackupEntry{}, Removed: []BackupEntry{}, Missing: []BackupEntry{}}
	var firstErr error
	for _, e := range entries {
		if e.Created {
			// os.Remove refuses non-empty directories, which are left alone.
			if err := os.Remove(e.Original); err != nil && !errors.Is(err, fs.ErrNotExist) {
				if firstErr == nil {
					firstErr = fmt.Errorf("removing %s: %w", e.Original, err)
				}
				report.Missing = append(report.Missing, e)
				continue
			}
			report.Removed = append(report.Removed, e)
			continue
		}
		if !exists(e.Backup) {
			report.Missing = append(report.Missing, e)
			continue
		}
		if err := Restore(e); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			report.Missing = append(report.Missing, e)
			continue
		}
		report.Restored = append(report.Restored, e)
	}

	if err := l.RecordLast(nil); err != nil && firstErr == nil {
		firstErr = err
	}
	return report, firstErr
}

// Restore copies the backup back over the original, creating parent
// directories as needed.
func Restore(e BackupEntry) error {
	if err := os.MkdirAll(filepath.Dir(e.Original), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", e.Original, err)
	}
	if err := copyFile(e.Backup, e.Original); err != nil {
		return fmt.Errorf("restoring %s: %w", e.Original, err)
	}
	return nil
}

// save writes the record through a temp file and rename.
func (l *Ledger) save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding recovery state: %w", err)
	}
	dir := filepath.Dir(l.statePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, StateFileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.statePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", l.statePath, err)
	}
	return nil
}

// copyFile copies src to dst, preserving the permission bits and mtime.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
