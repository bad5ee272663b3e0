package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrCorrupt is returned by ReadJSONRecovered when neither the primary
// file nor its .backup sibling could be parsed.
var ErrCorrupt = errors.New("store: file and backup both unreadable")

// WriteJSONAtomic writes v as JSON to path such that a reader never
// observes a partially written file:
//
//  1. the full document is written to a sibling .tmp file,
//  2. any existing file at path is renamed to path+".backup", keeping the
//     most recent prior state as a one-step-back recovery point,
//  3. the .tmp file is renamed onto path.
//
// Renames are atomic on POSIX filesystems, so a crash between steps leaves
// either the old state (possibly under .backup) or the complete new state.
// On any failure the .tmp file is removed and the prior contents of path
// and path+".backup" are left untouched.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".backup"); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to rotate backup for %s: %w", path, err)
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// ReadJSONRecovered reads path into v, falling back to path+".backup" when
// the primary file is missing or fails to parse. It reports whether the
// backup copy was used.
//
// When neither file exists, v is left untouched and fs.ErrNotExist is
// returned; when both exist but neither parses, ErrCorrupt is returned.
// Callers decide whether those outcomes degrade to an empty collection.
func ReadJSONRecovered(path string, v any) (recovered bool, err error) {
	primaryErr := readJSON(path, v)
	if primaryErr == nil {
		return false, nil
	}

	backupErr := readJSON(path+".backup", v)
	if backupErr == nil {
		return true, nil
	}

	if errors.Is(primaryErr, fs.ErrNotExist) && errors.Is(backupErr, fs.ErrNotExist) {
		return false, primaryErr
	}
	return false, fmt.Errorf("%w: %s (primary: %v, backup: %v)", ErrCorrupt, path, primaryErr, backupErr)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
