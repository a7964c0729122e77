package datalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const currentFileName = "current.json"

// Session describes one session file on disk.
type Session struct {
	ID        string
	Path      string
	Size      int64
	StartedAt time.Time
}

// ListSessions returns the session files in dir, oldest first. A missing
// dir yields an empty list.
func ListSessions(dir string) ([]Session, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datalog: read dir %q: %w", dir, err)
	}

	var sessions []Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), Ext)
		s := Session{ID: id, Path: filepath.Join(dir, e.Name())}
		if info, err := e.Info(); err == nil {
			s.Size = info.Size()
			s.StartedAt = info.ModTime()
		}
		if ms, ok := sessionMillis(id); ok {
			s.StartedAt = time.UnixMilli(ms)
		}
		sessions = append(sessions, s)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func sessionMillis(id string) (int64, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return 0, false
	}
	ms, err := strconv.ParseInt(id[i+1:], 10, 64)
	return ms, err == nil
}

// EnforceRetention removes the oldest session files in dir so that at most
// keep remain. The file named by currentPath is never removed. keep <= 0
// disables retention.
func EnforceRetention(dir string, keep int, currentPath string) error {
	if keep <= 0 {
		return nil
	}
	sessions, err := ListSessions(dir)
	if err != nil {
		return err
	}
	excess := len(sessions) - keep
	for _, s := range sessions {
		if excess <= 0 {
			break
		}
		if currentPath != "" && sameFile(s.Path, currentPath) {
			continue
		}
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("datalog: remove %q: %w", s.Path, err)
		}
		excess--
	}
	return nil
}

func sameFile(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// Current points at the session file being written by a running process.
type Current struct {
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	Transport string    `json:"transport"`
	StartedAt time.Time `json:"started_at"`
	PID       int       `json:"pid"`
}

// WriteCurrent records c as the current session in dir. The file is written
// to a temp file first and renamed into place.
func WriteCurrent(dir string, c Current) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("datalog: mkdir %q: %w", dir, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("datalog: marshal current: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".current-*.tmp")
	if err != nil {
		return fmt.Errorf("datalog: create temp current: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("datalog: write current: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("datalog: close current: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, currentFileName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("datalog: finalize current: %w", err)
	}
	return nil
}

// ReadCurrent returns the current session recorded in dir. If none was
// recorded, it falls back to the newest session file.
func ReadCurrent(dir string) (Current, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFileName))
	if err == nil {
		var c Current
		if err := json.Unmarshal(data, &c); err != nil {
			return Current{}, fmt.Errorf("datalog: parse current: %w", err)
		}
		return c, nil
	}
	if !os.IsNotExist(err) {
		return Current{}, fmt.Errorf("datalog: read current: %w", err)
	}

	sessions, err := ListSessions(dir)
	if err != nil {
		return Current{}, err
	}
	if len(sessions) == 0 {
		return Current{}, fmt.Errorf("datalog: no sessions in %q", dir)
	}
	last := sessions[len(sessions)-1]
	return Current{SessionID: last.ID, Path: last.Path, StartedAt: last.StartedAt}, nil
}

// ClearCurrent removes the current-session pointer. A missing pointer is
// not an error.
func ClearCurrent(dir string) error {
	err := os.Remove(filepath.Join(dir, currentFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("datalog: clear current: %w", err)
	}
	return nil
}
