package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

// ErrUnsupportedVersion is returned by Load for a file written by a newer build.
var ErrUnsupportedVersion = errors.New("unsupported credential file version")

// FileTokenStore keeps the credential token in a JSON file.
// Writes are atomic (write-tmp-then-rename) and serialized by a mutex
// in-process and by flock on path+".lock" across processes, so two CLI
// invocations racing a login and a logout never leave a torn file.
type FileTokenStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

var _ session.TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore creates a store backed by the file at path. The parent
// directory is created on first Save.
func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	return &FileTokenStore{
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the configured file path.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Exists reports whether the credential file is present.
func (s *FileTokenStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the stored token, or "" when there is no credential file.
// A file readable by group or other is still loaded, with a warning.
func (s *FileTokenStore) Load(_ context.Context) (string, error) {
	st, err := s.read()
	if err != nil || st == nil {
		return "", err
	}
	return st.Token, nil
}

// State returns the full file contents, or nil when there is no file.
func (s *FileTokenStore) State() (*TokenState, error) {
	return s.read()
}

func (s *FileTokenStore) read() (*TokenState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	// Unix permission bits mean nothing on Windows.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("credential file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var st TokenState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse credential file: %w", err)
	}
	if st.Version != "" && st.Version != currentVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, st.Version)
	}
	return &st, nil
}

// Save writes token to disk atomically with 0600 permissions.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Marshal state as indented JSON
//  4. Write to path+".tmp", fsync, rename over path
//  5. Release flock and mutex
func (s *FileTokenStore) Save(_ context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to save an empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	now := s.now()
	st := TokenState{
		Version:   currentVersion,
		Token:     token,
		SavedAt:   now,
		UpdatedAt: now,
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential file: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	// Rename keeps the tmp file's mode, but an umask may have widened it.
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on credential file", "error", err)
	}

	s.logger.Debug("credential saved", "path", s.path)
	return nil
}

// Delete removes the credential file. Deleting a missing file is not an error.
func (s *FileTokenStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Exists() {
		return nil
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	s.logger.Debug("credential removed", "path", s.path)
	return nil
}

// lock acquires the cross-process lock and returns its release func.
func (s *FileTokenStore) lock() (func(), error) {
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockLock(lockFile.Fd()); err != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	return func() {
		_ = flockUnlock(lockFile.Fd())
		_ = lockFile.Close()
	}, nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileTokenStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to credential file: %w", err)
	}
	return nil
}
