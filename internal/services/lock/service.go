// Package lock provides advisory, per-stack exclusive locks backed by lock files.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fgeck/stackguard/internal/models"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// ErrLockUnavailable is returned when a lock cannot be obtained, either because
// the lock file could not be opened or because the timeout elapsed.
var ErrLockUnavailable = errors.New("lock unavailable")

const (
	// DefaultTimeout is how long Acquire waits when callers have no preference.
	DefaultTimeout = 30 * time.Second

	// PollInterval is the delay between two non-blocking lock attempts.
	PollInterval = time.Second
)

// Service defines the interface for stack lock operations.
type Service interface {
	Acquire(ctx context.Context, stack string, timeout time.Duration) (*Handle, error)
	IsLocked(stack string) (*models.LockInfo, bool)
	WithLock(ctx context.Context, stack string, timeout time.Duration, fn func() error) error
}

// Impl implements the Service interface.
type Impl struct {
	lockDir      string
	pollInterval time.Duration
	logger       zerolog.Logger
}

// New creates a new lock service storing lock files in lockDir.
func New(logger zerolog.Logger, lockDir string) *Impl {
	return NewWithPollInterval(logger, lockDir, PollInterval)
}

// NewWithPollInterval creates a new lock service with a custom poll interval (for testing).
func NewWithPollInterval(logger zerolog.Logger, lockDir string, interval time.Duration) *Impl {
	return &Impl{
		lockDir:      lockDir,
		pollInterval: interval,
		logger:       logger.With().Str("component", "lock").Logger(),
	}
}

var sanitizer = strings.NewReplacer(".", "_", "-", "_", " ", "_", "/", "_")

// Sanitize maps a stack name to its lock file base name. Names are lower-cased
// and '.', '-', ' ' and '/' fold to '_', so "My.Stack-Name" and "my stack name"
// share one lock.
func Sanitize(stack string) string {
	return sanitizer.Replace(strings.ToLower(stack))
}

// Path returns the lock file path for a stack.
func (s *Impl) Path(stack string) string {
	return filepath.Join(s.lockDir, Sanitize(stack)+".lock")
}

// Acquire takes the exclusive lock for a stack, retrying once per poll interval
// until the timeout elapses. A timeout <= 0 makes a single attempt.
func (s *Impl) Acquire(ctx context.Context, stack string, timeout time.Duration) (*Handle, error) {
	if err := os.MkdirAll(s.lockDir, 0o755); err != nil { //nolint:gosec // lock files are world-readable status
		return nil, fmt.Errorf("%w: creating lock directory %s: %v", ErrLockUnavailable, s.lockDir, err)
	}

	path := s.Path(stack)
	fl := flock.New(path)

	s.logger.Debug().
		Str("stack", stack).
		Str("path", path).
		Dur("timeout", timeout).
		Msg("acquiring stack lock")

	var locked bool
	var err error
	if timeout <= 0 {
		locked, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		locked, err = fl.TryLockContext(lockCtx, s.pollInterval)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), err == nil && !locked:
		s.logger.Warn().Str("stack", stack).Dur("timeout", timeout).Msg("timed out waiting for stack lock")
		return nil, fmt.Errorf("%w: %s is held by another operation (waited %s)", ErrLockUnavailable, stack, timeout)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrLockUnavailable, path, err)
	}

	h := &Handle{stack: stack, path: path, fl: fl, logger: s.logger}
	s.writeInfo(path, stack)

	s.logger.Debug().Str("stack", stack).Msg("stack lock acquired")
	return h, nil
}

// lockFileMode lets other users read holder metadata. flock creates the file
// 0600, so the mode is set explicitly after writing.
const lockFileMode = 0o644

// writeInfo records the holder. The lock stays valid even if this fails.
func (s *Impl) writeInfo(path, stack string) {
	info := models.LockInfo{
		PID:   os.Getpid(),
		Time:  time.Now().Format(time.RFC3339),
		Stack: stack,
	}

	data, err := json.Marshal(info)
	if err == nil {
		err = os.WriteFile(path, data, lockFileMode)
	}
	if err == nil {
		err = os.Chmod(path, lockFileMode) //nolint:gosec // holder metadata is readable by other users
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to write lock metadata")
	}
}

// IsLocked probes the stack lock without waiting. When the lock is held it
// returns the holder metadata, or a bare record naming the stack if the
// metadata cannot be read. The answer may be stale as soon as it is returned.
func (s *Impl) IsLocked(stack string) (*models.LockInfo, bool) {
	path := s.Path(stack)
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}

	fl := flock.New(path)
	free, err := fl.TryLock()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to probe stack lock")
		return nil, false
	}
	if free {
		_ = fl.Unlock()
		return nil, false
	}

	return readInfo(path, stack), true
}

func readInfo(path, stack string) *models.LockInfo {
	data, err := os.ReadFile(path) //nolint:gosec // path built from lock directory
	if err != nil {
		return &models.LockInfo{Stack: stack}
	}

	var info models.LockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.Stack == "" {
		return &models.LockInfo{Stack: stack}
	}
	return &info
}

// WithLock runs fn while holding the stack lock. The lock is released on every
// exit path, including a panic in fn.
func (s *Impl) WithLock(ctx context.Context, stack string, timeout time.Duration, fn func() error) error {
	h, err := s.Acquire(ctx, stack, timeout)
	if err != nil {
		return err
	}
	defer h.Release()

	return fn()
}

// Handle is a held stack lock.
type Handle struct {
	stack    string
	path     string
	fl       *flock.Flock
	logger   zerolog.Logger
	mu       sync.Mutex
	released bool
}

// Stack returns the stack name the handle was acquired for.
func (h *Handle) Stack() string {
	return h.stack
}

// Path returns the lock file path.
func (h *Handle) Path() string {
	return h.path
}

// Release unlocks and closes the lock file. Releasing a nil or already
// released handle does nothing.
func (h *Handle) Release() {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released || h.fl == nil {
		return
	}
	h.released = true

	if err := h.fl.Unlock(); err != nil {
		h.logger.Warn().Err(err).Str("stack", h.stack).Msg("failed to release stack lock")
		return
	}
	h.logger.Debug().Str("stack", h.stack).Msg("stack lock released")
}
