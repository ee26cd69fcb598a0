package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-dal/dberrors"
)

const lockExt = ".lock"

// LockInfo is the content of a lock file.
type LockInfo struct {
	Name       string    `yaml:"name"`
	Owner      string    `yaml:"owner"`
	PID        int       `yaml:"pid"`
	Host       string    `yaml:"host"`
	AcquiredAt time.Time `yaml:"acquired_at"`
}

// FileLock is an advisory lock held by one batch across processes.
type FileLock struct {
	path   string
	info   LockInfo
	logger *zap.Logger
}

// LockPath returns the lock file of name in dir.
func LockPath(dir, name string) string {
	return filepath.Join(dir, name+lockExt)
}

// AcquireFileLock creates the lock file of name in dir. It fails with a
// concurrency conflict error if that file exists or if any of the blocking
// batches currently holds its lock.
func AcquireFileLock(dir, name string, blocking []string, logger *zap.Logger) (*FileLock, error) {
	if logger == nil {
		logger = zap.L().Named("batch")
	}
	for _, other := range blocking {
		if _, err := os.Stat(LockPath(dir, other)); err == nil {
			return nil, dberrors.ConcurrencyConflict("batch", fmt.Sprintf("%s blocked by %s", name, other))
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("check lock of %s: %w", other, err)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := LockPath(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, dberrors.ConcurrencyConflict("batch", name)
	}
	if err != nil {
		return nil, fmt.Errorf("create lock %s: %w", path, err)
	}
	defer f.Close()

	host, _ := os.Hostname()
	info := LockInfo{
		Name:       name,
		Owner:      uuid.NewString(),
		PID:        os.Getpid(),
		Host:       host,
		AcquiredAt: time.Now().UTC(),
	}
	if err := yaml.NewEncoder(f).Encode(info); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock %s: %w", path, err)
	}
	return &FileLock{path: path, info: info, logger: logger}, nil
}

// ReadLock returns the content of an existing lock file.
func ReadLock(dir, name string) (LockInfo, error) {
	var info LockInfo
	data, err := os.ReadFile(LockPath(dir, name))
	if err != nil {
		return info, err
	}
	err = yaml.Unmarshal(data, &info)
	return info, err
}

func (l *FileLock) Info() LockInfo { return l.info }

func (l *FileLock) Path() string { return l.path }

// Release deletes the lock file if this lock still owns it. Failures are
// logged and returned; callers finishing a run should not fail on them.
func (l *FileLock) Release() error {
	data, err := os.ReadFile(l.path)
	if err == nil {
		var current LockInfo
		if yaml.Unmarshal(data, &current) == nil && current.Owner != l.info.Owner {
			err = fmt.Errorf("lock %s now owned by %s", l.path, current.Owner)
			l.logger.Warn("lock file taken over, leaving it", zap.String("path", l.path), zap.Error(err))
			return err
		}
		err = os.Remove(l.path)
	}
	if err != nil {
		l.logger.Warn("release lock file failed", zap.String("path", l.path), zap.Error(err))
	}
	return err
}
