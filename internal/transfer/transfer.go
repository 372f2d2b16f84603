// Package transfer wraps the filesystem calls used to rename and delete
// library files. Every call is bounded by a timeout so that a hung mount
// cannot block a scan, execution or rollback forever; a timed-out call is
// abandoned, not killed, and reported as ErrTimeout.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var (
	// ErrTimeout is returned when a filesystem call does not finish in time.
	ErrTimeout = errors.New("filesystem call timed out")

	// ErrSourceNotFound is returned when the file to move no longer exists.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrDestinationExists is returned instead of overwriting a file.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrChecksumMismatch is returned when a cross-device copy does not verify.
	ErrChecksumMismatch = errors.New("checksum mismatch after copy")
)

// DefaultTimeout bounds a single call when FS.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// FS performs bounded-time filesystem operations.
type FS struct {
	Timeout time.Duration
	// CopyStall aborts a cross-device copy that makes no progress for this long.
	CopyStall time.Duration

	rename func(src, dst string) error
}

// New returns an FS using timeout for each call.
func New(timeout time.Duration) *FS {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FS{Timeout: timeout, CopyStall: 5 * time.Minute}
}

func (f *FS) timeout() time.Duration {
	if f == nil || f.Timeout <= 0 {
		return DefaultTimeout
	}
	return f.Timeout
}

// bounded runs fn in a goroutine and waits for it, the timeout or ctx.
func bounded[T any](ctx context.Context, timeout time.Duration, op, path string, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)

	go func() {
		v, err := fn()
		ch <- result{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case res := <-ch:
		return res.val, res.err
	case <-timer.C:
		return zero, fmt.Errorf("%s %s: %w after %s", op, path, ErrTimeout, timeout)
	case <-ctx.Done():
		return zero, fmt.Errorf("%s %s: %w", op, path, ctx.Err())
	}
}

// Stat returns file info for path.
func (f *FS) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return bounded(ctx, f.timeout(), "stat", path, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// Lstat returns file info without following a final symlink.
func (f *FS) Lstat(ctx context.Context, path string) (os.FileInfo, error) {
	return bounded(ctx, f.timeout(), "lstat", path, func() (os.FileInfo, error) {
		return os.Lstat(path)
	})
}

// Exists reports whether path exists. Errors other than "not exist" are returned.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := f.Lstat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadDir lists a directory.
func (f *FS) ReadDir(ctx context.Context, path string) ([]os.DirEntry, error) {
	return bounded(ctx, f.timeout(), "readdir", path, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// MkdirAll creates path and any parents.
func (f *FS) MkdirAll(ctx context.Context, path string) error {
	_, err := bounded(ctx, f.timeout(), "mkdir", path, func() (struct{}, error) {
		return struct{}{}, os.MkdirAll(path, 0755)
	})
	return err
}

// Remove deletes a single file.
func (f *FS) Remove(ctx context.Context, path string) error {
	_, err := bounded(ctx, f.timeout(), "remove", path, func() (struct{}, error) {
		return struct{}{}, os.Remove(path)
	})
	return err
}

// RemoveEmptyDir removes dir only if it is empty. A non-empty or missing
// directory is not an error.
func (f *FS) RemoveEmptyDir(ctx context.Context, dir string) error {
	entries, err := f.ReadDir(ctx, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	return f.Remove(ctx, dir)
}

// Move renames src to dst without ever replacing an existing dst. The
// destination directory is created when missing. A cross-device rename
// falls back to copy, verify and remove.
func (f *FS) Move(ctx context.Context, src, dst string) error {
	srcInfo, err := f.Lstat(ctx, src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return err
	}

	if dstInfo, err := f.Lstat(ctx, dst); err == nil {
		// Case-only renames on case-insensitive filesystems see the source here.
		if !os.SameFile(srcInfo, dstInfo) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := f.MkdirAll(ctx, filepath.Dir(dst)); err != nil {
		return err
	}

	rename := os.Rename
	if f.rename != nil {
		rename = f.rename
	}
	_, err = bounded(ctx, f.timeout(), "rename", src, func() (struct{}, error) {
		return struct{}{}, rename(src, dst)
	})
	if err == nil {
		return nil
	}
	// The abandoned rename may still have completed.
	if errors.Is(err, ErrTimeout) && f.landed(ctx, src, dst, srcInfo) {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		return f.moveAcrossDevices(ctx, src, dst, srcInfo)
	}
	return err
}

// landed reports whether src is gone and dst is the file src used to be.
func (f *FS) landed(ctx context.Context, src, dst string, srcInfo os.FileInfo) bool {
	dstInfo, err := f.Lstat(ctx, dst)
	if err != nil || !os.SameFile(srcInfo, dstInfo) {
		return false
	}
	_, err = f.Lstat(ctx, src)
	return errors.Is(err, os.ErrNotExist)
}

// ErrorReason maps an error to a short machine-readable reason.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDestinationExists):
		return "destination_exists"
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, os.ErrNotExist):
		return "source_missing"
	case errors.Is(err, os.ErrPermission):
		return "permission_denied"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	default:
		return "io_error"
	}
}
