package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const copyBufferSize = 4 * 1024 * 1024

// moveAcrossDevices copies src to dst, verifies the copy by content hash and
// removes src. A partial dst is removed on failure.
func (f *FS) moveAcrossDevices(ctx context.Context, src, dst string, srcInfo os.FileInfo) error {
	srcSum, err := f.copyFile(ctx, src, dst, srcInfo.Mode().Perm())
	if err != nil {
		os.Remove(dst)
		return err
	}

	dstSum, err := hashFile(dst)
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("verifying copy: %w", err)
	}
	if dstSum != srcSum {
		os.Remove(dst)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, dst)
	}

	if err := os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return fmt.Errorf("preserving mtime: %w", err)
	}
	return f.Remove(ctx, src)
}

// copyFile streams src into a new dst and returns the xxhash of what was read.
// The copy is aborted when no bytes move for CopyStall.
func (f *FS) copyFile(ctx context.Context, src, dst string, perm os.FileMode) (uint64, error) {
	stall := f.CopyStall
	if stall <= 0 {
		stall = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcFile, err := bounded(ctx, f.timeout(), "open", src, func() (*os.File, error) {
		return os.Open(src)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := bounded(ctx, f.timeout(), "create", dst, func() (*os.File, error) {
		return os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	})
	if err != nil {
		if os.IsExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
		return 0, fmt.Errorf("failed to create destination: %w", err)
	}
	defer dstFile.Close()

	var lastProgress atomic.Int64
	lastProgress.Store(time.Now().UnixNano())

	go func() {
		ticker := time.NewTicker(stall / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, lastProgress.Load())) > stall {
					cancel()
					return
				}
			}
		}
	}()

	digest := xxhash.New()
	buf := make([]byte, copyBufferSize)
	for {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("copy %s: %w: no progress for %s", src, ErrTimeout, stall)
		default:
		}

		nr, readErr := srcFile.Read(buf)
		if nr > 0 {
			digest.Write(buf[:nr])
			nw, writeErr := dstFile.Write(buf[:nr])
			if writeErr != nil {
				return 0, fmt.Errorf("write error: %w", writeErr)
			}
			if nw != nr {
				return 0, fmt.Errorf("short write: %d != %d", nr, nw)
			}
			lastProgress.Store(time.Now().UnixNano())
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, fmt.Errorf("read error: %w", readErr)
		}
	}

	if err := dstFile.Sync(); err != nil {
		return 0, fmt.Errorf("sync error: %w", err)
	}
	return digest.Sum64(), nil
}

func hashFile(path string) (uint64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, fh); err != nil {
		return 0, err
	}
	return digest.Sum64(), nil
}
