package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// fingerprintChunk is read from the head and the tail of a file.
const fingerprintChunk = 1 << 20

// Fingerprint identifies file content by size plus an xxhash of the first
// and last MiB.
type Fingerprint struct {
	Size int64
	Hash uint64
}

// String encodes the fingerprint for storage as "size:hash".
func (fp Fingerprint) String() string {
	return strconv.FormatInt(fp.Size, 10) + ":" + strconv.FormatUint(fp.Hash, 16)
}

// IsZero reports an unset fingerprint.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}

// ParseFingerprint decodes the String form. An empty string yields a zero value.
func ParseFingerprint(s string) (Fingerprint, error) {
	if s == "" {
		return Fingerprint{}, nil
	}
	sizeStr, hashStr, ok := strings.Cut(s, ":")
	if !ok {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint %q", s)
	}
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint size %q: %w", s, err)
	}
	hash, err := strconv.ParseUint(hashStr, 16, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint hash %q: %w", s, err)
	}
	return Fingerprint{Size: size, Hash: hash}, nil
}

// Fingerprint computes the fingerprint of path within the call timeout.
func (f *FS) Fingerprint(ctx context.Context, path string) (Fingerprint, error) {
	return bounded(ctx, f.timeout(), "fingerprint", path, func() (Fingerprint, error) {
		return fingerprintFile(path)
	})
}

func fingerprintFile(path string) (Fingerprint, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return Fingerprint{}, err
	}
	size := info.Size()

	digest := xxhash.New()
	if size <= 2*fingerprintChunk {
		if _, err := io.Copy(digest, fh); err != nil {
			return Fingerprint{}, err
		}
		return Fingerprint{Size: size, Hash: digest.Sum64()}, nil
	}

	if _, err := io.CopyN(digest, fh, fingerprintChunk); err != nil {
		return Fingerprint{}, err
	}
	if _, err := fh.Seek(-fingerprintChunk, io.SeekEnd); err != nil {
		return Fingerprint{}, err
	}
	if _, err := io.CopyN(digest, fh, fingerprintChunk); err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: size, Hash: digest.Sum64()}, nil
}
