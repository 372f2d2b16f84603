package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// DiskHealth describes whether a library directory can be renamed into.
type DiskHealth struct {
	Path       string `json:"path"`
	Accessible bool   `json:"accessible"`
	Writable   bool   `json:"writable"`
	SpaceFree  int64  `json:"space_free"`
	SpaceTotal int64  `json:"space_total"`
	Error      string `json:"error,omitempty"`
}

func (h *DiskHealth) IsHealthy() bool {
	return h.Accessible && h.Writable && h.Error == ""
}

// CheckDiskHealth probes path for accessibility, free space and writability,
// each step bounded by timeout.
func CheckDiskHealth(ctx context.Context, path string, timeout time.Duration) (*DiskHealth, error) {
	health := &DiskHealth{Path: path}

	info, err := bounded(ctx, timeout, "stat", path, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
	if err != nil {
		health.Error = fmt.Sprintf("stat failed: %v", err)
		return health, fmt.Errorf("stat failed: %w", err)
	}
	if !info.IsDir() {
		health.Error = "not a directory"
		return health, fmt.Errorf("%s is not a directory", path)
	}
	health.Accessible = true

	var statfs syscall.Statfs_t
	if _, err := bounded(ctx, timeout, "statfs", path, func() (struct{}, error) {
		return struct{}{}, syscall.Statfs(path, &statfs)
	}); err != nil {
		health.Error = fmt.Sprintf("statfs failed: %v", err)
	} else {
		health.SpaceFree = int64(statfs.Bavail) * int64(statfs.Bsize)
		health.SpaceTotal = int64(statfs.Blocks) * int64(statfs.Bsize)
	}

	testFile := filepath.Join(path, fmt.Sprintf(".embress_health_check_%d", time.Now().UnixNano()))
	_, err = bounded(ctx, timeout, "write test", path, func() (struct{}, error) {
		f, err := os.Create(testFile)
		if err != nil {
			return struct{}{}, err
		}
		_, err = f.WriteString("health check")
		f.Close()
		os.Remove(testFile)
		return struct{}{}, err
	})
	health.Writable = err == nil
	if err != nil && health.Error == "" {
		health.Error = fmt.Sprintf("write test failed: %v", err)
	}

	return health, nil
}
