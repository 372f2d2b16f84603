package notify

import (
	"context"
	"time"

	"github.com/Nomadcxx/embress/internal/jellyfin"
)

// LibraryRefresher is the part of the Jellyfin client used here.
type LibraryRefresher interface {
	RefreshLibrary(ctx context.Context) error
	Ping(ctx context.Context) error
}

// JellyfinNotifier asks Jellyfin to rescan after a run renamed or restored
// files, so it stops pointing at the old paths.
type JellyfinNotifier struct {
	client  LibraryRefresher
	enabled bool
}

func NewJellyfinNotifier(client *jellyfin.Client, enabled bool) *JellyfinNotifier {
	return &JellyfinNotifier{client: client, enabled: enabled && client != nil}
}

func (j *JellyfinNotifier) Name() string  { return "jellyfin" }
func (j *JellyfinNotifier) Enabled() bool { return j.enabled }

func (j *JellyfinNotifier) Notify(ctx context.Context, event RunEvent) *NotifyResult {
	result := &NotifyResult{Service: j.Name()}
	if event.Applied == 0 {
		result.Success = true
		return result
	}

	start := time.Now()
	err := j.client.RefreshLibrary(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	return result
}

func (j *JellyfinNotifier) Ping(ctx context.Context) error {
	return j.client.Ping(ctx)
}
