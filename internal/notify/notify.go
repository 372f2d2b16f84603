// Package notify sends run summaries to configured channels after scans
// and rollbacks finish.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nomadcxx/embress/internal/logging"
)

// EventKind is what finished.
type EventKind int

const (
	EventScan EventKind = iota
	EventRollback
)

func (k EventKind) String() string {
	switch k {
	case EventScan:
		return "scan"
	case EventRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// RunEvent summarizes a finished scan or rollback
type RunEvent struct {
	Kind      EventKind
	RunID     string
	Trigger   string
	Scope     string
	Outcome   string
	Applied   int
	Failed    int
	Unrenamed int
	Warnings  int
	// Failures holds one line per failed item, capped by the sender.
	Failures []string
	Duration time.Duration
}

// Noteworthy reports whether the event changed or failed anything.
func (e RunEvent) Noteworthy() bool {
	return e.Applied > 0 || e.Failed > 0 || e.Warnings > 0
}

// NotifyResult represents the result of a notification attempt
type NotifyResult struct {
	Service  string
	Success  bool
	Error    error
	Duration time.Duration
}

// Notifier is the interface that notification providers must implement
type Notifier interface {
	// Name returns the name of the notification service
	Name() string

	// Notify sends a notification about the event
	Notify(ctx context.Context, event RunEvent) *NotifyResult

	// Ping checks if the service is reachable
	Ping(ctx context.Context) error

	// Enabled returns whether this notifier is enabled
	Enabled() bool
}

// Manager handles multiple notification providers
type Manager struct {
	notifiers []Notifier
	mu        sync.RWMutex
	async     bool
	results   chan *NotifyResult
	logger    *logging.Logger
	wg        sync.WaitGroup
}

// NewManager creates a new notification manager
func NewManager(async bool, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Manager{
		notifiers: make([]Notifier, 0),
		async:     async,
		logger:    logger,
	}
	if async {
		m.results = make(chan *NotifyResult, 100)
	}
	return m
}

// Register adds a notifier to the manager
func (m *Manager) Register(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.Enabled() {
		m.notifiers = append(m.notifiers, n)
		m.logger.Info("notify", "Registered notifier", logging.F("notifier", n.Name()))
	}
}

// Notify sends notifications to all registered providers. In async mode it
// returns nil immediately.
func (m *Manager) Notify(ctx context.Context, event RunEvent) []*NotifyResult {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	notifiers := make([]Notifier, len(m.notifiers))
	copy(notifiers, m.notifiers)
	m.mu.RUnlock()

	if len(notifiers) == 0 {
		return nil
	}

	if m.async {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.notifyAsync(context.WithoutCancel(ctx), notifiers, event)
		}()
		return nil
	}

	return m.notifySync(ctx, notifiers, event)
}

func (m *Manager) notifySync(ctx context.Context, notifiers []Notifier, event RunEvent) []*NotifyResult {
	results := make([]*NotifyResult, 0, len(notifiers))

	for _, n := range notifiers {
		result := n.Notify(ctx, event)
		results = append(results, result)
		m.logResult(n.Name(), result)
	}

	return results
}

func (m *Manager) notifyAsync(ctx context.Context, notifiers []Notifier, event RunEvent) {
	var wg sync.WaitGroup

	for _, n := range notifiers {
		wg.Add(1)
		go func(notifier Notifier) {
			defer wg.Done()

			result := notifier.Notify(ctx, event)
			if m.results != nil {
				select {
				case m.results <- result:
				default:
					// Channel full, log and discard
					m.logger.Warn("notify", "Result channel full, discarding",
						logging.F("notifier", notifier.Name()))
				}
			}
			m.logResult(notifier.Name(), result)
		}(n)
	}

	wg.Wait()
}

func (m *Manager) logResult(name string, result *NotifyResult) {
	if result.Success {
		m.logger.Debug("notify", "Notification sent", logging.F("notifier", name))
	} else {
		m.logger.Error("notify", "Notification failed", result.Error, logging.F("notifier", name))
	}
}

// Results returns the async results channel (nil if sync mode)
func (m *Manager) Results() <-chan *NotifyResult {
	return m.results
}

// PingAll checks connectivity to all registered notifiers
func (m *Manager) PingAll(ctx context.Context) map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]error)
	for _, n := range m.notifiers {
		results[n.Name()] = n.Ping(ctx)
	}
	return results
}

// NotifierCount returns the number of registered notifiers
func (m *Manager) NotifierCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifiers)
}

// Close waits for pending async notifications and cleans up the manager
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.wg.Wait()
	if m.results != nil {
		close(m.results)
	}
}

// FormatEventSummary returns a one-line summary of the event
func FormatEventSummary(event RunEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", event.Kind, event.Outcome)
	if event.Scope != "" {
		fmt.Fprintf(&b, " (%s)", event.Scope)
	}
	fmt.Fprintf(&b, ": %d applied, %d failed", event.Applied, event.Failed)
	if event.Kind == EventScan {
		fmt.Fprintf(&b, ", %d unrenamed", event.Unrenamed)
	}
	return b.String()
}

// FormatEventBody returns a multi-line description for text channels.
func FormatEventBody(event RunEvent, maxFailures int) string {
	var b strings.Builder
	b.WriteString(FormatEventSummary(event))
	b.WriteString("\n\n")
	if event.RunID != "" {
		fmt.Fprintf(&b, "Run:      %s\n", event.RunID)
	}
	if event.Trigger != "" {
		fmt.Fprintf(&b, "Trigger:  %s\n", event.Trigger)
	}
	fmt.Fprintf(&b, "Duration: %s\n", event.Duration.Round(time.Millisecond))
	if event.Warnings > 0 {
		fmt.Fprintf(&b, "Warnings: %d unreadable directories\n", event.Warnings)
	}

	if len(event.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for i, f := range event.Failures {
			if maxFailures > 0 && i >= maxFailures {
				fmt.Fprintf(&b, "  ... and %d more\n", len(event.Failures)-i)
				break
			}
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	return b.String()
}
