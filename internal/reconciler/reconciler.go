package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/storage"
)

// DefaultConcurrency bounds parallel Discord edits during fan-out
const DefaultConcurrency = 4

// Store is the persistence the reconciler reads
type Store interface {
	ListAllLobbies(ctx context.Context) ([]*storage.Lobby, error)
	ListOpenLobbies(ctx context.Context) ([]*storage.Lobby, error)
	ResetAll(ctx context.Context) ([]*storage.Lobby, error)
}

// Lobbies builds snapshots from the store
type Lobbies interface {
	Snapshot(ctx context.Context, lobbyID string) (*lobby.Snapshot, error)
	SnapshotOf(ctx context.Context, l *storage.Lobby) (*lobby.Snapshot, error)
}

// Publisher renders store state onto the chat platform
type Publisher interface {
	// PublishLobby rewrites a lobby's message (and forum post) from the
	// snapshot. Cancelled lobbies are published without controls.
	PublishLobby(ctx context.Context, snap *lobby.Snapshot) error

	// PublishPanel rewrites the standing panel listing the open lobbies
	PublishPanel(ctx context.Context, open []*lobby.Snapshot) error
}

// Report counts per-lobby publish results
type Report struct {
	Total     int
	Refreshed int
	Failed    int
}

func (r Report) String() string {
	return fmt.Sprintf("%d/%d lobbies refreshed, %d failed", r.Refreshed, r.Total, r.Failed)
}

// Reconciler rebuilds chat messages from the store. It holds no lobby
// state of its own.
type Reconciler struct {
	store       Store
	lobbies     Lobbies
	publisher   Publisher
	interval    time.Duration
	concurrency int

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Reconciler. A zero interval disables the periodic panel
// refresh loop.
func New(store Store, lobbies Lobbies, publisher Publisher, intervalSeconds int) *Reconciler {
	return &Reconciler{
		store:       store,
		lobbies:     lobbies,
		publisher:   publisher,
		interval:    time.Duration(intervalSeconds) * time.Second,
		concurrency: DefaultConcurrency,
		stopChan:    make(chan struct{}),
	}
}

// Start runs the periodic panel refresh until ctx is done or Stop is called
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("Periodic panel refresh disabled")
		return
	}

	slog.Info("Starting panel refresh loop", "interval", r.interval)

	r.wg.Add(1)
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Panel refresh stopped (context cancelled)")
			return
		case <-r.stopChan:
			slog.Info("Panel refresh stopped")
			return
		case <-ticker.C:
			if err := r.RefreshPanel(ctx); err != nil {
				slog.Error("Periodic panel refresh failed", "error", err)
			}
		}
	}
}

// Stop signals the refresh loop to stop
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// ReconcileAll republishes every stored lobby and then the panel. One
// lobby failing does not stop the others.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Report, error) {
	lobbies, err := r.store.ListAllLobbies(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list lobbies: %w", err)
	}

	slog.Info("Reconciling lobbies", "count", len(lobbies))
	report := r.publishAll(ctx, lobbies)
	slog.Info("Reconciliation finished", "total", report.Total, "refreshed", report.Refreshed, "failed", report.Failed)

	if err := r.RefreshPanel(ctx); err != nil {
		slog.Error("Failed to refresh panel after reconciliation", "error", err)
	}
	return report, nil
}

// RefreshLobby republishes one lobby from the store, then the panel
func (r *Reconciler) RefreshLobby(ctx context.Context, lobbyID string) error {
	snap, err := r.lobbies.Snapshot(ctx, lobbyID)
	if err != nil {
		return err
	}

	var lobbyErr error
	if err := r.publisher.PublishLobby(ctx, snap); err != nil {
		slog.Warn("Failed to publish lobby", "lobby", lobbyID, "error", err)
		lobbyErr = err
	}
	if err := r.RefreshPanel(ctx); err != nil {
		slog.Warn("Failed to refresh panel", "error", err)
	}
	return lobbyErr
}

// RefreshPanel republishes the open lobby list
func (r *Reconciler) RefreshPanel(ctx context.Context) error {
	open, err := r.store.ListOpenLobbies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open lobbies: %w", err)
	}

	snaps := make([]*lobby.Snapshot, 0, len(open))
	for _, l := range open {
		snap, err := r.lobbies.SnapshotOf(ctx, l)
		if err != nil {
			return err
		}
		snaps = append(snaps, snap)
	}
	return r.publisher.PublishPanel(ctx, snaps)
}

// Reset cancels every lobby and clears all memberships, then republishes
// the previously active lobbies in parallel.
func (r *Reconciler) Reset(ctx context.Context) (Report, error) {
	previous, err := r.store.ResetAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to reset lobbies: %w", err)
	}

	slog.Warn("All lobbies reset", "previously_active", len(previous))
	report := r.publishAll(ctx, previous)

	if err := r.RefreshPanel(ctx); err != nil {
		slog.Error("Failed to refresh panel after reset", "error", err)
	}
	return report, nil
}

// publishAll fans out one publish per lobby. Errors are counted and logged
// per lobby and never cancel siblings.
func (r *Reconciler) publishAll(ctx context.Context, lobbies []*storage.Lobby) Report {
	var refreshed, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, l := range lobbies {
		g.Go(func() error {
			if err := r.publish(ctx, l); err != nil {
				slog.Warn("Failed to publish lobby", "lobby", l.ID, "status", l.Status, "error", err)
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return Report{
		Total:     len(lobbies),
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
	}
}

func (r *Reconciler) publish(ctx context.Context, l *storage.Lobby) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic publishing lobby %s: %v", l.ID, p)
		}
	}()

	snap, err := r.lobbies.SnapshotOf(ctx, l)
	if err != nil {
		return err
	}
	return r.publisher.PublishLobby(ctx, snap)
}
