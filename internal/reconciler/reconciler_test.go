package reconciler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/games/lol"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher records what would have been sent to Discord
type fakePublisher struct {
	mu        sync.Mutex
	failFor   map[string]bool
	published map[string]*lobby.Snapshot
	panels    [][]*lobby.Snapshot
}

func newFakePublisher(failFor ...string) *fakePublisher {
	p := &fakePublisher{
		failFor:   make(map[string]bool),
		published: make(map[string]*lobby.Snapshot),
	}
	for _, id := range failFor {
		p.failFor[id] = true
	}
	return p
}

func (p *fakePublisher) PublishLobby(ctx context.Context, snap *lobby.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[snap.Lobby.ID] {
		return errors.New("unknown message")
	}
	p.published[snap.Lobby.ID] = snap
	return nil
}

func (p *fakePublisher) PublishPanel(ctx context.Context, open []*lobby.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panels = append(p.panels, open)
	return nil
}

func (p *fakePublisher) publishedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.published))
	for id := range p.published {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *fakePublisher) lastPanel() []*lobby.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.panels) == 0 {
		return nil
	}
	return p.panels[len(p.panels)-1]
}

func setup(t *testing.T, pub Publisher) (*Reconciler, *lobby.Service, *storage.Repository) {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "scrim.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})

	maps := game.NewRegistry()
	lol.RegisterAll(maps)
	svc := lobby.NewService(repo, maps)
	return New(repo, svc, pub, 0), svc, repo
}

func seed(t *testing.T, svc *lobby.Service, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := svc.Create(context.Background(), lobby.CreateRequest{
			ID:        id,
			GuildID:   "guild",
			ChannelID: "channel",
			HostID:    "host",
			HostName:  "Host",
			Title:     "Scrim " + id,
			Capacity:  4,
			Map:       game.MapARAM,
			StartsAt:  time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
}

func TestReconcileAllIsolatesFailures(t *testing.T) {
	pub := newFakePublisher("2")
	r, svc, _ := setup(t, pub)
	ctx := context.Background()
	seed(t, svc, "1", "2", "3", "4")

	_, err := svc.Start(ctx, "3", "host")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "4", "host")
	require.NoError(t, err)

	report, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 4, Refreshed: 3, Failed: 1}, report)
	assert.Equal(t, []string{"1", "3", "4"}, pub.publishedIDs())

	assert.Equal(t, storage.StatusCancelled, pub.published["4"].Lobby.Status)
	assert.False(t, pub.published["4"].Allowed(lobby.ActionJoin))
	assert.True(t, pub.published["3"].Allowed(lobby.ActionCancel))

	panel := pub.lastPanel()
	require.Len(t, panel, 2)
	assert.Equal(t, "1", panel[0].Lobby.ID)
	assert.Equal(t, "2", panel[1].Lobby.ID)
}

func TestRefreshLobbyCarriesMembers(t *testing.T) {
	pub := newFakePublisher()
	r, svc, _ := setup(t, pub)
	ctx := context.Background()
	seed(t, svc, "1")

	_, err := svc.Join(ctx, "1", "A", game.Selection{})
	require.NoError(t, err)

	require.NoError(t, r.RefreshLobby(ctx, "1"))
	require.Contains(t, pub.published, "1")
	assert.Equal(t, []string{"A"}, pub.published["1"].MemberIDs())

	panel := pub.lastPanel()
	require.Len(t, panel, 1)
	assert.Equal(t, 1, panel[0].Count())
}

func TestRefreshLobbyReportsPublishFailure(t *testing.T) {
	pub := newFakePublisher("1")
	r, svc, _ := setup(t, pub)
	seed(t, svc, "1")

	err := r.RefreshLobby(context.Background(), "1")
	assert.Error(t, err)
	// the panel is still refreshed
	assert.Len(t, pub.lastPanel(), 1)
}

func TestRefreshLobbyMissing(t *testing.T) {
	r, _, _ := setup(t, newFakePublisher())

	err := r.RefreshLobby(context.Background(), "nope")
	assert.ErrorIs(t, err, lobby.ErrLobbyNotFound)
}

func TestReset(t *testing.T) {
	pub := newFakePublisher("2")
	r, svc, repo := setup(t, pub)
	ctx := context.Background()
	seed(t, svc, "1", "2", "3", "4")

	for _, id := range []string{"1", "2", "3"} {
		for u := 0; u < 2; u++ {
			_, err := svc.Join(ctx, id, fmt.Sprintf("u%d", u), game.Selection{})
			require.NoError(t, err)
		}
	}
	_, err := svc.Close(ctx, "2", "host")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, "4", "host")
	require.NoError(t, err)

	report, err := r.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 3, Refreshed: 2, Failed: 1}, report)
	assert.Equal(t, []string{"1", "3"}, pub.publishedIDs())
	for _, snap := range pub.published {
		assert.Equal(t, storage.StatusCancelled, snap.Lobby.Status)
		assert.Empty(t, snap.Members)
	}

	all, err := repo.ListAllLobbies(ctx)
	require.NoError(t, err)
	for _, l := range all {
		assert.Equal(t, storage.StatusCancelled, l.Status)
		count, err := repo.CountMembers(ctx, l.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	}
	assert.Empty(t, pub.lastPanel())
}

func TestStartDisabledReturnsImmediately(t *testing.T) {
	r, _, _ := setup(t, newFakePublisher())

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return with refresh disabled")
	}
	r.Stop()
}

func TestStartRefreshesPanelUntilStopped(t *testing.T) {
	pub := newFakePublisher()
	r, svc, _ := setup(t, pub)
	seed(t, svc, "1")
	r.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	require.Eventually(t, func() bool {
		return len(pub.lastPanel()) == 1
	}, time.Second, 5*time.Millisecond)

	r.Stop()
}
