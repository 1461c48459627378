package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(filepath.Join(t.TempDir(), "scrim.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func newTestLobby(id string, capacity int) *Lobby {
	return &Lobby{
		ID:        id,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		HostID:    "host",
		HostName:  "Host",
		Title:     "Rift scrim",
		Capacity:  capacity,
		Map:       "rift",
		StartsAt:  time.Date(2026, 10, 18, 21, 0, 0, 0, time.FixedZone("KST", 9*60*60)),
	}
}

func TestCreateAndGetLobby(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	l := newTestLobby("100", 10)
	require.NoError(t, repo.CreateLobby(ctx, l))

	got, err := repo.GetLobby(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, "Rift scrim", got.Title)
	assert.Equal(t, 10, got.Capacity)
	assert.Empty(t, got.ForumPostID)
	assert.True(t, l.StartsAt.Equal(got.StartsAt))
	_, offset := got.StartsAt.Zone()
	assert.Equal(t, 9*60*60, offset)

	require.NoError(t, repo.SetForumPost(ctx, "100", "thread-9"))
	got, err = repo.GetLobby(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "thread-9", got.ForumPostID)
}

func TestGetLobbyNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetLobby(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateLobbyRejectsCapacityOutOfRange(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.CreateLobby(context.Background(), newTestLobby("100", 21))
	assert.Error(t, err)
}

func TestAddMemberOutcomes(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 2)))

	res, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "a", PrimaryRole: "Top", SecondaryRole: "Mid", Tier: "Gold"})
	require.NoError(t, err)
	assert.Equal(t, JoinAdded, res.Outcome)
	assert.Equal(t, 1, res.Count)
	assert.False(t, res.Closed)

	res, err = repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "a"})
	require.NoError(t, err)
	assert.Equal(t, JoinAlreadyMember, res.Outcome)
	assert.Equal(t, 1, res.Count)

	res, err = repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "b"})
	require.NoError(t, err)
	assert.Equal(t, JoinAdded, res.Outcome)
	assert.Equal(t, 2, res.Count)
	assert.True(t, res.Closed)

	l, err := repo.GetLobby(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, l.Status)

	res, err = repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "c"})
	require.NoError(t, err)
	assert.Equal(t, JoinFull, res.Outcome)
	assert.Equal(t, 2, res.Count)

	members, err := repo.ListMembers(ctx, "100")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "a", members[0].UserID)
	assert.Equal(t, "Top", members[0].PrimaryRole)
	assert.Equal(t, "Mid", members[0].SecondaryRole)
	assert.Equal(t, "Gold", members[0].Tier)
	assert.True(t, members[0].HasPreferences())
	assert.Equal(t, "b", members[1].UserID)
	assert.Empty(t, members[1].PrimaryRole)
	assert.Empty(t, members[1].Tier)
	assert.False(t, members[1].HasPreferences())
}

func TestAddMemberFullWithoutAutoClose(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 2)))

	for _, uid := range []string{"a", "b"} {
		_, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: uid})
		require.NoError(t, err)
	}

	// Reopening is not a legal transition, so force it to exercise the
	// capacity guard on its own.
	_, err := repo.db.Exec(`UPDATE lobbies SET status = 'open' WHERE id = '100'`)
	require.NoError(t, err)

	res, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "c"})
	require.NoError(t, err)
	assert.Equal(t, JoinFull, res.Outcome)
	assert.Equal(t, 2, res.Count)
}

func TestAddMemberNotOpenWithFreeSeats(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 4)))

	_, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "a"})
	require.NoError(t, err)

	for _, status := range []Status{StatusClosed, StatusStarted, StatusCancelled} {
		_, err := repo.db.Exec(`UPDATE lobbies SET status = ? WHERE id = '100'`, string(status))
		require.NoError(t, err)

		res, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "b"})
		require.NoError(t, err)
		assert.Equal(t, JoinNotOpen, res.Outcome, status)
		assert.Equal(t, 1, res.Count, status)
	}
}

func TestAddMemberFullAfterCancel(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 2)))

	for _, uid := range []string{"a", "b"} {
		_, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: uid})
		require.NoError(t, err)
	}
	ok, err := repo.UpdateStatus(ctx, "100", []Status{StatusClosed}, StatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "c"})
	require.NoError(t, err)
	assert.Equal(t, JoinFull, res.Outcome)
}

func TestAddMemberUnknownLobby(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.AddMember(context.Background(), &Member{LobbyID: "nope", UserID: "a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddMemberConcurrentNeverOverAdmits(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	const capacity = 5
	const joiners = 20
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", capacity)))

	var wg sync.WaitGroup
	results := make(chan JoinResult, joiners)
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: fmt.Sprintf("user-%d", i)})
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	added, closedBy := 0, 0
	for res := range results {
		switch res.Outcome {
		case JoinAdded:
			added++
			if res.Closed {
				closedBy++
			}
		case JoinFull:
		default:
			t.Fatalf("unexpected outcome %s", res.Outcome)
		}
	}
	assert.Equal(t, capacity, added)
	assert.Equal(t, 1, closedBy)

	count, err := repo.CountMembers(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, capacity, count)

	l, err := repo.GetLobby(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, l.Status)
}

func TestRemoveMemberOnlyWhileOpen(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 4)))
	for _, uid := range []string{"a", "b"} {
		_, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: uid})
		require.NoError(t, err)
	}

	removed, err := repo.RemoveMember(ctx, "100", "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveMember(ctx, "100", "a")
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err := repo.UpdateStatus(ctx, "100", []Status{StatusOpen}, StatusClosed)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err = repo.RemoveMember(ctx, "100", "b")
	require.NoError(t, err)
	assert.False(t, removed)

	isMember, err := repo.IsMember(ctx, "100", "b")
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 4)))

	ok, err := repo.UpdateStatus(ctx, "100", []Status{StatusClosed}, StatusStarted)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateStatus(ctx, "100", []Status{StatusOpen, StatusClosed}, StatusStarted)
	require.NoError(t, err)
	assert.True(t, ok)

	l, err := repo.GetLobby(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, l.Status)
}

func TestListLobbiesByStatus(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	for i, status := range []Status{StatusOpen, StatusClosed, StatusStarted, StatusCancelled} {
		l := newTestLobby(fmt.Sprintf("%d", 100+i), 4)
		l.Status = status
		require.NoError(t, repo.CreateLobby(ctx, l))
	}

	open, err := repo.ListOpenLobbies(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "100", open[0].ID)

	active, err := repo.ListActiveLobbies(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	all, err := repo.ListAllLobbies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestResetAll(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	for i, status := range []Status{StatusOpen, StatusStarted, StatusCancelled} {
		l := newTestLobby(fmt.Sprintf("%d", 100+i), 4)
		require.NoError(t, repo.CreateLobby(ctx, l))
		_, err := repo.AddMember(ctx, &Member{LobbyID: l.ID, UserID: "a"})
		require.NoError(t, err)
		if status != StatusOpen {
			_, err := repo.UpdateStatus(ctx, l.ID, []Status{StatusOpen}, status)
			require.NoError(t, err)
		}
	}

	previous, err := repo.ResetAll(ctx)
	require.NoError(t, err)
	require.Len(t, previous, 2)
	for _, l := range previous {
		assert.Equal(t, StatusCancelled, l.Status)
	}

	all, err := repo.ListAllLobbies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, l := range all {
		assert.Equal(t, StatusCancelled, l.Status)
		count, err := repo.CountMembers(ctx, l.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	}
}

func TestClearAllMembers(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateLobby(ctx, newTestLobby("100", 4)))
	_, err := repo.AddMember(ctx, &Member{LobbyID: "100", UserID: "a"})
	require.NoError(t, err)

	require.NoError(t, repo.ClearAllMembers(ctx))

	count, err := repo.CountMembers(ctx, "100")
	require.NoError(t, err)
	assert.Zero(t, count)
}
