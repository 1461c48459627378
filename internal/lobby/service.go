package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/storage"
)

const (
	MinCapacity     = 2
	MaxCapacity     = 20
	DefaultCapacity = 10
	MaxTitleLength  = 100

	// maxTransitionAttempts bounds status update retries. Every miss means
	// the lobby moved forward, and it can do so at most three times.
	maxTransitionAttempts = 4
)

// StartZone is the fixed UTC+9 zone scheduled start times are expressed in
var StartZone = time.FixedZone("KST", 9*60*60)

// Store is the persistence the service needs
type Store interface {
	CreateLobby(ctx context.Context, l *storage.Lobby) error
	GetLobby(ctx context.Context, id string) (*storage.Lobby, error)
	SetForumPost(ctx context.Context, lobbyID, forumPostID string) error
	UpdateStatus(ctx context.Context, id string, from []storage.Status, to storage.Status) (bool, error)
	AddMember(ctx context.Context, m *storage.Member) (storage.JoinResult, error)
	RemoveMember(ctx context.Context, lobbyID, userID string) (bool, error)
	IsMember(ctx context.Context, lobbyID, userID string) (bool, error)
	CountMembers(ctx context.Context, lobbyID string) (int, error)
	ListMembers(ctx context.Context, lobbyID string) ([]*storage.Member, error)
}

// Snapshot is a lobby together with its current members
type Snapshot struct {
	Lobby   *storage.Lobby
	Members []*storage.Member
}

// Count returns the number of members
func (s *Snapshot) Count() int {
	return len(s.Members)
}

// Allowed reports whether the action is available in the lobby's status
func (s *Snapshot) Allowed(a Action) bool {
	return Allowed(s.Lobby.Status, a)
}

// MemberIDs returns member user IDs in join order
func (s *Snapshot) MemberIDs() []string {
	ids := make([]string, len(s.Members))
	for i, m := range s.Members {
		ids[i] = m.UserID
	}
	return ids
}

// Service applies lobby actions against the store. Every action re-reads
// the lobby first; the store is the only source of truth.
type Service struct {
	store Store
	maps  *game.Registry
}

// NewService creates a lobby service
func NewService(store Store, maps *game.Registry) *Service {
	return &Service{
		store: store,
		maps:  maps,
	}
}

// Maps returns the map registry the service validates against
func (s *Service) Maps() *game.Registry {
	return s.maps
}

// ParseCapacity validates a capacity typed by the host
func ParseCapacity(raw string) (int, error) {
	capacity, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, validation(ErrInvalidCapacity, "Capacity must be a number.")
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return 0, validation(ErrInvalidCapacity, "Capacity must be between %d and %d.", MinCapacity, MaxCapacity)
	}
	return capacity, nil
}

// CreateRequest is a finished creation flow
type CreateRequest struct {
	ID        string // lobby message ID
	GuildID   string
	ChannelID string
	HostID    string
	HostName  string
	Title     string
	Capacity  int
	Map       game.MapType
	StartsAt  time.Time
}

// Validate checks a creation request without touching the store
func (s *Service) Validate(req CreateRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" || len([]rune(title)) > MaxTitleLength {
		return validation(ErrInvalidTitle, "Title must be 1 to %d characters.", MaxTitleLength)
	}
	if req.Capacity < MinCapacity || req.Capacity > MaxCapacity {
		return validation(ErrInvalidCapacity, "Capacity must be between %d and %d.", MinCapacity, MaxCapacity)
	}
	if req.Map == "" || req.StartsAt.IsZero() {
		return validation(ErrIncompleteSelection, "Pick a map, a date and a start time first.")
	}
	if _, err := s.maps.Get(req.Map); err != nil {
		return validation(ErrUnknownMap, "Unknown map: %s", req.Map)
	}
	return nil
}

// Create stores a new open lobby
func (s *Service) Create(ctx context.Context, req CreateRequest) (*storage.Lobby, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	l := &storage.Lobby{
		ID:        req.ID,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		HostID:    req.HostID,
		HostName:  req.HostName,
		Title:     strings.TrimSpace(req.Title),
		Capacity:  req.Capacity,
		Map:       string(req.Map),
		StartsAt:  req.StartsAt.In(StartZone),
		Status:    storage.StatusOpen,
	}
	if err := s.store.CreateLobby(ctx, l); err != nil {
		return nil, err
	}

	slog.Info("Lobby created", "lobby", l.ID, "host", l.HostID, "capacity", l.Capacity, "map", l.Map)
	return l, nil
}

// AttachForumPost links the forum thread mirroring a lobby
func (s *Service) AttachForumPost(ctx context.Context, lobbyID, forumPostID string) error {
	if err := s.store.SetForumPost(ctx, lobbyID, forumPostID); err != nil {
		return fmt.Errorf("failed to attach forum post to %s: %w", lobbyID, err)
	}
	return nil
}

// Get re-reads a lobby
func (s *Service) Get(ctx context.Context, lobbyID string) (*storage.Lobby, error) {
	l, err := s.store.GetLobby(ctx, lobbyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(ErrLobbyNotFound, "This lobby no longer exists.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lobby %s: %w", lobbyID, err)
	}
	return l, nil
}

// Snapshot loads a lobby and its members
func (s *Service) Snapshot(ctx context.Context, lobbyID string) (*Snapshot, error) {
	l, err := s.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	return s.SnapshotOf(ctx, l)
}

// SnapshotOf loads the members of an already read lobby
func (s *Service) SnapshotOf(ctx context.Context, l *storage.Lobby) (*Snapshot, error) {
	members, err := s.store.ListMembers(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members of %s: %w", l.ID, err)
	}
	return &Snapshot{Lobby: l, Members: members}, nil
}

// Mode returns the map mode of a lobby
func (s *Service) Mode(l *storage.Lobby) (game.Mode, error) {
	mode, err := s.maps.Get(game.MapType(l.Map))
	if err != nil {
		return nil, validation(ErrUnknownMap, "This lobby uses an unknown map.")
	}
	return mode, nil
}

// CheckJoinable reports why a user could not join right now, without
// changing anything. The selection flow calls it before showing pickers.
func (s *Service) CheckJoinable(ctx context.Context, lobbyID, userID string) (*storage.Lobby, error) {
	l, err := s.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	member, err := s.store.IsMember(ctx, lobbyID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, conflict(ErrAlreadyMember, "You have already joined this lobby.")
	}
	if err := s.checkSeats(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// checkSeats rejects a lobby without free seats as full, whatever its
// status, and any other lobby that is not open as not open
func (s *Service) checkSeats(ctx context.Context, l *storage.Lobby) error {
	count, err := s.store.CountMembers(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("failed to count members of %s: %w", l.ID, err)
	}
	if count >= l.Capacity {
		return conflict(ErrFull, "This lobby is full.")
	}
	if l.Status != storage.StatusOpen {
		return conflict(ErrNotOpen, "This lobby is already closed or started.")
	}
	return nil
}

// Join admits a user. The selection is validated for role-based maps and
// discarded for every other map, which stores no role or tier.
func (s *Service) Join(ctx context.Context, lobbyID, userID string, sel game.Selection) (storage.JoinResult, error) {
	l, err := s.Get(ctx, lobbyID)
	if err != nil {
		return storage.JoinResult{}, err
	}

	mode, err := s.Mode(l)
	if err != nil {
		return storage.JoinResult{}, err
	}

	// A lobby never returns to open, so any other status is rejected by
	// AddMember without inserting and the picks are not checked.
	m := &storage.Member{LobbyID: lobbyID, UserID: userID}
	if mode.RoleBased() && l.Status == storage.StatusOpen {
		if err := mode.ValidateSelection(sel); err != nil {
			return storage.JoinResult{}, validation(ErrInvalidSelection, "%s", capitalize(err.Error()))
		}
		m.PrimaryRole = sel.Roles[0]
		m.SecondaryRole = sel.Roles[1]
		m.Tier = sel.Tier
	}

	res, err := s.store.AddMember(ctx, m)
	if errors.Is(err, storage.ErrNotFound) {
		return res, notFound(ErrLobbyNotFound, "This lobby no longer exists.")
	}
	if err != nil {
		return res, fmt.Errorf("failed to add member: %w", err)
	}

	switch res.Outcome {
	case storage.JoinAlreadyMember:
		return res, conflict(ErrAlreadyMember, "You have already joined this lobby.")
	case storage.JoinFull:
		return res, conflict(ErrFull, "This lobby is full.")
	case storage.JoinNotOpen:
		return res, conflict(ErrNotOpen, "This lobby is already closed or started.")
	}

	slog.Info("Member joined", "lobby", lobbyID, "user", userID, "count", res.Count, "capacity", l.Capacity, "closed", res.Closed)
	return res, nil
}

// Leave removes a user from an open lobby
func (s *Service) Leave(ctx context.Context, lobbyID, userID string) error {
	l, err := s.Get(ctx, lobbyID)
	if err != nil {
		return err
	}
	if l.Status != storage.StatusOpen {
		return conflict(ErrNotOpen, "You can't leave a lobby that is closed or started.")
	}

	removed, err := s.store.RemoveMember(ctx, lobbyID, userID)
	if err != nil {
		return err
	}
	if removed {
		slog.Info("Member left", "lobby", lobbyID, "user", userID)
		return nil
	}

	// Nothing deleted: either the lobby changed status meanwhile or the
	// user was never in it.
	l, err = s.Get(ctx, lobbyID)
	if err != nil {
		return err
	}
	if l.Status != storage.StatusOpen {
		return conflict(ErrNotOpen, "You can't leave a lobby that is closed or started.")
	}
	return conflict(ErrNotMember, "You are not in this lobby.")
}

// Close stops recruitment. Host only, from open.
func (s *Service) Close(ctx context.Context, lobbyID, actorID string) (*storage.Lobby, error) {
	return s.apply(ctx, lobbyID, actorID, ActionClose)
}

// Start marks the lobby as started. Host only, from open or closed.
func (s *Service) Start(ctx context.Context, lobbyID, actorID string) (*storage.Lobby, error) {
	return s.apply(ctx, lobbyID, actorID, ActionStart)
}

// Cancel ends the lobby for good. Host only, from any non-cancelled status.
// Memberships are kept.
func (s *Service) Cancel(ctx context.Context, lobbyID, actorID string) (*storage.Lobby, error) {
	return s.apply(ctx, lobbyID, actorID, ActionCancel)
}

// Apply runs a host action by name
func (s *Service) Apply(ctx context.Context, lobbyID, actorID string, a Action) (*storage.Lobby, error) {
	if !a.HostOnly() {
		return nil, fmt.Errorf("%s is not a host action", a)
	}
	return s.apply(ctx, lobbyID, actorID, a)
}

func (s *Service) apply(ctx context.Context, lobbyID, actorID string, a Action) (*storage.Lobby, error) {
	to, _ := a.Target()

	l, err := s.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if l.HostID != actorID {
		return nil, conflict(ErrNotHost, "Only the host can %s this lobby.", a)
	}
	// The update is conditioned on the status just read, so the logged
	// source is the one actually replaced. A concurrent move re-reads and
	// retries while the fresh status still allows the transition.
	for attempt := 0; ; attempt++ {
		if !CanTransition(l.Status, to) {
			return nil, transitionError(l.Status, a)
		}

		ok, err := s.store.UpdateStatus(ctx, lobbyID, []storage.Status{l.Status}, to)
		if err != nil {
			return nil, err
		}
		if ok {
			slog.Info("Lobby status changed", "lobby", lobbyID, "from", l.Status, "to", to, "by", actorID)
			l.Status = to
			return l, nil
		}
		if attempt == maxTransitionAttempts-1 {
			return nil, fmt.Errorf("lobby %s kept changing while applying %s", lobbyID, a)
		}

		if l, err = s.Get(ctx, lobbyID); err != nil {
			return nil, err
		}
	}
}

func transitionError(status storage.Status, a Action) error {
	switch status {
	case storage.StatusCancelled:
		return conflict(ErrInvalidTransition, "This lobby has been cancelled.")
	case storage.StatusStarted:
		return conflict(ErrInvalidTransition, "This lobby has already started.")
	case storage.StatusClosed:
		return conflict(ErrInvalidTransition, "This lobby is already closed.")
	default:
		return conflict(ErrInvalidTransition, "You can't %s a lobby that is %s.", a, status)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
