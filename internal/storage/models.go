package storage

import "time"

// Status is the lifecycle state of a lobby
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusStarted   Status = "started"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the lobby still has a live message with controls
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusClosed || s == StatusStarted
}

// Lobby is a scrim recruitment session. ID is the Discord message ID of the
// lobby message.
type Lobby struct {
	ID          string
	GuildID     string
	ChannelID   string
	ForumPostID string // empty when no forum post was created
	HostID      string
	HostName    string
	Title       string
	Capacity    int
	Map         string
	StartsAt    time.Time
	Status      Status
	CreatedAt   time.Time
}

// Member is a user's enrollment in a lobby. Roles and tier are only set for
// role-based maps.
type Member struct {
	LobbyID       string
	UserID        string
	PrimaryRole   string
	SecondaryRole string
	Tier          string
	JoinedAt      time.Time
}

// HasPreferences reports whether the member picked roles and a tier
func (m *Member) HasPreferences() bool {
	return m.PrimaryRole != "" && m.Tier != ""
}

// JoinOutcome is the result of a join attempt
type JoinOutcome int

const (
	JoinAdded JoinOutcome = iota
	JoinAlreadyMember
	JoinFull
	// JoinNotOpen is a closed, started or cancelled lobby with free seats
	JoinNotOpen
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinAdded:
		return "added"
	case JoinAlreadyMember:
		return "already-member"
	case JoinFull:
		return "full"
	case JoinNotOpen:
		return "not-open"
	default:
		return "unknown"
	}
}

// JoinResult describes what AddMember did
type JoinResult struct {
	Outcome JoinOutcome
	Count   int  // member count after the attempt
	Closed  bool // true when this join filled the lobby and closed it
}
