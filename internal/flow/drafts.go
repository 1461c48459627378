package flow

import (
	"fmt"
	"time"

	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/lobby"
)

const (
	// DaysPerPage is how many dates the date picker shows at once
	DaysPerPage = 7
	// CalendarPages is how many weeks ahead a lobby can be scheduled
	CalendarPages = 4
)

// Minutes are the selectable start minutes
var Minutes = []int{0, 30}

// CreateDraft collects the host's picks during lobby creation
type CreateDraft struct {
	GuildID   string
	ChannelID string
	HostID    string
	HostName  string
	Title     string
	Capacity  int

	Map       game.MapType
	Date      time.Time // midnight in lobby.StartZone, zero until picked
	Hour      int
	HourSet   bool
	Minute    int
	MinuteSet bool
	Page      int // date picker week cursor
}

// Complete reports whether every pick has been made
func (d *CreateDraft) Complete() bool {
	return d.Map != "" && !d.Date.IsZero() && d.HourSet && d.MinuteSet
}

// StartsAt combines the picked date and time in lobby.StartZone
func (d *CreateDraft) StartsAt() (time.Time, bool) {
	if d.Date.IsZero() || !d.HourSet || !d.MinuteSet {
		return time.Time{}, false
	}
	y, m, day := d.Date.Date()
	return time.Date(y, m, day, d.Hour, d.Minute, 0, 0, lobby.StartZone), true
}

// Request turns a finished draft into a creation request for lobby id
func (d *CreateDraft) Request(id string) lobby.CreateRequest {
	startsAt, _ := d.StartsAt()
	return lobby.CreateRequest{
		ID:        id,
		GuildID:   d.GuildID,
		ChannelID: d.ChannelID,
		HostID:    d.HostID,
		HostName:  d.HostName,
		Title:     d.Title,
		Capacity:  d.Capacity,
		Map:       d.Map,
		StartsAt:  startsAt,
	}
}

// SetDate parses a date picked from the calendar (YYYY-MM-DD)
func (d *CreateDraft) SetDate(value string) error {
	date, err := time.ParseInLocation(time.DateOnly, value, lobby.StartZone)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value, err)
	}
	d.Date = date
	return nil
}

// SetHour records the picked hour (0-23)
func (d *CreateDraft) SetHour(hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour %d", hour)
	}
	d.Hour = hour
	d.HourSet = true
	return nil
}

// SetMinute records the picked minute, which must be one of Minutes
func (d *CreateDraft) SetMinute(minute int) error {
	for _, m := range Minutes {
		if m == minute {
			d.Minute = minute
			d.MinuteSet = true
			return nil
		}
	}
	return fmt.Errorf("invalid minute %d", minute)
}

// SetPage moves the date picker to a week, clamped to the calendar
func (d *CreateDraft) SetPage(page int) {
	d.Page = ClampPage(page)
}

// ClampPage keeps a week cursor inside the calendar
func ClampPage(page int) int {
	if page < 0 {
		return 0
	}
	if page >= CalendarPages {
		return CalendarPages - 1
	}
	return page
}

// CalendarDays returns the dates on a week page, starting from today in
// lobby.StartZone
func CalendarDays(now time.Time, page int) []time.Time {
	page = ClampPage(page)
	y, m, d := now.In(lobby.StartZone).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, lobby.StartZone).AddDate(0, 0, page*DaysPerPage)

	days := make([]time.Time, DaysPerPage)
	for i := range days {
		days[i] = first.AddDate(0, 0, i)
	}
	return days
}

// JoinDraft collects a player's role and tier picks for a role-based lobby
type JoinDraft struct {
	LobbyID       string
	UserID        string
	Tier          string
	PrimaryRole   string
	SecondaryRole string
}

// Selection returns the picks in ranked order
func (d *JoinDraft) Selection() game.Selection {
	sel := game.Selection{Tier: d.Tier}
	if d.PrimaryRole != "" {
		sel.Roles = append(sel.Roles, d.PrimaryRole)
	}
	if d.SecondaryRole != "" {
		sel.Roles = append(sel.Roles, d.SecondaryRole)
	}
	return sel
}
