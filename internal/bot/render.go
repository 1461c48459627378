package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/scrim-bot/internal/flow"
	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/storage"
)

const (
	colorOpen      = 0x5865F2
	colorClosed    = 0xFEE75C
	colorStarted   = 0x57F287
	colorCancelled = 0x99AAB5
	colorPending   = 0xF1C40F
	colorReady     = 0x2ECC71

	panelTitle = "Scrim lobbies"

	// panelBudget is the rune budget of the panel description; Discord
	// rejects embed descriptions over 4096
	panelBudget = 4000
	// panelOverflowReserve is kept free for the "…and N more" line
	panelOverflowReserve = 32
)

var statusLabels = map[storage.Status]string{
	storage.StatusOpen:      "Recruiting",
	storage.StatusClosed:    "Closed",
	storage.StatusStarted:   "Started",
	storage.StatusCancelled: "Cancelled",
}

var statusColors = map[storage.Status]int{
	storage.StatusOpen:      colorOpen,
	storage.StatusClosed:    colorClosed,
	storage.StatusStarted:   colorStarted,
	storage.StatusCancelled: colorCancelled,
}

func formatStart(t time.Time) string {
	return fmt.Sprintf("%s (<t:%d:R>)", t.In(lobby.StartZone).Format("Mon Jan 2 15:04 MST"), t.Unix())
}

func messageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func mentions(userIDs []string) string {
	parts := make([]string, len(userIDs))
	for i, id := range userIDs {
		parts[i] = "<@" + id + ">"
	}
	return strings.Join(parts, " ")
}

func memberLine(m *storage.Member) string {
	if !m.HasPreferences() {
		return fmt.Sprintf("<@%s>", m.UserID)
	}
	roles := m.PrimaryRole
	if m.SecondaryRole != "" {
		roles += " / " + m.SecondaryRole
	}
	return fmt.Sprintf("<@%s> [%s | %s]", m.UserID, roles, m.Tier)
}

// lobbyEmbed renders a lobby snapshot
func lobbyEmbed(snap *lobby.Snapshot, maps *game.Registry) *discordgo.MessageEmbed {
	l := snap.Lobby

	lines := make([]string, len(snap.Members))
	for i, m := range snap.Members {
		lines[i] = memberLine(m)
	}
	participants := strings.Join(lines, "\n")
	if participants == "" {
		participants = "(nobody yet)"
	}

	return &discordgo.MessageEmbed{
		Title: "🎮 " + l.Title,
		Description: fmt.Sprintf("Status: **%s**\nMap: **%s**\nPlayers: **%d/%d**\nStart: **%s**",
			statusLabels[l.Status], maps.Name(game.MapType(l.Map)), snap.Count(), l.Capacity, formatStart(l.StartsAt)),
		Color: statusColors[l.Status],
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Participants", Value: participants, Inline: false},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Host: " + l.HostName},
	}
}

var actionButtons = map[lobby.Action]struct {
	label string
	style discordgo.ButtonStyle
}{
	lobby.ActionJoin:   {"Join", discordgo.SuccessButton},
	lobby.ActionLeave:  {"Leave", discordgo.SecondaryButton},
	lobby.ActionClose:  {"Close", discordgo.DangerButton},
	lobby.ActionStart:  {"Start", discordgo.PrimaryButton},
	lobby.ActionCancel: {"Cancel scrim", discordgo.DangerButton},
}

// lobbyComponents returns the lobby controls. Actions that are not allowed
// in the current status are shown disabled; cancelled lobbies get none.
func lobbyComponents(snap *lobby.Snapshot) []discordgo.MessageComponent {
	if snap.Lobby.Status == storage.StatusCancelled {
		return []discordgo.MessageComponent{}
	}

	buttons := make([]discordgo.MessageComponent, 0, len(lobby.Actions))
	for _, a := range lobby.Actions {
		look := actionButtons[a]
		buttons = append(buttons, discordgo.Button{
			Label:    look.label,
			Style:    look.style,
			CustomID: lobbyButtonID(a, snap.Lobby.ID),
			Disabled: !snap.Allowed(a),
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}

// pendingEmbed is shown on a lobby message until the lobby is stored
func pendingEmbed(title string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎮 " + title,
		Description: "Setting up the lobby…",
		Color:       colorPending,
	}
}

// panelEmbed renders the standing list of open lobbies
func panelEmbed(open []*lobby.Snapshot, maps *game.Registry) *discordgo.MessageEmbed {
	var sb strings.Builder
	if len(open) == 0 {
		sb.WriteString("No lobbies are recruiting right now.\nPress **Create lobby** to start one!")
	}
	used := 0
	for idx, snap := range open {
		l := snap.Lobby
		entry := fmt.Sprintf("**[%s](%s)** · %s · %d/%d · %s\n",
			l.Title, messageLink(l.GuildID, l.ChannelID, l.ID),
			maps.Name(game.MapType(l.Map)), snap.Count(), l.Capacity, formatStart(l.StartsAt))

		n := utf8.RuneCountInString(entry)
		reserve := 0
		if idx < len(open)-1 {
			reserve = panelOverflowReserve
		}
		if used+n+reserve > panelBudget {
			sb.WriteString(fmt.Sprintf("…and %d more", len(open)-idx))
			break
		}
		sb.WriteString(entry)
		used += n
	}

	return &discordgo.MessageEmbed{
		Title:       panelTitle,
		Description: sb.String(),
		Color:       colorOpen,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d open", len(open))},
	}
}

func panelComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Create lobby",
				Style:    discordgo.PrimaryButton,
				CustomID: componentID{Scope: scopePanel, Action: "create"}.String(),
			},
		}},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

// createDraftEmbed shows the host's picks so far
func createDraftEmbed(d *flow.CreateDraft, maps *game.Registry) *discordgo.MessageEmbed {
	color := colorPending
	if d.Complete() {
		color = colorReady
	}

	mapName := ""
	if d.Map != "" {
		mapName = maps.Name(d.Map)
	}
	date := ""
	if !d.Date.IsZero() {
		date = d.Date.Format("Mon Jan 2")
	}
	clock := ""
	if d.HourSet && d.MinuteSet {
		clock = fmt.Sprintf("%02d:%02d KST", d.Hour, d.Minute)
	} else if d.HourSet {
		clock = fmt.Sprintf("%02d:?? KST", d.Hour)
	}

	return &discordgo.MessageEmbed{
		Title: "New lobby: " + d.Title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Map", Value: orUnset(mapName), Inline: true},
			{Name: "Date", Value: orUnset(date), Inline: true},
			{Name: "Time", Value: orUnset(clock), Inline: true},
			{Name: "Players", Value: strconv.Itoa(d.Capacity), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Pick everything, then press Create."},
	}
}

func createDraftComponents(draftID string, d *flow.CreateDraft, maps *game.Registry, now time.Time) []discordgo.MessageComponent {
	mapOptions := make([]discordgo.SelectMenuOption, 0)
	for _, m := range maps.List() {
		mapOptions = append(mapOptions, discordgo.SelectMenuOption{
			Label:       m.Name,
			Value:       string(m.Type),
			Description: truncate(m.Description, 100),
			Default:     d.Map == m.Type,
		})
	}

	dateOptions := make([]discordgo.SelectMenuOption, 0, flow.DaysPerPage)
	for _, day := range flow.CalendarDays(now, d.Page) {
		dateOptions = append(dateOptions, discordgo.SelectMenuOption{
			Label:   day.Format("Mon Jan 2"),
			Value:   day.Format(time.DateOnly),
			Default: !d.Date.IsZero() && d.Date.Equal(day),
		})
	}

	hourOptions := make([]discordgo.SelectMenuOption, 0, 24)
	for h := 0; h < 24; h++ {
		hourOptions = append(hourOptions, discordgo.SelectMenuOption{
			Label:   fmt.Sprintf("%02d h", h),
			Value:   strconv.Itoa(h),
			Default: d.HourSet && d.Hour == h,
		})
	}

	minuteOptions := make([]discordgo.SelectMenuOption, 0, len(flow.Minutes))
	for _, m := range flow.Minutes {
		minuteOptions = append(minuteOptions, discordgo.SelectMenuOption{
			Label:   fmt.Sprintf(":%02d", m),
			Value:   strconv.Itoa(m),
			Default: d.MinuteSet && d.Minute == m,
		})
	}

	prev := pageCursor{DraftID: draftID, Page: d.Page - 1}
	next := pageCursor{DraftID: draftID, Page: d.Page + 1}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeCreate, Action: "map", Target: draftID}, "Map", mapOptions),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeCreate, Action: "date", Target: draftID},
				fmt.Sprintf("Date (week %d/%d)", d.Page+1, flow.CalendarPages), dateOptions),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeCreate, Action: "hour", Target: draftID}, "Hour (KST)", hourOptions),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeCreate, Action: "minute", Target: draftID}, "Minute", minuteOptions),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "◀ Prev week", Style: discordgo.SecondaryButton, CustomID: prev.customID(), Disabled: d.Page <= 0},
			discordgo.Button{Label: "Next week ▶", Style: discordgo.SecondaryButton, CustomID: next.customID(), Disabled: d.Page >= flow.CalendarPages-1},
			discordgo.Button{Label: "Create", Style: discordgo.SuccessButton, CustomID: componentID{Scope: scopeCreate, Action: "confirm", Target: draftID}.String()},
			discordgo.Button{Label: "Discard", Style: discordgo.DangerButton, CustomID: componentID{Scope: scopeCreate, Action: "abort", Target: draftID}.String()},
		}},
	}
}

// joinDraftEmbed shows a player's role and tier picks so far
func joinDraftEmbed(d *flow.JoinDraft) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Join lobby",
		Color: colorPending,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Tier", Value: orUnset(d.Tier), Inline: true},
			{Name: "Primary role", Value: orUnset(d.PrimaryRole), Inline: true},
			{Name: "Secondary role", Value: orUnset(d.SecondaryRole), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Pick your tier and two roles, then press Join."},
	}
}

func joinDraftComponents(draftID string, d *flow.JoinDraft, mode game.Mode) []discordgo.MessageComponent {
	options := func(values []string, selected string) []discordgo.SelectMenuOption {
		opts := make([]discordgo.SelectMenuOption, len(values))
		for i, v := range values {
			opts[i] = discordgo.SelectMenuOption{Label: v, Value: v, Default: v == selected}
		}
		return opts
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeJoin, Action: "tier", Target: draftID}, "Tier", options(mode.Tiers(), d.Tier)),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeJoin, Action: "primary", Target: draftID}, "Primary role", options(mode.Roles(), d.PrimaryRole)),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			selectMenu(componentID{Scope: scopeJoin, Action: "secondary", Target: draftID}, "Secondary role", options(mode.Roles(), d.SecondaryRole)),
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Join", Style: discordgo.SuccessButton, CustomID: componentID{Scope: scopeJoin, Action: "confirm", Target: draftID}.String()},
		}},
	}
}

func selectMenu(id componentID, placeholder string, options []discordgo.SelectMenuOption) discordgo.SelectMenu {
	return discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    id.String(),
		Placeholder: placeholder,
		MaxValues:   1,
		Options:     options,
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
