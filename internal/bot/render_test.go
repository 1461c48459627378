package bot

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/scrim-bot/internal/flow"
	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/games/lol"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaps() *game.Registry {
	maps := game.NewRegistry()
	lol.RegisterAll(maps)
	return maps
}

func testSnapshot(status storage.Status, members ...*storage.Member) *lobby.Snapshot {
	return &lobby.Snapshot{
		Lobby: &storage.Lobby{
			ID:        "100",
			GuildID:   "1",
			ChannelID: "2",
			HostID:    "host",
			HostName:  "Faker",
			Title:     "Friday scrim",
			Capacity:  10,
			Map:       string(game.MapRift),
			StartsAt:  time.Date(2026, 10, 23, 12, 0, 0, 0, time.UTC),
			Status:    status,
		},
		Members: members,
	}
}

func buttons(t *testing.T, components []discordgo.MessageComponent) map[string]discordgo.Button {
	t.Helper()
	require.Len(t, components, 1)
	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)

	out := make(map[string]discordgo.Button)
	for _, c := range row.Components {
		btn, ok := c.(discordgo.Button)
		require.True(t, ok)
		out[btn.CustomID] = btn
	}
	return out
}

func TestLobbyEmbed(t *testing.T) {
	snap := testSnapshot(storage.StatusOpen,
		&storage.Member{UserID: "A", PrimaryRole: "Mid", SecondaryRole: "Top", Tier: "Diamond"},
		&storage.Member{UserID: "B"},
	)

	embed := lobbyEmbed(snap, testMaps())
	assert.Contains(t, embed.Title, "Friday scrim")
	assert.Contains(t, embed.Description, "Recruiting")
	assert.Contains(t, embed.Description, "Summoner's Rift")
	assert.Contains(t, embed.Description, "2/10")
	// 12:00 UTC is 21:00 in the lobby zone
	assert.Contains(t, embed.Description, "21:00 KST")
	assert.Contains(t, embed.Description, "<t:1792756800:R>")
	assert.Equal(t, colorOpen, embed.Color)
	assert.Equal(t, "Host: Faker", embed.Footer.Text)

	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "<@A> [Mid / Top | Diamond]\n<@B>", embed.Fields[0].Value)
}

func TestLobbyEmbedEmpty(t *testing.T) {
	embed := lobbyEmbed(testSnapshot(storage.StatusClosed), testMaps())
	assert.Equal(t, "(nobody yet)", embed.Fields[0].Value)
	assert.Equal(t, colorClosed, embed.Color)
	assert.Contains(t, embed.Description, "Closed")
}

func TestLobbyComponentsFollowStatus(t *testing.T) {
	tests := []struct {
		status  storage.Status
		enabled []lobby.Action
	}{
		{storage.StatusOpen, []lobby.Action{lobby.ActionJoin, lobby.ActionLeave, lobby.ActionClose, lobby.ActionStart, lobby.ActionCancel}},
		{storage.StatusClosed, []lobby.Action{lobby.ActionStart, lobby.ActionCancel}},
		{storage.StatusStarted, []lobby.Action{lobby.ActionCancel}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := buttons(t, lobbyComponents(testSnapshot(tt.status)))
			require.Len(t, got, len(lobby.Actions))

			for _, a := range lobby.Actions {
				btn, ok := got[lobbyButtonID(a, "100")]
				require.True(t, ok, a)
				want := false
				for _, e := range tt.enabled {
					if e == a {
						want = true
					}
				}
				assert.Equal(t, want, !btn.Disabled, a)
			}
		})
	}
}

func TestLobbyComponentsCancelled(t *testing.T) {
	components := lobbyComponents(testSnapshot(storage.StatusCancelled))
	assert.NotNil(t, components)
	assert.Empty(t, components)
}

func TestMemberLine(t *testing.T) {
	assert.Equal(t, "<@A>", memberLine(&storage.Member{UserID: "A"}))
	assert.Equal(t, "<@A> [Support | Gold]", memberLine(&storage.Member{UserID: "A", PrimaryRole: "Support", Tier: "Gold"}))
}

func TestPanelEmbed(t *testing.T) {
	maps := testMaps()

	empty := panelEmbed(nil, maps)
	assert.Equal(t, panelTitle, empty.Title)
	assert.Contains(t, empty.Description, "No lobbies")

	open := []*lobby.Snapshot{testSnapshot(storage.StatusOpen, &storage.Member{UserID: "A"})}
	embed := panelEmbed(open, maps)
	assert.Contains(t, embed.Description, "Friday scrim")
	assert.Contains(t, embed.Description, "https://discord.com/channels/1/2/100")
	assert.Contains(t, embed.Description, "1/10")
	assert.Equal(t, "1 open", embed.Footer.Text)
}

func TestPanelEmbedShowsShortLobbies(t *testing.T) {
	open := make([]*lobby.Snapshot, 23)
	for i := range open {
		open[i] = testSnapshot(storage.StatusOpen)
	}
	embed := panelEmbed(open, testMaps())
	assert.NotContains(t, embed.Description, "more")
	assert.Equal(t, 23, strings.Count(embed.Description, "Friday scrim"))
}

func TestPanelEmbedStaysUnderDescriptionLimit(t *testing.T) {
	open := make([]*lobby.Snapshot, 20)
	for i := range open {
		snap := testSnapshot(storage.StatusOpen)
		snap.Lobby.ID = fmt.Sprintf("12345678901234567%02d", i)
		snap.Lobby.GuildID = "1234567890123456789"
		snap.Lobby.ChannelID = "9876543210987654321"
		snap.Lobby.Title = strings.Repeat("가", 100)
		open[i] = snap
	}

	embed := panelEmbed(open, testMaps())
	assert.LessOrEqual(t, utf8.RuneCountInString(embed.Description), 4096)

	shown := strings.Count(embed.Description, "https://discord.com/channels/")
	require.Positive(t, shown)
	require.Less(t, shown, len(open))
	assert.True(t, strings.HasSuffix(embed.Description, fmt.Sprintf("…and %d more", len(open)-shown)), embed.Description)
	assert.Equal(t, "20 open", embed.Footer.Text)
}

func TestPanelMessageDetection(t *testing.T) {
	panel := &discordgo.Message{
		Author: &discordgo.User{ID: "bot"},
		Embeds: []*discordgo.MessageEmbed{{Title: panelTitle}},
	}
	assert.True(t, isPanelMessage(panel, "bot"))
	assert.False(t, isPanelMessage(panel, "other"))
	assert.False(t, isPanelMessage(&discordgo.Message{Author: &discordgo.User{ID: "bot"}}, "bot"))
}

func TestCreateDraftComponents(t *testing.T) {
	maps := testMaps()
	now := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	d := &flow.CreateDraft{Title: "Scrim", Capacity: 10, Map: game.MapARAM}
	require.NoError(t, d.SetDate("2026-10-19"))

	components := createDraftComponents("draft", d, maps, now)
	require.Len(t, components, 5)

	mapMenu := components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Equal(t, "create:map:draft", mapMenu.CustomID)
	require.Len(t, mapMenu.Options, 3)
	for _, opt := range mapMenu.Options {
		assert.Equal(t, opt.Value == string(game.MapARAM), opt.Default, opt.Value)
	}

	dateMenu := components[1].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	require.Len(t, dateMenu.Options, flow.DaysPerPage)
	assert.Equal(t, "2026-10-17", dateMenu.Options[0].Value)
	assert.True(t, dateMenu.Options[2].Default)

	nav := components[4].(discordgo.ActionsRow).Components
	assert.True(t, nav[0].(discordgo.Button).Disabled, "no previous week on the first page")
	assert.False(t, nav[1].(discordgo.Button).Disabled)

	d.SetPage(flow.CalendarPages - 1)
	nav = createDraftComponents("draft", d, maps, now)[4].(discordgo.ActionsRow).Components
	assert.False(t, nav[0].(discordgo.Button).Disabled)
	assert.True(t, nav[1].(discordgo.Button).Disabled, "no next week on the last page")

	assert.Equal(t, colorPending, createDraftEmbed(d, maps).Color)
	require.NoError(t, d.SetHour(20))
	require.NoError(t, d.SetMinute(30))
	embed := createDraftEmbed(d, maps)
	assert.Equal(t, colorReady, embed.Color)
	assert.Equal(t, "20:30 KST", embed.Fields[2].Value)
}

func TestJoinDraftComponents(t *testing.T) {
	d := &flow.JoinDraft{LobbyID: "100", UserID: "A", Tier: "Gold", PrimaryRole: "Mid"}
	components := joinDraftComponents("draft", d, lol.NewRift())
	require.Len(t, components, 4)

	tier := components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Equal(t, "join:tier:draft", tier.CustomID)
	require.Len(t, tier.Options, len(lol.Tiers))

	primary := components[1].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	for _, opt := range primary.Options {
		assert.Equal(t, opt.Value == "Mid", opt.Default, opt.Value)
	}

	embed := joinDraftEmbed(d)
	assert.Equal(t, "not set", embed.Fields[2].Value)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
