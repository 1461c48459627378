package bot

import (
	"testing"

	"github.com/flor3z/scrim-bot/internal/flow"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComponentID(t *testing.T) {
	tests := []struct {
		raw  string
		want componentID
	}{
		{"lobby:join:123", componentID{Scope: "lobby", Action: "join", Target: "123"}},
		{"panel:create", componentID{Scope: "panel", Action: "create"}},
		{"create:page:abc:2", componentID{Scope: "create", Action: "page", Target: "abc", Arg: "2"}},
		{"create:page:abc:2:extra", componentID{Scope: "create", Action: "page", Target: "abc", Arg: "2:extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseComponentID(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "lobby", ":join", "lobby:"} {
		_, err := parseComponentID(raw)
		assert.Error(t, err, raw)
	}
}

func TestComponentIDRoundTrip(t *testing.T) {
	id := lobbyButtonID(lobby.ActionCancel, "987")
	assert.Equal(t, "lobby:cancel:987", id)

	parsed, err := parseComponentID(id)
	require.NoError(t, err)
	assert.Equal(t, lobby.ActionCancel, lobby.Action(parsed.Action))
	assert.Equal(t, "987", parsed.Target)
}

func TestPageCursor(t *testing.T) {
	cursor := pageCursor{DraftID: "draft", Page: 3}
	id, err := parseComponentID(cursor.customID())
	require.NoError(t, err)

	parsed, err := parsePageCursor(id)
	require.NoError(t, err)
	assert.Equal(t, cursor, parsed)

	d := &flow.CreateDraft{}
	require.NoError(t, pageCursor{DraftID: "draft", Page: 99}.apply(d))
	assert.Equal(t, flow.CalendarPages-1, d.Page)
	require.NoError(t, pageCursor{DraftID: "draft", Page: -1}.apply(d))
	assert.Zero(t, d.Page)

	_, err = parsePageCursor(componentID{Scope: scopeCreate, Action: "page", Target: "draft", Arg: "x"})
	assert.Error(t, err)
	_, err = parsePageCursor(componentID{Scope: scopeJoin, Action: "tier", Target: "draft"})
	assert.Error(t, err)
}
