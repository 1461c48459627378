package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flor3z/scrim-bot/internal/flow"
	"github.com/flor3z/scrim-bot/internal/lobby"
)

// Custom ID scopes
const (
	scopeLobby  = "lobby"  // lobby:<action>:<lobbyID>
	scopePanel  = "panel"  // panel:create
	scopeCreate = "create" // create:<step>:<draftID>[:<arg>]
	scopeJoin   = "join"   // join:<step>:<draftID>
)

// componentID is the parsed form of a component or modal custom ID
type componentID struct {
	Scope  string
	Action string
	Target string
	Arg    string
}

func (c componentID) String() string {
	parts := []string{c.Scope, c.Action}
	if c.Target != "" {
		parts = append(parts, c.Target)
	}
	if c.Arg != "" {
		parts = append(parts, c.Arg)
	}
	return strings.Join(parts, ":")
}

func parseComponentID(raw string) (componentID, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return componentID{}, fmt.Errorf("malformed custom id %q", raw)
	}

	id := componentID{Scope: parts[0], Action: parts[1]}
	if len(parts) > 2 {
		id.Target = parts[2]
	}
	if len(parts) > 3 {
		id.Arg = parts[3]
	}
	return id, nil
}

func lobbyButtonID(action lobby.Action, lobbyID string) string {
	return componentID{Scope: scopeLobby, Action: string(action), Target: lobbyID}.String()
}

// pageCursor moves a create draft's date picker to another week
type pageCursor struct {
	DraftID string
	Page    int
}

func (p pageCursor) customID() string {
	return componentID{Scope: scopeCreate, Action: "page", Target: p.DraftID, Arg: strconv.Itoa(p.Page)}.String()
}

func parsePageCursor(id componentID) (pageCursor, error) {
	if id.Scope != scopeCreate || id.Action != "page" || id.Target == "" {
		return pageCursor{}, fmt.Errorf("not a page cursor: %s", id)
	}
	page, err := strconv.Atoi(id.Arg)
	if err != nil {
		return pageCursor{}, fmt.Errorf("invalid page %q: %w", id.Arg, err)
	}
	return pageCursor{DraftID: id.Target, Page: page}, nil
}

func (p pageCursor) apply(d *flow.CreateDraft) error {
	d.SetPage(p.Page)
	return nil
}
