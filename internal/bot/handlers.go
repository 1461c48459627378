package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/scrim-bot/internal/flow"
	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/storage"
)

// forumArchiveMinutes is the auto archive duration of lobby forum posts
const forumArchiveMinutes = 10080

var hostAcks = map[lobby.Action]string{
	lobby.ActionClose:  "Recruitment closed.",
	lobby.ActionStart:  "Scrim started. Have fun!",
	lobby.ActionCancel: "Scrim cancelled.",
}

// handleLobbyAction handles the buttons on a lobby message
func (b *Bot) handleLobbyAction(s *discordgo.Session, i *discordgo.InteractionCreate, action lobby.Action, lobbyID string) {
	ctx, cancel := handlerContext()
	defer cancel()

	user := interactionUser(i)

	switch {
	case action == lobby.ActionJoin:
		b.handleJoin(ctx, s, i, lobbyID, user.ID)
	case action == lobby.ActionLeave:
		if err := b.lobbies.Leave(ctx, lobbyID, user.ID); err != nil {
			respondError(s, i, err)
			return
		}
		respondEphemeral(s, i, "You left the lobby.")
		b.refresh(ctx, lobbyID)
	case action.HostOnly():
		b.handleHostAction(ctx, s, i, action, lobbyID, user.ID)
	default:
		slog.Warn("Unknown lobby action", "action", action, "lobby", lobbyID)
		respondEphemeral(s, i, "This control is no longer supported.")
	}
}

// handleJoin admits non role-based joins directly and opens the role and
// tier picker for role-based maps
func (b *Bot) handleJoin(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, lobbyID, userID string) {
	l, err := b.lobbies.CheckJoinable(ctx, lobbyID, userID)
	if err != nil {
		respondError(s, i, err)
		return
	}
	mode, err := b.lobbies.Mode(l)
	if err != nil {
		respondError(s, i, err)
		return
	}

	if mode.RoleBased() {
		draft := flow.JoinDraft{LobbyID: lobbyID, UserID: userID}
		draftID := b.joinDrafts.Put(draft)
		respondPicker(s, i, joinDraftEmbed(&draft), joinDraftComponents(draftID, &draft, mode))
		return
	}

	res, err := b.lobbies.Join(ctx, lobbyID, userID, game.Selection{})
	if err != nil {
		respondError(s, i, err)
		return
	}
	respondEphemeral(s, i, joinedMessage(res, l.Capacity))
	b.afterJoin(ctx, lobbyID, res)
}

// handleJoinComponent handles the role and tier picker
func (b *Bot) handleJoinComponent(s *discordgo.Session, i *discordgo.InteractionCreate, id componentID) {
	ctx, cancel := handlerContext()
	defer cancel()

	user := interactionUser(i)
	values := i.MessageComponentData().Values

	if id.Action == "confirm" {
		b.confirmJoin(ctx, s, i, id.Target, user.ID)
		return
	}
	if len(values) == 0 {
		respondEphemeral(s, i, "Pick a value first.")
		return
	}

	draft, err := b.joinDrafts.Update(id.Target, func(d *flow.JoinDraft) error {
		if d.UserID != user.ID {
			return flow.ErrExpired
		}
		switch id.Action {
		case "tier":
			d.Tier = values[0]
		case "primary":
			d.PrimaryRole = values[0]
		case "secondary":
			d.SecondaryRole = values[0]
		default:
			return fmt.Errorf("unknown join step %q", id.Action)
		}
		return nil
	})
	if err != nil {
		b.draftError(s, i, err)
		return
	}

	l, err := b.lobbies.Get(ctx, draft.LobbyID)
	if err != nil {
		b.joinDrafts.Take(id.Target)
		updateMessage(s, i, lobby.UserMessage(err))
		return
	}
	mode, err := b.lobbies.Mode(l)
	if err != nil {
		respondError(s, i, err)
		return
	}
	updatePicker(s, i, joinDraftEmbed(&draft), joinDraftComponents(id.Target, &draft, mode))
}

func (b *Bot) confirmJoin(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, draftID, userID string) {
	draft, err := b.joinDrafts.Get(draftID)
	if err == nil && draft.UserID != userID {
		err = flow.ErrExpired
	}
	if err != nil {
		b.draftError(s, i, err)
		return
	}

	res, err := b.lobbies.Join(ctx, draft.LobbyID, userID, draft.Selection())
	if err != nil {
		if errors.Is(err, lobby.ErrInvalidSelection) {
			// keep the picker so the user can fix their picks
			respondError(s, i, err)
			return
		}
		b.joinDrafts.Take(draftID)
		updateMessage(s, i, lobby.UserMessage(err))
		if !lobby.IsUserFacing(err) {
			slog.Error("Join failed", "lobby", draft.LobbyID, "user", userID, "error", err)
		}
		return
	}
	b.joinDrafts.Take(draftID)

	capacity := 0
	if l, err := b.lobbies.Get(ctx, draft.LobbyID); err == nil {
		capacity = l.Capacity
	}
	updateMessage(s, i, joinedMessage(res, capacity))
	b.afterJoin(ctx, draft.LobbyID, res)
}

func joinedMessage(res storage.JoinResult, capacity int) string {
	if capacity == 0 {
		return "You joined the lobby!"
	}
	return fmt.Sprintf("You joined the lobby! (%d/%d)", res.Count, capacity)
}

// afterJoin re-renders the lobby and announces when the join filled it
func (b *Bot) afterJoin(ctx context.Context, lobbyID string, res storage.JoinResult) {
	b.refresh(ctx, lobbyID)
	if res.Closed {
		b.announceStatus(ctx, lobbyID, "Recruitment complete! The lobby is full.")
	}
}

// handleHostAction handles close, start and cancel
func (b *Bot) handleHostAction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, action lobby.Action, lobbyID, userID string) {
	l, err := b.lobbies.Apply(ctx, lobbyID, userID, action)
	if err != nil {
		respondError(s, i, err)
		return
	}
	respondEphemeral(s, i, hostAcks[action])

	switch l.Status {
	case storage.StatusClosed:
		b.announceStatus(ctx, lobbyID, "Recruitment complete!")
	case storage.StatusStarted:
		b.announceStatus(ctx, lobbyID, "The scrim is starting!")
	case storage.StatusCancelled:
		b.announceStatus(ctx, lobbyID, "The host cancelled this scrim.")
	}

	// render after announcing: rendering a cancelled lobby archives its thread
	b.refresh(ctx, lobbyID)
}

// announceStatus mentions every participant in the lobby channel and the
// forum post
func (b *Bot) announceStatus(ctx context.Context, lobbyID, headline string) {
	snap, err := b.lobbies.Snapshot(ctx, lobbyID)
	if err != nil {
		slog.Warn("Failed to load lobby for announcement", "lobby", lobbyID, "error", err)
		return
	}
	l := snap.Lobby
	ids := snap.MemberIDs()

	content := fmt.Sprintf("**%s** %s", l.Title, headline)
	if len(ids) > 0 {
		content += "\n" + mentions(ids)
	}
	msg := &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}, Users: ids},
		Reference:       &discordgo.MessageReference{MessageID: l.ID, ChannelID: l.ChannelID, GuildID: l.GuildID},
	}
	if _, err := b.session.ChannelMessageSendComplex(l.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		slog.Warn("Failed to send announcement", "lobby", l.ID, "error", err)
	}

	if l.ForumPostID == "" {
		return
	}
	msg.Reference = nil
	if _, err := b.session.ChannelMessageSendComplex(l.ForumPostID, msg, discordgo.WithContext(ctx)); err != nil {
		slog.Warn("Failed to send forum announcement", "lobby", l.ID, "thread", l.ForumPostID, "error", err)
	}
}

// openCreateModal asks the host for the lobby title and capacity
func (b *Bot) openCreateModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		respondEphemeral(s, i, "Lobbies can only be created in a server.")
		return
	}

	respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: componentID{Scope: scopeCreate, Action: "modal"}.String(),
			Title:    "Create scrim lobby",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    "title",
						Label:       "Title",
						Style:       discordgo.TextInputShort,
						Placeholder: "Friday night scrim",
						Required:    true,
						MaxLength:   lobby.MaxTitleLength,
					},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  "capacity",
						Label:     fmt.Sprintf("Players (%d-%d)", lobby.MinCapacity, lobby.MaxCapacity),
						Style:     discordgo.TextInputShort,
						Value:     strconv.Itoa(lobby.DefaultCapacity),
						Required:  true,
						MaxLength: 2,
					},
				}},
			},
		},
	})
}

// handleCreateModal starts the map and time picker
func (b *Bot) handleCreateModal(s *discordgo.Session, i *discordgo.InteractionCreate, values map[string]string) {
	capacity, err := lobby.ParseCapacity(values["capacity"])
	if err != nil {
		respondError(s, i, err)
		return
	}

	user := interactionUser(i)
	draft := flow.CreateDraft{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		HostID:    user.ID,
		HostName:  displayName(i),
		Title:     strings.TrimSpace(values["title"]),
		Capacity:  capacity,
	}
	// map and start are still missing at this point
	if err := b.lobbies.Validate(draft.Request("")); err != nil && !errors.Is(err, lobby.ErrIncompleteSelection) {
		respondError(s, i, err)
		return
	}

	draftID := b.createDrafts.Put(draft)
	slog.Debug("Create flow started", "draft", draftID, "host", user.ID)
	respondPicker(s, i, createDraftEmbed(&draft, b.maps), createDraftComponents(draftID, &draft, b.maps, b.now()))
}

// handleCreateComponent handles the map, date and time pickers
func (b *Bot) handleCreateComponent(s *discordgo.Session, i *discordgo.InteractionCreate, id componentID) {
	user := interactionUser(i)
	values := i.MessageComponentData().Values

	var step func(d *flow.CreateDraft) error
	switch id.Action {
	case "confirm":
		b.confirmCreate(s, i, id.Target, user.ID)
		return
	case "abort":
		b.createDrafts.Take(id.Target)
		updateMessage(s, i, "Lobby creation cancelled.")
		return
	case "page":
		cursor, err := parsePageCursor(id)
		if err != nil {
			slog.Warn("Bad page cursor", "error", err)
			respondEphemeral(s, i, "This control is no longer supported.")
			return
		}
		step = cursor.apply
	case "map", "date", "hour", "minute":
		if len(values) == 0 {
			respondEphemeral(s, i, "Pick a value first.")
			return
		}
		step = b.pickStep(id.Action, values[0])
	default:
		slog.Warn("Unknown create step", "step", id.Action)
		respondEphemeral(s, i, "This control is no longer supported.")
		return
	}

	draft, err := b.createDrafts.Update(id.Target, func(d *flow.CreateDraft) error {
		if d.HostID != user.ID {
			return flow.ErrExpired
		}
		return step(d)
	})
	if err != nil {
		b.draftError(s, i, err)
		return
	}
	updatePicker(s, i, createDraftEmbed(&draft, b.maps), createDraftComponents(id.Target, &draft, b.maps, b.now()))
}

func (b *Bot) pickStep(action, value string) func(d *flow.CreateDraft) error {
	return func(d *flow.CreateDraft) error {
		switch action {
		case "map":
			if _, err := b.maps.Get(game.MapType(value)); err != nil {
				return lobby.NewValidationError(lobby.ErrUnknownMap, "Unknown map.")
			}
			d.Map = game.MapType(value)
			return nil
		case "date":
			return d.SetDate(value)
		case "hour", "minute":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", action, value, err)
			}
			if action == "hour" {
				return d.SetHour(n)
			}
			return d.SetMinute(n)
		}
		return fmt.Errorf("unknown create step %q", action)
	}
}

// confirmCreate posts the lobby message, stores the lobby under the
// message ID and mirrors it to the forum
func (b *Bot) confirmCreate(s *discordgo.Session, i *discordgo.InteractionCreate, draftID, userID string) {
	draft, err := b.createDrafts.Get(draftID)
	if err == nil && draft.HostID != userID {
		err = flow.ErrExpired
	}
	if err != nil {
		b.draftError(s, i, err)
		return
	}
	if err := b.lobbies.Validate(draft.Request("")); err != nil {
		respondError(s, i, err)
		return
	}
	if _, err := b.createDrafts.Take(draftID); err != nil {
		b.draftError(s, i, err)
		return
	}

	updateMessage(s, i, "Creating your lobby…")

	ctx, cancel := handlerContext()
	defer cancel()

	msg, err := b.session.ChannelMessageSendComplex(draft.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{pendingEmbed(draft.Title)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Error("Failed to post lobby message", "channel", draft.ChannelID, "error", err)
		b.editResponse(s, i, "Could not post the lobby in this channel. Check my permissions and try again.")
		return
	}

	l, err := b.lobbies.Create(ctx, draft.Request(msg.ID))
	if err != nil {
		if delErr := b.session.ChannelMessageDelete(msg.ChannelID, msg.ID); delErr != nil {
			slog.Warn("Failed to delete orphaned lobby message", "message", msg.ID, "error", delErr)
		}
		if !lobby.IsUserFacing(err) {
			slog.Error("Failed to create lobby", "error", err)
		}
		b.editResponse(s, i, lobby.UserMessage(err))
		return
	}

	b.createForumPost(ctx, l)
	b.refresh(ctx, l.ID)
	b.editResponse(s, i, fmt.Sprintf("Lobby created: %s", messageLink(l.GuildID, l.ChannelID, l.ID)))
}

// createForumPost opens a forum thread mirroring the lobby when a forum
// channel is configured
func (b *Bot) createForumPost(ctx context.Context, l *storage.Lobby) {
	if b.config.ForumChannelID == "" {
		return
	}

	name := truncate(fmt.Sprintf("[%s] %s", l.StartsAt.In(lobby.StartZone).Format("01/02 15:04"), l.Title), 100)
	thread, err := b.session.ForumThreadStartComplex(b.config.ForumChannelID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: forumArchiveMinutes,
	}, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{pendingEmbed(l.Title)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("Failed to create forum post", "lobby", l.ID, "forum", b.config.ForumChannelID, "error", err)
		return
	}

	if err := b.lobbies.AttachForumPost(ctx, l.ID, thread.ID); err != nil {
		slog.Error("Failed to record forum post", "lobby", l.ID, "thread", thread.ID, "error", err)
		return
	}
	l.ForumPostID = thread.ID
}

// draftError reports a failed picker step. Expired drafts lose their
// controls; anything else keeps the picker in place.
func (b *Bot) draftError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	if errors.Is(err, flow.ErrExpired) {
		updateMessage(s, i, lobby.UserMessage(lobby.ExpiredError()))
		return
	}
	if !lobby.IsUserFacing(err) {
		err = lobby.NewValidationError(lobby.ErrInvalidSelection, "That pick is not valid.")
	}
	respondError(s, i, err)
}
