package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/storage"
)

// panelSearchLimit is how many recent panel channel messages are scanned to
// find an existing panel after a restart
const panelSearchLimit = 50

// publisher renders lobby state onto Discord messages
type publisher struct {
	session        *discordgo.Session
	maps           *game.Registry
	panelChannelID string

	mu             sync.Mutex
	panelMessageID string
}

func newPublisher(session *discordgo.Session, maps *game.Registry, panelChannelID string) *publisher {
	return &publisher{
		session:        session,
		maps:           maps,
		panelChannelID: panelChannelID,
	}
}

// PublishLobby edits the lobby message and, when present, the forum post
// mirroring it. Cancelled lobbies also get their forum thread archived.
func (p *publisher) PublishLobby(ctx context.Context, snap *lobby.Snapshot) error {
	l := snap.Lobby
	embeds := []*discordgo.MessageEmbed{lobbyEmbed(snap, p.maps)}
	components := lobbyComponents(snap)

	_, err := p.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         l.ID,
		Channel:    l.ChannelID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		err = fmt.Errorf("failed to edit lobby message: %w", err)
	}

	if l.ForumPostID != "" {
		p.publishForumPost(ctx, l, embeds, components)
	}
	return err
}

// publishForumPost updates the thread starter message, whose ID equals the
// thread ID. Failures here never fail the lobby publish.
func (p *publisher) publishForumPost(ctx context.Context, l *storage.Lobby, embeds []*discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	_, err := p.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         l.ForumPostID,
		Channel:    l.ForumPostID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("Failed to edit forum post", "lobby", l.ID, "thread", l.ForumPostID, "error", err)
	}

	if l.Status != storage.StatusCancelled {
		return
	}
	archived := true
	_, err = p.session.ChannelEditComplex(l.ForumPostID, &discordgo.ChannelEdit{
		Archived: &archived,
		Locked:   &archived,
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("Failed to archive forum post", "lobby", l.ID, "thread", l.ForumPostID, "error", err)
	}
}

// PublishPanel edits the panel message, posting a new one when none exists
func (p *publisher) PublishPanel(ctx context.Context, open []*lobby.Snapshot) error {
	if p.panelChannelID == "" {
		return nil
	}

	embeds := []*discordgo.MessageEmbed{panelEmbed(open, p.maps)}
	components := panelComponents()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.panelMessageID == "" {
		p.panelMessageID = p.findPanelMessage(ctx)
	}

	if p.panelMessageID != "" {
		_, err := p.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         p.panelMessageID,
			Channel:    p.panelChannelID,
			Embeds:     &embeds,
			Components: &components,
		}, discordgo.WithContext(ctx))
		if err == nil {
			return nil
		}
		if !isUnknownMessage(err) {
			return fmt.Errorf("failed to edit panel: %w", err)
		}
		slog.Info("Panel message is gone, posting a new one", "message", p.panelMessageID)
		p.panelMessageID = ""
	}

	msg, err := p.session.ChannelMessageSendComplex(p.panelChannelID, &discordgo.MessageSend{
		Embeds:     embeds,
		Components: components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post panel: %w", err)
	}
	p.panelMessageID = msg.ID
	slog.Info("Posted panel", "channel", p.panelChannelID, "message", msg.ID)
	return nil
}

// findPanelMessage looks for a panel this bot posted earlier
func (p *publisher) findPanelMessage(ctx context.Context) string {
	if p.session.State == nil || p.session.State.User == nil {
		return ""
	}
	botID := p.session.State.User.ID

	messages, err := p.session.ChannelMessages(p.panelChannelID, panelSearchLimit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("Failed to search for panel message", "channel", p.panelChannelID, "error", err)
		return ""
	}
	for _, m := range messages {
		if isPanelMessage(m, botID) {
			return m.ID
		}
	}
	return ""
}

func isPanelMessage(m *discordgo.Message, botID string) bool {
	return m.Author != nil && m.Author.ID == botID &&
		len(m.Embeds) > 0 && m.Embeds[0].Title == panelTitle
}

func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	return restErr.Message.Code == discordgo.ErrCodeUnknownMessage
}
