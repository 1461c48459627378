package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/scrim-bot/internal/config"
	"github.com/flor3z/scrim-bot/internal/flow"
	"github.com/flor3z/scrim-bot/internal/game"
	"github.com/flor3z/scrim-bot/internal/games/lol"
	"github.com/flor3z/scrim-bot/internal/lobby"
	"github.com/flor3z/scrim-bot/internal/reconciler"
	"github.com/flor3z/scrim-bot/internal/storage"
)

const (
	// handlerTimeout bounds the work done for a single interaction
	handlerTimeout = 10 * time.Second
	// maintenanceTimeout bounds reconcile and reset, which touch every lobby
	maintenanceTimeout = 2 * time.Minute
)

// Bot represents the Discord bot instance
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	repo       *storage.Repository
	maps       *game.Registry
	lobbies    *lobby.Service
	publisher  *publisher
	reconciler *reconciler.Reconciler
	commands   []*discordgo.ApplicationCommand

	createDrafts *flow.Store[flow.CreateDraft]
	joinDrafts   *flow.Store[flow.JoinDraft]

	now func() time.Time
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Interactions and message edits only need the guilds intent
	session.Identify.Intents = discordgo.IntentsGuilds

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize map registry
	maps := game.NewRegistry()
	lol.RegisterAll(maps)

	lobbies := lobby.NewService(repo, maps)
	pub := newPublisher(session, maps, cfg.PanelChannelID)

	b := &Bot{
		config:       cfg,
		session:      session,
		repo:         repo,
		maps:         maps,
		lobbies:      lobbies,
		publisher:    pub,
		reconciler:   reconciler.New(repo, lobbies, pub, cfg.PanelRefreshSeconds),
		createDrafts: flow.NewStore[flow.CreateDraft](cfg.SelectionTimeout),
		joinDrafts:   flow.NewStore[flow.JoinDraft](cfg.SelectionTimeout),
		now:          time.Now,
	}

	// Register interaction handlers
	b.registerHandlers()

	return b, nil
}

// Open connects to Discord without registering commands or starting
// background work. One-shot maintenance commands use it directly.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	slog.Info("Connected to Discord", "user", b.session.State.User.Username)
	return nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	if err := b.Open(); err != nil {
		return err
	}

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Bring every stored lobby message back in line with the database
	go func() {
		report, err := b.reconciler.ReconcileAll(ctx)
		if err != nil {
			slog.Error("Startup reconciliation failed", "error", err)
			return
		}
		slog.Info("Startup reconciliation finished", "report", report.String())
	}()

	go b.reconciler.Start(ctx)
	go b.createDrafts.Run(ctx, "create")
	go b.joinDrafts.Run(ctx, "join")

	return nil
}

// Reconcile re-renders every stored lobby and the panel
func (b *Bot) Reconcile(ctx context.Context) (reconciler.Report, error) {
	return b.reconciler.ReconcileAll(ctx)
}

// Reset cancels every lobby, clears all memberships and re-renders
func (b *Bot) Reset(ctx context.Context) (reconciler.Report, error) {
	return b.reconciler.Reset(ctx)
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the panel refresher
	if b.reconciler != nil {
		b.reconciler.Stop()
	}

	if b.session != nil {
		b.removeCommands()
	}

	// Close storage
	if b.repo != nil {
		if err := b.repo.Close(); err != nil {
			slog.Error("Failed to close storage", "error", err)
		}
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash commands, components and modal submits
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "scrim":
		b.openCreateModal(s, i)
	case "panel":
		b.handlePanel(s, i)
	case "maps":
		b.handleMaps(s, i)
	case "reconcile":
		b.handleReconcile(s, i)
	case "reset":
		b.handleReset(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	id, err := parseComponentID(data.CustomID)
	if err != nil {
		slog.Warn("Ignoring component", "error", err)
		respondEphemeral(s, i, "This control is no longer supported.")
		return
	}
	slog.Debug("Received component", "custom_id", data.CustomID, "user", interactionUser(i).ID)

	switch id.Scope {
	case scopeLobby:
		b.handleLobbyAction(s, i, lobby.Action(id.Action), id.Target)
	case scopePanel:
		b.openCreateModal(s, i)
	case scopeCreate:
		b.handleCreateComponent(s, i, id)
	case scopeJoin:
		b.handleJoinComponent(s, i, id)
	default:
		slog.Warn("Unknown component scope", "custom_id", data.CustomID)
		respondEphemeral(s, i, "This control is no longer supported.")
	}
}

func (b *Bot) handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	id, err := parseComponentID(data.CustomID)
	if err != nil || id.Scope != scopeCreate || id.Action != "modal" {
		slog.Warn("Unknown modal", "custom_id", data.CustomID)
		return
	}
	b.handleCreateModal(s, i, modalValues(data))
}

// refresh re-renders a lobby and the panel after a change
func (b *Bot) refresh(ctx context.Context, lobbyID string) {
	if err := b.reconciler.RefreshLobby(ctx, lobbyID); err != nil {
		slog.Warn("Failed to refresh lobby", "lobby", lobbyID, "error", err)
	}
}

func handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

func maintenanceContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), maintenanceTimeout)
}
