package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var adminPermissions int64 = discordgo.PermissionAdministrator

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "scrim",
			Description: "Create a scrim lobby",
		},
		{
			Name:        "panel",
			Description: "Post or refresh the list of open lobbies",
		},
		{
			Name:        "maps",
			Description: "List the maps a lobby can be played on",
		},
		{
			Name:                     "reconcile",
			Description:              "Re-render every lobby message from the database",
			DefaultMemberPermissions: &adminPermissions,
		},
		{
			Name:                     "reset",
			Description:              "Cancel every lobby and clear all participants",
			DefaultMemberPermissions: &adminPermissions,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "confirm",
					Description: "Set to true to really reset all lobbies",
					Required:    true,
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord, scoped to the
// configured guild when there is one
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands", "guild", b.config.GuildID)

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			b.config.GuildID, // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// removeCommands deletes the commands registered by this process. Only
// guild-scoped commands are removed; global ones take up to an hour to
// propagate and are left in place across restarts.
func (b *Bot) removeCommands() {
	if !b.ownsGuildCommands() {
		return
	}
	for _, cmd := range b.commands {
		err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.config.GuildID, cmd.ID)
		if err != nil {
			slog.Error("Failed to remove command", "name", cmd.Name, "error", err)
		}
	}
	b.commands = nil
}

func (b *Bot) ownsGuildCommands() bool {
	return b.config.GuildID != "" && len(b.commands) > 0
}

// handlePanel handles the /panel command
func (b *Bot) handlePanel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if b.config.PanelChannelID == "" {
		respondEphemeral(s, i, "No panel channel is configured.")
		return
	}

	deferEphemeral(s, i)

	ctx, cancel := handlerContext()
	defer cancel()

	if err := b.reconciler.RefreshPanel(ctx); err != nil {
		slog.Error("Failed to refresh panel", "error", err)
		b.editResponse(s, i, "Failed to refresh the panel. Please try again.")
		return
	}
	b.editResponse(s, i, fmt.Sprintf("Panel refreshed in <#%s>.", b.config.PanelChannelID))
}

// handleMaps handles the /maps command
func (b *Bot) handleMaps(s *discordgo.Session, i *discordgo.InteractionCreate) {
	maps := b.maps.List()

	if len(maps) == 0 {
		respondWithMessage(s, i, "No maps are currently available.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Available Maps:**\n\n")

	for _, m := range maps {
		sb.WriteString(fmt.Sprintf("**%s** (`%s`)\n", m.Name, m.Type))
		sb.WriteString(fmt.Sprintf("  %s\n", m.Description))
		if m.RoleBased {
			sb.WriteString("  Players pick a tier and two roles when joining.\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Use `/scrim` to open a lobby!")

	respondWithMessage(s, i, sb.String())
}

// handleReconcile handles the /reconcile command
func (b *Bot) handleReconcile(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "Only administrators can do that.")
		return
	}

	deferEphemeral(s, i)

	ctx, cancel := maintenanceContext()
	defer cancel()

	report, err := b.reconciler.ReconcileAll(ctx)
	if err != nil {
		slog.Error("Reconciliation failed", "error", err)
		b.editResponse(s, i, "Reconciliation failed. Check the logs.")
		return
	}
	b.editResponse(s, i, fmt.Sprintf("Reconciled lobbies: %s", report))
}

// handleReset handles the /reset command
func (b *Bot) handleReset(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		respondEphemeral(s, i, "Only administrators can do that.")
		return
	}

	options := i.ApplicationCommandData().Options
	if len(options) == 0 || !options[0].BoolValue() {
		respondEphemeral(s, i, "Reset aborted. Pass `confirm: True` to cancel every lobby.")
		return
	}

	deferEphemeral(s, i)

	ctx, cancel := maintenanceContext()
	defer cancel()

	slog.Warn("Reset requested", "user", interactionUser(i).ID, "guild", i.GuildID)
	report, err := b.reconciler.Reset(ctx)
	if err != nil {
		slog.Error("Reset failed", "error", err)
		b.editResponse(s, i, "Reset failed. Check the logs.")
		return
	}
	b.editResponse(s, i, fmt.Sprintf("All lobbies cancelled and participants cleared: %s", report))
}
