package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string
	GuildID      string // empty registers commands globally

	// Channels
	ForumChannelID string // optional forum for per-lobby posts
	PanelChannelID string // optional channel for the open lobby panel

	// Database
	DatabasePath string

	// Flows
	SelectionTimeout time.Duration

	// Panel
	PanelRefreshSeconds int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:   os.Getenv("DISCORD_BOT_TOKEN"),
		GuildID:        os.Getenv("DISCORD_GUILD_ID"),
		ForumChannelID: os.Getenv("FORUM_CHANNEL_ID"),
		PanelChannelID: os.Getenv("PANEL_CHANNEL_ID"),
		DatabasePath:   getEnvOrDefault("DATABASE_PATH", "./data/scrim.db"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
	}

	timeout, err := getEnvInt("SELECTION_TIMEOUT_SECONDS", 180)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("SELECTION_TIMEOUT_SECONDS must be positive")
	}
	cfg.SelectionTimeout = time.Duration(timeout) * time.Second

	cfg.PanelRefreshSeconds, err = getEnvInt("PANEL_REFRESH_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	if cfg.PanelRefreshSeconds < 0 {
		return nil, fmt.Errorf("PANEL_REFRESH_SECONDS must not be negative")
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
