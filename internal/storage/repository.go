package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lobby does not exist
var ErrNotFound = errors.New("lobby not found")

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Write transactions take the RESERVED lock at BEGIN so two joins can
	// never both read the same member count.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate" +
		"&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS lobbies (
			id VARCHAR(20) PRIMARY KEY,
			guild_id VARCHAR(20) NOT NULL,
			channel_id VARCHAR(20) NOT NULL,
			forum_post_id VARCHAR(20),
			host_id VARCHAR(20) NOT NULL,
			host_name TEXT NOT NULL,
			title TEXT NOT NULL,
			capacity INTEGER NOT NULL CHECK (capacity BETWEEN 2 AND 20),
			map VARCHAR(32) NOT NULL,
			starts_at TEXT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'open',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS lobby_members (
			lobby_id VARCHAR(20) NOT NULL,
			user_id VARCHAR(20) NOT NULL,
			primary_role VARCHAR(16),
			secondary_role VARCHAR(16),
			tier VARCHAR(32),
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (lobby_id, user_id),
			FOREIGN KEY (lobby_id) REFERENCES lobbies(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lobbies_status ON lobbies(status)`,
		`CREATE INDEX IF NOT EXISTS idx_members_lobby ON lobby_members(lobby_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const lobbyColumns = `id, guild_id, channel_id, forum_post_id, host_id, host_name, title,
	capacity, map, starts_at, status, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLobby(row rowScanner) (*Lobby, error) {
	l := &Lobby{}
	var forumPostID sql.NullString
	var startsAt string
	err := row.Scan(&l.ID, &l.GuildID, &l.ChannelID, &forumPostID, &l.HostID, &l.HostName, &l.Title,
		&l.Capacity, &l.Map, &startsAt, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.ForumPostID = forumPostID.String
	l.StartsAt, err = time.Parse(time.RFC3339, startsAt)
	if err != nil {
		return nil, fmt.Errorf("invalid starts_at for lobby %s: %w", l.ID, err)
	}
	return l, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Lobby operations

// CreateLobby inserts a new lobby. Status defaults to open.
func (r *Repository) CreateLobby(ctx context.Context, l *Lobby) error {
	if l.Status == "" {
		l.Status = StatusOpen
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lobbies (id, guild_id, channel_id, forum_post_id, host_id, host_name, title,
			capacity, map, starts_at, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.GuildID, l.ChannelID, nullIfEmpty(l.ForumPostID), l.HostID, l.HostName, l.Title,
		l.Capacity, l.Map, l.StartsAt.Format(time.RFC3339), string(l.Status), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lobby: %w", err)
	}
	return nil
}

// GetLobby finds a lobby by ID
func (r *Repository) GetLobby(ctx context.Context, id string) (*Lobby, error) {
	l, err := scanLobby(r.db.QueryRowContext(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// SetForumPost records the forum thread created for a lobby
func (r *Repository) SetForumPost(ctx context.Context, lobbyID, forumPostID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE lobbies SET forum_post_id = ? WHERE id = ?`,
		nullIfEmpty(forumPostID), lobbyID,
	)
	return err
}

// UpdateStatus moves a lobby to status `to` only when its current status is
// one of `from`. It reports whether a row changed.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from []Status, to Status) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), id)
	for _, s := range from {
		args = append(args, string(s))
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE lobbies SET status = ? WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update lobby status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// listLobbies runs a lobby query and collects the rows
func (r *Repository) listLobbies(ctx context.Context, query string, args ...any) ([]*Lobby, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []*Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}

	return lobbies, rows.Err()
}

// ListOpenLobbies returns lobbies still accepting joins, soonest first
func (r *Repository) ListOpenLobbies(ctx context.Context) ([]*Lobby, error) {
	return r.listLobbies(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies WHERE status = ? ORDER BY starts_at, created_at, rowid`,
		string(StatusOpen),
	)
}

// ListActiveLobbies returns open, closed and started lobbies
func (r *Repository) ListActiveLobbies(ctx context.Context) ([]*Lobby, error) {
	return r.listLobbies(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies WHERE status IN (?, ?, ?) ORDER BY starts_at, created_at, rowid`,
		string(StatusOpen), string(StatusClosed), string(StatusStarted),
	)
}

// ListAllLobbies returns every lobby, cancelled ones included
func (r *Repository) ListAllLobbies(ctx context.Context) ([]*Lobby, error) {
	return r.listLobbies(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies ORDER BY created_at, rowid`,
	)
}

// Member operations

// AddMember admits a member under a write transaction. Status, capacity,
// existing membership and the current count are all read inside the same
// transaction that inserts, and the lobby is closed when the insert fills it.
func (r *Repository) AddMember(ctx context.Context, m *Member) (JoinResult, error) {
	var res JoinResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin join transaction: %w", err)
	}
	defer tx.Rollback()

	var status Status
	var capacity int
	err = tx.QueryRowContext(ctx,
		`SELECT status, capacity FROM lobbies WHERE id = ?`, m.LobbyID,
	).Scan(&status, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lobby_members WHERE lobby_id = ?`, m.LobbyID,
	).Scan(&res.Count); err != nil {
		return res, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lobby_members WHERE lobby_id = ? AND user_id = ?)`,
		m.LobbyID, m.UserID,
	).Scan(&exists); err != nil {
		return res, err
	}

	// A lobby that filled up is reported as full even after it auto-closed
	switch {
	case exists:
		res.Outcome = JoinAlreadyMember
		return res, nil
	case res.Count >= capacity:
		res.Outcome = JoinFull
		return res, nil
	case status != StatusOpen:
		res.Outcome = JoinNotOpen
		return res, nil
	}

	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lobby_members (lobby_id, user_id, primary_role, secondary_role, tier, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.LobbyID, m.UserID, nullIfEmpty(m.PrimaryRole), nullIfEmpty(m.SecondaryRole), nullIfEmpty(m.Tier), m.JoinedAt,
	); err != nil {
		return res, fmt.Errorf("failed to insert member: %w", err)
	}
	res.Count++
	res.Outcome = JoinAdded

	if res.Count >= capacity {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lobbies SET status = ? WHERE id = ? AND status = ?`,
			string(StatusClosed), m.LobbyID, string(StatusOpen),
		); err != nil {
			return res, fmt.Errorf("failed to close full lobby: %w", err)
		}
		res.Closed = true
	}

	if err := tx.Commit(); err != nil {
		return JoinResult{}, fmt.Errorf("failed to commit join: %w", err)
	}
	return res, nil
}

// RemoveMember deletes a membership while the lobby is open. It reports
// whether a row was deleted.
func (r *Repository) RemoveMember(ctx context.Context, lobbyID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM lobby_members
		 WHERE lobby_id = ? AND user_id = ?
		   AND EXISTS (SELECT 1 FROM lobbies WHERE id = ? AND status = ?)`,
		lobbyID, userID, lobbyID, string(StatusOpen),
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsMember reports whether a user is enrolled in a lobby
func (r *Repository) IsMember(ctx context.Context, lobbyID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lobby_members WHERE lobby_id = ? AND user_id = ?)`,
		lobbyID, userID,
	).Scan(&exists)
	return exists, err
}

// ListMembers returns a lobby's members in join order
func (r *Repository) ListMembers(ctx context.Context, lobbyID string) ([]*Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT lobby_id, user_id, primary_role, secondary_role, tier, joined_at
		 FROM lobby_members WHERE lobby_id = ? ORDER BY joined_at, rowid`,
		lobbyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		var primary, secondary, tier sql.NullString
		if err := rows.Scan(&m.LobbyID, &m.UserID, &primary, &secondary, &tier, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.PrimaryRole = primary.String
		m.SecondaryRole = secondary.String
		m.Tier = tier.String
		members = append(members, m)
	}

	return members, rows.Err()
}

// CountMembers returns the number of members in a lobby
func (r *Repository) CountMembers(ctx context.Context, lobbyID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lobby_members WHERE lobby_id = ?`, lobbyID,
	).Scan(&n)
	return n, err
}

// ClearAllMembers removes every membership row
func (r *Repository) ClearAllMembers(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lobby_members`)
	return err
}

// ResetAll cancels every lobby and clears every membership in one
// transaction. It returns the lobbies that were active before the reset,
// with their status already set to cancelled.
func (r *Repository) ResetAll(ctx context.Context) ([]*Lobby, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies WHERE status != ? ORDER BY created_at, rowid`,
		string(StatusCancelled),
	)
	if err != nil {
		return nil, err
	}
	var previous []*Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		l.Status = StatusCancelled
		previous = append(previous, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE lobbies SET status = ?`, string(StatusCancelled)); err != nil {
		return nil, fmt.Errorf("failed to cancel lobbies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lobby_members`); err != nil {
		return nil, fmt.Errorf("failed to clear members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reset: %w", err)
	}
	return previous, nil
}
