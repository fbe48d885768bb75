package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sageteam-org/sagechat-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agents (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	status    TEXT NOT NULL DEFAULT 'offline',
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	agent_id   INTEGER REFERENCES agents(id) ON DELETE SET NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id     INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	author      TEXT,
	session_key TEXT,
	text        TEXT NOT NULL,
	timestamp   DATETIME NOT NULL,
	CHECK ((author IS NULL) != (session_key IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, timestamp);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after
// the schema is applied. Useful for tests to seed fixture rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getUserByID(ctx, id)
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== AgentStore implementation ====

// CreateAgent creates an agent record for a user.
func (s *SQLiteStore) CreateAgent(ctx context.Context, userID int64) (*store.Agent, error) {
	query := `
		INSERT INTO agents (user_id, status)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, userID, store.AgentOffline)
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetAgentByID(ctx, id)
}

// GetAgentByID retrieves an agent by ID.
func (s *SQLiteStore) GetAgentByID(ctx context.Context, id int64) (*store.Agent, error) {
	query := `
		SELECT a.id, a.user_id, u.username, a.status, a.joined_at
		FROM agents a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = ?
	`
	return s.scanAgent(s.db.QueryRowContext(ctx, query, id))
}

// GetAgentByUsername retrieves the agent backed by the given username.
func (s *SQLiteStore) GetAgentByUsername(ctx context.Context, username string) (*store.Agent, error) {
	query := `
		SELECT a.id, a.user_id, u.username, a.status, a.joined_at
		FROM agents a
		JOIN users u ON u.id = a.user_id
		WHERE u.username = ?
	`
	return s.scanAgent(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*store.Agent, error) {
	var agent store.Agent
	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Username,
		&agent.Status,
		&agent.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("agent: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query agent: %w", err)
	}

	return &agent, nil
}

// SaveAgent persists the agent's status.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *store.Agent) error {
	query := `
		UPDATE agents SET status = ? WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, agent.Status, agent.ID)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent %d: %w", agent.ID, store.ErrNotFound)
	}

	return nil
}

// ==== RoomStore implementation ====

// GetOrCreateRoom returns the room with the given name, creating it if absent.
func (s *SQLiteStore) GetOrCreateRoom(ctx context.Context, name string) (*store.Room, error) {
	query := `
		INSERT INTO rooms (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return s.GetRoomByName(ctx, name)
}

// GetRoomByName retrieves a room by name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	query := `
		SELECT id, name, agent_id, created_at
		FROM rooms
		WHERE name = ?
	`
	var room store.Room
	var agentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&room.ID,
		&room.Name,
		&agentID,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if agentID.Valid {
		room.AgentID = &agentID.Int64
	}

	return &room, nil
}

// AssignAgent sets the room's agent, overwriting any prior assignment.
func (s *SQLiteStore) AssignAgent(ctx context.Context, roomID, agentID int64) error {
	query := `
		UPDATE rooms SET agent_id = ? WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, agentID, roomID)
	if err != nil {
		return fmt.Errorf("assign agent: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}

	return nil
}

// ListActiveRooms lists rooms that have at least one message.
func (s *SQLiteStore) ListActiveRooms(ctx context.Context) ([]*store.RoomSummary, error) {
	query := `
		SELECT r.id, r.name, r.agent_id, r.created_at, COUNT(m.id) AS message_count
		FROM rooms r
		JOIN messages m ON m.room_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	summaries := []*store.RoomSummary{}
	for rows.Next() {
		var sum store.RoomSummary
		var agentID sql.NullInt64
		if err := rows.Scan(&sum.ID, &sum.Name, &agentID, &sum.CreatedAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if agentID.Valid {
			sum.AgentID = &agentID.Int64
		}
		summaries = append(summaries, &sum)
	}

	return summaries, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and returns it with ID and timestamp set.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.ChatMessage) (*store.ChatMessage, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	// Timestamp assigned here rather than via a column default so that
	// ordering keeps sub-second precision.
	ts := time.Now().UTC()

	query := `
		INSERT INTO messages (room_id, author, session_key, text, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.RoomID, msg.Author, msg.SessionKey, msg.Text, ts)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	saved := *msg
	saved.ID = id
	saved.Timestamp = ts
	return &saved, nil
}

// ListMessages returns up to limit of the room's most recent messages in
// ascending timestamp order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit int) ([]*store.ChatMessage, error) {
	query := `
		SELECT id, room_id, author, session_key, text, timestamp
		FROM (
			SELECT id, room_id, author, session_key, text, timestamp
			FROM messages
			WHERE room_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []*store.ChatMessage{}
	for rows.Next() {
		var msg store.ChatMessage
		var author, sessionKey sql.NullString
		if err := rows.Scan(&msg.ID, &msg.RoomID, &author, &sessionKey, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if author.Valid {
			msg.Author = &author.String
		}
		if sessionKey.Valid {
			msg.SessionKey = &sessionKey.String
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
