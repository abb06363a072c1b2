package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/regbuddy/internal/config"
	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/ashureev/regbuddy/internal/retry"
	"github.com/ashureev/regbuddy/internal/shared"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an insert collides with a unique key.
var ErrConflict = errors.New("record already exists")

// Dialect identifies the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Repository on database/sql. Queries are written with
// ? placeholders and rebound for Postgres.
type SQLStore struct {
	db         *sql.DB
	dialect    Dialect
	writeRetry retry.Policy
}

var _ Repository = (*SQLStore)(nil)

// Open connects to the backend selected by cfg without migrating.
func Open(ctx context.Context, cfg config.DBConfig) (*SQLStore, error) {
	switch Dialect(cfg.Driver) {
	case DialectPostgres:
		return openPostgres(ctx, cfg.URL)
	default:
		return openSQLite(ctx, cfg.Path)
	}
}

// NewSQLite opens a SQLite database at dbPath and applies migrations.
func NewSQLite(dbPath string) (*SQLStore, error) {
	ctx := context.Background()
	s, err := openSQLite(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func openSQLite(ctx context.Context, dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the writer.
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLStore(db, DialectSQLite), nil
}

func openPostgres(ctx context.Context, url string) (*SQLStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLStore(db, DialectPostgres), nil
}

func newSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		writeRetry: retry.Policy{
			Name:        "store write",
			MaxRetries:  2,
			Delay:       100 * time.Millisecond,
			Exponential: true,
			Retryable:   shared.IsConflictError,
		},
	}
}

// Dialect returns the backend in use.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// exec runs a write, retrying briefly on lock contention.
func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = s.rebind(query)
	return retry.Do(ctx, s.writeRetry, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateUser stores sign-in credentials.
func (s *SQLStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, toMillis(user.CreatedAt),
	)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail looks up credentials by email.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.queryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)

	var user domain.User
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

// GetProfile retrieves a profile by user ID.
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	row := s.queryRow(ctx, `
		SELECT id, email, role, name, age, avatar_url, parent_id, preferences,
		       created_at, updated_at
		FROM profiles WHERE id = ?`, userID)

	var p domain.Profile
	var role string
	var name, avatarURL, parentID, prefs sql.NullString
	var age sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.Email, &role, &name, &age, &avatarURL, &parentID, &prefs, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.Role = domain.Role(role)
	p.Name = name.String
	p.Age = int(age.Int64)
	p.AvatarURL = avatarURL.String
	p.ParentID = parentID.String
	if prefs.Valid && prefs.String != "" {
		p.Preferences = json.RawMessage(prefs.String)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// CreateProfile inserts a profile unless one already exists.
func (s *SQLStore) CreateProfile(ctx context.Context, p *domain.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Role == "" {
		p.Role = domain.RoleChild
	}

	var age any
	if p.Age > 0 {
		age = p.Age
	}
	var prefs any
	if len(p.Preferences) > 0 {
		prefs = string(p.Preferences)
	}

	_, err := s.exec(ctx, `
		INSERT INTO profiles (id, email, role, name, age, avatar_url, parent_id, preferences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		p.ID, p.Email, string(p.Role), nullString(p.Name), age,
		nullString(p.AvatarURL), nullString(p.ParentID), prefs,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetRewards retrieves the reward balance for a user.
func (s *SQLStore) GetRewards(ctx context.Context, userID string) (*domain.Rewards, error) {
	row := s.queryRow(ctx,
		`SELECT user_id, stars, coins, last_updated FROM rewards WHERE user_id = ?`, userID)

	var r domain.Rewards
	var lastUpdated int64
	err := row.Scan(&r.UserID, &r.Stars, &r.Coins, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rewards row: %w", err)
	}
	r.LastUpdated = fromMillis(lastUpdated)
	return &r, nil
}

// UpsertRewards writes the final balance for a user.
func (s *SQLStore) UpsertRewards(ctx context.Context, r *domain.Rewards) error {
	if r.LastUpdated.IsZero() {
		r.LastUpdated = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO rewards (user_id, stars, coins, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stars = excluded.stars,
			coins = excluded.coins,
			last_updated = excluded.last_updated`,
		r.UserID, r.Stars, r.Coins, toMillis(r.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("upsert rewards: %w", err)
	}
	return nil
}

// CreateSession inserts a chat session.
func (s *SQLStore) CreateSession(ctx context.Context, userID string, mood domain.Mood) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Mood:      mood,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.exec(ctx,
		`INSERT INTO sessions (id, user_id, mood, completed, created_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, nullString(string(mood)), false, toMillis(sess.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a chat session by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.queryRow(ctx, `
		SELECT id, user_id, mood, tool_used, duration_seconds, completed, created_at
		FROM sessions WHERE id = ?`, sessionID)

	var sess domain.Session
	var mood, tool sql.NullString
	var createdAt int64
	err := row.Scan(&sess.ID, &sess.UserID, &mood, &tool, &sess.DurationSeconds, &sess.Completed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.Mood = domain.Mood(mood.String)
	sess.ToolUsed = domain.Tool(tool.String)
	sess.CreatedAt = fromMillis(createdAt)
	return &sess, nil
}

// CompleteSession records the exercise used on a session.
func (s *SQLStore) CompleteSession(ctx context.Context, sessionID string, tool domain.Tool, duration time.Duration) error {
	result, err := s.exec(ctx,
		`UPDATE sessions SET tool_used = ?, duration_seconds = ?, completed = ? WHERE id = ?`,
		string(tool), int(duration.Seconds()), true, sessionID,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("CompleteSession affected 0 rows", "session_id", sessionID)
		return ErrNotFound
	}
	return nil
}

// InsertMessage persists a chat turn.
func (s *SQLStore) InsertMessage(ctx context.Context, msg *domain.ChatMessage) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal message metadata: %w", err)
		}
		metadata = string(raw)
	}

	_, err := s.exec(ctx, `
		INSERT INTO messages (id, session_id, user_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, string(msg.Role), msg.Content, metadata, toMillis(msg.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return msg.ID, nil
}

// ListMessages returns the most recent messages of a session, oldest first.
func (s *SQLStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, user_id, role, content, metadata, created_at FROM (
			SELECT id, session_id, user_id, role, content, metadata, created_at
			FROM messages WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) recent
		ORDER BY created_at ASC, id ASC`), sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var role string
		var metadata sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &role, &msg.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.MessageRole(role)
		msg.CreatedAt = fromMillis(createdAt)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				slog.Warn("discarding malformed message metadata", "message_id", msg.ID, "error", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// InsertAILog records one completion exchange.
func (s *SQLStore) InsertAILog(ctx context.Context, entry *domain.AILog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO ai_logs (id, session_id, user_id, input, output, tool_triggered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullString(entry.SessionID), entry.UserID, entry.Input, entry.Output,
		nullString(string(entry.ToolTriggered)), toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ai log: %w", err)
	}
	return nil
}

// RevokeToken records a signed-out token.
func (s *SQLStore) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := s.exec(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at) VALUES (?, ?) ON CONFLICT(token_id) DO NOTHING`,
		tokenID, toMillis(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a token was signed out.
func (s *SQLStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return true, nil
}

// PurgeRevokedTokens removes revocations whose tokens have expired anyway.
func (s *SQLStore) PurgeRevokedTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return result.RowsAffected()
}
