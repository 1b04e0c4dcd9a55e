// Package db is the persistence layer spec.md treats as an external
// collaborator: a row store for settings, custom roles, conversation
// history, execution logs, the decision tree, and the model catalog cache.
// It also implements internal/orchestrator's Logger interface against the
// execution_logs and decision_tree tables.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite store.
type DB struct {
	conn *sql.DB
}

// Open creates a new DB connection and runs all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := bootstrapFromLegacy(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bootstrap legacy schema: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// --- Settings ---

// GetSetting returns the value for a configuration key, or the fallback if not set.
func (d *DB) GetSetting(key, fallback string) (string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a configuration key-value pair.
func (d *DB) SetSetting(key, value string) error {
	_, err := d.conn.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = datetime('now')`,
		key, value, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// --- Custom roles ---

// CustomRole is a user-defined role layered on top of the built-in catalog.
type CustomRole struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Prompt      string
	CreatedAt   string
}

// InsertCustomRole stores a new custom role.
func (d *DB) InsertCustomRole(r *CustomRole) error {
	_, err := d.conn.Exec(
		`INSERT INTO custom_roles (id, name, description, icon, prompt) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.Icon, r.Prompt,
	)
	if err != nil {
		return fmt.Errorf("insert custom role %q: %w", r.ID, err)
	}
	return nil
}

// ListCustomRoles returns all persisted custom roles.
func (d *DB) ListCustomRoles() ([]CustomRole, error) {
	rows, err := d.conn.Query(`SELECT id, name, description, icon, prompt, created_at FROM custom_roles ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list custom roles: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var roles []CustomRole
	for rows.Next() {
		var r CustomRole
		var icon sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &icon, &r.Prompt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom role: %w", err)
		}
		r.Icon = icon.String
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// DeleteCustomRole removes a custom role by ID.
func (d *DB) DeleteCustomRole(id string) error {
	_, err := d.conn.Exec(`DELETE FROM custom_roles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete custom role %q: %w", id, err)
	}
	return nil
}

// --- Conversations ---

// Conversation is one persisted council execution, JSON payload columns
// stored as strings.
type Conversation struct {
	ID          string
	Query       string
	Config      string
	Responses   *string
	FinalAnswer *string
	TotalTokens int
	TotalCost   float64
	CreatedAt   string
}

const conversationColumns = `id, query, config, responses, final_answer, total_tokens, total_cost, created_at`

func scanConversation(scanner interface{ Scan(...any) error }, c *Conversation) error {
	return scanner.Scan(&c.ID, &c.Query, &c.Config, &c.Responses, &c.FinalAnswer, &c.TotalTokens, &c.TotalCost, &c.CreatedAt)
}

// InsertConversation creates a new conversation record.
func (d *DB) InsertConversation(c *Conversation) error {
	_, err := d.conn.Exec(
		`INSERT INTO conversations (id, query, config) VALUES (?, ?, ?)`,
		c.ID, c.Query, c.Config,
	)
	if err != nil {
		return fmt.Errorf("insert conversation %q: %w", c.ID, err)
	}
	return nil
}

// UpdateConversationResult stores the completion summary for a conversation.
func (d *DB) UpdateConversationResult(id, responses, finalAnswer string, totalTokens int, totalCost float64) error {
	_, err := d.conn.Exec(
		`UPDATE conversations SET responses = ?, final_answer = ?, total_tokens = ?, total_cost = ? WHERE id = ?`,
		responses, finalAnswer, totalTokens, totalCost, id,
	)
	if err != nil {
		return fmt.Errorf("update conversation result %q: %w", id, err)
	}
	return nil
}

// GetConversation retrieves a single conversation by ID.
func (d *DB) GetConversation(id string) (*Conversation, error) {
	c := &Conversation{}
	row := d.conn.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	if err := scanConversation(row, c); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get conversation %q: %w", id, err)
	}
	return c, nil
}

// ListConversations returns conversations ordered by created_at descending, with a limit.
func (d *DB) ListConversations(limit int) ([]Conversation, error) {
	rows, err := d.conn.Query(`SELECT `+conversationColumns+` FROM conversations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// --- Execution logs ---

// ExecutionLog is one append-only row tracing a single node call within a round.
type ExecutionLog struct {
	ID             int64
	ConversationID string
	RoundNumber    int
	Stage          int
	NodeID         string
	NodeName       *string
	Model          *string
	Role           *string
	InputContent   *string
	OutputContent  *string
	TokensUsed     int
	Cost           float64
	DurationMs     int64
	Timestamp      string
}

// InsertExecutionLog stores an execution log row and returns its ID.
func (d *DB) InsertExecutionLog(e *ExecutionLog) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO execution_logs (conversation_id, round_number, stage, node_id, node_name, model, role, input_content, output_content, tokens_used, cost, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ConversationID, e.RoundNumber, e.Stage, e.NodeID, e.NodeName, e.Model, e.Role, e.InputContent, e.OutputContent, e.TokensUsed, e.Cost, e.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("insert execution log: %w", err)
	}
	return res.LastInsertId()
}

// ListExecutionLogs returns execution logs for a conversation, ordered by
// id ascending, optionally filtered to a single round.
func (d *DB) ListExecutionLogs(conversationID string, roundNumber *int) ([]ExecutionLog, error) {
	query := `SELECT id, conversation_id, round_number, stage, node_id, node_name, model, role, input_content, output_content, tokens_used, cost, duration_ms, timestamp
	          FROM execution_logs WHERE conversation_id = ?`
	args := []any{conversationID}
	if roundNumber != nil {
		query += ` AND round_number = ?`
		args = append(args, *roundNumber)
	}
	query += ` ORDER BY id ASC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var logs []ExecutionLog
	for rows.Next() {
		var e ExecutionLog
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.RoundNumber, &e.Stage, &e.NodeID, &e.NodeName, &e.Model, &e.Role, &e.InputContent, &e.OutputContent, &e.TokensUsed, &e.Cost, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// --- Decision tree ---

// DecisionTreeEntry is one append-only row of the persisted decision tree.
type DecisionTreeEntry struct {
	ID             int64
	ConversationID string
	RoundNumber    int
	ParentNodeID   *string
	NodeID         string
	DecisionType   string
	DecisionData   *string
	Timestamp      string
}

// InsertDecisionTreeEntry stores a decision tree row and returns its ID.
func (d *DB) InsertDecisionTreeEntry(e *DecisionTreeEntry) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO decision_tree (conversation_id, round_number, parent_node_id, node_id, decision_type, decision_data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ConversationID, e.RoundNumber, e.ParentNodeID, e.NodeID, e.DecisionType, e.DecisionData,
	)
	if err != nil {
		return 0, fmt.Errorf("insert decision tree entry: %w", err)
	}
	return res.LastInsertId()
}

// ListDecisionTree returns the full decision tree for a conversation, ordered by id ascending.
func (d *DB) ListDecisionTree(conversationID string) ([]DecisionTreeEntry, error) {
	rows, err := d.conn.Query(
		`SELECT id, conversation_id, round_number, parent_node_id, node_id, decision_type, decision_data, timestamp
		 FROM decision_tree WHERE conversation_id = ? ORDER BY id ASC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decision tree: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []DecisionTreeEntry
	for rows.Next() {
		var e DecisionTreeEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.RoundNumber, &e.ParentNodeID, &e.NodeID, &e.DecisionType, &e.DecisionData, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision tree entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Cached models ---

// CachedModel is one row of the locally cached upstream model catalog.
type CachedModel struct {
	ID            string
	Name          string
	Provider      string
	Tier          string
	ContextLength int
	Pricing       string
	CachedAt      string
}

// ReplaceCachedModels atomically replaces the entire cached model catalog.
func (d *DB) ReplaceCachedModels(models []CachedModel) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin replace cached models: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM cached_models`); err != nil {
		return fmt.Errorf("clear cached models: %w", err)
	}
	for _, m := range models {
		if _, err := tx.Exec(
			`INSERT INTO cached_models (id, name, provider, tier, context_length, pricing) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.Provider, m.Tier, m.ContextLength, m.Pricing,
		); err != nil {
			return fmt.Errorf("insert cached model %q: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// ListCachedModels returns the full cached model catalog.
func (d *DB) ListCachedModels() ([]CachedModel, error) {
	rows, err := d.conn.Query(`SELECT id, name, provider, tier, context_length, pricing, cached_at FROM cached_models ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cached models: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var models []CachedModel
	for rows.Next() {
		var m CachedModel
		var pricing sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.Provider, &m.Tier, &m.ContextLength, &pricing, &m.CachedAt); err != nil {
			return nil, fmt.Errorf("scan cached model: %w", err)
		}
		m.Pricing = pricing.String
		models = append(models, m)
	}
	return models, rows.Err()
}

// CacheAge returns the timestamp of the most recently cached model row, and
// whether any row exists. Callers use this against a TTL (24h per spec) to
// decide whether a catalog refresh is due.
func (d *DB) CacheAge() (time.Time, bool, error) {
	var cachedAt string
	err := d.conn.QueryRow(`SELECT cached_at FROM cached_models ORDER BY cached_at DESC LIMIT 1`).Scan(&cachedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache age: %w", err)
	}
	t, err := time.Parse("2006-01-02 15:04:05", cachedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cache age %q: %w", cachedAt, err)
	}
	return t, true, nil
}

// --- Favourite models ---

// AddFavouriteModel marks a model as favourited.
func (d *DB) AddFavouriteModel(modelID string) error {
	_, err := d.conn.Exec(
		`INSERT INTO favourite_models (model_id) VALUES (?) ON CONFLICT(model_id) DO NOTHING`, modelID,
	)
	if err != nil {
		return fmt.Errorf("add favourite model %q: %w", modelID, err)
	}
	return nil
}

// RemoveFavouriteModel unmarks a model as favourited.
func (d *DB) RemoveFavouriteModel(modelID string) error {
	_, err := d.conn.Exec(`DELETE FROM favourite_models WHERE model_id = ?`, modelID)
	if err != nil {
		return fmt.Errorf("remove favourite model %q: %w", modelID, err)
	}
	return nil
}

// ListFavouriteModels returns all favourited model IDs.
func (d *DB) ListFavouriteModels() ([]string, error) {
	rows, err := d.conn.Query(`SELECT model_id FROM favourite_models ORDER BY added_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list favourite models: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan favourite model: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
