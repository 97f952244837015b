package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store wraps the Postgres connection used for strategies, missions and
// board messages.
type Store struct {
	DB *sql.DB
}

// Strategy statuses. UpdateStrategyStatus only moves a strategy out of
// pending, so approvals and rejections stick.
const (
	StrategyStatusPending   = "pending"
	StrategyStatusApproved  = "approved"
	StrategyStatusRejected  = "rejected"
	StrategyStatusExecuting = "executing"
	StrategyStatusCompleted = "completed"
	StrategyStatusFailed    = "failed"
)

// Mission statuses.
const (
	MissionStatusPending    = "pending"
	MissionStatusApproved   = "approved"
	MissionStatusInProgress = "in_progress"
	MissionStatusCompleted  = "completed"
	MissionStatusBlocked    = "blocked"
)

// Board message types.
const (
	MessageTypeTopic       = "topic"
	MessageTypeText        = "text"
	MessageTypePlanSummary = "plan_summary"
	MessageTypeSystem      = "system"
)

// Strategy is a persisted discussion outcome.
type Strategy struct {
	ID        string
	UserID    string
	Topic     string
	Title     string
	TLDR      string
	Summary   string
	AppName   string
	Status    string
	CreatedAt time.Time
}

// Mission is one persisted work item of a strategy. Dependencies, Steps and
// AcceptanceCriteria are stored as JSON documents.
type Mission struct {
	ID                 string
	StrategyID         string
	MissionID          string
	Title              string
	Description        string
	Owner              string
	Dependencies       []byte
	Steps              []byte
	AcceptanceCriteria []byte
	Status             string
	Position           int
	CreatedAt          time.Time
}

// BoardMessage is one transcript entry of a board discussion.
type BoardMessage struct {
	ID         int64
	StrategyID string
	Actor      string
	Message    string
	Type       string
	Timestamp  time.Time
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, username, hash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (username, password_hash) VALUES ($1,$2) RETURNING id`, username, hash).Scan(&id)
	return id, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE username=$1`, username).Scan(&id, &hash)
	return
}

// Board message operations

// SaveBoardMessage appends one transcript entry. A fresh message id is
// returned so callers can reference it in notifications.
func (s *Store) SaveBoardMessage(ctx context.Context, strategyID, actor, message, msgType string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO board_messages (strategy_id, actor, message, type)
VALUES ($1,$2,$3,$4) RETURNING msg_id`, strategyID, actor, message, msgType).Scan(&id)
	return id, err
}

// ListBoardMessages returns the transcript of one strategy in insertion
// order. Ties on timestamp are broken by msg_id so replays are stable.
func (s *Store) ListBoardMessages(ctx context.Context, strategyID string) ([]BoardMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT msg_id, strategy_id, actor, message, type, created_at
FROM board_messages WHERE strategy_id=$1
ORDER BY created_at ASC, msg_id ASC`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BoardMessage
	for rows.Next() {
		var m BoardMessage
		if err := rows.Scan(&m.ID, &m.StrategyID, &m.Actor, &m.Message, &m.Type, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRecentMessages returns the newest messages across all strategies,
// newest first.
func (s *Store) ListRecentMessages(ctx context.Context, limit int) ([]BoardMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT msg_id, strategy_id, actor, message, type, created_at
FROM board_messages
ORDER BY created_at DESC, msg_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BoardMessage
	for rows.Next() {
		var m BoardMessage
		if err := rows.Scan(&m.ID, &m.StrategyID, &m.Actor, &m.Message, &m.Type, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestMessageByActor returns the most recent message a given actor posted
// under a strategy, or sql.ErrNoRows when the actor never spoke.
func (s *Store) LatestMessageByActor(ctx context.Context, strategyID, actor string) (BoardMessage, error) {
	var m BoardMessage
	err := s.DB.QueryRowContext(ctx, `
SELECT msg_id, strategy_id, actor, message, type, created_at
FROM board_messages WHERE strategy_id=$1 AND actor=$2
ORDER BY created_at DESC, msg_id DESC LIMIT 1`, strategyID, actor).
		Scan(&m.ID, &m.StrategyID, &m.Actor, &m.Message, &m.Type, &m.Timestamp)
	return m, err
}

// Strategy operations

// SaveStrategyPlan stores the strategy row and its missions in one
// transaction so a half-written plan never becomes visible.
func (s *Store) SaveStrategyPlan(ctx context.Context, st Strategy, missions []Mission) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO strategies (id, user_id, topic, title, tldr, summary, app_name, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  title=EXCLUDED.title, tldr=EXCLUDED.tldr, summary=EXCLUDED.summary, app_name=EXCLUDED.app_name`,
		st.ID, nullable(st.UserID), st.Topic, st.Title, st.TLDR, st.Summary, st.AppName, StrategyStatusPending)
	if err != nil {
		return fmt.Errorf("insert strategy: %w", err)
	}
	for i, m := range missions {
		deps := m.Dependencies
		if len(deps) == 0 {
			deps = []byte("[]")
		}
		steps := m.Steps
		if len(steps) == 0 {
			steps = []byte("[]")
		}
		criteria := m.AcceptanceCriteria
		if len(criteria) == 0 {
			criteria = []byte("[]")
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO missions (strategy_id, mission_id, title, description, owner, dependencies, steps, acceptance_criteria, status, position)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			st.ID, m.MissionID, m.Title, m.Description, m.Owner, deps, steps, criteria, MissionStatusPending, i)
		if err != nil {
			return fmt.Errorf("insert mission %s: %w", m.MissionID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetStrategy(ctx context.Context, id string) (Strategy, error) {
	var st Strategy
	var userID sql.NullString
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, topic, title, tldr, summary, app_name, status, created_at
FROM strategies WHERE id=$1`, id).
		Scan(&st.ID, &userID, &st.Topic, &st.Title, &st.TLDR, &st.Summary, &st.AppName, &st.Status, &st.CreatedAt)
	if userID.Valid {
		st.UserID = userID.String
	}
	return st, err
}

func (s *Store) ListStrategies(ctx context.Context, userID string) ([]Strategy, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, topic, title, tldr, summary, app_name, status, created_at
FROM strategies WHERE user_id IS NULL OR user_id::text=$1
ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Strategy
	for rows.Next() {
		var st Strategy
		var uid sql.NullString
		if err := rows.Scan(&st.ID, &uid, &st.Topic, &st.Title, &st.TLDR, &st.Summary, &st.AppName, &st.Status, &st.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			st.UserID = uid.String
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateStrategyStatus moves a pending strategy into a decided status. It
// reports whether a row actually changed, so a second approval or a
// rejection after approval is a no-op.
func (s *Store) UpdateStrategyStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE strategies SET status=$2 WHERE id=$1 AND status=$3`, id, status, StrategyStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetStrategyStatus overwrites the status unconditionally. The executor uses
// it to track executing/completed/failed transitions.
func (s *Store) SetStrategyStatus(ctx context.Context, id, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE strategies SET status=$2 WHERE id=$1`, id, status)
	return err
}

// Mission operations

// ListMissions returns the missions of a strategy in plan order.
func (s *Store) ListMissions(ctx context.Context, strategyID string) ([]Mission, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, strategy_id, mission_id, title, description, owner, dependencies, steps, acceptance_criteria, status, position, created_at
FROM missions WHERE strategy_id=$1 ORDER BY position ASC`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mission
	for rows.Next() {
		var m Mission
		if err := rows.Scan(&m.ID, &m.StrategyID, &m.MissionID, &m.Title, &m.Description, &m.Owner,
			&m.Dependencies, &m.Steps, &m.AcceptanceCriteria, &m.Status, &m.Position, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMissionStatus(ctx context.Context, id, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE missions SET status=$2 WHERE id=$1`, id, status)
	return err
}

// MissionsByStatus counts missions of a strategy in any of the given
// statuses.
func (s *Store) MissionsByStatus(ctx context.Context, strategyID string, statuses []string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM missions WHERE strategy_id=$1 AND status = ANY($2)`, strategyID, pq.Array(statuses)).Scan(&n)
	return n, err
}

// DependencyList decodes the mission's dependency ids.
func (m Mission) DependencyList() []string {
	var deps []string
	if len(m.Dependencies) > 0 {
		_ = json.Unmarshal(m.Dependencies, &deps)
	}
	return deps
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
