package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "github.com/Aeglx/WeDrawOS-sub009/pkg/database"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/interfaces"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// writeRetryDelay is how long a failed write waits before its single retry.
const writeRetryDelay = 5 * time.Second

// Store implements the interfaces.Store collaborator on SQLite. Reads run
// concurrently off the pool; all writes funnel through a single writer
// goroutine, which is what SQLite wants.
type Store struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents one queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies migrations, and starts the writer.
func NewStore(config *dbconfig.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	validator := dbconfig.NewSchemaValidator(db)
	if err := validator.ValidateTablesExist(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if err := validator.ValidateIndexes(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	store := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all writes in a single goroutine, retrying each
// failed write exactly once after a delay.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %s: %v", writeRetryDelay, err)
				time.Sleep(writeRetryDelay)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			// Drain queued writes so no caller is left waiting.
			for {
				select {
				case op := <-s.writeChannel:
					op.result <- op.operation(s.db)
				default:
					return
				}
			}
		}
	}
}

// executeWrite queues a write and waits for its outcome.
func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// CreateSession persists a new conversation session.
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO chat_sessions (id, customer_id, agent_id, status, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.CustomerID,
			session.AgentID,
			session.Status,
			session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `
		SELECT id, customer_id, agent_id, status, created_at, closed_at
		FROM chat_sessions
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// GetUserSessions returns the open sessions a principal participates in,
// either as the customer or as the assigned agent.
func (s *Store) GetUserSessions(ctx context.Context, principalID string) ([]*types.Session, error) {
	query := `
		SELECT id, customer_id, agent_id, status, created_at, closed_at
		FROM chat_sessions
		WHERE status = 'open' AND (customer_id = ? OR agent_id = ?)
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, principalID, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query principal sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// SendMessage persists a chat message.
func (s *Store) SendMessage(ctx context.Context, message *types.Message) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO chat_messages (id, session_id, sender_id, sender_kind, type, content, is_auto_reply, read, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			message.ID,
			message.SessionID,
			message.SenderID,
			message.SenderKind,
			message.Type,
			message.Content,
			message.IsAutoReply,
			message.Read,
			message.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// GetSessionMessages returns one page of a session's log in chronological
// order. Page 1 is the most recent page; the query walks backwards from the
// end of the log and the rows are reversed before returning.
func (s *Store) GetSessionMessages(ctx context.Context, sessionID string, page, pageSize int) ([]*types.Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	query := `
		SELECT id, session_id, sender_id, sender_kind, type, content, is_auto_reply, read, timestamp
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query session messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var message types.Message
		err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.SenderID,
			&message.SenderKind,
			&message.Type,
			&message.Content,
			&message.IsAutoReply,
			&message.Read,
			&message.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &message)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	// Chronological order for replay.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkMessagesAsRead marks every message in the session not authored by the
// principal as read.
func (s *Store) MarkMessagesAsRead(ctx context.Context, sessionID, principalID string) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE chat_messages
			SET read = 1
			WHERE session_id = ? AND sender_id != ? AND read = 0
		`
		_, err := db.ExecContext(ctx, query, sessionID, principalID)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		return nil
	})
}

// CheckSessionAccess reports whether the principal is a participant of the
// session (its customer or its assigned agent).
func (s *Store) CheckSessionAccess(ctx context.Context, principalID, sessionID string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM chat_sessions
		WHERE id = ? AND (customer_id = ? OR agent_id = ?)
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, sessionID, principalID, principalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session access: %w", err)
	}
	return count > 0, nil
}

// CheckAutoReply matches the message content against the enabled auto-reply
// rules. First matching rule wins; nil means no automated reply applies.
func (s *Store) CheckAutoReply(ctx context.Context, message *types.Message) (*types.AutoReply, error) {
	query := `
		SELECT reply
		FROM auto_reply_rules
		WHERE enabled = 1 AND instr(lower(?), lower(keyword)) > 0
		ORDER BY id
		LIMIT 1
	`

	var reply string
	err := s.db.QueryRowContext(ctx, query, message.Content).Scan(&reply)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check auto-reply rules: %w", err)
	}

	return &types.AutoReply{Content: reply}, nil
}

// AddAutoReplyRule inserts a keyword rule. Not part of the collaborator
// interface; used by seeding and the ops tooling.
func (s *Store) AddAutoReplyRule(ctx context.Context, keyword, reply string) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO auto_reply_rules (keyword, reply, enabled) VALUES (?, ?, 1)",
			keyword, reply,
		)
		if err != nil {
			return fmt.Errorf("failed to insert auto-reply rule: %w", err)
		}
		return nil
	})
}

// CloseSession marks a session closed.
func (s *Store) CloseSession(ctx context.Context, sessionID string) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"UPDATE chat_sessions SET status = 'closed', closed_at = ? WHERE id = ?",
			time.Now(), sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
		return nil
	})
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.Session, error) {
	var session types.Session
	var agentID sql.NullString
	var closedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.CustomerID,
		&agentID,
		&session.Status,
		&session.CreatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if agentID.Valid {
		session.AgentID = &agentID.String
	}
	if closedAt.Valid {
		session.ClosedAt = &closedAt.Time
	}

	return &session, nil
}
