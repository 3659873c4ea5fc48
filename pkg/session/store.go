// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teradata-labs/memoir/pkg/types"
)

// Store archives sessions, chat messages, and feedback to SQLite. The
// files and banks under the logs directory are the working state; the
// store is the durable record a server or analysis job reads afterwards.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the archive at dbPath and ensures the
// schema exists.
func OpenStore(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session store dir: %w", err)
	}
	db, err := sql.Open("sqlite",
		fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// One writer at a time keeps SQLITE_BUSY out of the archive path.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session store schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_number INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER DEFAULT 0,
		completed INTEGER DEFAULT 0,
		timed_out INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		message_id TEXT,
		feedback_type TEXT NOT NULL,
		content TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateSession records the start of a session. The row id must be unique
// per user and session number; the engine uses "<user>_<number>".
func (s *Store) CreateSession(ctx context.Context, id, userID string, number int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, session_number, created_at) VALUES (?, ?, ?, ?)`,
		id, userID, number, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end and final disposition.
func (s *Store) EndSession(ctx context.Context, id string, completed, timedOut bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, completed = ?, timed_out = ? WHERE id = ?`,
		time.Now().Unix(), boolToInt(completed), boolToInt(timedOut), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// SaveMessage archives one chat message.
func (s *Store) SaveMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, type, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, msg.Role, string(msg.Type), msg.Content, msg.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// SaveFeedback archives one feedback message (skip or like) against the
// chat message it reacts to. target may be nil when feedback arrives
// before any interviewer message.
func (s *Store) SaveFeedback(ctx context.Context, sessionID string, target, feedback *types.Message) error {
	var targetID sql.NullString
	if target != nil {
		targetID = sql.NullString{String: target.ID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (session_id, message_id, feedback_type, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, targetID, string(feedback.Type), feedback.Content, feedback.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// Messages returns a session's archived chat messages in insertion order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, type, content, created_at FROM messages WHERE session_id = ? ORDER BY rowid ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*types.Message
	for rows.Next() {
		var (
			msg       types.Message
			typ       string
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &typ, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Type = types.MessageType(typ)
		msg.Timestamp = time.Unix(createdAt, 0)
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
