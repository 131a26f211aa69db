package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Session is one run of a bridge.
type Session struct {
	ID        string
	Title     string
	StartedAt time.Time
}

// Annotation is one row of the annotation log.
type Annotation struct {
	SessionID  string
	Seq        int64
	Kind       string
	EventType  string
	InstanceID int
	Contents   string
}

// annotationHeader is the part of an annotation body the log indexes.
type annotationHeader struct {
	Type       string `json:"type"`
	InstanceID int    `json:"instanceId"`
}

// StartSession creates a session with a time-ordered UUIDv7 id.
func (s *Store) StartSession(ctx context.Context, title string, now time.Time) (*AnnotationLog, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, started_at)
		VALUES (?, ?, ?)
	`, id.String(), title, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &AnnotationLog{store: s, session: id.String()}, nil
}

// AnnotationLog appends annotations to one session. It satisfies the
// bridge's annotation sink interface.
//
// Thread-safety: Record is safe for concurrent use; seq is assigned under
// a mutex so the log order matches the call order.
type AnnotationLog struct {
	store   *Store
	session string

	mu  sync.Mutex
	seq int64
}

// SessionID returns the session the log writes to.
func (l *AnnotationLog) SessionID() string {
	return l.session
}

// Record appends one annotation. contents must be a JSON object; its type
// and instanceId members are indexed.
func (l *AnnotationLog) Record(kind, contents string) error {
	return l.RecordContext(context.Background(), kind, contents)
}

// RecordContext is Record with a context.
func (l *AnnotationLog) RecordContext(ctx context.Context, kind, contents string) error {
	var hdr annotationHeader
	if err := json.Unmarshal([]byte(contents), &hdr); err != nil {
		return fmt.Errorf("record annotation: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.seq + 1
	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO annotations
		(session_id, seq, kind, event_type, instance_id, contents)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.session, seq, kind, hdr.Type, hdr.InstanceID, contents)
	if err != nil {
		return fmt.Errorf("record annotation: %w", err)
	}
	l.seq = seq
	return nil
}

// Sessions returns every session in the order they were started.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, started_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var started int64
		if err := rows.Scan(&sess.ID, &sess.Title, &started); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt = time.UnixMilli(started)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadAnnotations returns a session's annotations in seq order.
// Returns an empty slice (not nil) for an unknown session.
func (s *Store) ReadAnnotations(ctx context.Context, sessionID string) ([]Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, event_type, instance_id, contents
		FROM annotations
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	return scanAnnotations(rows)
}

// ReadInstance returns every annotation of one instance across sessions,
// oldest session first.
func (s *Store) ReadInstance(ctx context.Context, instanceID int) ([]Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.session_id, a.seq, a.kind, a.event_type, a.instance_id, a.contents
		FROM annotations a
		JOIN sessions s ON s.id = a.session_id
		WHERE a.instance_id = ?
		ORDER BY s.started_at ASC, a.session_id COLLATE BINARY ASC, a.seq ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query instance annotations: %w", err)
	}
	return scanAnnotations(rows)
}

func scanAnnotations(rows *sql.Rows) ([]Annotation, error) {
	defer rows.Close()

	out := []Annotation{}
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.SessionID, &a.Seq, &a.Kind, &a.EventType, &a.InstanceID, &a.Contents); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return out, nil
}

// MaxInstanceID returns the largest instance id ever logged, 0 for an
// empty log. A bridge resuming on the same database starts its allocator
// after it so ids are not reused.
func (s *Store) MaxInstanceID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(id) FROM (
			SELECT MAX(instance_id) AS id FROM annotations
			UNION ALL
			SELECT MAX(instance_id) AS id FROM last_observations
		)
	`).Scan(&max)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("max instance id: %w", err)
	}
	return max.Int64, nil
}
