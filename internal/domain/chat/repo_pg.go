package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, patient_id, doctor_id, created_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*ChatSession, error) {
	var s ChatSession
	err := row.Scan(&s.ID, &s.PatientID, &s.DoctorID, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

// FindOrCreate relies on the unique index on (patient_id, doctor_id):
// ON CONFLICT DO NOTHING makes the insert a no-op when another writer won
// the race, and the follow-up select picks the earliest-created row so every
// caller converges on the same session.
func (r *sessionRepoPG) FindOrCreate(ctx context.Context, patientID, doctorID uuid.UUID) (*ChatSession, error) {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chat_session (id, patient_id, doctor_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id, doctor_id) DO NOTHING`,
		uuid.New(), patientID, doctorID)
	if err != nil {
		return nil, err
	}
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `
		SELECT `+sessionCols+` FROM chat_session
		WHERE patient_id = $1 AND doctor_id = $2
		ORDER BY created_at ASC LIMIT 1`,
		patientID, doctorID))
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ChatSession, error) {
	s, err := r.scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM chat_session WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFoundf("chat session %s not found", id)
	}
	return s, err
}

func (r *sessionRepoPG) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChatSession, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_session WHERE patient_id = $1 OR doctor_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM chat_session
		WHERE patient_id = $1 OR doctor_id = $1
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ChatSession
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *sessionRepoPG) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE chat_session SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const messageCols = `id, session_id, sender_id, content, read, created_at`

func (r *messageRepoPG) Create(ctx context.Context, m *ChatMessage) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat_message (id, session_id, sender_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, read`,
		m.ID, m.SessionID, m.SenderID, m.Content).Scan(&m.CreatedAt, &m.Read)
}

func (r *messageRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*ChatMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+messageCols+` FROM chat_message
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Content, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

// MarkRead flags in one statement so the affected set is the statement's
// snapshot: messages appended concurrently stay unread.
func (r *messageRepoPG) MarkRead(ctx context.Context, sessionID, readerID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE chat_message SET read = TRUE
		WHERE session_id = $1 AND sender_id <> $2 AND read = FALSE`,
		sessionID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *messageRepoPG) CountUnread(ctx context.Context, sessionID, readerID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_message
		WHERE session_id = $1 AND sender_id <> $2 AND read = FALSE`,
		sessionID, readerID).Scan(&n)
	return n, err
}
