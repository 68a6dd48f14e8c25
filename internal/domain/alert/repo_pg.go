package alert

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

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

func (r *alertRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const alertCols = `id, message_content, sent_at, sent_by_admin_id`

func (r *alertRepoPG) Create(ctx context.Context, a *HealthcareAlert) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO healthcare_alert (id, message_content, sent_by_admin_id)
		VALUES ($1, $2, $3)
		RETURNING sent_at`,
		a.ID, a.MessageContent, a.SentByAdminID).Scan(&a.SentAt)
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*HealthcareAlert, error) {
	var a HealthcareAlert
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+alertCols+` FROM healthcare_alert WHERE id = $1`, id).
		Scan(&a.ID, &a.MessageContent, &a.SentAt, &a.SentByAdminID)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFoundf("alert %s not found", id)
	}
	return &a, err
}

func (r *alertRepoPG) List(ctx context.Context, limit, offset int) ([]*HealthcareAlert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM healthcare_alert`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM healthcare_alert
		ORDER BY sent_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*HealthcareAlert
	for rows.Next() {
		var a HealthcareAlert
		if err := rows.Scan(&a.ID, &a.MessageContent, &a.SentAt, &a.SentByAdminID); err != nil {
			return nil, 0, err
		}
		items = append(items, &a)
	}
	return items, total, rows.Err()
}

// =========== Delivery Repository ===========

type deliveryRepoPG struct{ pool *pgxpool.Pool }

func NewDeliveryRepoPG(pool *pgxpool.Pool) DeliveryRepository {
	return &deliveryRepoPG{pool: pool}
}

func (r *deliveryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const deliveryCols = `id, alert_id, user_id, delivered_at, read_at`

func (r *deliveryRepoPG) Create(ctx context.Context, d *UserAlertDelivery) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO user_alert_delivery (id, alert_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING delivered_at`,
		d.ID, d.AlertID, d.UserID).Scan(&d.DeliveredAt)
}

func (r *deliveryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*UserAlertDelivery, error) {
	var d UserAlertDelivery
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+deliveryCols+` FROM user_alert_delivery WHERE id = $1`, id).
		Scan(&d.ID, &d.AlertID, &d.UserID, &d.DeliveredAt, &d.ReadAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFoundf("alert delivery %s not found", id)
	}
	return &d, err
}

func (r *deliveryRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*UserAlertDelivery, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM user_alert_delivery WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+deliveryCols+` FROM user_alert_delivery
		WHERE user_id = $1
		ORDER BY delivered_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*UserAlertDelivery
	for rows.Next() {
		var d UserAlertDelivery
		if err := rows.Scan(&d.ID, &d.AlertID, &d.UserID, &d.DeliveredAt, &d.ReadAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &d)
	}
	return items, total, rows.Err()
}

// MarkRead only stamps unread rows, so read_at is monotonic: once set it
// never changes.
func (r *deliveryRepoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_alert_delivery SET read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL`,
		id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
