package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/rpatel/newsbrief/internal/digest"
)

// ClaimDelivery inserts the day's pending record for a subscriber. The
// UNIQUE(subscriber_id, day) constraint is the idempotency anchor:
// a second claim for the same day fails with ErrConflict no matter how
// many scheduler ticks race.
func (r Repo) ClaimDelivery(ctx context.Context, subscriberID, day string) (digest.DeliveryRecord, error) {
	now := time.Now().UTC()
	rec := digest.DeliveryRecord{
		ID:           uuid.NewString() + deliveryNamespace,
		SubscriberID: subscriberID,
		Day:          day,
		Status:       digest.DeliveryPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	const q = `INSERT INTO delivery_records (id, subscriber_id, day, status, detail, created_at, updated_at)
	VALUES (:id, :subscriber_id, :day, :status, :detail, :created_at, :updated_at);`
	_, err := r.db.NamedExecContext(ctx, q, rec)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == codeConstraintUnique {
		return digest.DeliveryRecord{}, fmt.Errorf("delivery already recorded for %s on %s: %w", subscriberID, day, digest.ErrConflict)
	}
	if err != nil {
		return digest.DeliveryRecord{}, fmt.Errorf("error inserting delivery record: %s", err)
	}

	return rec, nil
}

// ResolveDelivery moves a record to its terminal status for the day.
func (r Repo) ResolveDelivery(ctx context.Context, id string, status digest.DeliveryStatus, detail string) error {
	query, args, err := sq.Update("delivery_records").
		Set("status", string(status)).
		Set("detail", detail).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating delivery record: %s", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return digest.ErrNotFound
	}

	return nil
}

// PendingDeliveries returns the day's unresolved records, used on
// startup to resume runs interrupted by a shutdown.
func (r Repo) PendingDeliveries(ctx context.Context, day string) ([]digest.DeliveryRecord, error) {
	const q = `SELECT * FROM delivery_records WHERE day = ? AND status = ? ORDER BY created_at;`

	var recs []digest.DeliveryRecord
	if err := r.db.SelectContext(ctx, &recs, q, day, digest.DeliveryPending); err != nil {
		return nil, fmt.Errorf("error selecting pending deliveries: %s", err)
	}

	return recs, nil
}

// DeliveryRecord fetches one record by ID.
func (r Repo) DeliveryRecord(ctx context.Context, id string) (digest.DeliveryRecord, error) {
	const q = `SELECT * FROM delivery_records WHERE id = ?;`

	var rec digest.DeliveryRecord
	err := r.db.GetContext(ctx, &rec, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.DeliveryRecord{}, digest.ErrNotFound
	}
	if err != nil {
		return digest.DeliveryRecord{}, fmt.Errorf("error fetching delivery record: %s", err)
	}

	return rec, nil
}
