package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/rpatel/newsbrief/internal/digest"
)

// subscriberRow maps the subscribers table; categories are stored as a
// JSON array in a TEXT column.
type subscriberRow struct {
	ID         string    `db:"id"`
	Email      string    `db:"email"`
	Categories string    `db:"categories"`
	DeliverAt  string    `db:"deliver_at"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r subscriberRow) toDomain() (digest.Subscriber, error) {
	var cats []digest.Category
	if err := json.Unmarshal([]byte(r.Categories), &cats); err != nil {
		return digest.Subscriber{}, fmt.Errorf("error decoding categories for %s: %w", r.ID, err)
	}

	return digest.Subscriber{
		ID:         r.ID,
		Email:      r.Email,
		Categories: cats,
		DeliverAt:  r.DeliverAt,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
	}, nil
}

// UpsertSubscriber creates a subscriber, or updates and reactivates
// the existing row for the email. Rows are never deleted so delivery
// history keeps its linkage.
func (r Repo) UpsertSubscriber(ctx context.Context, email string, categories []digest.Category, deliverAt string) (digest.Subscriber, error) {
	catsJSON, err := json.Marshal(categories)
	if err != nil {
		return digest.Subscriber{}, fmt.Errorf("error encoding categories: %w", err)
	}

	const sel = `SELECT id FROM subscribers WHERE email = ?;`
	var id string
	err = r.db.GetContext(ctx, &id, sel, email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString() + subscriberNamespace
		const ins = `INSERT INTO subscribers (id, email, categories, deliver_at, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?);`
		if _, err := r.db.ExecContext(ctx, ins, id, email, string(catsJSON), deliverAt, time.Now().UTC()); err != nil {
			return digest.Subscriber{}, fmt.Errorf("error inserting subscriber: %s", err)
		}
	case err != nil:
		return digest.Subscriber{}, fmt.Errorf("error fetching subscriber by email: %s", err)
	default:
		query, args, err := sq.Update("subscribers").
			Set("categories", string(catsJSON)).
			Set("deliver_at", deliverAt).
			Set("active", true).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return digest.Subscriber{}, fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return digest.Subscriber{}, fmt.Errorf("error updating subscriber: %s", err)
		}
	}

	return r.Subscriber(ctx, id)
}

func (r Repo) Subscriber(ctx context.Context, id string) (digest.Subscriber, error) {
	const q = `SELECT * FROM subscribers WHERE id = ?;`

	var row subscriberRow
	err := r.db.GetContext(ctx, &row, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return digest.Subscriber{}, digest.ErrNotFound
	}
	if err != nil {
		return digest.Subscriber{}, fmt.Errorf("error fetching subscriber: %s", err)
	}

	return row.toDomain()
}

// ActiveSubscribers returns subscribers eligible for scheduled
// delivery.
func (r Repo) ActiveSubscribers(ctx context.Context) ([]digest.Subscriber, error) {
	const q = `SELECT * FROM subscribers WHERE active = 1 ORDER BY created_at;`
	return r.selectSubscribers(ctx, q)
}

// AllSubscribers returns every subscriber, active or not.
func (r Repo) AllSubscribers(ctx context.Context) ([]digest.Subscriber, error) {
	const q = `SELECT * FROM subscribers ORDER BY created_at;`
	return r.selectSubscribers(ctx, q)
}

func (r Repo) selectSubscribers(ctx context.Context, q string) ([]digest.Subscriber, error) {
	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("error selecting subscribers: %s", err)
	}

	subs := make([]digest.Subscriber, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// DeactivateSubscriber flips the active flag; the row stays.
func (r Repo) DeactivateSubscriber(ctx context.Context, id string) error {
	const q = `UPDATE subscribers SET active = 0 WHERE id = ?;`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("error deactivating subscriber: %s", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return digest.ErrNotFound
	}

	return nil
}
