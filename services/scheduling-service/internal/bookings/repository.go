package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/calbook/libs/db"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/outbox"
)

const bookingColumns = `id::text, seller_id, buyer_id, start_time, end_time, timezone, title, description,
	meet_link, calendar_event_id, status, cancelled_by, cancelled_at, created_at, updated_at`

// Repository is the Postgres Store.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// InTx commits when fn returns nil and rolls back otherwise.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx, outbox: r.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanOne(row, id)
}

// List returns the user's bookings as seller or buyer, latest start first.
func (r *Repository) List(ctx context.Context, userID, role string, limit int) ([]Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	column := "buyer_id"
	if role == "seller" {
		column = "seller_id"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE `+column+` = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Booking, error) {
		return scanBooking(row)
	})
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) Insert(ctx context.Context, b *Booking) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings (id, seller_id, buyer_id, start_time, end_time, timezone, title, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, b.ID, b.SellerID, b.BuyerID, b.StartTime, b.EndTime, b.Timezone, b.Title, b.Description, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsExclusionViolation(err) {
		return ErrConflict
	}
	return err
}

func (t *pgTx) SetCalendarEvent(ctx context.Context, id, eventID, meetLink string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET calendar_event_id = $2, meet_link = $3, updated_at = now()
		WHERE id = $1
	`, id, eventID, meetLink)
	return err
}

func (t *pgTx) GetForUpdate(ctx context.Context, id string) (Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	return scanOne(row, id)
}

func (t *pgTx) Cancel(ctx context.Context, id, cancelledBy string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_by = $2, cancelled_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, id, cancelledBy).Scan(&cancelledAt)
	return cancelledAt, err
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func scanOne(row pgx.Row, id string) (Booking, error) {
	b, err := scanBooking(row)
	if db.IsNotFound(err) {
		return Booking{}, fmt.Errorf("%w: booking %s", availability.ErrNotFound, id)
	}
	return b, err
}

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID,
		&b.SellerID,
		&b.BuyerID,
		&b.StartTime,
		&b.EndTime,
		&b.Timezone,
		&b.Title,
		&b.Description,
		&b.MeetLink,
		&b.CalendarEventID,
		&b.Status,
		&b.CancelledBy,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}
