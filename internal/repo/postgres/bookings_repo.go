package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/repo"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// bookingsLockKey serializes every mutation across all service instances sharing the database.
const bookingsLockKey int64 = 0x6276626b // "gvbk"

const Schema = `
CREATE TABLE IF NOT EXISTS bookings (
  seq            BIGSERIAL PRIMARY KEY,
  id             TEXT NOT NULL UNIQUE,
  customer_name  TEXT NOT NULL,
  customer_email TEXT NOT NULL DEFAULT '',
  service_id     TEXT NULL,
  date           TEXT NOT NULL,
  start_time     TEXT NOT NULL,
  end_time       TEXT NOT NULL,
  status         TEXT NOT NULL,
  type           TEXT NOT NULL,
  price          DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS bookings_date_active_idx ON bookings (date) WHERE status = 'active';
`

type BookingRepoImpl struct {
	pool   *pgxpool.Pool
	policy repo.OverlapPolicy
}

func NewBookingRepo(pool *pgxpool.Pool, policy repo.OverlapPolicy) *BookingRepoImpl {
	return &BookingRepoImpl{pool: pool, policy: policy}
}

const bookingCols = `id, customer_name, customer_email, service_id,
date, start_time, end_time, status, type, price, created_at`

// Migrate creates the table when it does not exist yet.
func (r *BookingRepoImpl) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate bookings: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.CustomerName, &b.CustomerEmail, &b.ServiceID,
		&b.Date, &b.StartTime, &b.EndTime, &b.Status, &b.Type, &b.Price, &b.CreatedAt,
	)
	return b, err
}

func (r *BookingRepoImpl) Append(ctx context.Context, b domain.Booking) (domain.Booking, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		out     domain.Booking
		created bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, bookingsLockKey); err != nil {
			return fmt.Errorf("acquire bookings lock: %w", err)
		}

		existing, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, b.ID))
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if r.policy == repo.PolicyReject {
			sameDay, err := r.activeOn(ctx, tx, b.Date)
			if err != nil {
				return err
			}
			if err := r.policy.Admit(sameDay, b); err != nil {
				return err
			}
		}

		const q = `INSERT INTO bookings (
    id, customer_name, customer_email, service_id,
    date, start_time, end_time, status, type, price
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
  RETURNING ` + bookingCols
		out, err = scanBooking(tx.QueryRow(ctx, q,
			b.ID, b.CustomerName, b.CustomerEmail, b.ServiceID,
			b.Date, b.StartTime, b.EndTime, b.Status, b.Type, b.Price,
		))
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Booking{}, false, err
	}
	return out, created, nil
}

func (r *BookingRepoImpl) activeOn(ctx context.Context, tx pgx.Tx, date string) ([]domain.Booking, error) {
	rows, err := tx.Query(ctx, `SELECT `+bookingCols+` FROM bookings WHERE date=$1 AND status='active' ORDER BY seq`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Booking, error) {
		return scanBooking(row)
	})
}

// GetAll fails open like the file store: a database outage yields an empty log, logged.
func (r *BookingRepoImpl) GetAll(ctx context.Context) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+bookingCols+` FROM bookings ORDER BY seq`)
	if err != nil {
		logger.WarnContext(ctx, "booking store unreadable, serving empty log", "error", err)
		return []domain.Booking{}, nil
	}
	bs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Booking, error) {
		return scanBooking(row)
	})
	if err != nil {
		logger.WarnContext(ctx, "booking store scan failed, serving empty log", "error", err)
		return []domain.Booking{}, nil
	}
	return bs, nil
}

func (r *BookingRepoImpl) Cancel(ctx context.Context, id string) (domain.Booking, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		out     domain.Booking
		changed bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, bookingsLockKey); err != nil {
			return fmt.Errorf("acquire bookings lock: %w", err)
		}
		const q = `UPDATE bookings SET status='cancelled' WHERE id=$1 AND status <> 'cancelled' RETURNING ` + bookingCols
		b, err := scanBooking(tx.QueryRow(ctx, q, id))
		if err == nil {
			out, changed = b, true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		b, err = scanBooking(tx.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		out = b
		return err
	})
	if err != nil {
		return domain.Booking{}, false, err
	}
	return out, changed, nil
}

var _ repo.BookingStore = (*BookingRepoImpl)(nil)
