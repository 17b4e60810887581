// Package repository implements the ledger's durable store. The primary
// backend is PostgreSQL via pgx (no ORM); an in-memory store backs unit
// tests and database-less local runs.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sayandebsingha425/event-booking-system/internal/ledger"
	"github.com/sayandebsingha425/event-booking-system/internal/model"
)

// Postgres is a ledger.Store backed by a pgx connection pool.
//
// The ledger already serialises mutations per event in-process;
// GetEventForUpdate additionally takes a row-level lock so the capacity
// invariant also holds when several processes share the database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// WithTx runs fn inside a transaction carried via the context. The
// transaction commits only if fn returns nil; any error rolls everything
// back, so the callback is all-or-nothing.
func (s *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

// InsertEvent inserts a new event row.
func (s *Postgres) InsertEvent(ctx context.Context, event model.Event) error {
	_, err := s.exec(ctx,
		`INSERT INTO events (id, name, total_seats, booked_seats, start_time, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Name, event.TotalSeats, event.BookedSeats,
		event.StartTime, event.EndTime, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or ledger.ErrEventNotFound.
func (s *Postgres) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return s.getEvent(ctx, id, false)
}

// GetEventForUpdate returns the event with its row locked for the duration
// of the surrounding transaction. Any concurrent transaction attempting the
// same lock blocks until this one commits or rolls back.
func (s *Postgres) GetEventForUpdate(ctx context.Context, id string) (model.Event, error) {
	return s.getEvent(ctx, id, true)
}

func (s *Postgres) getEvent(ctx context.Context, id string, forUpdate bool) (model.Event, error) {
	query := `SELECT id, name, total_seats, booked_seats, start_time, end_time, created_at
		 FROM events WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var e model.Event
	err := s.queryRow(ctx, query, id).
		Scan(&e.ID, &e.Name, &e.TotalSeats, &e.BookedSeats, &e.StartTime, &e.EndTime, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return model.Event{}, ledger.ErrEventNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// SetBookedSeats writes the authoritative booked-seat count for an event.
func (s *Postgres) SetBookedSeats(ctx context.Context, eventID string, booked int) error {
	tag, err := s.exec(ctx,
		`UPDATE events SET booked_seats = $2 WHERE id = $1`,
		eventID, booked,
	)
	if err != nil {
		return fmt.Errorf("update booked seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *Postgres) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.query(ctx,
		`SELECT id, name, total_seats, booked_seats, start_time, end_time, created_at
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.TotalSeats, &e.BookedSeats, &e.StartTime, &e.EndTime, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBooking inserts a new booking row.
func (s *Postgres) InsertBooking(ctx context.Context, booking model.Booking) error {
	_, err := s.exec(ctx,
		`INSERT INTO bookings (id, event_id, user_id, seats_booked, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		booking.ID, booking.EventID, booking.UserID, booking.SeatsBooked, booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetBooking returns a single booking or ledger.ErrBookingNotFound.
func (s *Postgres) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := s.queryRow(ctx,
		`SELECT id, event_id, user_id, seats_booked, created_at
		 FROM bookings WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.EventID, &b.UserID, &b.SeatsBooked, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return model.Booking{}, ledger.ErrBookingNotFound
		}
		return model.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// DeleteBooking removes a booking row.
func (s *Postgres) DeleteBooking(ctx context.Context, id string) error {
	tag, err := s.exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrBookingNotFound
	}
	return nil
}

// ListBookingsByUser returns all bookings made by a user, oldest first.
func (s *Postgres) ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	rows, err := s.query(ctx,
		`SELECT id, event_id, user_id, seats_booked, created_at
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.EventID, &b.UserID, &b.SeatsBooked, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *Postgres) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Postgres) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Postgres) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}
