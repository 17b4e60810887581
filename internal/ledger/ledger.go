// Package ledger owns the authoritative seat-count state for events and
// arbitrates all mutations so that concurrent callers observe a consistent,
// never-overbooked outcome.
//
// Concurrency strategy: pessimistic. Every mutating operation runs inside an
// exclusive section scoped to the event id (see keymutex), so the
// read-check-write sequence on one event is indivisible while independent
// events proceed in parallel. The store additionally applies its own row
// lock inside the transaction, which extends the guarantee across processes
// sharing the same database.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sayandebsingha425/event-booking-system/internal/clock"
	"github.com/sayandebsingha425/event-booking-system/internal/keymutex"
	"github.com/sayandebsingha425/event-booking-system/internal/model"
)

// maxTotalSeats caps event capacity to keep fat-finger mistakes out of the DB.
const maxTotalSeats = 100_000

// availableCacheKey is the cache slot for the available-events listing.
const availableCacheKey = "events:available"

// Store is the durable backend the ledger mutates. Implementations must make
// the callback passed to WithTx all-or-nothing: if it returns an error, none
// of the writes made inside it may remain visible.
//
// GetEventForUpdate is expected to take whatever exclusive read the backend
// offers (a row lock for SQL stores); for purely in-memory stores a plain
// read is sufficient because the ledger already serialises per event.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertEvent(ctx context.Context, event model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	GetEventForUpdate(ctx context.Context, id string) (model.Event, error)
	SetBookedSeats(ctx context.Context, eventID string, booked int) error
	ListEvents(ctx context.Context) ([]model.Event, error)

	InsertBooking(ctx context.Context, booking model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error)
}

// ListCache is an optional snapshot cache for the available-events listing.
// The listing is allowed to be eventually consistent, so cache failures
// degrade to the store and never fail a request.
type ListCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Ledger serialises seat-count mutations per event.
type Ledger struct {
	store Store
	locks *keymutex.KeyedMutex
	clock clock.Clock
	cache ListCache
	log   zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the system clock (used by tests).
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithListCache enables caching of the available-events listing.
func WithListCache(c ListCache) Option {
	return func(l *Ledger) { l.cache = c }
}

// New constructs a Ledger over the given store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		locks: keymutex.New(),
		clock: clock.NewSystem(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateEvent validates the request and persists a new event with zero
// booked seats. New rows are independent, so no event lock is involved.
func (l *Ledger) CreateEvent(ctx context.Context, req model.CreateEventRequest) (model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return model.Event{}, fmt.Errorf("%w: event name is required", ErrInvalidArgument)
	}
	if req.TotalSeats < 1 {
		return model.Event{}, fmt.Errorf("%w: total seats must be at least 1", ErrInvalidArgument)
	}
	if req.TotalSeats > maxTotalSeats {
		return model.Event{}, fmt.Errorf("%w: total seats cannot exceed %d", ErrInvalidArgument, maxTotalSeats)
	}
	now := l.clock.Now()
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return model.Event{}, fmt.Errorf("%w: start and end times are required", ErrInvalidArgument)
	}
	if !req.StartTime.After(now) {
		return model.Event{}, fmt.Errorf("%w: start time must be in the future", ErrInvalidArgument)
	}
	if !req.EndTime.After(req.StartTime) {
		return model.Event{}, fmt.Errorf("%w: end time must be after start time", ErrInvalidArgument)
	}

	event := model.Event{
		ID:          uuid.New().String(),
		Name:        req.Name,
		TotalSeats:  req.TotalSeats,
		BookedSeats: 0,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedAt:   now,
	}
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		return l.store.InsertEvent(ctx, event)
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}

	l.invalidateListing(ctx)
	return event, nil
}

// Reserve books seats on an event. The capacity check and the seat-count
// update are indivisible with respect to any other Reserve/Release/Adjust on
// the same event: either the booking row exists and BookedSeats reflects it,
// or nothing changed.
func (l *Ledger) Reserve(ctx context.Context, eventID, userID string, seats int) (model.Booking, error) {
	if seats < 1 {
		return model.Booking{}, fmt.Errorf("%w: must book at least 1 seat", ErrInvalidArgument)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Booking{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if eventID == "" {
		return model.Booking{}, fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}

	unlock, err := l.locks.Lock(ctx, eventID)
	if err != nil {
		// Acquisition failed or caller gave up waiting: nothing was applied.
		return model.Booking{}, fmt.Errorf("acquire event lock: %w", err)
	}
	defer unlock()

	var booking model.Booking
	err = l.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := l.store.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		if event.Remaining() < seats {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientCapacity, seats, event.Remaining())
		}

		if err := l.store.SetBookedSeats(ctx, eventID, event.BookedSeats+seats); err != nil {
			return fmt.Errorf("update booked seats: %w", err)
		}

		booking = model.Booking{
			ID:          uuid.New().String(),
			EventID:     eventID,
			UserID:      userID,
			SeatsBooked: seats,
			CreatedAt:   l.clock.Now(),
		}
		if err := l.store.InsertBooking(ctx, booking); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	l.invalidateListing(ctx)
	return booking, nil
}

// Release cancels a booking, restoring its seats to the event. Cancellation
// is accepted regardless of the event's end time; refund policy is the
// coordinator's concern, not the ledger's.
func (l *Ledger) Release(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return fmt.Errorf("%w: booking id is required", ErrInvalidArgument)
	}

	// First lookup only learns which event to lock; the booking is re-read
	// under the lock since a concurrent Release may consume it meanwhile.
	booking, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	unlock, err := l.locks.Lock(ctx, booking.EventID)
	if err != nil {
		return fmt.Errorf("acquire event lock: %w", err)
	}
	defer unlock()

	err = l.store.WithTx(ctx, func(ctx context.Context) error {
		booking, err := l.store.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		event, err := l.store.GetEventForUpdate(ctx, booking.EventID)
		if err != nil {
			// Orphaned booking: should not occur, but must surface cleanly.
			return err
		}

		if event.BookedSeats < booking.SeatsBooked {
			l.log.Error().
				Str("event_id", event.ID).
				Str("booking_id", booking.ID).
				Int("booked_seats", event.BookedSeats).
				Int("seats_booked", booking.SeatsBooked).
				Msg("booked seat count below booking size, refusing to decrement")
			return fmt.Errorf("%w: event %s holds %d booked seats, booking %s claims %d",
				ErrConsistencyFault, event.ID, event.BookedSeats, booking.ID, booking.SeatsBooked)
		}

		if err := l.store.SetBookedSeats(ctx, event.ID, event.BookedSeats-booking.SeatsBooked); err != nil {
			return fmt.Errorf("update booked seats: %w", err)
		}
		if err := l.store.DeleteBooking(ctx, bookingID); err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.invalidateListing(ctx)
	return nil
}

// Adjust applies a direct administrative delta to an event's booked seats,
// bounded to [0, TotalSeats]. No booking row is created or deleted.
func (l *Ledger) Adjust(ctx context.Context, eventID string, delta int) error {
	if eventID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}

	unlock, err := l.locks.Lock(ctx, eventID)
	if err != nil {
		return fmt.Errorf("acquire event lock: %w", err)
	}
	defer unlock()

	err = l.store.WithTx(ctx, func(ctx context.Context) error {
		event, err := l.store.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		booked := event.BookedSeats + delta
		if booked > event.TotalSeats {
			return fmt.Errorf("%w: adjustment of %d exceeds capacity (%d booked of %d)",
				ErrInsufficientCapacity, delta, event.BookedSeats, event.TotalSeats)
		}
		if booked < 0 {
			return fmt.Errorf("%w: adjustment of %d would leave %d booked seats",
				ErrInvalidArgument, delta, booked)
		}

		if err := l.store.SetBookedSeats(ctx, eventID, booked); err != nil {
			return fmt.Errorf("update booked seats: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.invalidateListing(ctx)
	return nil
}

// GetEvent returns a single event by id.
func (l *Ledger) GetEvent(ctx context.Context, id string) (model.Event, error) {
	if id == "" {
		return model.Event{}, fmt.Errorf("%w: event id is required", ErrInvalidArgument)
	}
	return l.store.GetEvent(ctx, id)
}

// ListAvailable returns events that still have seats left. The listing is a
// snapshot: each event's numbers were valid at some point in time, but the
// list as a whole is not linearizable with concurrent bookings and may be
// served from a short-lived cache.
func (l *Ledger) ListAvailable(ctx context.Context) ([]model.Event, error) {
	if l.cache != nil {
		var cached []model.Event
		if err := l.cache.Get(ctx, availableCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	events, err := l.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	available := make([]model.Event, 0, len(events))
	for _, e := range events {
		if !e.IsFull() {
			available = append(available, e)
		}
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, availableCacheKey, available); err != nil {
			l.log.Warn().Err(err).Msg("failed to cache event listing")
		}
	}
	return available, nil
}

// UserBookings returns all bookings made by a user.
func (l *Ledger) UserBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return l.store.ListBookingsByUser(ctx, userID)
}

// invalidateListing drops the cached available-events snapshot after a
// committed mutation. Best effort: listing staleness is tolerated.
func (l *Ledger) invalidateListing(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, availableCacheKey); err != nil {
		l.log.Warn().Err(err).Msg("failed to invalidate event listing cache")
	}
}
