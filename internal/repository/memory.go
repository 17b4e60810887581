package repository

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/sayandebsingha425/event-booking-system/internal/ledger"
	"github.com/sayandebsingha425/event-booking-system/internal/model"
)

// Memory is a map-backed ledger.Store for unit tests and database-less local
// runs. WithTx restores a snapshot on error so callbacks stay all-or-nothing;
// that rollback scheme serialises transactions globally, which is acceptable
// for this store's role but is why it is not the production backend.
type Memory struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	events   map[string]model.Event
	bookings map[string]model.Booking
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:   make(map[string]model.Event),
		bookings: make(map[string]model.Booking),
	}
}

// WithTx runs fn, rolling back every mutation it made if it returns an error.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	savedEvents := maps.Clone(m.events)
	savedBookings := maps.Clone(m.bookings)
	m.mu.RUnlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.events = savedEvents
		m.bookings = savedBookings
		m.mu.Unlock()
		return err
	}
	return nil
}

// InsertEvent stores a new event.
func (m *Memory) InsertEvent(ctx context.Context, event model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
	return nil
}

// GetEvent returns an event or ledger.ErrEventNotFound.
func (m *Memory) GetEvent(ctx context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return model.Event{}, ledger.ErrEventNotFound
	}
	return e, nil
}

// GetEventForUpdate is a plain read: the ledger's per-event mutex already
// provides the exclusivity a row lock would.
func (m *Memory) GetEventForUpdate(ctx context.Context, id string) (model.Event, error) {
	return m.GetEvent(ctx, id)
}

// SetBookedSeats writes the booked-seat count for an event.
func (m *Memory) SetBookedSeats(ctx context.Context, eventID string, booked int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return ledger.ErrEventNotFound
	}
	e.BookedSeats = booked
	m.events[eventID] = e
	return nil
}

// ListEvents returns all events ordered by creation time descending.
func (m *Memory) ListEvents(ctx context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// InsertBooking stores a new booking.
func (m *Memory) InsertBooking(ctx context.Context, booking model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = booking
	return nil
}

// GetBooking returns a booking or ledger.ErrBookingNotFound.
func (m *Memory) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, ledger.ErrBookingNotFound
	}
	return b, nil
}

// DeleteBooking removes a booking.
func (m *Memory) DeleteBooking(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[id]; !ok {
		return ledger.ErrBookingNotFound
	}
	delete(m.bookings, id)
	return nil
}

// ListBookingsByUser returns a user's bookings, oldest first.
func (m *Memory) ListBookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bookings []model.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	return bookings, nil
}
