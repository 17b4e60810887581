package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sayandebsingha425/event-booking-system/internal/clock"
	"github.com/sayandebsingha425/event-booking-system/internal/ledger"
	"github.com/sayandebsingha425/event-booking-system/internal/model"
	"github.com/sayandebsingha425/event-booking-system/internal/repository"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger(opts ...ledger.Option) (*ledger.Ledger, *repository.Memory) {
	store := repository.NewMemory()
	opts = append([]ledger.Option{ledger.WithClock(clock.NewFixed(testNow))}, opts...)
	return ledger.New(store, opts...), store
}

func createEvent(t *testing.T, l *ledger.Ledger, name string, seats int) model.Event {
	t.Helper()
	event, err := l.CreateEvent(context.Background(), model.CreateEventRequest{
		Name:       name,
		TotalSeats: seats,
		StartTime:  testNow.Add(24 * time.Hour),
		EndTime:    testNow.Add(26 * time.Hour),
	})
	require.NoError(t, err)
	return event
}

func TestCreateEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates event with zero booked seats", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "GopherCon", 500)

		assert.NotEmpty(t, event.ID)
		assert.Equal(t, "GopherCon", event.Name)
		assert.Equal(t, 500, event.TotalSeats)
		assert.Equal(t, 0, event.BookedSeats)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, event.ID, got.ID)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		l, _ := newTestLedger()

		cases := []struct {
			name string
			req  model.CreateEventRequest
		}{
			{"blank name", model.CreateEventRequest{Name: "  ", TotalSeats: 10, StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(2 * time.Hour)}},
			{"zero seats", model.CreateEventRequest{Name: "x", TotalSeats: 0, StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(2 * time.Hour)}},
			{"past start", model.CreateEventRequest{Name: "x", TotalSeats: 10, StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(2 * time.Hour)}},
			{"end before start", model.CreateEventRequest{Name: "x", TotalSeats: 10, StartTime: testNow.Add(2 * time.Hour), EndTime: testNow.Add(time.Hour)}},
			{"missing times", model.CreateEventRequest{Name: "x", TotalSeats: 10}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := l.CreateEvent(ctx, tc.req)
				assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
			})
		}
	})
}

func TestReserve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("books seats and records the booking", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 100)

		booking, err := l.Reserve(ctx, event.ID, "user-1", 3)
		require.NoError(t, err)
		assert.Equal(t, event.ID, booking.EventID)
		assert.Equal(t, 3, booking.SeatsBooked)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.BookedSeats)

		bookings, err := l.UserBookings(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, bookings, 1)
		assert.Equal(t, booking.ID, bookings[0].ID)
	})

	t.Run("unknown event leaves no booking behind", func(t *testing.T) {
		l, _ := newTestLedger()

		_, err := l.Reserve(ctx, "29a9fe24-9d1f-44f8-9a09-1d2ff1e6b2a1", "user-1", 2)
		assert.ErrorIs(t, err, ledger.ErrEventNotFound)

		bookings, err := l.UserBookings(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, bookings)
	})

	t.Run("rejects non-positive seats", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 100)

		_, err := l.Reserve(ctx, event.ID, "user-1", 0)
		assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
		_, err = l.Reserve(ctx, event.ID, "user-1", -5)
		assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
	})

	t.Run("exact fill then one more", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "workshop", 20)

		_, err := l.Reserve(ctx, event.ID, "user-1", 20)
		require.NoError(t, err)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, got.BookedSeats)

		_, err = l.Reserve(ctx, event.ID, "user-2", 1)
		assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity)
	})

	t.Run("failed reserve changes nothing", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "meetup", 100)

		first, err := l.Reserve(ctx, event.ID, "user-1", 60)
		require.NoError(t, err)

		_, err = l.Reserve(ctx, event.ID, "user-2", 50)
		assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 60, got.BookedSeats)

		require.NoError(t, l.Release(ctx, first.ID))
		got, err = l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.BookedSeats)
	})
}

func TestRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trip restores the seat count exactly", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 50)

		_, err := l.Reserve(ctx, event.ID, "user-1", 7)
		require.NoError(t, err)
		booking, err := l.Reserve(ctx, event.ID, "user-2", 10)
		require.NoError(t, err)

		require.NoError(t, l.Release(ctx, booking.ID))

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.BookedSeats)

		bookings, err := l.UserBookings(ctx, "user-2")
		require.NoError(t, err)
		assert.Empty(t, bookings)
	})

	t.Run("unknown booking leaves state unchanged", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 50)
		_, err := l.Reserve(ctx, event.ID, "user-1", 5)
		require.NoError(t, err)

		err = l.Release(ctx, "f2b1b52e-13b9-4cb4-9f0a-6ac3e2a1d001")
		assert.ErrorIs(t, err, ledger.ErrBookingNotFound)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.BookedSeats)
	})

	t.Run("double release fails the second time", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 50)
		booking, err := l.Reserve(ctx, event.ID, "user-1", 5)
		require.NoError(t, err)

		require.NoError(t, l.Release(ctx, booking.ID))
		err = l.Release(ctx, booking.ID)
		assert.ErrorIs(t, err, ledger.ErrBookingNotFound)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.BookedSeats)
	})

	t.Run("seat count below booking size is a consistency fault", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 50)
		booking, err := l.Reserve(ctx, event.ID, "user-1", 5)
		require.NoError(t, err)

		// Simulate the class of bug the assertion exists to catch.
		require.NoError(t, l.Adjust(ctx, event.ID, -5))

		err = l.Release(ctx, booking.ID)
		assert.ErrorIs(t, err, ledger.ErrConsistencyFault)

		// Operation aborted: booking survives, seat count untouched.
		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.BookedSeats)
		bookings, err := l.UserBookings(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, bookings, 1)
	})
}

func TestAdjust(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("moves the count within bounds", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 10)

		require.NoError(t, l.Adjust(ctx, event.ID, 4))
		require.NoError(t, l.Adjust(ctx, event.ID, -1))

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.BookedSeats)
	})

	t.Run("rejects exceeding capacity", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 10)
		require.NoError(t, l.Adjust(ctx, event.ID, 8))

		err := l.Adjust(ctx, event.ID, 3)
		assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity)

		got, err := l.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 8, got.BookedSeats)
	})

	t.Run("rejects going below zero", func(t *testing.T) {
		l, _ := newTestLedger()
		event := createEvent(t, l, "concert", 10)

		err := l.Adjust(ctx, event.ID, -1)
		assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
	})

	t.Run("unknown event", func(t *testing.T) {
		l, _ := newTestLedger()
		err := l.Adjust(ctx, "a32e8e3e-20af-4cc1-86a9-0a3dd5a1e001", 1)
		assert.ErrorIs(t, err, ledger.ErrEventNotFound)
	})
}

func TestListAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l, _ := newTestLedger()
	open := createEvent(t, l, "open", 10)
	full := createEvent(t, l, "full", 2)

	_, err := l.Reserve(ctx, full.ID, "user-1", 2)
	require.NoError(t, err)
	_, err = l.Reserve(ctx, open.ID, "user-1", 9)
	require.NoError(t, err)

	events, err := l.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, open.ID, events[0].ID)
	assert.Equal(t, 9, events[0].BookedSeats)
}

// fakeCache records cache traffic for the listing-cache tests.
type fakeCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	gets    int
	hits    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	data, ok := c.values[key]
	if !ok {
		return errors.New("cache miss")
	}
	c.hits++
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = data
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.values, key)
	return nil
}

func TestListAvailable_Cache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fc := newFakeCache()
	l, _ := newTestLedger(ledger.WithListCache(fc))
	event := createEvent(t, l, "cached", 10)

	// First read populates the cache, second one is served from it.
	first, err := l.ListAvailable(ctx)
	require.NoError(t, err)
	second, err := l.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 1, fc.hits)

	// A committed mutation drops the snapshot so the next read is fresh.
	deletesBefore := fc.deletes
	_, err = l.Reserve(ctx, event.ID, "user-1", 1)
	require.NoError(t, err)
	assert.Greater(t, fc.deletes, deletesBefore)

	events, err := l.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].BookedSeats)
}

func TestConcurrentReserves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const (
		capacity  = 60
		seatsEach = 2
		callers   = 50
	)

	l, _ := newTestLedger()
	event := createEvent(t, l, "rush", capacity)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, event.ID, "user-1", seatsEach)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, capacityFailures int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ledger.ErrInsufficientCapacity):
			capacityFailures++
		}
	}

	assert.Equal(t, capacity/seatsEach, successes)
	assert.Equal(t, callers-capacity/seatsEach, capacityFailures)

	got, err := l.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, successes*seatsEach, got.BookedSeats)
}

func TestConcurrentReserveRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l, _ := newTestLedger()
	event := createEvent(t, l, "churn", 100)

	// Every pair fits well under capacity, so all of them must succeed and
	// the final count must return to zero.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			booking, err := l.Reserve(gctx, event.ID, "user-1", 2)
			if err != nil {
				return err
			}
			return l.Release(gctx, booking.ID)
		})
	}
	require.NoError(t, g.Wait())

	got, err := l.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedSeats)
}
