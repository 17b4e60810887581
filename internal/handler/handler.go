// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the ledger.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sayandebsingha425/event-booking-system/internal/ledger"
	"github.com/sayandebsingha425/event-booking-system/internal/model"
)

// EventHandler holds all HTTP handlers for the event booking API.
type EventHandler struct {
	ledger *ledger.Ledger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(l *ledger.Ledger) *EventHandler {
	return &EventHandler{ledger: l}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeLedgerError maps ledger error kinds to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, ledger.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, ledger.ErrInsufficientCapacity):
		writeError(w, http.StatusConflict, "not enough seats available")
	case errors.Is(err, ledger.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.ledger.CreateEvent(r.Context(), req)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/events
// Returns the events that still have seats available.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.ledger.ListAvailable(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.ledger.GetEvent(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// BookSeats handles POST /api/events/{id}/book
// Performs a concurrency-safe seat reservation for the specified event.
func (h *EventHandler) BookSeats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.BookSeatsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.ledger.Reserve(r.Context(), id, req.UserID, req.Seats)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	// Snapshot read for the response; remaining seats may already have moved.
	event, err := h.ledger.GetEvent(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.BookingResponse{
		BookingID:      booking.ID,
		EventName:      event.Name,
		RemainingSeats: event.Remaining(),
	})
}

// AdjustSeats handles POST /api/events/{id}/seats
// Direct administrative seat-count mutation for trusted internal callers.
func (h *EventHandler) AdjustSeats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.AdjustSeatsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.ledger.Adjust(r.Context(), id, req.Delta); err != nil {
		writeLedgerError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UserBookings handles GET /api/users/{userId}/bookings
func (h *EventHandler) UserBookings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	bookings, err := h.ledger.UserBookings(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if bookings == nil {
		bookings = []model.Booking{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// CancelBooking handles DELETE /api/bookings/{bookingId}
func (h *EventHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	if err := h.ledger.Release(r.Context(), bookingID); err != nil {
		writeLedgerError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
