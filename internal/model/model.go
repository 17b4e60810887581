// Package model defines the core domain types for the event booking system.
package model

import "time"

// Event represents a bookable event with a fixed seat capacity.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TotalSeats  int       `json:"total_seats"`
	BookedSeats int       `json:"booked_seats"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Remaining returns the number of available seats.
func (e *Event) Remaining() int {
	return e.TotalSeats - e.BookedSeats
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.BookedSeats >= e.TotalSeats
}

// Booking represents seats committed by a user against an event.
// SeatsBooked is fixed at creation and consumed exactly once on cancellation.
type Booking struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	SeatsBooked int       `json:"seats_booked"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name       string    `json:"name"`
	TotalSeats int       `json:"total_seats"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// BookSeatsRequest is the payload for booking seats on an event.
type BookSeatsRequest struct {
	UserID string `json:"user_id"`
	Seats  int    `json:"seats"`
}

// AdjustSeatsRequest is the payload for a direct administrative
// seat-count adjustment.
type AdjustSeatsRequest struct {
	Delta int `json:"delta"`
}

// BookingResponse summarises a successful booking for the caller.
type BookingResponse struct {
	BookingID      string `json:"booking_id"`
	EventName      string `json:"event_name"`
	RemainingSeats int    `json:"remaining_seats"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
