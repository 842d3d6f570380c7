package api

import "time"

// Availability

type AvailabilityQuery struct {
	ServiceID string
	StaffID   *string
	From      string
	To        string
}

type Slot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

type StaffAvailability struct {
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
	Slots     []Slot `json:"slots"`
}

type AvailabilityResponse struct {
	ServiceID string              `json:"service_id"`
	From      time.Time           `json:"from"`
	To        time.Time           `json:"to"`
	Staff     []StaffAvailability `json:"staff"`
}

// Bookings

type CustomerInput struct {
	Email          string  `json:"email"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Phone          *string `json:"phone,omitempty"`
	MarketingOptIn bool    `json:"marketing_opt_in,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

type BookingCreateRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	ServiceID      string        `json:"service_id"`
	StaffID        *string       `json:"staff_id,omitempty"`
	Start          string        `json:"start"`
	Customer       CustomerInput `json:"customer"`
	Notes          *string       `json:"notes,omitempty"`
	Locale         string        `json:"locale,omitempty"`
}

type BookingResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	StaffID      string    `json:"staff_id"`
	StaffName    string    `json:"staff_name"`
	ServiceID    string    `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	PriceCents   int       `json:"price_cents"`
	Currency     string    `json:"currency"`
	Notes        *string   `json:"notes,omitempty"`
	WasDuplicate bool      `json:"was_duplicate"`
}

type BookingCancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	RequestedStart string  `json:"requested_start"`
	Notes          *string `json:"notes,omitempty"`
}
