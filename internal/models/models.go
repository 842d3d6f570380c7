package models

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Active reports whether the appointment still occupies its time range.
func (s AppointmentStatus) Active() bool {
	return s != AppointmentCancelled && s != AppointmentNoShow
}

type EventType string

const (
	EventCreated     EventType = "created"
	EventConfirmed   EventType = "confirmed"
	EventCancelled   EventType = "cancelled"
	EventRescheduled EventType = "rescheduled"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleReception Role = "reception"
	RoleStaff     Role = "staff"
	RoleCustomer  Role = "customer"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleReception, RoleStaff, RoleCustomer:
		return Role(s), true
	}
	return "", false
}

type Actor struct {
	ID    string
	Roles []Role
}

// CanOverrideCancellationWindow reports whether the actor may cancel inside
// the configured cancellation window.
func (a Actor) CanOverrideCancellationWindow() bool {
	for _, r := range a.Roles {
		switch r {
		case RoleAdmin, RoleManager, RoleReception:
			return true
		}
	}
	return false
}

type Service struct {
	ID               string `db:"id"`
	Name             string `db:"name"`
	DurationMinutes  int    `db:"duration_minutes"`
	PriceCents       int    `db:"price_cents"`
	Currency         string `db:"currency"`
	IsOnlineBookable bool   `db:"is_online_bookable"`
}

// StaffOffering is one staff member qualified for a service, joined with the
// per-staff duration/price overrides from staff_services.
type StaffOffering struct {
	StaffID         string  `db:"staff_id"`
	StaffName       string  `db:"display_name"`
	IsActive        bool    `db:"is_active"`
	ColorHex        *string `db:"color_hex"`
	DurationMinutes *int    `db:"duration_minutes"`
	PriceCents      *int    `db:"price_cents"`
}

// EffectiveDuration returns the staff override, else the service default.
func (o StaffOffering) EffectiveDuration(svc *Service) int {
	if o.DurationMinutes != nil {
		return *o.DurationMinutes
	}
	return svc.DurationMinutes
}

func (o StaffOffering) EffectivePrice(svc *Service) int {
	if o.PriceCents != nil {
		return *o.PriceCents
	}
	return svc.PriceCents
}

type OpeningHours struct {
	DayOfWeek int     `db:"day_of_week"` // 0 (Sunday) - 6 (Saturday)
	OpensAt   *string `db:"opens_at"`    // local HH:MM:SS
	ClosesAt  *string `db:"closes_at"`
	IsClosed  bool    `db:"is_closed"`
}

type OpeningException struct {
	Date     time.Time `db:"date"`
	OpensAt  *string   `db:"opens_at"`
	ClosesAt *string   `db:"closes_at"`
	IsClosed bool      `db:"is_closed"`
}

type Customer struct {
	ID             string  `db:"id"`
	Email          string  `db:"email"`
	FirstName      string  `db:"first_name"`
	LastName       string  `db:"last_name"`
	Phone          *string `db:"phone"`
	MarketingOptIn bool    `db:"marketing_opt_in"`
}

type Appointment struct {
	ID                 string            `db:"id"`
	CustomerID         string            `db:"customer_id"`
	StaffID            string            `db:"staff_id"`
	ServiceID          string            `db:"service_id"`
	Status             AppointmentStatus `db:"status"`
	Start              time.Time
	End                time.Time
	PriceCents         int     `db:"price_cents"`
	Currency           string  `db:"currency"`
	Notes              *string `db:"notes"`
	CancellationReason *string `db:"cancellation_reason"`

	// Denormalized display fields, populated by joined reads.
	StaffName     string
	ServiceName   string
	CustomerEmail string
	CustomerName  string
}

type AppointmentEvent struct {
	ID            string    `db:"id"`
	AppointmentID string    `db:"appointment_id"`
	EventType     EventType `db:"event_type"`
	Payload       []byte    `db:"payload"`
	CreatedBy     *string   `db:"created_by"`
	CreatedAt     time.Time `db:"created_at"`
}

type Notification struct {
	ID        string  `db:"id"`
	Channel   string  `db:"channel"`
	Recipient string  `db:"recipient"`
	Subject   string  `db:"subject"`
	Payload   []byte  `db:"payload"`
	Status    string  `db:"status"`
	CreatedBy *string `db:"created_by"`
}

// CustomerUpsert is the customer payload of a booking submission.
type CustomerUpsert struct {
	Email          string
	FirstName      string
	LastName       string
	Phone          *string
	MarketingOptIn bool
	Notes          *string
}

// BookingReservation carries everything the storage layer needs to commit a
// booking in one transaction.
type BookingReservation struct {
	AppointmentID  string
	CustomerID     string // id to use when the customer is new
	Customer       CustomerUpsert
	StaffID        string
	ServiceID      string
	Start          time.Time
	End            time.Time
	PriceCents     int
	Currency       string
	Notes          *string
	IdempotencyKey string
	Locale         string
	ActorID        *string
}

type BookingSettings struct {
	BufferBeforeMinutes     int
	BufferAfterMinutes      int
	SlotStepMinutes         int
	CancellationWindowHours int
}

func DefaultBookingSettings() BookingSettings {
	return BookingSettings{
		BufferBeforeMinutes:     10,
		BufferAfterMinutes:      5,
		SlotStepMinutes:         5,
		CancellationWindowHours: 24,
	}
}
