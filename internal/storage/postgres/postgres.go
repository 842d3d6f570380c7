package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"salon-service/internal/models"
	"salon-service/internal/timeutil"
	"salon-service/pkg/response"
)

const exclusionViolation = "23P01"

type Storage struct {
	db  *sql.DB
	loc *time.Location
}

func New(storagePath string, loc *time.Location) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db, loc: loc}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// #### catalog ####

func (s *Storage) GetService(ctx context.Context, id string) (*models.Service, error) {
	const op = "storage.postgres.GetService"

	var svc models.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, price_cents, currency, is_online_bookable
		FROM services
		WHERE id = $1`, id).
		Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.Currency, &svc.IsOnlineBookable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &svc, nil
}

// ListStaffOfferings returns every staff member configured for the service,
// active or not, with their duration/price overrides. Ordering is stable
// (display name, then id) so "pick the first qualifying staff" is
// deterministic.
func (s *Storage) ListStaffOfferings(ctx context.Context, serviceID string) ([]models.StaffOffering, error) {
	const op = "storage.postgres.ListStaffOfferings"

	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.display_name, st.is_active, st.color_hex, ss.duration_minutes, ss.price_cents
		FROM staff_services ss
		JOIN staff st ON st.id = ss.staff_id
		WHERE ss.service_id = $1
		ORDER BY st.display_name, st.id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var offerings []models.StaffOffering
	for rows.Next() {
		var o models.StaffOffering
		if err := rows.Scan(&o.StaffID, &o.StaffName, &o.IsActive, &o.ColorHex, &o.DurationMinutes, &o.PriceCents); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		offerings = append(offerings, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return offerings, nil
}

// #### calendar ####

func (s *Storage) ListOpeningHours(ctx context.Context) ([]models.OpeningHours, error) {
	const op = "storage.postgres.ListOpeningHours"

	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, opens_at::text, closes_at::text, is_closed
		FROM opening_hours`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var hours []models.OpeningHours
	for rows.Next() {
		var h models.OpeningHours
		if err := rows.Scan(&h.DayOfWeek, &h.OpensAt, &h.ClosesAt, &h.IsClosed); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return hours, nil
}

func (s *Storage) ListOpeningExceptions(ctx context.Context, from, to time.Time) ([]models.OpeningException, error) {
	const op = "storage.postgres.ListOpeningExceptions"

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, opens_at::text, closes_at::text, is_closed
		FROM opening_exceptions
		WHERE date >= $1::date AND date <= $2::date`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var exceptions []models.OpeningException
	for rows.Next() {
		var e models.OpeningException
		if err := rows.Scan(&e.Date, &e.OpensAt, &e.ClosesAt, &e.IsClosed); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		exceptions = append(exceptions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return exceptions, nil
}

// #### settings ####

// GetBookingSettings reads the keyed booking configuration, falling back to
// defaults for missing or malformed rows.
func (s *Storage) GetBookingSettings(ctx context.Context) (models.BookingSettings, error) {
	const op = "storage.postgres.GetBookingSettings"

	settings := models.DefaultBookingSettings()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value
		FROM settings
		WHERE key IN ('booking.buffer_minutes', 'booking.slot_step_minutes', 'booking.cancellation_window_hours')`)
	if err != nil {
		return settings, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return settings, fmt.Errorf("%s: %w", op, err)
		}

		switch key {
		case "booking.buffer_minutes":
			var buffer struct {
				Before *int `json:"before"`
				After  *int `json:"after"`
			}
			if err := json.Unmarshal(raw, &buffer); err != nil {
				continue
			}
			if buffer.Before != nil {
				settings.BufferBeforeMinutes = *buffer.Before
			}
			if buffer.After != nil {
				settings.BufferAfterMinutes = *buffer.After
			}
		case "booking.slot_step_minutes":
			var step int
			if err := json.Unmarshal(raw, &step); err == nil && step > 0 {
				settings.SlotStepMinutes = step
			}
		case "booking.cancellation_window_hours":
			var hours int
			if err := json.Unmarshal(raw, &hours); err == nil && hours >= 0 {
				settings.CancellationWindowHours = hours
			}
		}
	}
	if err := rows.Err(); err != nil {
		return settings, fmt.Errorf("%s: %w", op, err)
	}

	return settings, nil
}

// #### appointments ####

const appointmentColumns = `
	a.id, a.customer_id, a.staff_id, a.service_id, a.status, a.slot::text,
	a.price_cents, a.currency, a.notes, a.cancellation_reason,
	st.display_name, sv.name, c.email,
	TRIM(COALESCE(c.first_name, '') || ' ' || COALESCE(c.last_name, ''))`

const appointmentJoins = `
	JOIN staff st ON st.id = a.staff_id
	JOIN services sv ON sv.id = a.service_id
	JOIN customers c ON c.id = a.customer_id`

func (s *Storage) scanAppointment(scanner interface{ Scan(...any) error }) (*models.Appointment, error) {
	var a models.Appointment
	var slot string

	err := scanner.Scan(
		&a.ID, &a.CustomerID, &a.StaffID, &a.ServiceID, &a.Status, &slot,
		&a.PriceCents, &a.Currency, &a.Notes, &a.CancellationReason,
		&a.StaffName, &a.ServiceName, &a.CustomerEmail, &a.CustomerName,
	)
	if err != nil {
		return nil, err
	}

	a.Start, a.End, err = timeutil.ParseRangeLiteral(slot, s.loc)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

func (s *Storage) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	const op = "storage.postgres.GetAppointment"

	row := s.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a`+appointmentJoins+`
		WHERE a.id = $1`, id)

	a, err := s.scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// FindAppointmentByIdempotencyKey resolves a prior booking submission via
// the idempotency key stored in the payload of its 'created' event.
func (s *Storage) FindAppointmentByIdempotencyKey(ctx context.Context, key string) (*models.Appointment, error) {
	const op = "storage.postgres.FindAppointmentByIdempotencyKey"

	row := s.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointment_events ae
		JOIN appointments a ON a.id = ae.appointment_id`+appointmentJoins+`
		WHERE ae.event_type = 'created'
		  AND ae.payload ->> 'idempotencyKey' = $1
		ORDER BY ae.created_at DESC
		LIMIT 1`, key)

	a, err := s.scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

// ListActiveAppointments returns the non-cancelled, non-no-show appointments
// for the given staff overlapping [from, to).
func (s *Storage) ListActiveAppointments(ctx context.Context, staffIDs []string, from, to time.Time) ([]*models.Appointment, error) {
	const op = "storage.postgres.ListActiveAppointments"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a`+appointmentJoins+`
		WHERE a.staff_id = ANY($1)
		  AND a.status NOT IN ('cancelled', 'no_show')
		  AND a.slot && tstzrange($2, $3, '[)')`,
		pq.Array(staffIDs), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var appointments []*models.Appointment
	for rows.Next() {
		a, err := s.scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appointments, nil
}

// #### booking protocol ####

// ReserveAppointment commits a booking inside one transaction: customer
// upsert, exclusive range-overlap lock, pending insert promoted to
// confirmed, created/confirmed events, and notification rows. It returns
// response.ErrSlotNotAvailable when a competing active appointment holds an
// overlapping range.
func (s *Storage) ReserveAppointment(ctx context.Context, p *models.BookingReservation) (*models.Appointment, error) {
	const op = "storage.postgres.ReserveAppointment"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	customerID, doubleOptIn, err := s.upsertCustomerTx(ctx, tx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// The overlap check and the insert share this transaction; the lock on
	// any conflicting row linearizes racing bookings for the same staff.
	var conflictID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM appointments
		WHERE staff_id = $1
		  AND status NOT IN ('cancelled', 'no_show')
		  AND slot && tstzrange($2, $3, '[)')
		LIMIT 1
		FOR UPDATE`,
		p.StaffID, p.Start.UTC(), p.End.UTC()).Scan(&conflictID)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: conflict check: %w", op, err)
	}

	slot := timeutil.RangeLiteral(p.Start, p.End)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (id, customer_id, staff_id, service_id, status, slot, price_cents, currency, notes)
		VALUES ($1, $2, $3, $4, 'pending', $5::tstzrange, $6, $7, $8)`,
		p.AppointmentID, customerID, p.StaffID, p.ServiceID, slot, p.PriceCents, p.Currency, p.Notes)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == exclusionViolation {
			return nil, fmt.Errorf("%s: %w", op, response.ErrSlotNotAvailable)
		}
		return nil, fmt.Errorf("%s: insert appointment: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE appointments SET status = 'confirmed', updated_at = now() WHERE id = $1`,
		p.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: confirm appointment: %w", op, err)
	}

	createdPayload, err := json.Marshal(map[string]any{
		"source":         "online",
		"idempotencyKey": p.IdempotencyKey,
		"locale":         p.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	confirmedBy := "customer"
	if p.ActorID != nil {
		confirmedBy = *p.ActorID
	}
	confirmedPayload, err := json.Marshal(map[string]any{"confirmedBy": confirmedBy})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointment_events (appointment_id, event_type, payload, created_by)
		VALUES ($1, 'created', $2, $4), ($1, 'confirmed', $3, $4)`,
		p.AppointmentID, createdPayload, confirmedPayload, p.ActorID)
	if err != nil {
		return nil, fmt.Errorf("%s: insert events: %w", op, err)
	}

	confirmationPayload, err := json.Marshal(map[string]any{
		"appointmentId": p.AppointmentID,
		"locale":        p.Locale,
		"template":      "appointment-confirmation",
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (channel, recipient, subject, payload, status, created_by)
		VALUES ('email', $1, 'booking-confirmation', $2, 'pending', $3)`,
		p.Customer.Email, confirmationPayload, p.ActorID)
	if err != nil {
		return nil, fmt.Errorf("%s: insert notification: %w", op, err)
	}

	if doubleOptIn {
		optInPayload, err := json.Marshal(map[string]any{
			"type":                "marketing_double_opt_in",
			"sourceAppointmentId": p.AppointmentID,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO notifications (channel, recipient, subject, payload, status, created_by)
			VALUES ('email', $1, 'newsletter-double-opt-in', $2, 'pending', $3)`,
			p.Customer.Email, optInPayload, p.ActorID)
		if err != nil {
			return nil, fmt.Errorf("%s: insert opt-in notification: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return s.GetAppointment(ctx, p.AppointmentID)
}

// upsertCustomerTx keeps marketing opt-in sticky: once true it is never
// revoked by a booking submitted without the flag. The second return value
// reports whether this request newly requested opt-in for a customer that
// had not opted in before.
func (s *Storage) upsertCustomerTx(ctx context.Context, tx *sql.Tx, p *models.BookingReservation) (string, bool, error) {
	var existingID string
	var existingOptIn bool

	err := tx.QueryRowContext(ctx, `
		SELECT id, marketing_opt_in FROM customers WHERE email = $1`,
		p.Customer.Email).Scan(&existingID, &existingOptIn)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE customers
			SET first_name = $2,
				last_name = $3,
				phone = COALESCE($4, phone),
				marketing_opt_in = marketing_opt_in OR $5,
				notes = COALESCE($6, notes),
				updated_at = now()
			WHERE id = $1`,
			existingID, p.Customer.FirstName, p.Customer.LastName, p.Customer.Phone,
			p.Customer.MarketingOptIn, p.Customer.Notes)
		if err != nil {
			return "", false, err
		}
		return existingID, p.Customer.MarketingOptIn && !existingOptIn, nil

	case errors.Is(err, sql.ErrNoRows):
		// ON CONFLICT covers the benign race on a brand new email.
		var id string
		err = tx.QueryRowContext(ctx, `
			INSERT INTO customers (id, email, first_name, last_name, phone, marketing_opt_in, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (email) DO UPDATE
			SET first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				phone = COALESCE(EXCLUDED.phone, customers.phone),
				marketing_opt_in = customers.marketing_opt_in OR EXCLUDED.marketing_opt_in,
				updated_at = now()
			RETURNING id`,
			p.CustomerID, p.Customer.Email, p.Customer.FirstName, p.Customer.LastName,
			p.Customer.Phone, p.Customer.MarketingOptIn, p.Customer.Notes).Scan(&id)
		if err != nil {
			return "", false, err
		}
		return id, p.Customer.MarketingOptIn, nil

	default:
		return "", false, err
	}
}

// CancelAppointment transitions the row to cancelled, records the event and
// enqueues the cancellation notification. The status guard makes a racing
// double-cancel surface as ErrAlreadyCancelled.
func (s *Storage) CancelAppointment(ctx context.Context, id, reason, recipient string, actorID *string) error {
	const op = "storage.postgres.CancelAppointment"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancellation_reason = $2, updated_at = now()
		WHERE id = $1 AND status <> 'cancelled'`, id, reason)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	} else if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrAlreadyCancelled)
	}

	cancelledBy := "customer"
	if actorID != nil {
		cancelledBy = *actorID
	}
	payload, err := json.Marshal(map[string]any{"reason": reason, "cancelledBy": cancelledBy})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointment_events (appointment_id, event_type, payload, created_by)
		VALUES ($1, 'cancelled', $2, $3)`, id, payload, actorID)
	if err != nil {
		return fmt.Errorf("%s: insert event: %w", op, err)
	}

	notification, err := json.Marshal(map[string]any{"appointmentId": id, "reason": reason})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (channel, recipient, subject, payload, status, created_by)
		VALUES ('email', $1, 'booking-cancellation', $2, 'pending', $3)`,
		recipient, notification, actorID)
	if err != nil {
		return fmt.Errorf("%s: insert notification: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// SaveRescheduleRequest records a reschedule request event and notifies the
// operations inbox. The appointment itself is not mutated.
func (s *Storage) SaveRescheduleRequest(ctx context.Context, id string, requestedStart time.Time, notes *string, opsEmail string, actorID *string) error {
	const op = "storage.postgres.SaveRescheduleRequest"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	requestedBy := "customer"
	if actorID != nil {
		requestedBy = *actorID
	}
	payload, err := json.Marshal(map[string]any{
		"requestedStart": requestedStart.UTC().Format(time.RFC3339),
		"notes":          notes,
		"requestedBy":    requestedBy,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointment_events (appointment_id, event_type, payload, created_by)
		VALUES ($1, 'rescheduled', $2, $3)`, id, payload, actorID)
	if err != nil {
		return fmt.Errorf("%s: insert event: %w", op, err)
	}

	notification, err := json.Marshal(map[string]any{
		"appointmentId":  id,
		"requestedStart": requestedStart.UTC().Format(time.RFC3339),
		"notes":          notes,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (channel, recipient, subject, payload, status, created_by)
		VALUES ('email', $1, 'booking-reschedule-request', $2, 'pending', $3)`,
		opsEmail, notification, actorID)
	if err != nil {
		return fmt.Errorf("%s: insert notification: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}
