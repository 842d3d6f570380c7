package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"salon-service/api"
	"salon-service/internal/availability"
	"salon-service/internal/calendar"
	"salon-service/internal/lock"
	"salon-service/internal/models"
	"salon-service/internal/notify"
	"salon-service/internal/timeutil"
	"salon-service/pkg/response"
	"salon-service/pkg/sl"
)

const (
	maxRangeDays   = 31
	bookingLockTTL = 10 * time.Second

	idempotencyKeyMinLen = 8
	idempotencyKeyMaxLen = 64
	cancelReasonMinLen   = 3
	cancelReasonMaxLen   = 512
)

type Store interface {
	// Catalog
	GetService(ctx context.Context, id string) (*models.Service, error)
	ListStaffOfferings(ctx context.Context, serviceID string) ([]models.StaffOffering, error)

	// Calendar & settings
	ListOpeningHours(ctx context.Context) ([]models.OpeningHours, error)
	ListOpeningExceptions(ctx context.Context, from, to time.Time) ([]models.OpeningException, error)
	GetBookingSettings(ctx context.Context) (models.BookingSettings, error)

	// Appointments
	ListActiveAppointments(ctx context.Context, staffIDs []string, from, to time.Time) ([]*models.Appointment, error)
	FindAppointmentByIdempotencyKey(ctx context.Context, key string) (*models.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ReserveAppointment(ctx context.Context, res *models.BookingReservation) (*models.Appointment, error)
	CancelAppointment(ctx context.Context, id, reason, recipient string, actorID *string) error
	SaveRescheduleRequest(ctx context.Context, id string, requestedStart time.Time, notes *string, opsEmail string, actorID *string) error
}

type Service struct {
	store    Store
	locker   lock.Locker
	notifier notify.Dispatcher
	log      *slog.Logger
	loc      *time.Location
	opsEmail string
	now      func() time.Time
}

func NewService(store Store, locker lock.Locker, notifier notify.Dispatcher, log *slog.Logger, loc *time.Location, opsEmail string) *Service {
	return &Service{
		store:    store,
		locker:   locker,
		notifier: notifier,
		log:      log,
		loc:      loc,
		opsEmail: opsEmail,
		now:      time.Now,
	}
}

// Availability

func (s *Service) GetAvailability(ctx context.Context, q *api.AvailabilityQuery) (*api.AvailabilityResponse, error) {
	const op = "service.GetAvailability"

	if _, err := uuid.Parse(q.ServiceID); err != nil {
		return nil, fmt.Errorf("%s: service_id: %w", op, response.ErrInvalidInput)
	}
	if q.StaffID != nil {
		if _, err := uuid.Parse(*q.StaffID); err != nil {
			return nil, fmt.Errorf("%s: staff_id: %w", op, response.ErrInvalidInput)
		}
	}

	from, err := timeutil.ParseLocalDateTime(q.From, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%s: from: %w", op, err)
	}
	to, err := timeutil.ParseLocalDateTime(q.To, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%s: to: %w", op, err)
	}

	from = from.Truncate(time.Minute)
	to = to.Truncate(time.Minute)

	if !to.After(from) {
		return nil, fmt.Errorf("%s: to must be after from: %w", op, response.ErrInvalidInput)
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%s: %w", op, response.ErrRangeTooLarge)
	}

	svc, err := s.store.GetService(ctx, q.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !svc.IsOnlineBookable {
		return nil, fmt.Errorf("%s: service is not online bookable: %w", op, response.ErrConflict)
	}

	offerings, err := s.resolveOfferings(ctx, svc.ID, q.StaffID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	settings, err := s.store.GetBookingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cal, err := s.loadCalendar(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	staffIDs := make([]string, 0, len(offerings))
	for _, o := range offerings {
		staffIDs = append(staffIDs, o.StaffID)
	}

	busyByStaff, err := s.loadBusyIntervals(ctx, staffIDs, from, to, settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().In(s.loc)
	staff := make([]api.StaffAvailability, 0, len(offerings))

	for _, offering := range offerings {
		duration := offering.EffectiveDuration(svc)
		var slots []api.Slot

		lastDate := timeutil.StartOfDay(to)
		for date := timeutil.StartOfDay(from); !date.After(lastDate); date = date.AddDate(0, 0, 1) {
			openStart, openEnd, open := cal.OpenWindow(date)
			if !open {
				continue
			}

			generated := availability.DaySlots(availability.DayParams{
				OpenStart:           openStart,
				OpenEnd:             openEnd,
				From:                from,
				To:                  to,
				Now:                 now,
				DurationMinutes:     duration,
				StepMinutes:         settings.SlotStepMinutes,
				BufferBeforeMinutes: settings.BufferBeforeMinutes,
				BufferAfterMinutes:  settings.BufferAfterMinutes,
				Busy:                busyByStaff[offering.StaffID],
			})

			for _, g := range generated {
				// Defensive re-clip to the requested range.
				if g.Start.Before(from) || g.End.After(to) {
					continue
				}
				slots = append(slots, api.Slot{
					Start:           g.Start,
					End:             g.End,
					DurationMinutes: duration,
				})
			}
		}

		if len(slots) == 0 {
			continue
		}

		sort.Slice(slots, func(i, j int) bool {
			return slots[i].Start.Before(slots[j].Start)
		})

		staff = append(staff, api.StaffAvailability{
			StaffID:   offering.StaffID,
			StaffName: offering.StaffName,
			Slots:     slots,
		})
	}

	return &api.AvailabilityResponse{
		ServiceID: svc.ID,
		From:      from,
		To:        to,
		Staff:     staff,
	}, nil
}

// resolveOfferings narrows the service's staff to the active candidates,
// optionally filtered to one staff member. It distinguishes "nothing
// configured" (not found) from "configured but inactive" (conflict).
func (s *Service) resolveOfferings(ctx context.Context, serviceID string, staffID *string) ([]models.StaffOffering, error) {
	offerings, err := s.store.ListStaffOfferings(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if staffID != nil {
		filtered := offerings[:0]
		for _, o := range offerings {
			if o.StaffID == *staffID {
				filtered = append(filtered, o)
			}
		}
		offerings = filtered
	}

	if len(offerings) == 0 {
		return nil, fmt.Errorf("no staff offers this service: %w", response.ErrNotFound)
	}

	active := make([]models.StaffOffering, 0, len(offerings))
	for _, o := range offerings {
		if o.IsActive {
			active = append(active, o)
		}
	}

	if len(active) == 0 {
		return nil, fmt.Errorf("all staff for this service are inactive: %w", response.ErrConflict)
	}

	return active, nil
}

func (s *Service) loadCalendar(ctx context.Context, from, to time.Time) (*calendar.Calendar, error) {
	hours, err := s.store.ListOpeningHours(ctx)
	if err != nil {
		return nil, err
	}

	exceptions, err := s.store.ListOpeningExceptions(ctx, timeutil.StartOfDay(from), timeutil.StartOfDay(to))
	if err != nil {
		return nil, err
	}

	return calendar.New(s.loc, hours, exceptions), nil
}

// loadBusyIntervals groups the active appointments per staff, each expanded
// by the configured buffers.
func (s *Service) loadBusyIntervals(ctx context.Context, staffIDs []string, from, to time.Time, settings models.BookingSettings) (map[string][]availability.Interval, error) {
	appointments, err := s.store.ListActiveAppointments(ctx, staffIDs, from, to)
	if err != nil {
		return nil, err
	}

	before := time.Duration(settings.BufferBeforeMinutes) * time.Minute
	after := time.Duration(settings.BufferAfterMinutes) * time.Minute

	busy := make(map[string][]availability.Interval)
	for _, a := range appointments {
		iv := availability.Interval{Start: a.Start, End: a.End}.Expand(before, after)
		busy[a.StaffID] = append(busy[a.StaffID], iv)
	}

	return busy, nil
}

// Bookings

func (s *Service) CreateBooking(ctx context.Context, req *api.BookingCreateRequest, actor models.Actor) (*api.BookingResponse, error) {
	const op = "service.CreateBooking"

	if err := validateBookingRequest(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Idempotent replay: the prior result is returned with no new side
	// effects, so a retried submission is safe.
	if existing, err := s.store.FindAppointmentByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		resp := appointmentResponse(existing)
		resp.WasDuplicate = true
		return resp, nil
	} else if !errors.Is(err, response.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	svc, err := s.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !svc.IsOnlineBookable {
		return nil, fmt.Errorf("%s: service is not online bookable: %w", op, response.ErrConflict)
	}

	offerings, err := s.resolveOfferings(ctx, svc.ID, req.StaffID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Deterministic pick: offerings come back in stable (name, id) order.
	offering := offerings[0]

	duration := offering.EffectiveDuration(svc)
	price := offering.EffectivePrice(svc)

	start, err := timeutil.ParseLocalDateTime(req.Start, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%s: start: %w", op, err)
	}
	start = start.Truncate(time.Minute)
	end := start.Add(time.Duration(duration) * time.Minute)

	if !end.After(start) {
		return nil, fmt.Errorf("%s: invalid booking window: %w", op, response.ErrInvalidInput)
	}

	lockKey := lock.StaffKey(offering.StaffID)

	locked, err := s.locker.Lock(ctx, lockKey, bookingLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	var actorID *string
	if actor.ID != "" {
		actorID = &actor.ID
	}

	reservation := &models.BookingReservation{
		AppointmentID: uuid.NewString(),
		CustomerID:    uuid.NewString(),
		Customer: models.CustomerUpsert{
			Email:          req.Customer.Email,
			FirstName:      req.Customer.FirstName,
			LastName:       req.Customer.LastName,
			Phone:          req.Customer.Phone,
			MarketingOptIn: req.Customer.MarketingOptIn,
			Notes:          req.Customer.Notes,
		},
		StaffID:        offering.StaffID,
		ServiceID:      svc.ID,
		Start:          start,
		End:            end,
		PriceCents:     price,
		Currency:       svc.Currency,
		Notes:          coalesceNotes(req.Notes, req.Customer.Notes),
		IdempotencyKey: req.IdempotencyKey,
		Locale:         req.Locale,
		ActorID:        actorID,
	}

	appointment, err := s.store.ReserveAppointment(ctx, reservation)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Best-effort delivery outside the transaction; a send failure must not
	// fail the booking.
	s.dispatch(notify.Message{
		To:      appointment.CustomerEmail,
		Subject: "Your appointment is confirmed",
		Body: fmt.Sprintf("%s with %s on %s.",
			appointment.ServiceName,
			appointment.StaffName,
			appointment.Start.In(s.loc).Format("Mon, 02 Jan 2006 15:04"),
		),
	})

	return appointmentResponse(appointment), nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*api.BookingResponse, error) {
	const op = "service.GetBooking"

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, response.ErrInvalidInput)
	}

	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return appointmentResponse(appointment), nil
}

func (s *Service) CancelBooking(ctx context.Context, id, reason string, actor models.Actor) (*api.BookingResponse, error) {
	const op = "service.CancelBooking"

	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, response.ErrInvalidInput)
	}
	if len(reason) < cancelReasonMinLen || len(reason) > cancelReasonMaxLen {
		return nil, fmt.Errorf("%s: reason length: %w", op, response.ErrInvalidInput)
	}

	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if appointment.Status == models.AppointmentCancelled {
		return nil, fmt.Errorf("%s: %w", op, response.ErrAlreadyCancelled)
	}

	settings, err := s.store.GetBookingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hoursUntilStart := appointment.Start.Sub(s.now()).Hours()
	if hoursUntilStart < float64(settings.CancellationWindowHours) && !actor.CanOverrideCancellationWindow() {
		return nil, fmt.Errorf("%s: %w", op, response.ErrCancellationWindow)
	}

	var actorID *string
	if actor.ID != "" {
		actorID = &actor.ID
	}

	if err := s.store.CancelAppointment(ctx, id, reason, appointment.CustomerEmail, actorID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.dispatch(notify.Message{
		To:      appointment.CustomerEmail,
		Subject: "Your appointment was cancelled",
		Body: fmt.Sprintf("%s with %s on %s was cancelled.",
			appointment.ServiceName,
			appointment.StaffName,
			appointment.Start.In(s.loc).Format("Mon, 02 Jan 2006 15:04"),
		),
	})

	appointment.Status = models.AppointmentCancelled
	appointment.CancellationReason = &reason

	return appointmentResponse(appointment), nil
}

// RequestReschedule records a reschedule request event and notifies the
// operations inbox. The appointment keeps its time; a human follows up.
func (s *Service) RequestReschedule(ctx context.Context, id string, req *api.RescheduleRequest, actor models.Actor) error {
	const op = "service.RequestReschedule"

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s: %w", op, response.ErrInvalidInput)
	}

	requestedStart, err := timeutil.ParseLocalDateTime(req.RequestedStart, s.loc)
	if err != nil {
		return fmt.Errorf("%s: requested_start: %w", op, err)
	}

	if _, err := s.store.GetAppointment(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var actorID *string
	if actor.ID != "" {
		actorID = &actor.ID
	}

	if err := s.store.SaveRescheduleRequest(ctx, id, requestedStart, req.Notes, s.opsEmail, actorID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.dispatch(notify.Message{
		To:      s.opsEmail,
		Subject: "Reschedule request",
		Body:    fmt.Sprintf("Appointment %s requests a new start of %s.", id, requestedStart.Format(time.RFC3339)),
	})

	return nil
}

func (s *Service) dispatch(msg notify.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Error("Failed to dispatch notification", sl.Err(err), slog.String("subject", msg.Subject))
	}
}

func validateBookingRequest(req *api.BookingCreateRequest) error {
	if len(req.IdempotencyKey) < idempotencyKeyMinLen || len(req.IdempotencyKey) > idempotencyKeyMaxLen {
		return fmt.Errorf("idempotency_key length: %w", response.ErrInvalidInput)
	}
	if _, err := uuid.Parse(req.ServiceID); err != nil {
		return fmt.Errorf("service_id: %w", response.ErrInvalidInput)
	}
	if req.StaffID != nil {
		if _, err := uuid.Parse(*req.StaffID); err != nil {
			return fmt.Errorf("staff_id: %w", response.ErrInvalidInput)
		}
	}
	if req.Customer.Email == "" || req.Customer.FirstName == "" || req.Customer.LastName == "" {
		return fmt.Errorf("customer: %w", response.ErrInvalidInput)
	}
	return nil
}

func coalesceNotes(notes, customerNotes *string) *string {
	if notes != nil {
		return notes
	}
	return customerNotes
}

func appointmentResponse(a *models.Appointment) *api.BookingResponse {
	return &api.BookingResponse{
		ID:          a.ID,
		Status:      string(a.Status),
		StaffID:     a.StaffID,
		StaffName:   a.StaffName,
		ServiceID:   a.ServiceID,
		ServiceName: a.ServiceName,
		Start:       a.Start,
		End:         a.End,
		PriceCents:  a.PriceCents,
		Currency:    a.Currency,
		Notes:       a.Notes,
	}
}
