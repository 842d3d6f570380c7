package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"salon-service/api"
	"salon-service/internal/models"
	"salon-service/internal/notify"
	"salon-service/pkg/response"
)

const (
	testServiceID = "6f1a0c8e-8a24-4f5e-9c57-2f4b8a9d1c3e"
	testStaffID   = "9d2b1f6a-3c4e-4d5f-8a7b-1e2f3a4b5c6d"
	testStaffID2  = "1a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6e"
	testApptID    = "7c8d9e0f-1a2b-4c3d-8e5f-6a7b8c9d0e1f"
)

type fakeStore struct {
	services   map[string]*models.Service
	offerings  map[string][]models.StaffOffering
	hours      []models.OpeningHours
	settings   models.BookingSettings
	byID       map[string]*models.Appointment
	byKey      map[string]*models.Appointment
	reschedMap map[string]time.Time

	reserveCalls int
	cancelCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		services: map[string]*models.Service{
			testServiceID: {
				ID:               testServiceID,
				Name:             "Haircut",
				DurationMinutes:  60,
				PriceCents:       8500,
				Currency:         "CHF",
				IsOnlineBookable: true,
			},
		},
		offerings: map[string][]models.StaffOffering{
			testServiceID: {
				{StaffID: testStaffID, StaffName: "Anna", IsActive: true},
			},
		},
		hours: []models.OpeningHours{
			{DayOfWeek: 0, IsClosed: true},
			{DayOfWeek: 1, IsClosed: true},
			{DayOfWeek: 2, OpensAt: str("09:00"), ClosesAt: str("18:30")},
			{DayOfWeek: 3, OpensAt: str("09:00"), ClosesAt: str("18:30")},
			{DayOfWeek: 4, OpensAt: str("09:00"), ClosesAt: str("18:30")},
			{DayOfWeek: 5, OpensAt: str("09:00"), ClosesAt: str("18:30")},
			{DayOfWeek: 6, OpensAt: str("09:00"), ClosesAt: str("16:00")},
		},
		settings:   models.DefaultBookingSettings(),
		byID:       map[string]*models.Appointment{},
		byKey:      map[string]*models.Appointment{},
		reschedMap: map[string]time.Time{},
	}
}

func str(s string) *string { return &s }

func (f *fakeStore) GetService(_ context.Context, id string) (*models.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return nil, fmt.Errorf("service: %w", response.ErrNotFound)
	}
	return svc, nil
}

func (f *fakeStore) ListStaffOfferings(_ context.Context, serviceID string) ([]models.StaffOffering, error) {
	return f.offerings[serviceID], nil
}

func (f *fakeStore) ListOpeningHours(_ context.Context) ([]models.OpeningHours, error) {
	return f.hours, nil
}

func (f *fakeStore) ListOpeningExceptions(_ context.Context, _, _ time.Time) ([]models.OpeningException, error) {
	return nil, nil
}

func (f *fakeStore) GetBookingSettings(_ context.Context) (models.BookingSettings, error) {
	return f.settings, nil
}

func (f *fakeStore) ListActiveAppointments(_ context.Context, staffIDs []string, from, to time.Time) ([]*models.Appointment, error) {
	wanted := make(map[string]bool, len(staffIDs))
	for _, id := range staffIDs {
		wanted[id] = true
	}

	var out []*models.Appointment
	for _, a := range f.byID {
		if !wanted[a.StaffID] || !a.Status.Active() {
			continue
		}
		if a.Start.Before(to) && from.Before(a.End) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) FindAppointmentByIdempotencyKey(_ context.Context, key string) (*models.Appointment, error) {
	a, ok := f.byKey[key]
	if !ok {
		return nil, fmt.Errorf("idempotency key: %w", response.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) GetAppointment(_ context.Context, id string) (*models.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("appointment: %w", response.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) ReserveAppointment(_ context.Context, res *models.BookingReservation) (*models.Appointment, error) {
	f.reserveCalls++

	for _, a := range f.byID {
		if a.StaffID != res.StaffID || !a.Status.Active() {
			continue
		}
		if a.Start.Before(res.End) && res.Start.Before(a.End) {
			return nil, fmt.Errorf("overlap: %w", response.ErrSlotNotAvailable)
		}
	}

	svc := f.services[res.ServiceID]
	a := &models.Appointment{
		ID:            res.AppointmentID,
		CustomerID:    res.CustomerID,
		StaffID:       res.StaffID,
		ServiceID:     res.ServiceID,
		Status:        models.AppointmentConfirmed,
		Start:         res.Start,
		End:           res.End,
		PriceCents:    res.PriceCents,
		Currency:      res.Currency,
		Notes:         res.Notes,
		ServiceName:   svc.Name,
		CustomerEmail: res.Customer.Email,
	}
	for _, o := range f.offerings[res.ServiceID] {
		if o.StaffID == res.StaffID {
			a.StaffName = o.StaffName
		}
	}

	f.byID[a.ID] = a
	f.byKey[res.IdempotencyKey] = a
	return a, nil
}

func (f *fakeStore) CancelAppointment(_ context.Context, id, reason, _ string, _ *string) error {
	f.cancelCalls++

	a, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("appointment: %w", response.ErrNotFound)
	}
	if a.Status == models.AppointmentCancelled {
		return response.ErrAlreadyCancelled
	}
	a.Status = models.AppointmentCancelled
	a.CancellationReason = &reason
	return nil
}

func (f *fakeStore) SaveRescheduleRequest(_ context.Context, id string, requestedStart time.Time, _ *string, _ string, _ *string) error {
	if _, ok := f.byID[id]; !ok {
		return fmt.Errorf("appointment: %w", response.ErrNotFound)
	}
	f.reschedMap[id] = requestedStart
	return nil
}

type fakeLocker struct {
	acquired bool
	locks    int
	unlocks  int
}

func (f *fakeLocker) Lock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.locks++
	return !f.acquired, nil
}

func (f *fakeLocker) Unlock(_ context.Context, _ string) error {
	f.unlocks++
	return nil
}

type fakeDispatcher struct {
	sent []notify.Message
}

func (f *fakeDispatcher) Send(_ context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	locker   *fakeLocker
	notifier *fakeDispatcher
	loc      *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	store := newFakeStore()
	locker := &fakeLocker{}
	notifier := &fakeDispatcher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(store, locker, notifier, log, loc, "reception@salon.local")
	// The day before the scenario date, so nothing is in the past.
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
	}

	return &fixture{svc: svc, store: store, locker: locker, notifier: notifier, loc: loc}
}

func (f *fixture) addAppointment(id, staffID string, start, end time.Time) *models.Appointment {
	a := &models.Appointment{
		ID:            id,
		StaffID:       staffID,
		ServiceID:     testServiceID,
		Status:        models.AppointmentConfirmed,
		Start:         start,
		End:           end,
		PriceCents:    8500,
		Currency:      "CHF",
		StaffName:     "Anna",
		ServiceName:   "Haircut",
		CustomerEmail: "existing@example.com",
	}
	f.store.byID[id] = a
	return a
}

func validCreateRequest() *api.BookingCreateRequest {
	return &api.BookingCreateRequest{
		IdempotencyKey: "key-1234567890",
		ServiceID:      testServiceID,
		Start:          "2026-03-03T14:00:00+01:00",
		Customer: api.CustomerInput{
			Email:          "lena@example.com",
			FirstName:      "Lena",
			LastName:       "Keller",
			MarketingOptIn: true,
		},
	}
}

// Availability

func TestGetAvailability_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		q    api.AvailabilityQuery
		want error
	}{
		{
			"bad service id",
			api.AvailabilityQuery{ServiceID: "nope", From: "2026-03-03T09:00:00+01:00", To: "2026-03-03T18:00:00+01:00"},
			response.ErrInvalidInput,
		},
		{
			"bad staff id",
			api.AvailabilityQuery{ServiceID: testServiceID, StaffID: str("nope"), From: "2026-03-03T09:00:00+01:00", To: "2026-03-03T18:00:00+01:00"},
			response.ErrInvalidInput,
		},
		{
			"unparseable from",
			api.AvailabilityQuery{ServiceID: testServiceID, From: "yesterday", To: "2026-03-03T18:00:00+01:00"},
			response.ErrInvalidInput,
		},
		{
			"to before from",
			api.AvailabilityQuery{ServiceID: testServiceID, From: "2026-03-03T18:00:00+01:00", To: "2026-03-03T09:00:00+01:00"},
			response.ErrInvalidInput,
		},
		{
			"range too large",
			api.AvailabilityQuery{ServiceID: testServiceID, From: "2026-03-03T09:00:00+01:00", To: "2026-04-10T09:00:01+02:00"},
			response.ErrRangeTooLarge,
		},
	}

	for _, c := range cases {
		if _, err := f.svc.GetAvailability(ctx, &c.q); !errors.Is(err, c.want) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
}

func TestGetAvailability_ServiceNotBookable(t *testing.T) {
	f := newFixture(t)
	f.store.services[testServiceID].IsOnlineBookable = false

	q := api.AvailabilityQuery{ServiceID: testServiceID, From: "2026-03-03T09:00:00+01:00", To: "2026-03-03T18:00:00+01:00"}
	if _, err := f.svc.GetAvailability(context.Background(), &q); !errors.Is(err, response.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetAvailability_NoStaff(t *testing.T) {
	f := newFixture(t)
	q := api.AvailabilityQuery{ServiceID: testServiceID, From: "2026-03-03T09:00:00+01:00", To: "2026-03-03T18:00:00+01:00"}

	f.store.offerings[testServiceID] = nil
	if _, err := f.svc.GetAvailability(context.Background(), &q); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for no offerings, got %v", err)
	}

	f.store.offerings[testServiceID] = []models.StaffOffering{
		{StaffID: testStaffID, StaffName: "Anna", IsActive: false},
	}
	if _, err := f.svc.GetAvailability(context.Background(), &q); !errors.Is(err, response.ErrConflict) {
		t.Fatalf("expected ErrConflict for inactive staff, got %v", err)
	}
}

func TestGetAvailability_SlotsAroundExistingAppointment(t *testing.T) {
	f := newFixture(t)

	// Tuesday, open 09:00-18:30. Existing 10:00-11:00 appointment plus the
	// 10/5 minute buffers blocks everything before 11:15 for a 60 minute
	// service.
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 10, 0, 0, 0, f.loc),
		time.Date(2026, 3, 3, 11, 0, 0, 0, f.loc),
	)

	q := api.AvailabilityQuery{
		ServiceID: testServiceID,
		From:      "2026-03-03T09:00:00+01:00",
		To:        "2026-03-03T18:30:00+01:00",
	}
	resp, err := f.svc.GetAvailability(context.Background(), &q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Staff) != 1 {
		t.Fatalf("expected 1 staff entry, got %d", len(resp.Staff))
	}
	entry := resp.Staff[0]
	if entry.StaffID != testStaffID || entry.StaffName != "Anna" {
		t.Fatalf("unexpected staff entry %+v", entry)
	}
	if len(entry.Slots) == 0 {
		t.Fatalf("expected slots")
	}

	first := entry.Slots[0]
	if !first.Start.Equal(time.Date(2026, 3, 3, 11, 15, 0, 0, f.loc)) {
		t.Fatalf("expected first slot 11:15, got %s", first.Start)
	}
	if first.DurationMinutes != 60 {
		t.Fatalf("expected 60 minute slots, got %d", first.DurationMinutes)
	}

	busyStart := time.Date(2026, 3, 3, 9, 50, 0, 0, f.loc)
	busyEnd := time.Date(2026, 3, 3, 11, 5, 0, 0, f.loc)
	for i, s := range entry.Slots {
		bufferedStart := s.Start.Add(-10 * time.Minute)
		bufferedEnd := s.End.Add(5 * time.Minute)
		if bufferedStart.Before(busyEnd) && busyStart.Before(bufferedEnd) {
			t.Fatalf("slot %d starting %s conflicts with the buffered appointment", i, s.Start)
		}
		if i > 0 && !entry.Slots[i-1].Start.Before(s.Start) {
			t.Fatalf("slots out of order at %d", i)
		}
	}
}

func TestGetAvailability_ClosedDayYieldsNothing(t *testing.T) {
	f := newFixture(t)

	// Monday is closed in the default week.
	q := api.AvailabilityQuery{
		ServiceID: testServiceID,
		From:      "2026-03-02T09:00:00+01:00",
		To:        "2026-03-02T18:00:00+01:00",
	}
	resp, err := f.svc.GetAvailability(context.Background(), &q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Staff) != 0 {
		t.Fatalf("expected no staff entries on a closed day, got %d", len(resp.Staff))
	}
}

func TestGetAvailability_StaffFilter(t *testing.T) {
	f := newFixture(t)
	f.store.offerings[testServiceID] = []models.StaffOffering{
		{StaffID: testStaffID, StaffName: "Anna", IsActive: true},
		{StaffID: testStaffID2, StaffName: "Mia", IsActive: true},
	}

	staffID := testStaffID2
	q := api.AvailabilityQuery{
		ServiceID: testServiceID,
		StaffID:   &staffID,
		From:      "2026-03-03T09:00:00+01:00",
		To:        "2026-03-03T18:30:00+01:00",
	}
	resp, err := f.svc.GetAvailability(context.Background(), &q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Staff) != 1 || resp.Staff[0].StaffID != testStaffID2 {
		t.Fatalf("expected only Mia, got %+v", resp.Staff)
	}
}

// Bookings

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := validCreateRequest()
	req.IdempotencyKey = "short"
	if _, err := f.svc.CreateBooking(ctx, req, models.Actor{}); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short key, got %v", err)
	}

	req = validCreateRequest()
	req.Customer.Email = ""
	if _, err := f.svc.CreateBooking(ctx, req, models.Actor{}); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing email, got %v", err)
	}

	req = validCreateRequest()
	req.Start = "tomorrow at noon"
	if _, err := f.svc.CreateBooking(ctx, req, models.Actor{}); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad start, got %v", err)
	}

	if f.store.reserveCalls != 0 {
		t.Fatalf("validation failures must not reach the store, got %d reserve calls", f.store.reserveCalls)
	}
}

func TestCreateBooking_HappyPath(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.CreateBooking(context.Background(), validCreateRequest(), models.Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Status != string(models.AppointmentConfirmed) {
		t.Fatalf("expected confirmed, got %s", resp.Status)
	}
	if resp.WasDuplicate {
		t.Fatalf("first booking must not be a duplicate")
	}
	if !resp.Start.Equal(time.Date(2026, 3, 3, 14, 0, 0, 0, f.loc)) {
		t.Fatalf("unexpected start %s", resp.Start)
	}
	if !resp.End.Equal(resp.Start.Add(60 * time.Minute)) {
		t.Fatalf("expected 60 minute booking, got end %s", resp.End)
	}
	if resp.StaffID != testStaffID || resp.PriceCents != 8500 || resp.Currency != "CHF" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if f.locker.locks != 1 || f.locker.unlocks != 1 {
		t.Fatalf("expected lock/unlock once, got %d/%d", f.locker.locks, f.locker.unlocks)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].To != "lena@example.com" {
		t.Fatalf("expected confirmation email to the customer, got %+v", f.notifier.sent)
	}
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateBooking(ctx, validCreateRequest(), models.Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := f.svc.CreateBooking(ctx, validCreateRequest(), models.Actor{})
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}

	if !second.WasDuplicate {
		t.Fatalf("expected replay to be flagged as duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different appointment: %s vs %s", second.ID, first.ID)
	}
	if f.store.reserveCalls != 1 {
		t.Fatalf("replay must not reserve again, got %d reserve calls", f.store.reserveCalls)
	}
	if f.locker.locks != 1 {
		t.Fatalf("replay must not take the lock, got %d lock calls", f.locker.locks)
	}
}

func TestCreateBooking_Locked(t *testing.T) {
	f := newFixture(t)
	f.locker.acquired = true

	if _, err := f.svc.CreateBooking(context.Background(), validCreateRequest(), models.Actor{}); !errors.Is(err, response.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if f.store.reserveCalls != 0 {
		t.Fatalf("a held lock must prevent the reservation")
	}
}

func TestCreateBooking_SlotTaken(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 14, 30, 0, 0, f.loc),
		time.Date(2026, 3, 3, 15, 30, 0, 0, f.loc),
	)

	if _, err := f.svc.CreateBooking(context.Background(), validCreateRequest(), models.Actor{}); !errors.Is(err, response.ErrSlotNotAvailable) {
		t.Fatalf("expected ErrSlotNotAvailable, got %v", err)
	}
	if f.locker.unlocks != 1 {
		t.Fatalf("lock must be released on failure, got %d unlocks", f.locker.unlocks)
	}
}

func TestCreateBooking_SequentialOverlapRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateBooking(ctx, validCreateRequest(), models.Actor{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := validCreateRequest()
	second.IdempotencyKey = "key-0987654321"
	second.Start = "2026-03-03T14:30:00+01:00"
	if _, err := f.svc.CreateBooking(ctx, second, models.Actor{}); !errors.Is(err, response.ErrSlotNotAvailable) {
		t.Fatalf("expected second overlapping booking to fail, got %v", err)
	}
}

func TestCreateBooking_DeterministicStaffPickAndOverrides(t *testing.T) {
	f := newFixture(t)
	shortCut := 45
	f.store.offerings[testServiceID] = []models.StaffOffering{
		{StaffID: testStaffID, StaffName: "Anna", IsActive: true, DurationMinutes: &shortCut},
		{StaffID: testStaffID2, StaffName: "Mia", IsActive: true},
	}

	resp, err := f.svc.CreateBooking(context.Background(), validCreateRequest(), models.Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.StaffID != testStaffID {
		t.Fatalf("expected the first listed staff member, got %s", resp.StaffID)
	}
	if !resp.End.Equal(resp.Start.Add(45 * time.Minute)) {
		t.Fatalf("expected the staff duration override, got end %s", resp.End)
	}
}

func TestGetBooking(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 10, 0, 0, 0, f.loc),
		time.Date(2026, 3, 3, 11, 0, 0, 0, f.loc),
	)

	resp, err := f.svc.GetBooking(context.Background(), testApptID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != testApptID || resp.ServiceName != "Haircut" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if _, err := f.svc.GetBooking(context.Background(), "not-a-uuid"); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.GetBooking(context.Background(), testStaffID2); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Cancellation

func TestCancelBooking_OutsideWindow(t *testing.T) {
	f := newFixture(t)
	// now is 2026-03-02 08:00, appointment is 30 hours away.
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 14, 0, 0, 0, f.loc),
		time.Date(2026, 3, 3, 15, 0, 0, 0, f.loc),
	)

	resp, err := f.svc.CancelBooking(context.Background(), testApptID, "cannot make it", models.Actor{Roles: []models.Role{models.RoleCustomer}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != string(models.AppointmentCancelled) {
		t.Fatalf("expected cancelled, got %s", resp.Status)
	}
	if f.store.cancelCalls != 1 {
		t.Fatalf("expected one cancel call, got %d", f.store.cancelCalls)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].To != "existing@example.com" {
		t.Fatalf("expected cancellation email to the customer, got %+v", f.notifier.sent)
	}
}

func TestCancelBooking_InsideWindow(t *testing.T) {
	f := newFixture(t)
	// 5 hours away, inside the 24 hour window.
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 2, 13, 0, 0, 0, f.loc),
		time.Date(2026, 3, 2, 14, 0, 0, 0, f.loc),
	)

	_, err := f.svc.CancelBooking(context.Background(), testApptID, "cannot make it", models.Actor{Roles: []models.Role{models.RoleCustomer}})
	if !errors.Is(err, response.ErrCancellationWindow) {
		t.Fatalf("expected ErrCancellationWindow, got %v", err)
	}
	if f.store.cancelCalls != 0 {
		t.Fatalf("window rejection must not cancel")
	}

	// Reception overrides the window.
	resp, err := f.svc.CancelBooking(context.Background(), testApptID, "customer called in", models.Actor{ID: testStaffID2, Roles: []models.Role{models.RoleReception}})
	if err != nil {
		t.Fatalf("unexpected error for reception: %v", err)
	}
	if resp.Status != string(models.AppointmentCancelled) {
		t.Fatalf("expected cancelled, got %s", resp.Status)
	}
}

func TestCancelBooking_Validation(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 14, 0, 0, 0, f.loc),
		time.Date(2026, 3, 3, 15, 0, 0, 0, f.loc),
	)
	ctx := context.Background()

	if _, err := f.svc.CancelBooking(ctx, testApptID, "x", models.Actor{}); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a too-short reason, got %v", err)
	}
	if _, err := f.svc.CancelBooking(ctx, "not-a-uuid", "cannot make it", models.Actor{}); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a bad id, got %v", err)
	}

	f.store.byID[testApptID].Status = models.AppointmentCancelled
	if _, err := f.svc.CancelBooking(ctx, testApptID, "cannot make it", models.Actor{}); !errors.Is(err, response.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}

// Reschedule

func TestRequestReschedule(t *testing.T) {
	f := newFixture(t)
	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 14, 0, 0, 0, f.loc),
		time.Date(2026, 3, 3, 15, 0, 0, 0, f.loc),
	)

	req := &api.RescheduleRequest{RequestedStart: "2026-03-05T10:00:00+01:00"}
	if err := f.svc.RequestReschedule(context.Background(), testApptID, req, models.Actor{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := f.store.reschedMap[testApptID]
	if !ok {
		t.Fatalf("expected a recorded reschedule request")
	}
	if !got.Equal(time.Date(2026, 3, 5, 10, 0, 0, 0, f.loc)) {
		t.Fatalf("unexpected requested start %s", got)
	}

	// Appointment keeps its slot; only the ops inbox is notified.
	if f.store.byID[testApptID].Status != models.AppointmentConfirmed {
		t.Fatalf("reschedule request must not change the appointment")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].To != "reception@salon.local" {
		t.Fatalf("expected an ops notification, got %+v", f.notifier.sent)
	}
}

func TestRequestReschedule_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := &api.RescheduleRequest{RequestedStart: "2026-03-05T10:00:00+01:00"}
	if err := f.svc.RequestReschedule(ctx, testApptID, req, models.Actor{}); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	f.addAppointment(testApptID, testStaffID,
		time.Date(2026, 3, 3, 14, 0, 0, 0, f.loc),
		time.Date(2026, 3, 3, 15, 0, 0, 0, f.loc),
	)
	bad := &api.RescheduleRequest{RequestedStart: "next tuesday"}
	if err := f.svc.RequestReschedule(ctx, testApptID, bad, models.Actor{}); !errors.Is(err, response.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
