package booking

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healguid/booking-api/internal/calendar"
	"github.com/healguid/booking-api/internal/practitioners"
	"github.com/healguid/booking-api/pkg/logging"
)

type fakeStore struct {
	createFn            func(ctx context.Context, req *CreateRequest) (*Booking, error)
	getByIDFn           func(ctx context.Context, id int64) (*Booking, error)
	getDetailFn         func(ctx context.Context, id int64) (*Detail, error)
	findBySessionFn     func(ctx context.Context, sessionID string) (*Booking, error)
	setPaymentSessionFn func(ctx context.Context, id int64, sessionID string) error
	transitionFn        func(ctx context.Context, id int64, to Status) (bool, error)

	transitions []Status
}

func (f *fakeStore) Create(ctx context.Context, req *CreateRequest) (*Booking, error) {
	return f.createFn(ctx, req)
}

func (f *fakeStore) GetByID(ctx context.Context, id int64) (*Booking, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeStore) GetDetail(ctx context.Context, id int64) (*Detail, error) {
	return f.getDetailFn(ctx, id)
}

func (f *fakeStore) FindByPaymentSession(ctx context.Context, sessionID string) (*Booking, error) {
	return f.findBySessionFn(ctx, sessionID)
}

func (f *fakeStore) SetPaymentSession(ctx context.Context, id int64, sessionID string) error {
	return f.setPaymentSessionFn(ctx, id, sessionID)
}

func (f *fakeStore) Transition(ctx context.Context, id int64, to Status) (bool, error) {
	f.transitions = append(f.transitions, to)
	return f.transitionFn(ctx, id, to)
}

type fakePractitioners struct {
	practitioner *practitioners.Practitioner
	err          error
}

func (f *fakePractitioners) GetByID(context.Context, int64) (*practitioners.Practitioner, error) {
	return f.practitioner, f.err
}

type fakeCalendar struct {
	availability *calendar.Availability
	err          error
	calls        int
}

func (f *fakeCalendar) FetchAvailability(context.Context, string) (*calendar.Availability, error) {
	f.calls++
	return f.availability, f.err
}

type fakeGateway struct {
	session *CheckoutSession
	err     error
	params  CheckoutParams
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, params CheckoutParams) (*CheckoutSession, error) {
	f.params = params
	return f.session, f.err
}

var testSlot = time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC)

func testPractitioner() *practitioners.Practitioner {
	return &practitioners.Practitioner{
		ID:             1,
		Name:           "Dr. Emily Carter",
		Title:          "Functional Medicine Practitioner",
		EventTypeID:    "mock-event-1",
		BasePricePence: 8000,
	}
}

func validRequest() *CreateRequest {
	return &CreateRequest{
		PractitionerID: 1,
		Slot:           testSlot,
		Name:           "Jamie Doe",
		Email:          "jamie@example.com",
		Phone:          "+447700900000",
	}
}

func availabilityWith(starts ...time.Time) *calendar.Availability {
	av := &calendar.Availability{}
	for _, s := range starts {
		av.Slots = append(av.Slots, calendar.Slot{Start: s, End: s.Add(time.Hour), Duration: 60})
	}
	return av
}

func newTestService(store *fakeStore, pracs *fakePractitioners, cal *fakeCalendar, gw *fakeGateway) *Service {
	return NewService(store, pracs, cal, gw, logging.NewWithWriter("error", io.Discard), nil)
}

func TestCreateHappyPath(t *testing.T) {
	created := &Booking{ID: 42, PractitionerID: 1, Slot: testSlot, Status: StatusPending}
	store := &fakeStore{
		createFn: func(_ context.Context, req *CreateRequest) (*Booking, error) {
			assert.Equal(t, int64(1), req.PractitionerID)
			return created, nil
		},
		setPaymentSessionFn: func(_ context.Context, id int64, sessionID string) error {
			assert.Equal(t, int64(42), id)
			assert.Equal(t, "cs_test_123", sessionID)
			return nil
		},
	}
	gw := &fakeGateway{session: &CheckoutSession{ID: "cs_test_123", URL: "https://checkout.example/cs_test_123"}}
	svc := newTestService(store,
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{availability: availabilityWith(testSlot)},
		gw,
	)

	url, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_test_123", url)

	assert.Equal(t, int64(42), gw.params.BookingID)
	assert.Equal(t, int64(8000), gw.params.AmountMinorUnits)
	assert.Equal(t, "gbp", gw.params.Currency)
	assert.Contains(t, gw.params.Description, "Dr. Emily Carter")
	assert.Empty(t, store.transitions)
}

func TestCreateInvalidPayload(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	tests := []struct {
		name string
		req  *CreateRequest
	}{
		{"missing practitioner", &CreateRequest{Slot: testSlot, Name: "a", Email: "b", Phone: "c"}},
		{"missing slot", &CreateRequest{PractitionerID: 1, Name: "a", Email: "b", Phone: "c"}},
		{"blank name", &CreateRequest{PractitionerID: 1, Slot: testSlot, Name: "  ", Email: "b", Phone: "c"}},
		{"missing email", &CreateRequest{PractitionerID: 1, Slot: testSlot, Name: "a", Phone: "c"}},
		{"missing phone", &CreateRequest{PractitionerID: 1, Slot: testSlot, Name: "a", Email: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestCreatePractitionerNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{},
		&fakePractitioners{err: practitioners.ErrNotFound},
		&fakeCalendar{}, &fakeGateway{})

	_, err := svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrPractitionerNotFound)
}

func TestCreateSlotNotOffered(t *testing.T) {
	cal := &fakeCalendar{availability: availabilityWith(testSlot.Add(time.Hour))}
	svc := newTestService(&fakeStore{}, &fakePractitioners{practitioner: testPractitioner()}, cal, &fakeGateway{})

	_, err := svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrInvalidSlot)
	assert.Equal(t, 1, cal.calls)
}

func TestCreateProviderDownFailOpen(t *testing.T) {
	created := &Booking{ID: 7, Status: StatusPending}
	store := &fakeStore{
		createFn:            func(context.Context, *CreateRequest) (*Booking, error) { return created, nil },
		setPaymentSessionFn: func(context.Context, int64, string) error { return nil },
	}
	svc := newTestService(store,
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{err: calendar.ErrProviderUnavailable},
		&fakeGateway{session: &CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}},
	)

	url, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestCreateProviderDownFailClosed(t *testing.T) {
	svc := newTestService(&fakeStore{},
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{err: calendar.ErrProviderUnavailable},
		&fakeGateway{},
	).WithSlotFailClosed(true)

	_, err := svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrSlotUnverifiable)
}

func TestCreateCheckoutFailureCompensates(t *testing.T) {
	created := &Booking{ID: 9, Status: StatusPending}
	store := &fakeStore{
		createFn:     func(context.Context, *CreateRequest) (*Booking, error) { return created, nil },
		transitionFn: func(context.Context, int64, Status) (bool, error) { return true, nil },
	}
	svc := newTestService(store,
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{availability: availabilityWith(testSlot)},
		&fakeGateway{err: errors.New("stripe: connection refused")},
	)

	_, err := svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	require.Len(t, store.transitions, 1)
	assert.Equal(t, StatusFailed, store.transitions[0])
}

func TestCreateCheckoutMissingURL(t *testing.T) {
	created := &Booking{ID: 10, Status: StatusPending}
	store := &fakeStore{
		createFn:            func(context.Context, *CreateRequest) (*Booking, error) { return created, nil },
		setPaymentSessionFn: func(context.Context, int64, string) error { return nil },
		transitionFn:        func(context.Context, int64, Status) (bool, error) { return true, nil },
	}
	svc := newTestService(store,
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{availability: availabilityWith(testSlot)},
		&fakeGateway{session: &CheckoutSession{ID: "cs_2", URL: ""}},
	)

	_, err := svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrNoCheckoutURL)
	require.Len(t, store.transitions, 1)
	assert.Equal(t, StatusFailed, store.transitions[0])
}

func TestCreateCompensationRetriesOnce(t *testing.T) {
	created := &Booking{ID: 11, Status: StatusPending}
	attempts := 0
	store := &fakeStore{
		createFn: func(context.Context, *CreateRequest) (*Booking, error) { return created, nil },
		transitionFn: func(context.Context, int64, Status) (bool, error) {
			attempts++
			if attempts == 1 {
				return false, errors.New("db: connection reset")
			}
			return true, nil
		},
	}
	svc := newTestService(store,
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{availability: availabilityWith(testSlot)},
		&fakeGateway{err: errors.New("stripe: timeout")},
	)

	_, err := svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	assert.Equal(t, 2, attempts)
}

func TestCreateCompensationSurvivesClientDisconnect(t *testing.T) {
	created := &Booking{ID: 12, Status: StatusPending}
	store := &fakeStore{
		createFn: func(context.Context, *CreateRequest) (*Booking, error) { return created, nil },
		transitionFn: func(ctx context.Context, _ int64, _ Status) (bool, error) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return true, nil
		},
	}
	svc := newTestService(store,
		&fakePractitioners{practitioner: testPractitioner()},
		&fakeCalendar{availability: availabilityWith(testSlot)},
		&fakeGateway{err: errors.New("stripe: broken pipe")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, validRequest())
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	require.Len(t, store.transitions, 1)
	assert.Equal(t, StatusFailed, store.transitions[0])
}

func TestConfirmFromPaymentByMetadata(t *testing.T) {
	store := &fakeStore{
		getByIDFn: func(_ context.Context, id int64) (*Booking, error) {
			assert.Equal(t, int64(42), id)
			return &Booking{ID: 42, Status: StatusPending}, nil
		},
		transitionFn: func(_ context.Context, id int64, to Status) (bool, error) {
			assert.Equal(t, StatusConfirmed, to)
			return true, nil
		},
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	err := svc.ConfirmFromPayment(context.Background(), 42, "cs_test_123")
	require.NoError(t, err)
	require.Len(t, store.transitions, 1)
}

func TestConfirmFromPaymentSessionFallback(t *testing.T) {
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) { return nil, ErrNotFound },
		findBySessionFn: func(_ context.Context, sessionID string) (*Booking, error) {
			assert.Equal(t, "cs_test_123", sessionID)
			return &Booking{ID: 42, Status: StatusPending}, nil
		},
		transitionFn: func(context.Context, int64, Status) (bool, error) { return true, nil },
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	err := svc.ConfirmFromPayment(context.Background(), 999, "cs_test_123")
	require.NoError(t, err)
	require.Len(t, store.transitions, 1)
}

func TestConfirmFromPaymentUnmatched(t *testing.T) {
	store := &fakeStore{
		getByIDFn:       func(context.Context, int64) (*Booking, error) { return nil, ErrNotFound },
		findBySessionFn: func(context.Context, string) (*Booking, error) { return nil, ErrNotFound },
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	err := svc.ConfirmFromPayment(context.Background(), 5, "cs_unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.transitions)
}

func TestConfirmFromPaymentAlreadyConfirmed(t *testing.T) {
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) {
			return &Booking{ID: 42, Status: StatusConfirmed}, nil
		},
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	err := svc.ConfirmFromPayment(context.Background(), 42, "cs_test_123")
	require.NoError(t, err)
	assert.Empty(t, store.transitions)
}

func TestConfirmFromPaymentAfterCancelStaysCancelled(t *testing.T) {
	status := StatusCancelled
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) {
			return &Booking{ID: 42, Status: status}, nil
		},
		transitionFn: func(context.Context, int64, Status) (bool, error) { return false, nil },
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	err := svc.ConfirmFromPayment(context.Background(), 42, "cs_test_123")
	require.NoError(t, err)
	require.Len(t, store.transitions, 1)
	assert.Equal(t, StatusCancelled, status)
}

func TestCancelPending(t *testing.T) {
	status := StatusPending
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) {
			return &Booking{ID: 42, Status: status}, nil
		},
		transitionFn: func(context.Context, int64, Status) (bool, error) {
			status = StatusCancelled
			return true, nil
		},
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	b, err := svc.Cancel(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, b.Status)
}

func TestCancelIdempotent(t *testing.T) {
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) {
			return &Booking{ID: 42, Status: StatusCancelled}, nil
		},
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	b, err := svc.Cancel(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Empty(t, store.transitions)
}

func TestCancelLostRaceReturnsCurrent(t *testing.T) {
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) {
			return &Booking{ID: 42, Status: StatusFailed}, nil
		},
		transitionFn: func(context.Context, int64, Status) (bool, error) { return false, nil },
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	b, err := svc.Cancel(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, b.Status)
}

func TestCancelNotFound(t *testing.T) {
	store := &fakeStore{
		getByIDFn: func(context.Context, int64) (*Booking, error) { return nil, ErrNotFound },
	}
	svc := newTestService(store, &fakePractitioners{}, &fakeCalendar{}, &fakeGateway{})

	_, err := svc.Cancel(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
