package allocation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karangupta982/smart-event-booking-system/allocation"
	"github.com/karangupta982/smart-event-booking-system/entity"
	"github.com/karangupta982/smart-event-booking-system/event"
)

func TestAllocate(t *testing.T) {
	e := testEvent(5, 5, 1500)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{}
	allocator := allocation.NewAllocator(store, broadcaster)

	booking, remaining, err := allocator.Allocate(context.Background(), allocation.Request{
		EventID:  e.ID,
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Contact:  "0123456789",
		Quantity: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, remaining)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, e.ID, booking.EventID)
	assert.Equal(t, 3, booking.Quantity)
	assert.Equal(t, int64(4500), booking.TotalAmountCents)
	assert.Equal(t, entity.StatusConfirmed, booking.Status)
	assert.False(t, booking.CreatedAt.IsZero())

	assert.Equal(t, 2, store.remainingSeats(e.ID))
	require.Len(t, store.committedBookings(), 1)
	assert.Equal(t, booking.ID, store.committedBookings()[0].ID)

	require.Len(t, broadcaster.all(), 1)
	assert.Equal(t, e.ID, broadcaster.all()[0].EventID)
	assert.Equal(t, 2, broadcaster.all()[0].RemainingSeats)
}

func TestAllocateRejectsInvalidInput(t *testing.T) {
	e := testEvent(5, 5, 1000)

	tests := map[string]struct {
		req     allocation.Request
		wantErr error
	}{
		"zero quantity": {
			req:     allocation.Request{EventID: e.ID, Name: "a", Email: "a@b.c", Quantity: 0},
			wantErr: entity.ErrInvalidQuantity,
		},
		"negative quantity": {
			req:     allocation.Request{EventID: e.ID, Name: "a", Email: "a@b.c", Quantity: -2},
			wantErr: entity.ErrInvalidQuantity,
		},
		"missing event id": {
			req:     allocation.Request{Name: "a", Email: "a@b.c", Quantity: 1},
			wantErr: entity.ErrMissingField,
		},
		"missing name": {
			req:     allocation.Request{EventID: e.ID, Email: "a@b.c", Quantity: 1},
			wantErr: entity.ErrMissingField,
		},
		"missing email": {
			req:     allocation.Request{EventID: e.ID, Name: "a", Quantity: 1},
			wantErr: entity.ErrMissingField,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := newMemStore(e)
			broadcaster := &fakeBroadcaster{}
			allocator := allocation.NewAllocator(store, broadcaster)

			_, _, err := allocator.Allocate(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.wantErr)

			assert.Equal(t, 5, store.remainingSeats(e.ID))
			assert.Empty(t, store.committedBookings())
			assert.Empty(t, broadcaster.all())
		})
	}
}

func TestAllocateEventNotFound(t *testing.T) {
	e := testEvent(5, 5, 1000)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{}
	allocator := allocation.NewAllocator(store, broadcaster)

	_, _, err := allocator.Allocate(context.Background(), allocation.Request{
		EventID:  uuid.NewString(),
		Name:     "a",
		Email:    "a@b.c",
		Quantity: 1,
	})
	require.ErrorIs(t, err, entity.ErrEventNotFound)

	assert.Equal(t, 5, store.remainingSeats(e.ID))
	assert.Empty(t, store.committedBookings())
	assert.Empty(t, broadcaster.all())
}

func TestAllocateSequentialExhaustion(t *testing.T) {
	e := testEvent(5, 5, 1000)
	store := newMemStore(e)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	req := allocation.Request{EventID: e.ID, Name: "a", Email: "a@b.c", Quantity: 2}

	_, remaining, err := allocator.Allocate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	_, remaining, err = allocator.Allocate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, _, err = allocator.Allocate(context.Background(), req)
	require.ErrorIs(t, err, entity.ErrInsufficientSeats)
	assert.Equal(t, 1, store.remainingSeats(e.ID))
	assert.Len(t, store.committedBookings(), 2)
}

func TestAllocateQuantityAboveTotal(t *testing.T) {
	e := testEvent(10, 10, 1000)
	store := newMemStore(e)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	_, _, err := allocator.Allocate(context.Background(), allocation.Request{
		EventID:  e.ID,
		Name:     "a",
		Email:    "a@b.c",
		Quantity: 11,
	})
	require.ErrorIs(t, err, entity.ErrInsufficientSeats)
	assert.Equal(t, 10, store.remainingSeats(e.ID))
}

func TestAllocateConcurrentContention(t *testing.T) {
	e := testEvent(10, 10, 1000)
	store := newMemStore(e)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _, err := allocator.Allocate(context.Background(), allocation.Request{
				EventID:  e.ID,
				Name:     "a",
				Email:    "a@b.c",
				Quantity: 6,
			})
			errs <- err
		}()
	}

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}

	require.Len(t, failures, 1, "exactly one of the two requests must fail")
	require.ErrorIs(t, failures[0], entity.ErrInsufficientSeats)
	assert.Equal(t, 4, store.remainingSeats(e.ID))
	assert.Len(t, store.committedBookings(), 1)
}

func TestAllocateNeverOversells(t *testing.T) {
	const (
		capacity   = 25
		workers    = 20
		perRequest = 2
	)

	e := testEvent(capacity, capacity, 1000)
	store := newMemStore(e)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, _, err := allocator.Allocate(context.Background(), allocation.Request{
				EventID:  e.ID,
				Name:     "a",
				Email:    "a@b.c",
				Quantity: perRequest,
			})
			errs <- err
		}()
	}

	var succeeded int
	for i := 0; i < workers; i++ {
		err := <-errs
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, entity.ErrInsufficientSeats)
	}

	var booked int
	for _, b := range store.committedBookings() {
		booked += b.Quantity
	}

	assert.Equal(t, succeeded*perRequest, booked)
	assert.LessOrEqual(t, booked, capacity)
	assert.Equal(t, capacity-booked, store.remainingSeats(e.ID))
	assert.Equal(t, 12, succeeded, "25 seats admit exactly 12 requests of 2")
}

func TestAllocateRollsBackOnStoreFailure(t *testing.T) {
	e := testEvent(5, 5, 1000)
	store := newMemStore(e)
	store.addBookingErr = errors.Join(entity.ErrStoreUnavailable, errors.New("insert failed"))
	broadcaster := &fakeBroadcaster{}
	allocator := allocation.NewAllocator(store, broadcaster)

	_, _, err := allocator.Allocate(context.Background(), allocation.Request{
		EventID:  e.ID,
		Name:     "a",
		Email:    "a@b.c",
		Quantity: 2,
	})
	require.ErrorIs(t, err, entity.ErrStoreUnavailable)

	assert.Equal(t, 5, store.remainingSeats(e.ID))
	assert.Empty(t, store.committedBookings())
	assert.Empty(t, broadcaster.all())
}

func TestAllocateRollsBackOnPublishFailure(t *testing.T) {
	e := testEvent(5, 5, 1000)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{err: errors.New("outbox write failed")}
	allocator := allocation.NewAllocator(store, broadcaster)

	_, _, err := allocator.Allocate(context.Background(), allocation.Request{
		EventID:  e.ID,
		Name:     "a",
		Email:    "a@b.c",
		Quantity: 2,
	})
	require.Error(t, err)

	assert.Equal(t, 5, store.remainingSeats(e.ID))
	assert.Empty(t, store.committedBookings())
}

func TestAllocateIndependentEvents(t *testing.T) {
	x := testEvent(5, 5, 1000)
	y := testEvent(5, 5, 1000)
	store := newMemStore(x, y)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	entered := make(chan struct{})
	release := make(chan struct{})
	store.blockAddBooking(x.ID, entered, release)

	done := make(chan error, 1)
	go func() {
		_, _, err := allocator.Allocate(context.Background(), allocation.Request{
			EventID:  x.ID,
			Name:     "a",
			Email:    "a@b.c",
			Quantity: 1,
		})
		done <- err
	}()

	// x's allocation now holds x's lock mid-transaction.
	<-entered

	allocY := make(chan error, 1)
	go func() {
		_, _, err := allocator.Allocate(context.Background(), allocation.Request{
			EventID:  y.ID,
			Name:     "a",
			Email:    "a@b.c",
			Quantity: 1,
		})
		allocY <- err
	}()

	select {
	case err := <-allocY:
		require.NoError(t, err, "allocation on y must not wait for x")
	case <-time.After(2 * time.Second):
		t.Fatal("allocation on y blocked behind x's transaction")
	}

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 4, store.remainingSeats(x.ID))
	assert.Equal(t, 4, store.remainingSeats(y.ID))
}

func TestUpdateEvent(t *testing.T) {
	e := testEvent(10, 7, 1000)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{}
	allocator := allocation.NewAllocator(store, broadcaster)

	updated, err := allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
		EventID:        e.ID,
		Title:          "Go Conference (rescheduled)",
		Location:       "Munich",
		Date:           e.Date.Add(48 * time.Hour),
		TotalSeats:     20,
		UnitPriceCents: 1500,
	})
	require.NoError(t, err)

	assert.Equal(t, "Go Conference (rescheduled)", updated.Title)
	assert.Equal(t, 20, updated.TotalSeats)
	assert.Equal(t, 7, updated.RemainingSeats, "nil remaining keeps the current count")
	assert.Equal(t, int64(1500), updated.UnitPriceCents)

	assert.Equal(t, 7, store.remainingSeats(e.ID))
	assert.Empty(t, broadcaster.all(), "unchanged seat count must not be broadcast")
}

func TestUpdateEventBroadcastsSeatChange(t *testing.T) {
	e := testEvent(10, 7, 1000)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{}
	allocator := allocation.NewAllocator(store, broadcaster)

	updated, err := allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
		EventID:        e.ID,
		Title:          e.Title,
		Location:       e.Location,
		Date:           e.Date,
		TotalSeats:     10,
		RemainingSeats: intPtr(3),
		UnitPriceCents: e.UnitPriceCents,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, updated.RemainingSeats)
	assert.Equal(t, 3, store.remainingSeats(e.ID))

	require.Len(t, broadcaster.all(), 1)
	assert.Equal(t, e.ID, broadcaster.all()[0].EventID)
	assert.Equal(t, 3, broadcaster.all()[0].RemainingSeats)
}

func TestUpdateEventClampsRemaining(t *testing.T) {
	tests := map[string]struct {
		total     int
		remaining *int
		want      int
	}{
		"above total":          {total: 100, remaining: intPtr(150), want: 100},
		"negative":             {total: 100, remaining: intPtr(-5), want: 0},
		"kept above new total": {total: 5, remaining: nil, want: 5},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := testEvent(10, 10, 1000)
			store := newMemStore(e)
			allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

			updated, err := allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
				EventID:        e.ID,
				Title:          e.Title,
				Location:       e.Location,
				Date:           e.Date,
				TotalSeats:     tc.total,
				RemainingSeats: tc.remaining,
				UnitPriceCents: e.UnitPriceCents,
			})
			require.NoError(t, err)

			assert.Equal(t, tc.want, updated.RemainingSeats)
			assert.Equal(t, tc.want, store.remainingSeats(e.ID))
		})
	}
}

func TestUpdateEventRejectsInvalidInput(t *testing.T) {
	e := testEvent(10, 10, 1000)
	store := newMemStore(e)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	_, err := allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
		Title: "a", Location: "b", Date: e.Date, TotalSeats: 10,
	})
	require.ErrorIs(t, err, entity.ErrMissingField)

	_, err = allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
		EventID: e.ID, Title: "a", Location: "b", Date: e.Date, TotalSeats: 0,
	})
	require.ErrorIs(t, err, entity.ErrInvalidQuantity)
}

func TestUpdateEventNotFound(t *testing.T) {
	e := testEvent(10, 10, 1000)
	store := newMemStore(e)
	allocator := allocation.NewAllocator(store, &fakeBroadcaster{})

	_, err := allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
		EventID:    uuid.NewString(),
		Title:      "a",
		Location:   "b",
		Date:       e.Date,
		TotalSeats: 10,
	})
	require.ErrorIs(t, err, entity.ErrEventNotFound)
}

func TestUpdateEventRollsBackOnPublishFailure(t *testing.T) {
	e := testEvent(10, 7, 1000)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{err: errors.New("outbox write failed")}
	allocator := allocation.NewAllocator(store, broadcaster)

	_, err := allocator.UpdateEvent(context.Background(), allocation.UpdateRequest{
		EventID:        e.ID,
		Title:          "changed",
		Location:       e.Location,
		Date:           e.Date,
		TotalSeats:     10,
		RemainingSeats: intPtr(1),
		UnitPriceCents: e.UnitPriceCents,
	})
	require.Error(t, err)

	assert.Equal(t, 7, store.remainingSeats(e.ID))
}

// Administrative edits and allocations must reach subscribers through the
// same path, in the order their transactions committed: an edit published
// outside the transaction could overtake a booking's update and leave
// clients with a stale seat count.
func TestSeatChangesBroadcastInCommitOrder(t *testing.T) {
	e := testEvent(10, 10, 1000)
	store := newMemStore(e)
	broadcaster := &fakeBroadcaster{}
	allocator := allocation.NewAllocator(store, broadcaster)

	ctx := context.Background()

	_, remaining, err := allocator.Allocate(ctx, allocation.Request{
		EventID: e.ID, Name: "a", Email: "a@b.c", Quantity: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 8, remaining)

	_, err = allocator.UpdateEvent(ctx, allocation.UpdateRequest{
		EventID:        e.ID,
		Title:          e.Title,
		Location:       e.Location,
		Date:           e.Date,
		TotalSeats:     50,
		RemainingSeats: intPtr(48),
		UnitPriceCents: e.UnitPriceCents,
	})
	require.NoError(t, err)

	_, remaining, err = allocator.Allocate(ctx, allocation.Request{
		EventID: e.ID, Name: "a", Email: "a@b.c", Quantity: 3,
	})
	require.NoError(t, err)
	require.Equal(t, 45, remaining)

	var got []int
	for _, p := range broadcaster.all() {
		require.Equal(t, e.ID, p.EventID)
		got = append(got, p.RemainingSeats)
	}
	assert.Equal(t, []int{8, 48, 45}, got)
}

func intPtr(n int) *int {
	return &n
}

func testEvent(total, remaining int, priceCents int64) entity.Event {
	return entity.Event{
		ID:             uuid.NewString(),
		Title:          "Go Conference",
		Location:       "Berlin",
		Date:           time.Now().UTC().Add(24 * time.Hour),
		TotalSeats:     total,
		RemainingSeats: remaining,
		UnitPriceCents: priceCents,
	}
}

// memStore implements allocation.Store in memory with the same contract as
// the postgres store: a per-event lock held for the life of the unit of
// work, and staged writes that become visible only on commit.
type memStore struct {
	mu       sync.Mutex
	events   map[string]entity.Event
	bookings []entity.Booking
	locks    map[string]*sync.Mutex

	addBookingErr error
	blocks        map[string]blockPoint
}

type blockPoint struct {
	entered chan struct{}
	release chan struct{}
}

func newMemStore(events ...entity.Event) *memStore {
	s := &memStore{
		events: make(map[string]entity.Event),
		locks:  make(map[string]*sync.Mutex),
		blocks: make(map[string]blockPoint),
	}
	for _, e := range events {
		s.events[e.ID] = e
		s.locks[e.ID] = &sync.Mutex{}
	}
	return s
}

func (s *memStore) blockAddBooking(eventID string, entered, release chan struct{}) {
	s.blocks[eventID] = blockPoint{entered: entered, release: release}
}

func (s *memStore) remainingSeats(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID].RemainingSeats
}

func (s *memStore) committedBookings() []entity.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

type memTxKey struct{}

type memTx struct {
	stagedEvents   map[string]entity.Event
	stagedBookings []entity.Booking
	locked         []*sync.Mutex
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := &memTx{stagedEvents: make(map[string]entity.Event)}

	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err != nil {
		for _, l := range tx.locked {
			l.Unlock()
		}
		return err
	}

	s.mu.Lock()
	for id, e := range tx.stagedEvents {
		s.events[id] = e
	}
	s.bookings = append(s.bookings, tx.stagedBookings...)
	s.mu.Unlock()

	for _, l := range tx.locked {
		l.Unlock()
	}
	return nil
}

func txOf(ctx context.Context) *memTx {
	return ctx.Value(memTxKey{}).(*memTx)
}

func (s *memStore) GetEventForUpdate(ctx context.Context, eventID string) (entity.Event, error) {
	tx := txOf(ctx)

	s.mu.Lock()
	l, ok := s.locks[eventID]
	s.mu.Unlock()
	if !ok {
		return entity.Event{}, entity.ErrEventNotFound
	}

	l.Lock()
	tx.locked = append(tx.locked, l)

	s.mu.Lock()
	e := s.events[eventID]
	s.mu.Unlock()
	return e, nil
}

func (s *memStore) UpdateRemainingSeats(ctx context.Context, eventID string, remaining int) error {
	tx := txOf(ctx)

	s.mu.Lock()
	e := s.events[eventID]
	s.mu.Unlock()

	e.RemainingSeats = remaining
	tx.stagedEvents[eventID] = e
	return nil
}

func (s *memStore) UpdateEvent(ctx context.Context, e entity.Event) error {
	tx := txOf(ctx)
	tx.stagedEvents[e.ID] = e
	return nil
}

func (s *memStore) AddBooking(ctx context.Context, b entity.Booking) error {
	if bp, ok := s.blocks[b.EventID]; ok {
		bp.entered <- struct{}{}
		<-bp.release
	}

	if s.addBookingErr != nil {
		return s.addBookingErr
	}

	tx := txOf(ctx)
	tx.stagedBookings = append(tx.stagedBookings, b)
	return nil
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	published []event.AvailabilityChanged
	err       error
}

func (b *fakeBroadcaster) PublishAvailabilityChanged(_ context.Context, e event.AvailabilityChanged) error {
	if b.err != nil {
		return b.err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
	return nil
}

func (b *fakeBroadcaster) all() []event.AvailabilityChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.AvailabilityChanged, len(b.published))
	copy(out, b.published)
	return out
}
