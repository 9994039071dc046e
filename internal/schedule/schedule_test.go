package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

// fakeStore keeps subscribers and delivery records in memory with the
// same (subscriber, day) uniqueness the real store enforces.
type fakeStore struct {
	mu          sync.Mutex
	subscribers map[string]digest.Subscriber
	records     map[string]digest.DeliveryRecord // keyed by record id
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subscribers: map[string]digest.Subscriber{},
		records:     map[string]digest.DeliveryRecord{},
	}
}

func (s *fakeStore) addSubscriber(id, deliverAt string, active bool) digest.Subscriber {
	sub := digest.Subscriber{
		ID:         id,
		Email:      id + "@example.com",
		Categories: []digest.Category{digest.CategoryIndia},
		DeliverAt:  deliverAt,
		Active:     active,
	}
	s.subscribers[id] = sub
	return sub
}

func (s *fakeStore) ActiveSubscribers(context.Context) ([]digest.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []digest.Subscriber
	for _, sub := range s.subscribers {
		if sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) Subscriber(_ context.Context, id string) (digest.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok {
		return digest.Subscriber{}, digest.ErrNotFound
	}
	return sub, nil
}

func (s *fakeStore) ClaimDelivery(_ context.Context, subscriberID, day string) (digest.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.SubscriberID == subscriberID && rec.Day == day {
			return digest.DeliveryRecord{}, digest.ErrConflict
		}
	}

	s.nextID++
	rec := digest.DeliveryRecord{
		ID:           fmt.Sprintf("rec-%d", s.nextID),
		SubscriberID: subscriberID,
		Day:          day,
		Status:       digest.DeliveryPending,
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *fakeStore) ResolveDelivery(_ context.Context, id string, status digest.DeliveryStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return digest.ErrNotFound
	}
	rec.Status = status
	rec.Detail = detail
	s.records[id] = rec
	return nil
}

func (s *fakeStore) PendingDeliveries(_ context.Context, day string) ([]digest.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []digest.DeliveryRecord
	for _, rec := range s.records {
		if rec.Day == day && rec.Status == digest.DeliveryPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) recordsFor(subscriberID string) []digest.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []digest.DeliveryRecord
	for _, rec := range s.records {
		if rec.SubscriberID == subscriberID {
			out = append(out, rec)
		}
	}
	return out
}

type fakeRunner struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (r *fakeRunner) Run(_ context.Context, categories []digest.Category, perCategory int) (digest.Document, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	if r.err != nil {
		return digest.Document{}, r.err
	}
	return digest.Document{
		GeneratedAt: time.Now().UTC(),
		Sections:    []digest.Section{{Category: categories[0], Items: []digest.Item{{Heading: "h"}}}},
	}, nil
}

type fakeAssembler struct {
	err error
}

func (a *fakeAssembler) Assemble(context.Context, digest.Document) (digest.Artifact, error) {
	if a.err != nil {
		return digest.Artifact{}, a.err
	}
	return digest.Artifact{ID: "artifact-1", Path: "/tmp/artifact-1.html"}, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sends []string
	err   error
}

func (m *fakeMailer) Send(_ context.Context, sub digest.Subscriber, _ digest.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sends = append(m.sends, sub.Email)
	return nil
}

func (m *fakeMailer) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func newTestScheduler(store *fakeStore, runner *fakeRunner, mailer *fakeMailer) *Scheduler {
	s := New(store, runner, &fakeAssembler{}, mailer, Config{})
	s.now = func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	return s
}

func TestSweep_DeliversDueSubscribers(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-early", "08:00", true)
	store.addSubscriber("sub-later", "21:30", true)

	runner := &fakeRunner{}
	mailer := &fakeMailer{}
	s := newTestScheduler(store, runner, mailer)

	s.Sweep(context.Background())

	assert.Equal(t, 1, mailer.sent())
	assert.Equal(t, "sub-early@example.com", mailer.sends[0])

	recs := store.recordsFor("sub-early")
	require.Len(t, recs, 1)
	assert.Equal(t, digest.DeliverySent, recs[0].Status)
	assert.Equal(t, "2026-03-01", recs[0].Day)

	assert.Empty(t, store.recordsFor("sub-later"))
}

func TestSweep_RepeatedSweepsDeliverOnce(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-1", "08:00", true)

	runner := &fakeRunner{}
	mailer := &fakeMailer{}
	s := newTestScheduler(store, runner, mailer)

	for i := 0; i < 5; i++ {
		s.Sweep(context.Background())
	}

	assert.Equal(t, 1, mailer.sent())
	assert.Equal(t, 1, runner.runs)
	require.Len(t, store.recordsFor("sub-1"), 1)
}

func TestSweep_SkipsInactiveSubscribers(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-gone", "08:00", false)

	mailer := &fakeMailer{}
	s := newTestScheduler(store, &fakeRunner{}, mailer)

	s.Sweep(context.Background())

	assert.Equal(t, 0, mailer.sent())
	assert.Empty(t, store.recordsFor("sub-gone"))
}

func TestSweep_PipelineFailureRecordsFailed(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-1", "08:00", true)

	runner := &fakeRunner{err: nberrs.E(nberrs.KindNoContent, "no articles available")}
	mailer := &fakeMailer{}
	s := newTestScheduler(store, runner, mailer)

	s.Sweep(context.Background())

	assert.Equal(t, 0, mailer.sent())
	recs := store.recordsFor("sub-1")
	require.Len(t, recs, 1)
	assert.Equal(t, digest.DeliveryFailed, recs[0].Status)
	assert.Contains(t, recs[0].Detail, "pipeline:")

	// The failed day stays terminal: another sweep doesn't retry it.
	s.Sweep(context.Background())
	assert.Equal(t, 1, runner.runs)
}

func TestSweep_DispatchFailureRecordsReason(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-1", "08:00", true)

	mailer := &fakeMailer{err: nberrs.E(nberrs.KindDelivery, nberrs.ReasonAuth, errors.New("credentials rejected"))}
	s := newTestScheduler(store, &fakeRunner{}, mailer)

	s.Sweep(context.Background())

	recs := store.recordsFor("sub-1")
	require.Len(t, recs, 1)
	assert.Equal(t, digest.DeliveryFailed, recs[0].Status)
	assert.Contains(t, recs[0].Detail, "dispatch (auth):")
}

func TestResumePending(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-1", "08:00", true)
	store.addSubscriber("sub-gone", "08:00", false)

	// Simulate claims left behind by an interrupted process.
	_, err := store.ClaimDelivery(context.Background(), "sub-1", "2026-03-01")
	require.NoError(t, err)
	_, err = store.ClaimDelivery(context.Background(), "sub-gone", "2026-03-01")
	require.NoError(t, err)

	runner := &fakeRunner{}
	mailer := &fakeMailer{}
	s := newTestScheduler(store, runner, mailer)

	require.NoError(t, s.resumePending(context.Background()))

	assert.Equal(t, 1, mailer.sent())

	recs := store.recordsFor("sub-1")
	require.Len(t, recs, 1)
	assert.Equal(t, digest.DeliverySent, recs[0].Status)

	recs = store.recordsFor("sub-gone")
	require.Len(t, recs, 1)
	assert.Equal(t, digest.DeliveryFailed, recs[0].Status)
	assert.Contains(t, recs[0].Detail, "no longer active")
}

func TestSendNow(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-1", "23:59", true)

	mailer := &fakeMailer{}
	s := newTestScheduler(store, &fakeRunner{}, mailer)

	// Before the scheduled time, SendNow still delivers and claims the
	// day.
	require.NoError(t, s.SendNow(context.Background(), "sub-1"))
	assert.Equal(t, 1, mailer.sent())
	require.Len(t, store.recordsFor("sub-1"), 1)

	// A second manual send works but leaves the day's record alone.
	require.NoError(t, s.SendNow(context.Background(), "sub-1"))
	assert.Equal(t, 2, mailer.sent())
	require.Len(t, store.recordsFor("sub-1"), 1)
}

func TestSendNow_UnknownOrInactive(t *testing.T) {
	store := newFakeStore()
	store.addSubscriber("sub-gone", "08:00", false)

	s := newTestScheduler(store, &fakeRunner{}, &fakeMailer{})

	err := s.SendNow(context.Background(), "sub-gone")
	assert.ErrorIs(t, err, digest.ErrNotFound)

	err = s.SendNow(context.Background(), "missing")
	assert.ErrorIs(t, err, digest.ErrNotFound)
}

func TestDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	assert.True(t, due(digest.Subscriber{DeliverAt: "09:30"}, now))
	assert.True(t, due(digest.Subscriber{DeliverAt: "06:00"}, now))
	assert.False(t, due(digest.Subscriber{DeliverAt: "09:31"}, now))
	assert.False(t, due(digest.Subscriber{DeliverAt: "not-a-time"}, now))
}
