package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

func event(id string, version int64, status models.Status) models.StatusChanged {
	return models.NewStatusChanged(models.BinRecord{
		ID:             id,
		Capacity:       1,
		CategoryCounts: map[string]int{},
		Status:         status,
		Version:        version,
	}, time.Now())
}

func TestAttachPublishDetach(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 4}, nil)

	a, err := r.Attach("display")
	require.NoError(t, err)
	b, err := r.Attach("dashboard")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Count())

	r.Publish(event("BIN-1", 1, models.StatusFull))

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "BIN-1", ev.Bin.ID)
			assert.Equal(t, models.EventStatusChanged, ev.Type)
		default:
			t.Fatalf("%s did not receive event", sub.Name)
		}
	}

	r.Detach(a.ID)
	r.Detach(a.ID)
	assert.Equal(t, 1, r.Count())
	_, open := <-a.Events()
	assert.False(t, open)
	assert.Equal(t, ReasonClosed, a.Reason())
}

func TestSlowObserverDetached(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 2}, nil)
	slow, err := r.Attach("slow")
	require.NoError(t, err)
	fast, err := r.Attach("fast")
	require.NoError(t, err)

	var received []int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range fast.Events() {
			received = append(received, ev.Bin.Version)
			if len(received) == 5 {
				return
			}
		}
	}()

	for v := int64(1); v <= 5; v++ {
		r.Publish(event("BIN-1", v, models.StatusFull))
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow observer was not detached")
	}
	assert.Equal(t, ReasonSlow, slow.Reason())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, received)

	stats := r.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "fast", stats[0].Name)
	assert.Equal(t, uint64(5), stats[0].Sent)
}

func TestPublishWithoutObservers(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	r.Publish(event("BIN-1", 1, models.StatusFull))
	assert.Equal(t, uint64(1), r.Published())
}

func TestCloseRejectsAttach(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	sub, err := r.Attach("x")
	require.NoError(t, err)

	r.Close()
	<-sub.Done()
	assert.Equal(t, ReasonShutdown, sub.Reason())

	_, err = r.Attach("y")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestDefaults(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	assert.Equal(t, DefaultSendTimeout, r.SendTimeout())
	sub, err := r.Attach("x")
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueSize, cap(sub.ch))
}

// Per-id ordering: events for one bin arrive in version order even with
// concurrent writers, because the store publishes inside its slot lock.
func TestStoreOrderingPerBin(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 1024}, nil)
	sub, err := r.Attach("ordered")
	require.NoError(t, err)

	s := store.New(store.WithTransitionSink(r))
	_, _, err = s.Provision(models.BinSeed{ID: "A", Capacity: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _, _ = s.LogItem("A", "plastic")
			} else {
				_, _, _ = s.Empty("A")
			}
		}(i)
	}
	wg.Wait()
	r.Close()

	var last int64
	count := 0
	for ev := range sub.Events() {
		assert.Greater(t, ev.Bin.Version, last)
		last = ev.Bin.Version
		count++
	}
	assert.Greater(t, count, 0)
}

type countingRecorder struct {
	mu        sync.Mutex
	published int
	dropped   []string
	attached  int
	detached  []string
}

func (c *countingRecorder) EventPublished(int) { c.mu.Lock(); c.published++; c.mu.Unlock() }
func (c *countingRecorder) EventDropped(kind string) {
	c.mu.Lock()
	c.dropped = append(c.dropped, kind)
	c.mu.Unlock()
}
func (c *countingRecorder) ObserverAttached(int) { c.mu.Lock(); c.attached++; c.mu.Unlock() }
func (c *countingRecorder) ObserverDetached(reason string, _ int) {
	c.mu.Lock()
	c.detached = append(c.detached, reason)
	c.mu.Unlock()
}

func TestSubscriptionKind(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"sse@127.0.0.1:50312", "sse"},
		{"ws@[::1]:6001", "ws"},
		{"ws@", "ws"},
		{"relay:nats", "relay:nats"},
		{"dashboard", "dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, (&Subscription{Name: tt.name}).Kind())
		})
	}
}

func TestRecorder(t *testing.T) {
	rec := &countingRecorder{}
	r := NewRegistry(Options{QueueSize: 1}, nil)
	r.SetRecorder(rec)

	_, err := r.Attach("sse@127.0.0.1:50312")
	require.NoError(t, err)
	r.Publish(event("A", 1, models.StatusFull))
	r.Publish(event("A", 2, models.StatusCollecting))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.published)
	assert.Equal(t, []string{"sse"}, rec.dropped)
	assert.Equal(t, 1, rec.attached)
	assert.Equal(t, []string{ReasonSlow}, rec.detached)
}
