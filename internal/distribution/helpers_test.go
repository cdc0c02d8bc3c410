package distribution

import (
	"context"
	"sync"
	"time"

	"dropbot/internal/eventbus"
	"dropbot/internal/services/actionq"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

// fakeAdapter records calls and hands out sequential message ids.
type fakeAdapter struct {
	mu        sync.Mutex
	nextID    int
	sent      []string
	directs   map[int64][]string
	directErr error
	threads   int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{directs: map[int64][]string{}}
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendMessage(_ context.Context, to transport.ChatTarget, text string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditMessage(context.Context, transport.MessageRef, string) error { return nil }
func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error       { return nil }
func (f *fakeAdapter) AddReaction(context.Context, transport.MessageRef, string) error { return nil }
func (f *fakeAdapter) RemoveReaction(context.Context, transport.MessageRef, string) error {
	return nil
}

func (f *fakeAdapter) CreateThread(_ context.Context, ref transport.MessageRef, _ string) (transport.ThreadRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	return transport.ThreadRef{ChatID: ref.ChatID, ThreadID: 1000 + f.threads}, nil
}

func (f *fakeAdapter) AddThreadMember(context.Context, transport.ThreadRef, transport.User) error {
	return nil
}
func (f *fakeAdapter) DeleteThread(context.Context, transport.ThreadRef) error { return nil }

func (f *fakeAdapter) SendDirect(_ context.Context, user transport.User, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.directErr != nil {
		return f.directErr
	}
	f.directs[user.ID] = append(f.directs[user.ID], text)
	return nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeQueue captures enqueued jobs instead of executing them.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []actionq.Job
}

func (q *fakeQueue) Enqueue(j actionq.Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

func (q *fakeQueue) byKind(kind actionq.Kind) []actionq.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []actionq.Job
	for _, j := range q.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

func (q *fakeQueue) reset() {
	q.mu.Lock()
	q.jobs = nil
	q.mu.Unlock()
}

func user(id int64, name string) transport.User {
	return transport.User{ID: id, Username: name, DisplayName: name}
}

// newTestService wires a service with a controllable clock and a huge
// debounce window so renders never fire on their own mid-test.
func newTestService(adapter *fakeAdapter, queue *fakeQueue) (*Service, *time.Time) {
	svc := New(Config{
		UpdateWindow:     time.Hour,
		ReactionCooldown: 1500 * time.Millisecond,
		DirectCooldown:   time.Hour,
		DeleteDelay:      10 * time.Second,
	}, logx.Nop(), eventbus.New(), adapter, queue)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }
	return svc, clock
}
