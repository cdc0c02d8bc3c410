package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitCollectsFirstError(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	boom := errors.New("boom")
	s.Go("bad", func(ctx context.Context) error { return boom })
	s.Go("good", func(ctx context.Context) error { return nil })

	if err := s.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("kaboom") })

	err := s.Wait(context.Background())
	if err == nil {
		t.Fatal("panic not surfaced as error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	s.Go("bad", func(ctx context.Context) error { return errors.New("boom") })
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = s.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("error did not cancel sibling goroutines")
	}
}

func TestCanceledContextIsNotAnError(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Cancel()
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("context.Canceled surfaced: %v", err)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	block := make(chan struct{})
	s.Go0("stuck", func(ctx context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	close(block)
}
