package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingBackend struct {
	mu       sync.Mutex
	channels []string
	payloads []Event
	attrs    []map[string]string
	err      error
	block    chan struct{}
	closed   bool
	closes   int
	closeErr error
}

func (b *recordingBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, ev)
	b.attrs = append(b.attrs, attrs)
	return "msg-1", b.err
}

func (b *recordingBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.closes++
	return b.closeErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherPublishesQueuedEventsBeforeShutdown(t *testing.T) {
	backend := &recordingBackend{}
	dispatcher := NewDispatcher(backend, DispatcherConfig{Topic: "socialnet.relationships", QueueSize: 8, Workers: 2}, discardLogger())

	for _, typ := range []Type{FriendRequestSent, FriendRequestAccepted, FriendshipRemoved} {
		if err := dispatcher.Publish(context.Background(), Event{Type: typ, ActorID: "a", UserID: "a", TargetID: "b"}); err != nil {
			t.Fatalf("publish %s: %v", typ, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.payloads) != 3 {
		t.Fatalf("expected 3 events published, got %d", len(backend.payloads))
	}
	for i, ev := range backend.payloads {
		if ev.ID == "" || ev.OccurredAt.IsZero() {
			t.Fatalf("expected id and timestamp to be filled in, got %+v", ev)
		}
		if backend.channels[i] != "socialnet.relationships" {
			t.Fatalf("unexpected channel %q", backend.channels[i])
		}
		if backend.attrs[i]["type"] != string(ev.Type) {
			t.Fatalf("expected type attribute %q, got %v", ev.Type, backend.attrs[i])
		}
	}
	if !backend.closed {
		t.Fatal("expected backend to be closed after shutdown")
	}
}

func TestDispatcherRejectsWhenFullOrClosed(t *testing.T) {
	backend := &recordingBackend{block: make(chan struct{})}
	dispatcher := NewDispatcher(backend, DispatcherConfig{Topic: "t", QueueSize: 1, Workers: 1}, discardLogger())

	// The first event occupies the worker, the second fills the queue.
	if err := dispatcher.Publish(context.Background(), Event{Type: FriendRequestSent}); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		err = dispatcher.Publish(context.Background(), Event{Type: FriendRequestSent})
		if errors.Is(err, ErrQueueFull) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}

	close(backend.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if err := dispatcher.Publish(context.Background(), Event{Type: FriendRequestSent}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestDispatcherLogsBackendFailures(t *testing.T) {
	backend := &recordingBackend{err: errors.New("broker down")}
	dispatcher := NewDispatcher(backend, DispatcherConfig{Topic: "t"}, discardLogger())

	if err := dispatcher.Publish(context.Background(), Event{Type: AccountDeleted, UserID: "a"}); err != nil {
		t.Fatalf("publish should not surface broker errors: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDispatcherShutdownClosesBackendOnce(t *testing.T) {
	backend := &recordingBackend{closeErr: errors.New("connection already closed")}
	dispatcher := NewDispatcher(backend, DispatcherConfig{Topic: "relationships", Workers: 2}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := dispatcher.Shutdown(ctx); !errors.Is(err, backend.closeErr) {
			t.Fatalf("shutdown %d: expected cached close error, got %v", i+1, err)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.closes != 1 {
		t.Fatalf("expected backend closed once, got %d", backend.closes)
	}
}
