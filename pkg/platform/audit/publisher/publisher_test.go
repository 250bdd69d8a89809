package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	audit "certledger/pkg/platform/audit"
	"certledger/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func revokedEvent(certID string) audit.Event {
	return audit.Event{
		Action:        string(audit.EventCertificateRevoked),
		CertificateID: certID,
		TokenID:       7,
		Reason:        "issued in error",
	}
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), revokedEvent("7"))
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCertificateRevoked), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), revokedEvent("9")))
	}

	pub.Close()

	events, err := store.ListByCertificate(context.Background(), "9")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterCloseFails(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(4))
	pub.Close()

	err := pub.Emit(context.Background(), revokedEvent("1"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFullDoesNotPanic(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), revokedEvent("3"))
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	event := revokedEvent("5")
	event.Timestamp = customTime

	require.NoError(t, pub.Emit(context.Background(), event))

	events, err := pub.List(context.Background(), "5")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

type failingEmitter struct{ err error }

func (f failingEmitter) Emit(context.Context, audit.Event) error { return f.err }

func TestFanout_DeliversDespiteFailingSink(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	fan := audit.Fanout{failingEmitter{err: assert.AnError}, pub}
	err := fan.Emit(context.Background(), revokedEvent("11"))
	assert.ErrorIs(t, err, assert.AnError)

	events, listErr := store.ListByCertificate(context.Background(), "11")
	require.NoError(t, listErr)
	assert.Len(t, events, 1)
}
