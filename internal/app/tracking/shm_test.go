package tracking

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/domain"
)

func TestSharedMemoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.shm")
	pub, err := NewSharedMemoryPublisher(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	want := domain.TrackedPosition{Position: domain.Position{X: 431, Y: -7}, Timestamp: 270000}
	require.NoError(t, pub.Publish(want))

	got, err := ReadSharedPosition(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSharedMemoryPublishAfterClose(t *testing.T) {
	pub, err := NewSharedMemoryPublisher(filepath.Join(t.TempDir(), "position.shm"))
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.Error(t, pub.Publish(domain.TrackedPosition{}))
}

func TestSharedMemoryReadsNeverTear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "position.shm")
	pub, err := NewSharedMemoryPublisher(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })
	require.NoError(t, pub.Publish(domain.TrackedPosition{}))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = pub.Publish(domain.TrackedPosition{Position: domain.Position{X: i, Y: -i}, Timestamp: int64(i) * 3000})
		}
	}()

	for range 2000 {
		got, err := readSeqlock(pub.data)
		if errors.Is(err, errTornRead) {
			continue
		}
		require.NoError(t, err)
		require.Equal(t, -got.X, got.Y)
		require.Equal(t, int64(got.X)*3000, got.Timestamp)
	}
	close(stop)
	wg.Wait()
}
