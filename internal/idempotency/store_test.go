package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{TTL: time.Minute}, nil)
	require.NoError(t, err)
	return s
}

func TestValidateKey(t *testing.T) {
	assert.True(t, ValidateKey("abc-123_XYZ"))
	assert.True(t, ValidateKey("a"))
	assert.False(t, ValidateKey(""))
	assert.False(t, ValidateKey("has space"))
	assert.False(t, ValidateKey("slash/key"))
	assert.False(t, ValidateKey(strings.Repeat("a", 256)))
	assert.True(t, ValidateKey(strings.Repeat("a", 255)))
}

func TestDeriveKey(t *testing.T) {
	k1 := DeriveKey("amazon", "order-1", "sku", "return")
	k2 := DeriveKey("amazon", "order-1", "sku", "return")
	k3 := DeriveKey("amazon", "order-2", "sku", "return")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 64)
	assert.True(t, ValidateKey(k1))
}

func TestGetOrComputeComputesOnce(t *testing.T) {
	s := newTestStore(t)
	var calls int32

	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{"ok":true}`), nil
	}

	data, cached, err := s.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, `{"ok":true}`, string(data))

	data, cached, err = s.GetOrCompute(context.Background(), "k1", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, `{"ok":true}`, string(data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeDistinctKeys(t *testing.T) {
	s := newTestStore(t)
	var calls int32
	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("x"), nil
	}
	_, _, err := s.GetOrCompute(context.Background(), "a", compute)
	require.NoError(t, err)
	_, _, err = s.GetOrCompute(context.Background(), "b", compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	s := newTestStore(t)
	var calls int32
	boom := errors.New("transport down")

	_, _, err := s.GetOrCompute(context.Background(), "k", func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// A later call must compute again: failures are retryable.
	data, cached, err := s.GetOrCompute(context.Background(), "k", func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSingleFlight(t *testing.T) {
	s := newTestStore(t)
	var calls int32
	release := make(chan struct{})

	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("shared"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			data, _, err := s.GetOrCompute(context.Background(), "same", compute)
			require.NoError(t, err)
			results[i] = data
		}(i)
	}

	// Give the goroutines a moment to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent same-key callers must collapse onto one computation")
	for i := 0; i < n; i++ {
		assert.Equal(t, "shared", string(results[i]))
	}
}

func TestGetMissAndSet(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get(context.Background(), "absent")
	assert.False(t, ok)

	s.Set(context.Background(), "present", []byte("v"))
	got, ok := s.Get(context.Background(), "present")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))
}
