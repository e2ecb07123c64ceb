package resolver

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, maxConcurrent int64) *Resolver {
	t.Helper()
	r, err := NewOptions(WithMaxConcurrent(maxConcurrent))
	require.NoError(t, err)
	return r
}

func TestResolver_LookupLocalhost(t *testing.T) {
	r := newTestResolver(t, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	addrs, err := r.Lookup(ctx, "localhost")
	require.NoError(t, err)
	require.NotEmpty(t, addrs)
}

func TestResolver_LookupAsyncResultBeforeAndAfterDone(t *testing.T) {
	r := newTestResolver(t, 4)

	req := r.LookupAsync(context.Background(), "localhost")
	require.Equal(t, "localhost", req.Host())

	select {
	case <-req.Done():
		// May already be done if the lookup is instant; either is fine.
	default:
	}

	addrs, err := req.Wait(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, addrs)

	gotAddrs, gotErr, ok := req.Result()
	require.True(t, ok)
	require.NoError(t, gotErr)
	require.Equal(t, addrs, gotAddrs)
}

// TestResolver_BoundsConcurrency checks that at most MaxConcurrent lookups
// run at once by instrumenting a custom net.Resolver whose Dial blocks until
// released, then observing the in-flight high-water mark never exceeds the
// configured bound.
func TestResolver_BoundsConcurrency(t *testing.T) {
	const bound = int64(3)
	const lookups = 10

	release := make(chan struct{})
	var current, maxSeen atomic.Int64

	custom := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			n := current.Add(1)
			for {
				old := maxSeen.Load()
				if n <= old || maxSeen.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil, context.DeadlineExceeded
		},
	}

	r, err := NewOptions(WithMaxConcurrent(bound), WithResolver(custom))
	require.NoError(t, err)

	ctx := context.Background()
	done := make(chan struct{}, lookups)
	for i := 0; i < lookups; i++ {
		go func() {
			_, _ = r.Lookup(ctx, "example.invalid")
			done <- struct{}{}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(release)
	for i := 0; i < lookups; i++ {
		<-done
	}

	require.LessOrEqual(t, maxSeen.Load(), bound)
}
