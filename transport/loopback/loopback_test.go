package loopback

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	net := NewNetwork()
	ctx := context.Background()

	a, err := net.Dial(ctx, 0, 1)
	require.NoError(t, err)
	defer a.Close()
	b, err := net.Dial(ctx, 0, 2)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(ctx, b.LocalLocators()[0], []byte("hello")))

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	pkt, err := b.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pkt.Data)
	assert.Equal(t, a.LocalLocators()[0], pkt.From)
}

func TestSendToUnknownLocatorIsSilentlyDropped(t *testing.T) {
	net := NewNetwork()
	ctx := context.Background()

	a, err := net.Dial(ctx, 0, 1)
	require.NoError(t, err)
	defer a.Close()

	unknown := a.LocalLocators()[0]
	unknown.Addr = netip.AddrPortFrom(unknown.Addr.Addr(), unknown.Addr.Port()+999)

	assert.NoError(t, a.Send(ctx, unknown, []byte("nobody home")))
}

func TestReceiveUnblocksOnContextCancellation(t *testing.T) {
	net := NewNetwork()
	ctx := context.Background()
	a, err := net.Dial(ctx, 0, 1)
	require.NoError(t, err)
	defer a.Close()

	recvCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = a.Receive(recvCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnblocksPendingReceive(t *testing.T) {
	net := NewNetwork()
	ctx := context.Background()
	a, err := net.Dial(ctx, 0, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, rerr := a.Receive(context.Background())
		done <- rerr
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
