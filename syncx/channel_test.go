package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestChannelBoundedSendRecvRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 2)
	ok, err := ch.Send(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ch.Send(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, ok)

	v, ok, err := ch.Recv(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestChannelBoundedSendBlocksWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 1)
	_, err := ch.Send(context.Background(), 1)
	require.NoError(t, err)

	sent := make(chan struct{})
	go func() {
		_, _ = ch.Send(context.Background(), 2)
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send on full channel returned before a receiver drained it")
	case <-time.After(20 * time.Millisecond):
	}

	_, _, err = ch.Recv(context.Background())
	require.NoError(t, err)
	<-sent
}

func TestChannelRendezvousCapacityZero(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ok, err := ch.Send(context.Background(), 7)
		assert.NoError(t, err)
		assert.True(t, ok)
	}()

	time.Sleep(10 * time.Millisecond) // let the sender queue up first
	v, ok, err := ch.Recv(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, v)
	wg.Wait()
}

func TestChannelCloseWakesBlockedRecv(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 0)

	recvDone := make(chan bool, 1)
	go func() {
		_, ok, err := ch.Recv(context.Background())
		assert.NoError(t, err)
		recvDone <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()
	ok := <-recvDone
	assert.False(t, ok)
}

func TestChannelCloseWakesBlockedSend(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 0)

	sendDone := make(chan bool, 1)
	go func() {
		ok, err := ch.Send(context.Background(), 1)
		assert.NoError(t, err)
		sendDone <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Close()
	ok := <-sendDone
	assert.False(t, ok)
}

func TestChannelUnboundedNeverBlocksSend(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewUnboundedChannel[int](nil)
	for i := 0; i < 1000; i++ {
		ok, err := ch.Send(context.Background(), i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1000, ch.Len())
}

func TestChannelSendAfterCloseReturnsFalse(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 4)
	ch.Close()
	ok, err := ch.Send(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelRecvDrainsBufferedBeforeClosedEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)
	ch := NewChannel[int](nil, 4)
	_, _ = ch.Send(context.Background(), 1)
	ch.Close()

	v, ok, err := ch.Recv(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, err = ch.Recv(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
