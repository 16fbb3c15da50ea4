package lua

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingChannelSendOverwritesOldest(t *testing.T) {
	rc := NewRingChannel[int](2)
	rc.Send(1)
	rc.Send(2)
	rc.Send(3) // displaces 1

	v, ok := rc.Receive()
	require.True(t, ok)
	require.Equal(t, 2, v)
	v, ok = rc.Receive()
	require.True(t, ok)
	require.Equal(t, 3, v)

	m := rc.Metrics()
	require.Equal(t, int64(3), m.Sent)
	require.Equal(t, int64(1), m.Dropped)
	require.Equal(t, int64(2), m.Received)
}

func TestRingChannelTrySend(t *testing.T) {
	rc := NewRingChannel[string](1)
	require.True(t, rc.TrySend("a"))
	require.False(t, rc.TrySend("b"), "a full channel refuses without dropping")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	require.Equal(t, "a", v)

	_, ok = rc.TryReceive()
	require.False(t, ok, "an empty channel has nothing to take")
}

func TestRingChannelForceSend(t *testing.T) {
	rc := NewRingChannel[int](1)
	require.False(t, rc.ForceSend(1))
	require.True(t, rc.ForceSend(2), "the second send displaces the first")

	v, ok := rc.Receive()
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestRingChannelCloseEndsRange(t *testing.T) {
	rc := NewRingChannel[int](4)
	rc.Send(7)
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	require.Equal(t, []int{7}, got)

	_, ok := rc.Receive()
	require.False(t, ok, "receive on a closed drained channel reports !ok")
}

func TestRingChannelLenCap(t *testing.T) {
	rc := NewRingChannel[int](3)
	rc.Send(1)
	rc.Send(2)
	require.Equal(t, 2, rc.Len())
	require.Equal(t, 3, rc.Cap())
}

func TestRingChannelCapacityValidation(t *testing.T) {
	require.Panics(t, func() { NewRingChannel[int](0) })
}
