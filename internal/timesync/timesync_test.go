// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timesync

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func request(originate []byte) []byte {
	req := make([]byte, PacketSize)
	req[0] = 0x23 // LI=0, VN=4, mode=client
	copy(req[40:48], originate)
	return req
}

func TestBuildReplyLayout(t *testing.T) {
	originate := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}
	received := time.UnixMilli(1_700_000_000_250)
	transmit := received.Add(3 * time.Millisecond)

	reply, ok := BuildReply(request(originate), received, transmit)
	require.True(t, ok)
	require.Len(t, reply, PacketSize)

	assert.Equal(t, []byte{0x24, 0x02, 0x06, 0xEC}, reply[0:4])
	assert.Equal(t, make([]byte, 8), reply[4:12])
	assert.Equal(t, "LOCL", string(reply[12:16]))
	assert.Equal(t, originate, reply[24:32])

	assert.Equal(t, uint32(1_700_000_000+2208988800), binary.BigEndian.Uint32(reply[32:36]))
	assert.Equal(t, uint32((250<<32)/1000), binary.BigEndian.Uint32(reply[36:40]))
	assert.Equal(t, reply[16:24], reply[32:40])

	assert.Equal(t, received.UnixMilli(), DecodeTimestamp(reply[32:40]).UnixMilli())
	assert.Equal(t, transmit.UnixMilli(), DecodeTimestamp(reply[40:48]).UnixMilli())
}

func TestBuildReplyIgnoresExtraBytes(t *testing.T) {
	req := append(request([]byte{1, 2, 3, 4, 5, 6, 7, 8}), 0xff, 0xff)
	reply, ok := BuildReply(req, time.Now(), time.Now())
	require.True(t, ok)
	assert.Len(t, reply, PacketSize)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, reply[24:32])
}

func TestBuildReplyShortRequest(t *testing.T) {
	for _, n := range []int{0, 1, 47} {
		_, ok := BuildReply(make([]byte, n), time.Now(), time.Now())
		assert.False(t, ok, "len %d", n)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 1, 999, 1_000, 1_234_567_890_123} {
		buf := make([]byte, 8)
		putTimestamp(buf, time.UnixMilli(ms))
		assert.Equal(t, ms, DecodeTimestamp(buf).UnixMilli())
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, int64(150), Offset(1_000, 1_150))
	assert.Equal(t, int64(-20), Offset(1_020, 1_000))
}

func TestServerRoundTrip(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	client, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	// A short datagram gets no reply; the next full one does.
	_, err = client.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	originate := []byte{9, 8, 7, 6, 5, 4, 3, 2}
	_, err = client.Write(request(originate))
	require.NoError(t, err)

	reply := make([]byte, 128)
	n, err := client.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, PacketSize, n)
	assert.Equal(t, originate, reply[24:32])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
