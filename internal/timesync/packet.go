// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package timesync answers SNTP-shaped requests with plausible server
// timestamps. It is not a full NTP implementation.
package timesync

import (
	"encoding/binary"
	"time"
)

const (
	// PacketSize is the size of both request and reply.
	PacketSize = 48

	// DefaultPort is the UDP port devices query.
	DefaultPort = 1123

	// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
	ntpEpochOffset = 2208988800
)

// Fixed header bytes of every reply.
const (
	leapVersionMode = 0x24 // LI=0, VN=4, mode=server
	stratum         = 0x02
	poll            = 0x06
	precision       = 0xEC
)

var referenceID = [4]byte{'L', 'O', 'C', 'L'}

// BuildReply fills a 48-byte reply for req. received is the arrival time of
// req and transmit the time just before sending. ok is false for requests
// shorter than PacketSize.
func BuildReply(req []byte, received, transmit time.Time) (reply []byte, ok bool) {
	if len(req) < PacketSize {
		return nil, false
	}
	reply = make([]byte, PacketSize)
	reply[0] = leapVersionMode
	reply[1] = stratum
	reply[2] = poll
	reply[3] = precision
	// bytes 4..11: root delay and dispersion stay zero
	copy(reply[12:16], referenceID[:])
	putTimestamp(reply[16:24], received)
	copy(reply[24:32], req[40:48])
	putTimestamp(reply[32:40], received)
	putTimestamp(reply[40:48], transmit)
	return reply, true
}

// putTimestamp encodes t at millisecond resolution as NTP seconds plus
// fraction, both 32-bit big-endian.
func putTimestamp(dst []byte, t time.Time) {
	millis := t.UnixMilli()
	secs := uint64(millis/1000) + ntpEpochOffset // #nosec G115 -- post-1970 clock
	frac := uint64(millis%1000) << 32 / 1000     // #nosec G115

	// Seconds wrap at the end of NTP era 0 (2036).
	binary.BigEndian.PutUint32(dst[0:4], uint32(secs)) // #nosec G115
	binary.BigEndian.PutUint32(dst[4:8], uint32(frac)) // #nosec G115
}

// DecodeTimestamp reverses putTimestamp.
func DecodeTimestamp(b []byte) time.Time {
	secs := int64(binary.BigEndian.Uint32(b[0:4])) - ntpEpochOffset
	frac := int64(binary.BigEndian.Uint32(b[4:8]))
	millis := (frac*1000 + 1<<31) >> 32
	return time.UnixMilli(secs*1000 + millis)
}

// Offset is the server clock minus the client clock, in milliseconds.
func Offset(clientMillis, serverMillis int64) int64 {
	return serverMillis - clientMillis
}
