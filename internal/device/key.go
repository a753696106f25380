// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"crypto/sha1" // #nosec G505 -- identifier derivation, not a security boundary
	"encoding/hex"
	"net"
)

// KeyLength is the number of hex digits in a device key.
const KeyLength = 8

// DeriveKey hashes "remoteHost|localHost:localPort". The remote port is left
// out so a device reconnecting from the same host keeps its key.
func DeriveKey(remote, local net.Addr) string {
	sum := sha1.Sum([]byte(hostOf(remote) + "|" + hostPortOf(local))) // #nosec G401
	return hex.EncodeToString(sum[:])[:KeyLength]
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case nil:
		return ""
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func hostPortOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return net.JoinHostPort(host, port)
}
