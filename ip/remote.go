// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package ip derives the real client address of a request for rate-limit
// keying. X-Forwarded-For is attacker-controlled on direct connections, so
// it is only honoured when the immediate peer is a loopback or private
// address, i.e. our own reverse proxy.
package ip

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the request's client address. Never nil: unparseable
// inputs fall back to the unspecified IPv4 address so callers always have a
// usable key.
func ClientIP(req *http.Request) net.IP {
	peer := remoteAddrIP(req.RemoteAddr)
	if peer == nil {
		return net.IPv4zero
	}
	if !peer.IsLoopback() && !peer.IsPrivate() {
		return peer
	}
	forwarded := req.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return peer
	}
	// The client address is the first entry; proxies append their own.
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if ip := net.ParseIP(first); ip != nil {
		return ip
	}
	return peer
}

func remoteAddrIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
