/*
 * This file is part of Chihaya.
 *
 * Chihaya is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Chihaya is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Chihaya.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package tracker implements the announce handler (C4): the request/reply
// semantics layered on top of the registry and the query parser. The
// scrape stub (C5) has nothing to compute — scrape statistics are out of
// scope — so the connection driver answers it directly with the fixed
// "not found" reply instead of dispatching into this package.
package tracker

import (
	"bytes"
	"context"
	"net"

	"mini-tracker/query"
	"mini-tracker/registry"
)

const maxIDLength = 60

var validEvents = map[string]bool{
	"started":   true,
	"completed": true,
	"stopped":   true,
}

// HandleAnnounce validates the parsed parameters, upserts into the
// registry, and writes the reply body to buf. The returned bool reports
// whether the reply is a success (needs HTTP 200 headers from the caller)
// or a failure (bare bencode body, no HTTP headers at all).
func HandleAnnounce(ctx context.Context, reg *registry.Registry, sourceIP net.IP, p *query.Params, buf *bytes.Buffer) (success bool) {
	infoHash, ok := p.Get("info_hash")
	if !ok || len(infoHash) > maxIDLength {
		writeFailure(buf)
		return false
	}

	peerID, ok := p.Get("peer_id")
	if !ok || len(peerID) > maxIDLength {
		writeFailure(buf)
		return false
	}

	port, ok := p.GetUint16("port")
	if !ok || port == 0 {
		writeFailure(buf)
		return false
	}

	uploaded, ok := p.GetUint64("uploaded")
	if !ok {
		writeFailure(buf)
		return false
	}

	downloaded, ok := p.GetUint64("downloaded")
	if !ok {
		writeFailure(buf)
		return false
	}

	left, ok := p.GetUint64("left")
	if !ok {
		writeFailure(buf)
		return false
	}

	if event, exists := p.Get("event"); exists && !validEvents[event] {
		writeFailure(buf)
		return false
	}

	compact := p.Exists("compact")
	noPeerID := p.Exists("no_peer_id")
	if !compact && !noPeerID {
		writeFailure(buf)
		return false
	}

	ip := resolveIP(ctx, p, sourceIP)

	stored, t := reg.Upsert(infoHash, ip, port, peerID, int64(uploaded), int64(downloaded), int64(left))
	others := reg.Others(t, stored)
	interval := reg.Interval()

	if compact {
		writeCompactReply(buf, interval, others)
	} else {
		writeDictReply(buf, interval, others)
	}

	return true
}

// resolveIP implements the optional "ip" override: a dotted-quad literal
// is used verbatim, anything else is looked up by DNS (A records only,
// first result wins), and any resolution failure silently falls back to
// the connection's source address.
func resolveIP(ctx context.Context, p *query.Params, sourceIP net.IP) net.IP {
	override, exists := p.Get("ip")
	if !exists {
		return sourceIP
	}

	if literal := net.ParseIP(override); literal != nil && literal.To4() != nil {
		return literal
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, override)
	if err != nil {
		return sourceIP
	}

	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4
		}
	}

	return sourceIP
}
