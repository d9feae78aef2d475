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

// Package registry holds the in-memory torrent/peer database: the process's
// only mutable shared state, threaded explicitly through the dispatcher
// instead of hidden behind package-level globals. Registry carries its own
// lock because the metrics goroutine reads it alongside the driver.
package registry

import (
	"net"
	"strings"
	"time"

	"github.com/jinzhu/copier"
)

// Peer is a participating client for one torrent. Fields are mutated in
// place on reannounce. The registry owns every Peer; Upsert hands the
// stored pointer back to its caller, and replies are built from PeerView
// snapshots rather than from Peer itself.
type Peer struct {
	IP     net.IP
	Port   uint16
	PeerID string

	Uploaded   int64
	Downloaded int64
	Left       int64

	LastUpdate time.Time
	ExpireAt   time.Time
}

// PeerView is an immutable snapshot of a Peer, safe to hand to a reply
// encoder without aliasing the registry's own mutable state. Produced via
// copier so that adding a field to Peer can't silently leak it into a
// reply without a matching field on PeerView.
type PeerView struct {
	IP   net.IP
	Port uint16
}

func newView(p *Peer) PeerView {
	var v PeerView
	_ = copier.Copy(&v, p)
	return v
}

// sameIdentity reports whether p matches the (ip, port, peer_id) triple
// that identifies a peer within a torrent, per the case-insensitive
// peer_id comparison carried over from the reference implementation.
func sameIdentity(p *Peer, ip net.IP, port uint16, peerID string) bool {
	return p.Port == port && p.IP.Equal(ip) && strings.EqualFold(p.PeerID, peerID)
}
