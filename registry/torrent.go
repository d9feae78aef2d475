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

package registry

import (
	"net"
	"time"
)

// Torrent is a swarm for one content fingerprint. The peer slice preserves
// insertion order, which is observable in announce replies.
type Torrent struct {
	InfoHash string

	peers       []*Peer
	peerCount   int
	activeCount int
}

func newTorrent(infoHash string) *Torrent {
	return &Torrent{InfoHash: infoHash}
}

func (t *Torrent) PeerCount() int   { return t.peerCount }
func (t *Torrent) ActiveCount() int { return t.activeCount }

// find returns the peer matching the identity triple, or nil.
func (t *Torrent) find(ip net.IP, port uint16, peerID string) *Peer {
	for _, p := range t.peers {
		if sameIdentity(p, ip, port, peerID) {
			return p
		}
	}
	return nil
}

// findOrAppend returns the stored peer for the identity triple, creating
// and appending a new one if absent. The second return value reports
// whether a new peer was created.
func (t *Torrent) findOrAppend(ip net.IP, port uint16, peerID string) (*Peer, bool) {
	if existing := t.find(ip, port, peerID); existing != nil {
		return existing, false
	}

	p := &Peer{IP: ip, Port: port, PeerID: peerID}
	t.peers = append(t.peers, p)
	t.peerCount++
	t.activeCount++

	return p, true
}

// sweep removes peers whose ExpireAt has passed and recomputes
// ActiveCount from what remains. Returns true if the torrent is now empty
// and should be dropped from the registry.
func (t *Torrent) sweep(now time.Time) (empty bool) {
	kept := t.peers[:0]

	for _, p := range t.peers {
		if p.ExpireAt.Before(now) {
			continue
		}
		kept = append(kept, p)
	}
	t.peers = kept
	t.peerCount = len(t.peers)

	cutoff := now.Add(60 * time.Second)
	active := 0
	for _, p := range t.peers {
		if p.ExpireAt.After(cutoff) {
			active++
		}
	}
	t.activeCount = active

	return t.peerCount == 0
}

// others returns a snapshot of every peer except the one just upserted,
// in insertion order. except is a pointer into this torrent's own peer
// slice (the value Upsert returned), so pointer comparison alone
// identifies "the peer this announce is about" even when the announce
// refreshed a pre-existing entry rather than creating one.
func (t *Torrent) others(except *Peer) []PeerView {
	views := make([]PeerView, 0, len(t.peers))

	for _, p := range t.peers {
		if p == except {
			continue
		}
		views = append(views, newView(p))
	}

	return views
}
