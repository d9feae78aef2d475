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
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"

	"mini-tracker/config"
)

// Registry is the process-wide torrents-by-info-hash collection. The
// connection driver's one-at-a-time dispatch means announces never race
// each other, but the metrics collector reads the same map from its own
// HTTP goroutine (see cmd/mini-tracker/main.go), so the map itself still
// needs a lock: mu guards it the same way the reference
// implementation's database.Database.TorrentsMutex guards its Torrents
// map against a concurrent metrics scrape.
type Registry struct {
	mu sync.RWMutex

	clock    clock.Clock
	torrents map[string]*Torrent
	interval *intervalController
}

// New builds an empty registry. clk is injectable so tests can control
// expiry and sweep behavior deterministically instead of sleeping.
func New(clk clock.Clock) *Registry {
	return &Registry{
		clock:    clk,
		torrents: make(map[string]*Torrent),
		interval: newIntervalController(),
	}
}

func key(infoHash string) string {
	return strings.ToLower(infoHash)
}

// FindOrCreate returns the torrent for infoHash, inserting an empty one if
// absent.
func (r *Registry) FindOrCreate(infoHash string) *Torrent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.findOrCreateLocked(infoHash)
}

func (r *Registry) findOrCreateLocked(infoHash string) *Torrent {
	k := key(infoHash)

	if t, ok := r.torrents[k]; ok {
		return t
	}

	t := newTorrent(infoHash)
	r.torrents[k] = t

	return t
}

// Upsert records one announce. It finds or creates the torrent, finds or
// appends the peer by identity triple, overwrites its reported counters,
// recomputes the global interval, and stamps LastUpdate/ExpireAt on the
// stored peer. It returns the stored peer (so the caller can exclude it
// from the reply) and its torrent.
func (r *Registry) Upsert(infoHash string, ip net.IP, port uint16, peerID string, uploaded, downloaded, left int64) (*Peer, *Torrent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findOrCreateLocked(infoHash)

	stored, _ := t.findOrAppend(ip, port, peerID)
	stored.Uploaded = uploaded
	stored.Downloaded = downloaded
	stored.Left = left

	r.interval.recompute(t.peerCount, t.activeCount)

	now := r.clock.Now()
	stored.LastUpdate = now
	stored.ExpireAt = now.Add(expireDuration(r.interval.Seconds()))

	return stored, t
}

func expireDuration(intervalSeconds int) time.Duration {
	seconds := math.Floor(config.ExpireFactor * float64(intervalSeconds))
	return time.Duration(seconds) * time.Second
}

// Sweep removes expired peers from every torrent and drops any torrent
// left with zero peers. Invoked once per request, before dispatch.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	for k, t := range r.torrents {
		if empty := t.sweep(now); empty {
			delete(r.torrents, k)
		}
	}
}

// Interval returns the current process-global announce interval in
// seconds.
func (r *Registry) Interval() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.interval.Seconds()
}

// Others returns a snapshot of every peer in t except the one just
// upserted (see Torrent.others).
func (r *Registry) Others(t *Torrent, except *Peer) []PeerView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return t.others(except)
}

// Stats reports the current size of the registry, for the metrics
// collector. Called from the metrics HTTP goroutine concurrently with
// announces on the driver goroutine, hence the read lock.
func (r *Registry) Stats() (torrents int, peers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.torrents {
		torrents++
		peers += t.peerCount
	}
	return
}
