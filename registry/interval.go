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
	"time"

	"mini-tracker/config"
)

// intervalController holds the single process-global announce interval.
// It is recomputed on every upsert from the counts of whichever torrent
// triggered the upsert, and applies to every subsequent reply regardless
// of which torrent they concern.
type intervalController struct {
	seconds int
}

func newIntervalController() *intervalController {
	return &intervalController{seconds: floorSeconds()}
}

func floorSeconds() int {
	return int(config.MinAnnounceInterval / time.Second)
}

// recompute implements the fixed-point backpressure formula: target a
// total announce rate across the torrent's peers bounded by
// max_announce_rate per minute, with min_announce_interval as a floor.
// All arithmetic is integer, matching the reference tracker.
func (c *intervalController) recompute(peerCount, activeCount int) {
	rate := config.MaxAnnounceRate
	raw := peerCount * activeCount * 60 / (rate * rate)

	if floor := floorSeconds(); raw < floor {
		raw = floor
	}
	c.seconds = raw
}

func (c *intervalController) Seconds() int {
	return c.seconds
}
