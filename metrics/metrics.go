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

// Package metrics exposes the tracker's own operational state as a
// Prometheus collector, served on a listener separate from the tracker's
// own accept loop so the text-format scrape is never reachable through
// announce.php/scrape.php.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mini-tracker/log"
	"mini-tracker/registry"
)

type Collector struct {
	registry *registry.Registry
	requests atomic.Uint64

	torrentsDesc *prometheus.Desc
	peersDesc    *prometheus.Desc
	intervalDesc *prometheus.Desc
	requestsDesc *prometheus.Desc
}

func New(reg *registry.Registry) *Collector {
	return &Collector{
		registry:     reg,
		torrentsDesc: prometheus.NewDesc("mini_tracker_torrents", "Number of torrents currently being tracked", nil, nil),
		peersDesc:    prometheus.NewDesc("mini_tracker_peers", "Number of peers currently being tracked", nil, nil),
		intervalDesc: prometheus.NewDesc("mini_tracker_interval_seconds", "Current global announce interval", nil, nil),
		requestsDesc: prometheus.NewDesc("mini_tracker_requests_total", "Number of requests handled", nil, nil),
	}
}

// ObserveRequest is called by the connection driver once per connection
// that reaches announce or scrape dispatch. Connections closed silently or
// answered with a 404 before dispatch are not counted.
func (c *Collector) ObserveRequest() {
	c.requests.Add(1)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.torrentsDesc
	ch <- c.peersDesc
	ch <- c.intervalDesc
	ch <- c.requestsDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	torrents, peers := c.registry.Stats()

	ch <- prometheus.MustNewConstMetric(c.torrentsDesc, prometheus.GaugeValue, float64(torrents))
	ch <- prometheus.MustNewConstMetric(c.peersDesc, prometheus.GaugeValue, float64(peers))
	ch <- prometheus.MustNewConstMetric(c.intervalDesc, prometheus.GaugeValue, float64(c.registry.Interval()))
	ch <- prometheus.MustNewConstMetric(c.requestsDesc, prometheus.CounterValue, float64(c.requests.Load()))
}

// Serve starts a dedicated HTTP listener for the Prometheus text format,
// blocking until the server stops or the context is canceled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	registerer := prometheus.NewRegistry()
	if err := registerer.Register(c); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info.Printf("metrics listening on %s", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
