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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"syscall"

	"github.com/andres-erbsen/clock"

	"mini-tracker/config"
	"mini-tracker/log"
	"mini-tracker/metrics"
	"mini-tracker/registry"
	"mini-tracker/server"
)

var profile, help bool

func init() {
	flag.BoolVar(&profile, "P", false, "Generate profiling data for pprof into mini-tracker.cpu")
	flag.BoolVar(&help, "h", false, "Shows this help dialog")
}

// provided at compile-time
var (
	BuildDate    = "0000-00-00T00:00:00+0000"
	BuildVersion = "development"
)

func main() {
	fmt.Printf("mini-tracker, ver=%s date=%s runtime=%s\n\n", BuildVersion, BuildDate, runtime.Version())

	flag.Parse()

	if help {
		usage()
		return
	}

	port, err := parsePort(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(-1)
	}

	config.Load()

	if profile {
		log.Info.Printf("running with profiling enabled, found %d CPUs", runtime.NumCPU())

		f, err := os.Create("mini-tracker.cpu")
		if err != nil {
			log.Fatal.Fatalf("failed to create profile file: %s", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal.Fatalf("can not start profiling session: %s", err)
		}
		defer pprof.StopCPUProfile()
	}

	reg := registry.New(clock.New())
	collector := metrics.New(reg)
	srv := server.New(reg, collector)

	if err := srv.Start(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatal.Fatalf("failed to bind listening socket: %s", err)
	}

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	go func() {
		if err := collector.Serve(metricsCtx, config.MetricsAddr); err != nil {
			log.Error.Printf("metrics listener stopped: %s", err)
		}
	}()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c

		log.Info.Println("caught interrupt, shutting down...")
		stopMetrics()
		_ = srv.Stop()
	}()

	if err := srv.Serve(); err != nil {
		log.Fatal.Fatalf("server exited with error: %s", err)
	}

	log.Info.Println("shutdown complete")
}

// parsePort implements the "tracker [port]" CLI contract: no argument
// binds 80; one argument is parsed as decimal, octal (leading 0), or hex
// (leading 0x) and reduced modulo 65536; anything else is a usage error.
func parsePort(args []string) (int, error) {
	if len(args) == 0 {
		return 80, nil
	}
	if len(args) > 1 {
		return 0, fmt.Errorf("unexpected extra arguments: %v", args[1:])
	}

	v, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", args[0], err)
	}

	return int(v % 65536), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [port]\n", os.Args[0])
	flag.PrintDefaults()
}
