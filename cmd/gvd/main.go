// Command gvd is the GrapeVine daemon: one per host, discovering peers over
// UDP echolocation and answering VDEV queries and connection requests over
// TCP. See internal/gvd.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/inobulles/aqua/internal/gvd"
	"github.com/inobulles/aqua/pkg/alog"
)

func main() {
	var (
		name     = flag.String("name", defaultName(), "friendly name advertised in ELP broadcasts")
		logLevel = alog.INFO
		logFile  = flag.String("log-file", "", "also log to this file")
		verbose  = flag.Bool("v", true, "log to stderr")
		ringSize = flag.Int("ring-size", 256, "number of recent log lines to keep for a SIGUSR1 dump (0 disables)")
	)
	flag.Var(&logLevel, "log-level", "minimum log level (debug, info, warn, error, fatal)")
	flag.Parse()

	if err := alog.Init(alog.Config{Level: logLevel, Verbose: *verbose, File: *logFile, RingSize: *ringSize}); err != nil {
		fmt.Fprintln(os.Stderr, "gvd:", err)
		os.Exit(1)
	}

	go dumpRingOnSIGUSR1()

	hostID, err := gvd.DeriveHostID()
	if err != nil {
		alog.Fatal("gvd: deriving host-id: %v", err)
	}

	d, err := gvd.New(gvd.Options{HostID: hostID, Name: *name})
	if err != nil {
		alog.Fatal("gvd: %v", err)
	}

	if err := d.Start(); err != nil {
		alog.Fatal("gvd: %v", err)
	}
	defer d.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		alog.Fatal("gvd: %v", err)
	}
}

// dumpRingOnSIGUSR1 prints the log ring's contents to stderr on SIGUSR1, an
// operator diagnostic dump for a daemon with no CLI to ask for one.
func dumpRingOnSIGUSR1() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)

	for range sig {
		for _, line := range alog.Recent() {
			fmt.Fprint(os.Stderr, line)
		}
	}
}

func defaultName() string {
	h, err := os.Hostname()
	if err != nil {
		return "aqua-node"
	}
	return h
}
