// Command gvagent bridges one GrapeVine connection to a local VDEV. gvd
// spawns it per inbound CONN_VDEV with the accepted socket inherited on fd
// 3 and the target spec and vdev-id as positional arguments; it is never
// meant to be run directly by a user. See internal/gvagent.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/inobulles/aqua/internal/gvagent"
	"github.com/inobulles/aqua/pkg/alog"
)

func main() {
	var (
		logLevel = alog.WARN
		logFile  = flag.String("log-file", "", "also log to this file")
	)
	flag.Var(&logLevel, "log-level", "minimum log level (debug, info, warn, error, fatal)")
	flag.Parse()

	if err := alog.Init(alog.Config{Level: logLevel, Verbose: true, File: *logFile}); err != nil {
		fmt.Fprintln(os.Stderr, "gvagent:", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: gvagent <spec> <vdev-id>")
		os.Exit(1)
	}

	spec := args[0]
	vdevID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		alog.Fatal("gvagent: invalid vdev-id %q: %v", args[1], err)
	}

	f := os.NewFile(3, "gv-socket")
	if f == nil {
		alog.Fatal("gvagent: fd 3 was not inherited from the parent process")
	}

	conn, err := net.FileConn(f)
	if err != nil {
		alog.Fatal("gvagent: wrapping inherited socket: %v", err)
	}
	f.Close()

	if err := gvagent.Run(conn, gvagent.Options{Spec: spec, VDEVID: vdevID}); err != nil {
		alog.Fatal("gvagent: %v", err)
	}
}
