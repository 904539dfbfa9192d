package gvd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/pkg/alog"
)

// AgentPath is the gvagent binary gvd spawns per CONN_VDEV, overridable by
// tests and by deployments that install it somewhere other than alongside
// gvd.
var AgentPath = "gvagent"

// tcpAcceptLoop accepts inbound GrapeVine TCP connections, handling one
// packet per connection: QUERY gets a synchronous QUERY_RES reply;
// CONN_VDEV spawns a gvagent subprocess handed the socket.
func (d *Daemon) tcpAcceptLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.tcpLn.Close()
	}()

	for {
		conn, err := d.tcpLn.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		go d.handleConn(conn)
	}
}

func (d *Daemon) handleConn(conn *net.TCPConn) {
	payload, err := packet.ReadFrame(conn)
	if err != nil {
		alog.Warn("gvd: reading packet from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	if len(payload) < 1 {
		conn.Close()
		return
	}

	switch packet.Type(payload[0]) {
	case packet.Query:
		defer conn.Close()
		res := packet.QueryResPacket{VDEVs: d.localVDEVs()}
		if err := packet.WriteFrame(conn, res.Marshal()); err != nil {
			alog.Warn("gvd: replying QUERY_RES to %s: %v", conn.RemoteAddr(), err)
		}

	case packet.ConnVDEV:
		d.handleConnVDEV(conn, payload)

	default:
		alog.Warn("gvd: unexpected packet type %d from %s", payload[0], conn.RemoteAddr())
		conn.Close()
	}
}

// handleConnVDEV spawns a gvagent subprocess that inherits conn's socket on
// fd 3, so the agent can take over the connection and bridge it to a local
// KOS connection.
func (d *Daemon) handleConnVDEV(conn *net.TCPConn, payload []byte) {
	defer conn.Close()

	req, err := packet.UnmarshalConnVDEV(payload)
	if err != nil {
		alog.Warn("gvd: malformed CONN_VDEV from %s: %v", conn.RemoteAddr(), err)
		packet.WriteFrame(conn, packet.MarshalConnVDEVFail())
		return
	}

	descr := d.loader.FindByVDEVID(req.VDEVID)
	if descr == nil {
		alog.Warn("gvd: CONN_VDEV for unknown vdev-id %#x", req.VDEVID)
		packet.WriteFrame(conn, packet.MarshalConnVDEVFail())
		return
	}

	f, err := conn.File()
	if err != nil {
		alog.Warn("gvd: duplicating socket fd for gvagent: %v", err)
		packet.WriteFrame(conn, packet.MarshalConnVDEVFail())
		return
	}
	defer f.Close()

	cmd := exec.Command(AgentPath, descr.Spec, strconv.FormatUint(req.VDEVID, 10))
	cmd.ExtraFiles = []*os.File{f}

	tag := fmt.Sprintf("gvagent[%#x]", req.VDEVID)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		alog.Warn("gvd: piping gvagent stdout for vdev %#x: %v", req.VDEVID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		alog.Warn("gvd: piping gvagent stderr for vdev %#x: %v", req.VDEVID, err)
	}

	if err := cmd.Start(); err != nil {
		alog.Error("gvd: spawning gvagent for vdev %#x: %v", req.VDEVID, err)
		packet.WriteFrame(conn, packet.MarshalConnVDEVFail())
		return
	}

	if stdout != nil {
		alog.LogAll(stdout, alog.INFO, tag)
	}
	if stderr != nil {
		alog.LogAll(stderr, alog.WARN, tag)
	}

	alog.Info("gvd: spawned gvagent (pid %d) for vdev %#x (%s)", cmd.Process.Pid, req.VDEVID, descr.Spec)

	go func() {
		if err := cmd.Wait(); err != nil {
			alog.Warn("gvd: gvagent for vdev %#x exited: %v", req.VDEVID, err)
		}
	}()
}
