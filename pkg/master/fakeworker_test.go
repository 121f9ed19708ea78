package master

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/drover/pkg/protocol"
)

// receivedJob captures what a fake worker saw on one exec session.
type receivedJob struct {
	Request protocol.JobRequest
	Exe     []byte
	In      []byte
}

// fakeWorker is a scripted exec server used to test the master's dispatch
// protocol without running real jobs. It answers the execution sub-protocol
// and returns a canned output buffer.
type fakeWorker struct {
	ip        string
	port      int
	ln        net.Listener
	output    []byte
	connected chan struct{}
	jobs      chan receivedJob
}

// newFakeWorker binds an exec listener on ip (an ephemeral port when port
// is zero) and starts serving dispatches.
func newFakeWorker(t *testing.T, ip string, port int, output []byte) *fakeWorker {
	t.Helper()

	ln, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	require.NoError(t, err)

	fw := &fakeWorker{
		ip:        ip,
		port:      portOf(t, ln.Addr().String()),
		ln:        ln,
		output:    output,
		connected: make(chan struct{}, 16),
		jobs:      make(chan receivedJob, 16),
	}
	t.Cleanup(func() { ln.Close() })

	go fw.serve()
	return fw
}

func (fw *fakeWorker) serve() {
	for {
		nc, err := fw.ln.Accept()
		if err != nil {
			return
		}
		fw.connected <- struct{}{}
		fw.handle(nc)
		nc.Close()
	}
}

func (fw *fakeWorker) handle(nc net.Conn) {
	conn := protocol.NewConn(nc)

	line, err := conn.ReadControl()
	if err != nil {
		return
	}
	req, err := protocol.ParseDispatchRequest(line)
	if err != nil {
		conn.WriteToken(protocol.TokenJobRequestFailed)
		return
	}
	if conn.WriteToken(protocol.TokenJobRequestOK) != nil {
		return
	}

	exe, err := conn.ReadChunks(req.ExeSize)
	if err != nil {
		return
	}
	if conn.WriteToken(protocol.TokenBufferOK) != nil {
		return
	}

	in, err := conn.ReadChunks(req.InSize)
	if err != nil {
		return
	}
	if conn.WriteToken(protocol.TokenBufferOK) != nil {
		return
	}

	fw.jobs <- receivedJob{Request: req, Exe: exe, In: in}

	outName := req.ExeName + "_output.txt"
	meta := protocol.OutputMeta{Name: outName, Size: len(fw.output)}
	if conn.WriteControl(protocol.FormatOutputMeta(meta)) != nil {
		return
	}
	if conn.Expect(protocol.TokenJobOutputOK) != nil {
		return
	}
	if conn.WriteChunks(fw.output) != nil {
		return
	}
	conn.Expect(protocol.TokenBufferOK)
}

// failingWorker accepts exec connections and immediately hangs up.
type failingWorker struct {
	ln        net.Listener
	connected chan struct{}
}

func newFailingWorker(t *testing.T, ip string, port int) *failingWorker {
	t.Helper()

	ln, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	fw := &failingWorker{ln: ln, connected: make(chan struct{}, 16)}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			fw.connected <- struct{}{}
			nc.Close()
		}
	}()
	return fw
}
