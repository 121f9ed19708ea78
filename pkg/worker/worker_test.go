package worker

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/drover/pkg/protocol"
)

// fakeMaster provides scripted registration and utilization endpoints.
type fakeMaster struct {
	regLn   net.Listener
	utilLn  net.Listener
	reports chan string
}

func newFakeMaster(t *testing.T) *fakeMaster {
	t.Helper()

	regLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	utilLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fm := &fakeMaster{regLn: regLn, utilLn: utilLn, reports: make(chan string, 64)}
	t.Cleanup(func() {
		regLn.Close()
		utilLn.Close()
	})

	// Registration: assign dense ids from 0 in arrival order.
	go func() {
		id := 0
		for {
			nc, err := regLn.Accept()
			if err != nil {
				return
			}
			conn := protocol.NewConn(nc)
			if _, err := conn.ReadControl(); err == nil {
				conn.WriteControl(fmt.Sprintf("%s %d", protocol.TokenWorkerAdded, id))
				id++
			}
			nc.Close()
		}
	}()

	// Utilization: record and acknowledge every report.
	go func() {
		for {
			nc, err := utilLn.Accept()
			if err != nil {
				return
			}
			conn := protocol.NewConn(nc)
			if line, err := conn.ReadControl(); err == nil {
				fm.reports <- line
				conn.WriteToken(protocol.TokenUtilizationOK)
			}
			nc.Close()
		}
	}()

	return fm
}

func (fm *fakeMaster) port(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func startWorker(t *testing.T, fm *fakeMaster, mutate func(*Config)) *Worker {
	t.Helper()

	cfg := &Config{
		MasterHost:        "127.0.0.1",
		RegistrationPort:  fm.port(t, fm.regLn),
		UtilizationPort:   fm.port(t, fm.utilLn),
		ExecPort:          0,
		WorkDir:           t.TempDir(),
		ReportMaxInterval: time.Hour, // quiet unless a test shortens it
		BindRetries:       1,
		Utilization:       func() float64 { return 0.25 },
	}
	if mutate != nil {
		mutate(cfg)
	}

	w := New(cfg)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return w
}

// dispatchScript is a job artifact usable on any unix host: it counts the
// words of its input and writes them to the conventional output file.
const dispatchScript = "#!/bin/sh\nwc -w < \"$1\" | tr -d ' \\n' > job.sh_output.txt\n"

func TestWorkerRegistersOnStart(t *testing.T) {
	fm := newFakeMaster(t)
	w := startWorker(t, fm, nil)

	assert.Equal(t, 0, w.ID())
	assert.NotEmpty(t, w.ExecAddr())
}

func TestWorkerRunsDispatchedJob(t *testing.T) {
	fm := newFakeMaster(t)
	w := startWorker(t, fm, nil)
	workDir := w.cfg.WorkDir

	input := []byte("five words in this file\n")

	nc, err := net.DialTimeout("tcp", w.ExecAddr(), time.Second)
	require.NoError(t, err)
	defer nc.Close()
	conn := protocol.NewConn(nc)

	req := protocol.JobRequest{
		ExeName: "job.sh",
		ExeSize: len(dispatchScript),
		InName:  "input.txt",
		InSize:  len(input),
		Command: "./job.sh input.txt",
	}
	require.NoError(t, conn.WriteControl(protocol.FormatDispatchRequest(req)))
	require.NoError(t, conn.Expect(protocol.TokenJobRequestOK))
	require.NoError(t, conn.WriteChunks([]byte(dispatchScript)))
	require.NoError(t, conn.Expect(protocol.TokenBufferOK))
	require.NoError(t, conn.WriteChunks(input))
	require.NoError(t, conn.Expect(protocol.TokenBufferOK))

	line, err := conn.ReadControl()
	require.NoError(t, err)
	meta, err := protocol.ParseOutputMeta(line)
	require.NoError(t, err)
	assert.Equal(t, "job.sh_output.txt", meta.Name)

	require.NoError(t, conn.WriteToken(protocol.TokenJobOutputOK))
	output, err := conn.ReadChunks(meta.Size)
	require.NoError(t, err)
	require.NoError(t, conn.WriteToken(protocol.TokenBufferOK))

	assert.Equal(t, "5", string(output))

	// Every artifact is cleaned off the local disk.
	assert.Eventually(t, func() bool {
		for _, name := range []string{"job.sh", "input.txt", "job.sh_output.txt"} {
			if _, err := os.Stat(filepath.Join(workDir, name)); !os.IsNotExist(err) {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond, "job artifacts must be deleted after the run")
}

func TestWorkerHandlesChunkBoundaryPayloads(t *testing.T) {
	fm := newFakeMaster(t)
	w := startWorker(t, fm, nil)

	// exe_size is an exact multiple of the chunk size; in_size has a short
	// tail. The script exits before reaching its padding, so pad it with
	// comment characters to exactly 2000 bytes.
	exe := make([]byte, 2000)
	n := copy(exe, "#!/bin/sh\nwc -w < \"$1\" | tr -d ' \\n' > job.sh_output.txt\nexit 0\n")
	for i := n; i < len(exe); i++ {
		exe[i] = '#'
	}
	input := make([]byte, 2500)
	for i := range input {
		if i%5 == 4 {
			input[i] = ' '
		} else {
			input[i] = 'a'
		}
	}

	nc, err := net.DialTimeout("tcp", w.ExecAddr(), time.Second)
	require.NoError(t, err)
	defer nc.Close()
	conn := protocol.NewConn(nc)

	req := protocol.JobRequest{
		ExeName: "job.sh",
		ExeSize: len(exe),
		InName:  "input.txt",
		InSize:  len(input),
		Command: "./job.sh input.txt",
	}
	require.NoError(t, conn.WriteControl(protocol.FormatDispatchRequest(req)))
	require.NoError(t, conn.Expect(protocol.TokenJobRequestOK))
	require.NoError(t, conn.WriteChunks(exe))
	require.NoError(t, conn.Expect(protocol.TokenBufferOK))
	require.NoError(t, conn.WriteChunks(input))
	require.NoError(t, conn.Expect(protocol.TokenBufferOK))

	line, err := conn.ReadControl()
	require.NoError(t, err)
	meta, err := protocol.ParseOutputMeta(line)
	require.NoError(t, err)

	require.NoError(t, conn.WriteToken(protocol.TokenJobOutputOK))
	output, err := conn.ReadChunks(meta.Size)
	require.NoError(t, err)
	require.NoError(t, conn.WriteToken(protocol.TokenBufferOK))

	assert.NotEmpty(t, output, "boundary-sized job must still produce output")
	assert.Equal(t, "500", string(output))
}

func TestWorkerRejectsMalformedDispatch(t *testing.T) {
	fm := newFakeMaster(t)
	w := startWorker(t, fm, nil)

	nc, err := net.DialTimeout("tcp", w.ExecAddr(), time.Second)
	require.NoError(t, err)
	defer nc.Close()
	conn := protocol.NewConn(nc)

	require.NoError(t, conn.WriteControl("not a dispatch line"))

	line, err := conn.ReadControl()
	require.NoError(t, err)
	token, _ := protocol.SplitControl(line)
	assert.Equal(t, protocol.TokenJobRequestFailed, token)
}

func TestWorkerReportsJobWithoutOutputFile(t *testing.T) {
	fm := newFakeMaster(t)
	w := startWorker(t, fm, nil)

	// The script exits cleanly but never writes the conventional output.
	script := "#!/bin/sh\nexit 0\n"

	nc, err := net.DialTimeout("tcp", w.ExecAddr(), time.Second)
	require.NoError(t, err)
	defer nc.Close()
	conn := protocol.NewConn(nc)

	req := protocol.JobRequest{
		ExeName: "job.sh",
		ExeSize: len(script),
		InName:  "input.txt",
		InSize:  2,
		Command: "./job.sh input.txt",
	}
	require.NoError(t, conn.WriteControl(protocol.FormatDispatchRequest(req)))
	require.NoError(t, conn.Expect(protocol.TokenJobRequestOK))
	require.NoError(t, conn.WriteChunks([]byte(script)))
	require.NoError(t, conn.Expect(protocol.TokenBufferOK))
	require.NoError(t, conn.WriteChunks([]byte("hi")))
	require.NoError(t, conn.Expect(protocol.TokenBufferOK))

	line, err := conn.ReadControl()
	require.NoError(t, err)
	token, _ := protocol.SplitControl(line)
	assert.Equal(t, protocol.TokenJobOutputFailed, token)
}

func TestWorkerPushesUtilizationReports(t *testing.T) {
	fm := newFakeMaster(t)
	startWorker(t, fm, func(c *Config) {
		c.ReportMaxInterval = 50 * time.Millisecond
		c.Utilization = func() float64 { return 0.42 }
	})

	select {
	case line := <-fm.reports:
		report, err := protocol.ParseUtilizationReport(line)
		require.NoError(t, err)
		assert.Equal(t, 0, report.WorkerID)
		assert.InDelta(t, 0.42, report.Value, 1e-6)
	case <-time.After(3 * time.Second):
		t.Fatal("worker never reported utilization")
	}
}

func TestCPUSamplerContract(t *testing.T) {
	s := NewCPUSampler()

	// First sample primes the counters.
	first := s.Sample()
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)

	time.Sleep(20 * time.Millisecond)
	second := s.Sample()
	assert.GreaterOrEqual(t, second, 0.0)
	assert.LessOrEqual(t, second, 1.0)
}
