package worker

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/config"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/protocol"
)

// Config holds worker configuration
type Config struct {
	// MasterHost is the master's IPv4 address or resolvable hostname.
	MasterHost string

	RegistrationPort int
	UtilizationPort  int
	ExecPort         int

	// WorkDir is where job artifacts are materialized and run. Empty means
	// the process working directory.
	WorkDir string

	// ReportMaxInterval bounds the random sleep between utilization
	// reports.
	ReportMaxInterval time.Duration

	BindRetries int

	// Utilization returns the host's instantaneous CPU utilization in
	// [0, 1]. Nil selects the /proc/stat sampler.
	Utilization func() float64
}

// FromConfig maps the file configuration onto a worker Config.
func FromConfig(c config.Config, masterHost string) *Config {
	return &Config{
		MasterHost:        masterHost,
		RegistrationPort:  c.Master.RegistrationPort,
		UtilizationPort:   c.Master.UtilizationPort,
		ExecPort:          c.Worker.ExecPort,
		WorkDir:           c.Worker.WorkDir,
		ReportMaxInterval: c.Worker.ReportMaxInterval.Std(),
		BindRetries:       c.Worker.BindRetries,
	}
}

// Worker is a compute node: it registers with the master, reports its load,
// and executes dispatched jobs one at a time.
type Worker struct {
	cfg    *Config
	id     int
	addr   string // self address announced at registration
	logger zerolog.Logger

	execListener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a worker from cfg.
func New(cfg *Config) *Worker {
	if cfg.Utilization == nil {
		cfg.Utilization = NewCPUSampler().Sample
	}
	if cfg.ReportMaxInterval <= 0 {
		cfg.ReportMaxInterval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:    cfg,
		id:     -1,
		logger: log.WithComponent("worker"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the exec listener, performs the one-shot registration
// handshake, and launches the report and job loops. The exec listener is
// bound before registering so the master can dispatch immediately.
func (w *Worker) Start() error {
	ln, err := w.listenExec()
	if err != nil {
		return fmt.Errorf("exec listener: %w", err)
	}
	w.execListener = ln

	if err := w.register(); err != nil {
		w.execListener.Close()
		return fmt.Errorf("register with master: %w", err)
	}

	w.logger = log.WithWorkerID(w.id).With().Str("component", "worker").Logger()
	w.logger.Info().
		Str("address", w.addr).
		Str("exec_addr", w.execListener.Addr().String()).
		Msg("Worker started")

	w.wg.Add(2)
	go w.reportUtilization()
	go w.acceptJobs()

	return nil
}

// Stop terminates the loops and closes the exec listener. In-flight job
// sessions unwind at their next I/O boundary.
func (w *Worker) Stop() {
	w.cancel()
	if w.execListener != nil {
		w.execListener.Close()
	}
	w.wg.Wait()
	w.logger.Info().Msg("Worker stopped")
}

// ID returns the id assigned by the master, or -1 before registration.
func (w *Worker) ID() int {
	return w.id
}

// ExecAddr returns the bound exec endpoint address.
func (w *Worker) ExecAddr() string {
	return w.execListener.Addr().String()
}

func (w *Worker) listenExec() (net.Listener, error) {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(w.cfg.ExecPort))

	var lastErr error
	retries := w.cfg.BindRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		w.logger.Warn().Err(err).Str("addr", addr).Int("attempt", attempt+1).Msg("Bind failed, retrying")

		select {
		case <-time.After(time.Duration(rand.Intn(5000)) * time.Millisecond):
		case <-w.ctx.Done():
			return nil, w.ctx.Err()
		}
	}
	return nil, fmt.Errorf("bind %s after %d attempts: %w", addr, retries, lastErr)
}

// masterAddr joins the master host with one of its ports.
func (w *Worker) masterAddr(port int) string {
	return net.JoinHostPort(w.cfg.MasterHost, strconv.Itoa(port))
}

// dialMaster opens a fresh connection to one of the master's endpoints.
func (w *Worker) dialMaster(port int) (*protocol.Conn, net.Conn, error) {
	nc, err := net.DialTimeout("tcp", w.masterAddr(port), 10*time.Second)
	if err != nil {
		return nil, nil, err
	}
	return protocol.NewConn(nc), nc, nil
}
