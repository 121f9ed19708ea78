package master

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/config"
	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/registry"
)

// Config holds master configuration
type Config struct {
	BindAddr         string
	RegistrationPort int
	SubmissionPort   int
	UtilizationPort  int

	// WorkerExecPort is the port workers listen on for dispatched jobs.
	WorkerExecPort int

	// MetricsAddr serves /metrics, /health and /ready. Empty disables it.
	MetricsAddr string

	RegistryCapacity int
	BindRetries      int

	// DispatchMaxAttempts caps attempts per job, the first attempt
	// included; zero means unlimited.
	DispatchMaxAttempts int
	DispatchRetryDelay  time.Duration
	DialTimeout         time.Duration

	// ProbeInterval is how often worker exec endpoints are probed.
	// Zero disables the prober.
	ProbeInterval time.Duration
}

// FromConfig maps the file configuration onto a master Config.
func FromConfig(c config.Config) *Config {
	return &Config{
		BindAddr:            c.Master.BindAddr,
		RegistrationPort:    c.Master.RegistrationPort,
		SubmissionPort:      c.Master.SubmissionPort,
		UtilizationPort:     c.Master.UtilizationPort,
		WorkerExecPort:      c.Worker.ExecPort,
		MetricsAddr:         c.Master.MetricsAddr,
		RegistryCapacity:    c.Master.RegistryCapacity,
		BindRetries:         c.Master.BindRetries,
		DispatchMaxAttempts: c.Master.DispatchMaxAttempts,
		DispatchRetryDelay:  c.Master.DispatchRetryDelay.Std(),
		DialTimeout:         10 * time.Second,
		ProbeInterval:       c.Master.ProbeInterval.Std(),
	}
}

// Master coordinates the cluster: it owns the worker registry, accepts
// client submissions and dispatches jobs to workers.
type Master struct {
	cfg      *Config
	registry *registry.Registry
	broker   *events.Broker
	logger   zerolog.Logger

	regListener  net.Listener
	subListener  net.Listener
	utilListener net.Listener
	metricsSrv   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a master from cfg. The registry starts empty; the first
// client session blocks in dispatch until a worker registers.
func New(cfg *Config) *Master {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Master{
		cfg:      cfg,
		registry: registry.New(cfg.RegistryCapacity),
		broker:   events.NewBroker(),
		logger:   log.WithComponent("master"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the worker registry for diagnostics.
func (m *Master) Registry() *registry.Registry {
	return m.registry
}

// Events exposes the master's event broker.
func (m *Master) Events() *events.Broker {
	return m.broker
}

// Start binds the three listeners and launches their accept loops. It
// returns once everything is listening; fatal bind errors are returned
// after the retry budget is spent.
func (m *Master) Start() error {
	m.broker.Start()

	var err error
	m.regListener, err = m.listen(m.cfg.RegistrationPort)
	if err != nil {
		metrics.RegisterComponent("registration", false, err.Error())
		return fmt.Errorf("registration listener: %w", err)
	}
	metrics.RegisterComponent("registration", true, "listening")

	m.subListener, err = m.listen(m.cfg.SubmissionPort)
	if err != nil {
		metrics.RegisterComponent("submission", false, err.Error())
		m.regListener.Close()
		return fmt.Errorf("submission listener: %w", err)
	}
	metrics.RegisterComponent("submission", true, "listening")

	m.utilListener, err = m.listen(m.cfg.UtilizationPort)
	if err != nil {
		metrics.RegisterComponent("utilization", false, err.Error())
		m.regListener.Close()
		m.subListener.Close()
		return fmt.Errorf("utilization listener: %w", err)
	}
	metrics.RegisterComponent("utilization", true, "listening")

	m.wg.Add(3)
	go m.acceptRegistrations()
	go m.acceptSubmissions()
	go m.acceptUtilizationReports()

	if m.cfg.ProbeInterval > 0 {
		m.wg.Add(1)
		go m.probeWorkers()
	}

	if m.cfg.MetricsAddr != "" {
		m.startMetricsServer()
	}

	m.logger.Info().
		Str("registration", m.RegistrationAddr()).
		Str("submission", m.SubmissionAddr()).
		Str("utilization", m.UtilizationAddr()).
		Msg("Master started")

	return nil
}

// Stop signals every loop to terminate, closes the listeners and waits for
// in-flight sessions to unwind at their next I/O boundary.
func (m *Master) Stop() {
	m.cancel()

	if m.regListener != nil {
		m.regListener.Close()
	}
	if m.subListener != nil {
		m.subListener.Close()
	}
	if m.utilListener != nil {
		m.utilListener.Close()
	}
	if m.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	m.wg.Wait()
	m.broker.Stop()
	m.logger.Info().Msg("Master stopped")
}

// RegistrationAddr returns the bound registration endpoint address.
func (m *Master) RegistrationAddr() string {
	return m.regListener.Addr().String()
}

// SubmissionAddr returns the bound submission endpoint address.
func (m *Master) SubmissionAddr() string {
	return m.subListener.Addr().String()
}

// UtilizationAddr returns the bound utilization endpoint address.
func (m *Master) UtilizationAddr() string {
	return m.utilListener.Addr().String()
}

// listen binds a TCP port, retrying with a randomized pause the way bind
// contention is handled across the cluster, and failing after the budget.
func (m *Master) listen(port int) (net.Listener, error) {
	addr := net.JoinHostPort(m.cfg.BindAddr, strconv.Itoa(port))

	var lastErr error
	retries := m.cfg.BindRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		m.logger.Warn().Err(err).Str("addr", addr).Int("attempt", attempt+1).Msg("Bind failed, retrying")

		select {
		case <-time.After(time.Duration(rand.Intn(5000)) * time.Millisecond):
		case <-m.ctx.Done():
			return nil, m.ctx.Err()
		}
	}
	return nil, fmt.Errorf("bind %s after %d attempts: %w", addr, retries, lastErr)
}

func (m *Master) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())

	m.metricsSrv = &http.Server{Addr: m.cfg.MetricsAddr, Handler: mux}

	go func() {
		if err := m.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// stopping reports whether shutdown has been requested.
func (m *Master) stopping() bool {
	select {
	case <-m.ctx.Done():
		return true
	default:
		return false
	}
}
