package master

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/registry"
)

// acceptRegistrations runs the worker registration loop. Each registration
// is one complete, stateless transaction: read the worker's address, assign
// an id, reply, close.
func (m *Master) acceptRegistrations() {
	defer m.wg.Done()

	logger := log.WithComponent("registration")
	logger.Info().Str("addr", m.RegistrationAddr()).Msg("Listening for workers")

	for {
		nc, err := m.regListener.Accept()
		if err != nil {
			if m.stopping() {
				return
			}
			logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		if err := m.registerWorker(nc, logger); err != nil {
			logger.Error().Err(err).Str("remote", nc.RemoteAddr().String()).Msg("Registration failed")
		}
		nc.Close()
	}
}

func (m *Master) registerWorker(nc net.Conn, logger zerolog.Logger) error {
	conn := protocol.NewConn(nc)

	line, err := conn.ReadControl()
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("read address: %w", err)
	}

	address := strings.TrimSpace(line)
	if address == "" {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return errors.New("empty worker address")
	}

	id, err := m.registry.Register(address)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("rejected").Inc()
		if !errors.Is(err, registry.ErrCapacityExceeded) {
			return err
		}
		logger.Warn().Str("address", address).Msg("Registry full, rejecting worker")
		return conn.WriteControl(fmt.Sprintf("%s %d", protocol.TokenWorkerAddFailed, id))
	}

	metrics.RegistrationsTotal.WithLabelValues("accepted").Inc()
	metrics.WorkersRegistered.Set(float64(m.registry.Size()))

	m.broker.Publish(&events.Event{
		Type:    events.EventWorkerRegistered,
		Message: fmt.Sprintf("worker %d registered", id),
		Metadata: map[string]string{
			"worker_id": fmt.Sprint(id),
			"address":   address,
		},
	})

	logger.Info().Int("worker_id", id).Str("address", address).Msg("Worker registered")
	return conn.WriteControl(fmt.Sprintf("%s %d", protocol.TokenWorkerAdded, id))
}
