package master

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/protocol"
)

// acceptUtilizationReports runs the load-report loop. Each report is a
// single round trip: one "<id> <value>" line in, one token out.
func (m *Master) acceptUtilizationReports() {
	defer m.wg.Done()

	logger := log.WithComponent("utilization")
	logger.Info().Str("addr", m.UtilizationAddr()).Msg("Listening for utilization reports")

	for {
		nc, err := m.utilListener.Accept()
		if err != nil {
			if m.stopping() {
				return
			}
			logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		m.applyUtilizationReport(nc, logger)
		nc.Close()
	}
}

func (m *Master) applyUtilizationReport(nc net.Conn, logger zerolog.Logger) {
	conn := protocol.NewConn(nc)

	line, err := conn.ReadControl()
	if err != nil {
		logger.Debug().Err(err).Msg("Dropping unreadable report")
		metrics.UtilizationUpdatesTotal.WithLabelValues("error").Inc()
		return
	}

	report, err := protocol.ParseUtilizationReport(line)
	if err == nil {
		err = m.registry.Update(report.WorkerID, report.Value)
	}
	if err != nil {
		logger.Warn().Err(err).Str("line", line).Msg("Rejecting utilization report")
		metrics.UtilizationUpdatesTotal.WithLabelValues("rejected").Inc()
		conn.WriteToken(protocol.TokenUtilizationFailed)
		return
	}

	metrics.UtilizationUpdatesTotal.WithLabelValues("applied").Inc()
	metrics.WorkerUtilization.WithLabelValues(fmt.Sprint(report.WorkerID)).Set(report.Value)

	m.broker.Publish(&events.Event{
		Type:    events.EventUtilizationUpdated,
		Message: fmt.Sprintf("worker %d at %.2f", report.WorkerID, report.Value),
		Metadata: map[string]string{
			"worker_id":   fmt.Sprint(report.WorkerID),
			"utilization": fmt.Sprintf("%.4f", report.Value),
		},
	})

	logger.Debug().Int("worker_id", report.WorkerID).Float64("utilization", report.Value).Msg("Utilization updated")
	conn.WriteToken(protocol.TokenUtilizationOK)
}
