package master

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/health"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
)

// probeWorkers periodically TCP-probes every registered worker's exec
// endpoint. Results are diagnostic only: selection still follows reported
// utilization, but unreachable workers are logged and gauged so an
// operator can see a dispatch about to spin.
func (m *Master) probeWorkers() {
	defer m.wg.Done()

	logger := log.WithComponent("prober")
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probeOnce(logger)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Master) probeOnce(logger zerolog.Logger) {
	unreachable := 0
	for _, worker := range m.registry.Snapshot() {
		addr := net.JoinHostPort(worker.Address, strconv.Itoa(m.cfg.WorkerExecPort))
		checker := health.NewTCPChecker(addr).WithTimeout(3 * time.Second)

		result := checker.Check(m.ctx)
		if result.Healthy {
			continue
		}

		unreachable++
		logger.Warn().
			Int("worker_id", worker.ID).
			Str("address", addr).
			Str("detail", result.Message).
			Msg("Worker exec endpoint unreachable")

		m.broker.Publish(&events.Event{
			Type:    events.EventWorkerUnreachable,
			Message: fmt.Sprintf("worker %d unreachable at %s", worker.ID, addr),
			Metadata: map[string]string{
				"worker_id": fmt.Sprint(worker.ID),
				"address":   addr,
			},
		})
	}
	metrics.WorkersUnreachable.Set(float64(unreachable))
}
