package worker

import (
	"math/rand"
	"time"

	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/types"
)

// reportUtilization pushes this worker's CPU utilization to the master on a
// randomized interval. Each report is one fresh connection and one round
// trip; transport failures are logged and retried on the next tick. The
// loop runs until the worker shuts down.
func (w *Worker) reportUtilization() {
	defer w.wg.Done()

	for {
		sleep := time.Duration(rand.Int63n(int64(w.cfg.ReportMaxInterval)))
		select {
		case <-time.After(sleep):
		case <-w.ctx.Done():
			return
		}

		if err := w.reportOnce(); err != nil {
			w.logger.Warn().Err(err).Msg("Utilization report failed, will retry")
		}
	}
}

func (w *Worker) reportOnce() error {
	conn, _, err := w.dialMaster(w.cfg.UtilizationPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	report := types.UtilizationReport{WorkerID: w.id, Value: w.cfg.Utilization()}
	if err := conn.WriteControl(protocol.FormatUtilizationReport(report)); err != nil {
		return err
	}

	if err := conn.Expect(protocol.TokenUtilizationOK); err != nil {
		return err
	}

	w.logger.Debug().Float64("utilization", report.Value).Msg("Utilization reported")
	return nil
}
