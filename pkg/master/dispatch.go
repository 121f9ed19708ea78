package master

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/types"
)

// dispatch runs a job on the cluster. It blocks until a worker is
// registered, then drives the execution sub-protocol against the current
// optimal worker. Transport and protocol failures trigger a retry against
// a freshly re-read optimal worker, so a newly elected worker can pick up
// the task. The attempt budget is configurable; zero means retry forever
// (bounded only by master shutdown).
func (m *Master) dispatch(job types.Job, logger zerolog.Logger) (types.Buffer, error) {
	timer := metrics.NewTimer()

	for attempt := 1; ; attempt++ {
		if m.cfg.DispatchMaxAttempts > 0 && attempt > m.cfg.DispatchMaxAttempts {
			return types.Buffer{}, fmt.Errorf("dispatch: gave up after %d attempts", m.cfg.DispatchMaxAttempts)
		}

		worker, err := m.registry.AwaitOptimal(m.ctx)
		if err != nil {
			return types.Buffer{}, fmt.Errorf("dispatch: no worker available: %w", err)
		}

		metrics.DispatchAttemptsTotal.Inc()
		logger.Info().
			Int("worker_id", worker.ID).
			Str("address", worker.Address).
			Int("attempt", attempt).
			Msg("Dispatching job")

		output, err := m.runJobOn(worker, job)
		if err == nil {
			timer.ObserveDuration(metrics.DispatchLatency)
			m.broker.Publish(&events.Event{
				Type:    events.EventJobDispatched,
				Message: fmt.Sprintf("job %s ran on worker %d", job.ID, worker.ID),
				Metadata: map[string]string{
					"job_id":    job.ID,
					"worker_id": fmt.Sprint(worker.ID),
				},
			})
			return output, nil
		}

		logger.Warn().
			Err(err).
			Int("worker_id", worker.ID).
			Int("attempt", attempt).
			Msg("Dispatch attempt failed, reselecting worker")

		select {
		case <-time.After(m.cfg.DispatchRetryDelay):
		case <-m.ctx.Done():
			return types.Buffer{}, fmt.Errorf("dispatch: %w", m.ctx.Err())
		}
	}
}

// runJobOn performs one dispatch attempt against one worker, mirroring the
// worker's execution protocol as client.
func (m *Master) runJobOn(worker types.WorkerInfo, job types.Job) (types.Buffer, error) {
	addr := net.JoinHostPort(worker.Address, strconv.Itoa(m.cfg.WorkerExecPort))
	nc, err := net.DialTimeout("tcp", addr, m.cfg.DialTimeout)
	if err != nil {
		return types.Buffer{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn := protocol.NewConn(nc)
	defer conn.Close()

	req := protocol.JobRequest{
		ExeName: job.Executable.Name,
		ExeSize: job.Executable.Size(),
		InName:  job.Input.Name,
		InSize:  job.Input.Size(),
		Command: job.Command,
	}
	if err := conn.WriteControl(protocol.FormatDispatchRequest(req)); err != nil {
		return types.Buffer{}, err
	}
	if err := conn.Expect(protocol.TokenJobRequestOK); err != nil {
		return types.Buffer{}, err
	}

	if err := conn.WriteChunks(job.Executable.Data); err != nil {
		return types.Buffer{}, err
	}
	if err := conn.Expect(protocol.TokenBufferOK); err != nil {
		return types.Buffer{}, err
	}

	if err := conn.WriteChunks(job.Input.Data); err != nil {
		return types.Buffer{}, err
	}
	if err := conn.Expect(protocol.TokenBufferOK); err != nil {
		return types.Buffer{}, err
	}

	line, err := conn.ReadControl()
	if err != nil {
		return types.Buffer{}, err
	}
	meta, err := protocol.ParseOutputMeta(line)
	if err != nil {
		return types.Buffer{}, err
	}
	if err := conn.WriteToken(protocol.TokenJobOutputOK); err != nil {
		return types.Buffer{}, err
	}

	data, err := conn.ReadChunks(meta.Size)
	if err != nil {
		return types.Buffer{}, err
	}
	if err := conn.WriteToken(protocol.TokenBufferOK); err != nil {
		return types.Buffer{}, err
	}

	return types.Buffer{Name: meta.Name, Data: data}, nil
}
