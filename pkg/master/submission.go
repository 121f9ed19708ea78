package master

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/types"
)

// acceptSubmissions spawns an independent client handler per accepted
// connection. Handlers run in parallel with each other; each owns its job
// buffers exclusively.
func (m *Master) acceptSubmissions() {
	defer m.wg.Done()

	logger := log.WithComponent("submission")
	logger.Info().Str("addr", m.SubmissionAddr()).Msg("Listening for clients")

	for {
		nc, err := m.subListener.Accept()
		if err != nil {
			if m.stopping() {
				return
			}
			logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		m.wg.Add(1)
		go func(nc net.Conn) {
			defer m.wg.Done()
			defer nc.Close()
			m.handleClient(nc)
		}(nc)
	}
}

// handleClient runs one client session through its state machine:
//
//	AWAIT_REQ → RECV_EXE → RECV_IN → AWAIT_OUT_REQ → DISPATCH →
//	SEND_OUT → AWAIT_OUT_ACK → DONE
//
// Each transition is gated on the expected token; any deviation replies
// with the matching failure token and terminates the session. A failed
// session never leaves the client with a partial output file.
func (m *Master) handleClient(nc net.Conn) {
	conn := protocol.NewConn(nc)
	jobID := uuid.New().String()
	logger := log.WithComponent("client-handler").With().
		Str("job_id", jobID).
		Str("remote", nc.RemoteAddr().String()).
		Logger()

	logger.Info().Msg("Client connected")

	// AWAIT_REQ
	line, err := conn.ReadControl()
	if err != nil {
		m.failSession(conn, logger, protocol.TokenJobRequestFailed, err)
		return
	}
	req, err := protocol.ParseSubmitRequest(line)
	if err != nil {
		m.failSession(conn, logger, protocol.TokenJobRequestFailed, err)
		return
	}
	if err := conn.WriteToken(protocol.TokenJobRequestOK); err != nil {
		logger.Error().Err(err).Msg("Session write failed")
		return
	}

	// RECV_EXE
	exeData, err := conn.ReadChunks(req.ExeSize)
	if err != nil {
		m.failSession(conn, logger, protocol.TokenBufferFailed, err)
		return
	}
	metrics.JobBytesTransferred.WithLabelValues("received").Add(float64(len(exeData)))
	if err := conn.WriteToken(protocol.TokenBufferOK); err != nil {
		logger.Error().Err(err).Msg("Session write failed")
		return
	}

	// RECV_IN
	inData, err := conn.ReadChunks(req.InSize)
	if err != nil {
		m.failSession(conn, logger, protocol.TokenBufferFailed, err)
		return
	}
	metrics.JobBytesTransferred.WithLabelValues("received").Add(float64(len(inData)))
	if err := conn.WriteToken(protocol.TokenBufferOK); err != nil {
		logger.Error().Err(err).Msg("Session write failed")
		return
	}

	// AWAIT_OUT_REQ
	if err := conn.Expect(protocol.TokenRequestJobOutput); err != nil {
		m.failSession(conn, logger, protocol.TokenJobOutputFailed, err)
		return
	}

	job := types.Job{
		ID:         jobID,
		Executable: types.Buffer{Name: req.ExeName, Data: exeData},
		Input:      types.Buffer{Name: req.InName, Data: inData},
		Command:    types.CommandFor(req.ExeName, req.InName),
		CreatedAt:  time.Now(),
	}

	metrics.JobsSubmitted.Inc()
	m.broker.Publish(&events.Event{
		Type:    events.EventJobSubmitted,
		Message: fmt.Sprintf("job %s submitted", jobID),
		Metadata: map[string]string{
			"job_id":   jobID,
			"exe_name": req.ExeName,
			"command":  job.Command,
		},
	})
	logger.Info().
		Str("exe_name", req.ExeName).
		Int("exe_size", req.ExeSize).
		Str("in_name", req.InName).
		Int("in_size", req.InSize).
		Msg("Job materialized")

	// DISPATCH — synchronous; the session does not proceed until the job
	// resolves or fails terminally.
	output, err := m.dispatch(job, logger)
	if err != nil {
		m.failSession(conn, logger, protocol.TokenJobOutputFailed, err)
		return
	}

	// SEND_OUT
	meta := protocol.OutputMeta{Name: output.Name, Size: output.Size()}
	if err := conn.WriteControl(protocol.FormatOutputMeta(meta)); err != nil {
		logger.Error().Err(err).Msg("Session write failed")
		return
	}
	if err := conn.Expect(protocol.TokenJobOutputOK); err != nil {
		m.failSession(conn, logger, protocol.TokenJobOutputFailed, err)
		return
	}
	if err := conn.WriteChunks(output.Data); err != nil {
		logger.Error().Err(err).Msg("Session write failed")
		return
	}
	metrics.JobBytesTransferred.WithLabelValues("returned").Add(float64(output.Size()))

	// AWAIT_OUT_ACK
	if err := conn.Expect(protocol.TokenBufferOK); err != nil {
		m.failSession(conn, logger, protocol.TokenBufferFailed, err)
		return
	}

	metrics.JobsCompleted.Inc()
	m.broker.Publish(&events.Event{
		Type:    events.EventJobCompleted,
		Message: fmt.Sprintf("job %s completed", jobID),
		Metadata: map[string]string{
			"job_id":   jobID,
			"out_name": output.Name,
			"out_size": fmt.Sprint(output.Size()),
		},
	})
	logger.Info().Str("out_name", output.Name).Int("out_size", output.Size()).Msg("Job output returned")
}

// failSession replies with the failure token matching the broken state and
// records the session as failed. Write errors are ignored: the peer may
// already be gone.
func (m *Master) failSession(conn *protocol.Conn, logger zerolog.Logger, token protocol.Token, cause error) {
	logger.Error().Err(cause).Str("token", string(token)).Msg("Client session failed")
	metrics.JobsFailed.Inc()
	m.broker.Publish(&events.Event{
		Type:    events.EventJobFailed,
		Message: cause.Error(),
	})
	conn.WriteToken(token)
}
