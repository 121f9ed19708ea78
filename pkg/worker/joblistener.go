package worker

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/types"
)

// acceptJobs runs the exec server. Connections are handled serially: a
// worker serves one job at a time, and additional dispatches queue on the
// listen backlog.
func (w *Worker) acceptJobs() {
	defer w.wg.Done()

	w.logger.Info().Str("addr", w.execListener.Addr().String()).Msg("Listening for jobs")

	for {
		nc, err := w.execListener.Accept()
		if err != nil {
			select {
			case <-w.ctx.Done():
				return
			default:
			}
			w.logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		if err := w.runJob(nc); err != nil {
			w.logger.Error().Err(err).Msg("Job session failed")
		}
		nc.Close()
	}
}

// runJob mirrors the master's execution protocol as server: receive the
// job, materialize its artifacts, run the command, return the output file,
// and clean every artifact off the local disk.
func (w *Worker) runJob(nc net.Conn) error {
	conn := protocol.NewConn(nc)

	line, err := conn.ReadControl()
	if err != nil {
		conn.WriteToken(protocol.TokenJobRequestFailed)
		return fmt.Errorf("read job request: %w", err)
	}
	req, err := protocol.ParseDispatchRequest(line)
	if err != nil {
		conn.WriteToken(protocol.TokenJobRequestFailed)
		return err
	}
	if err := conn.WriteToken(protocol.TokenJobRequestOK); err != nil {
		return err
	}

	logger := w.logger.With().Str("exe_name", req.ExeName).Str("command", req.Command).Logger()
	logger.Info().Int("exe_size", req.ExeSize).Int("in_size", req.InSize).Msg("Job received")

	exeData, err := conn.ReadChunks(req.ExeSize)
	if err != nil {
		conn.WriteToken(protocol.TokenBufferFailed)
		return fmt.Errorf("receive executable: %w", err)
	}
	if err := conn.WriteToken(protocol.TokenBufferOK); err != nil {
		return err
	}

	inData, err := conn.ReadChunks(req.InSize)
	if err != nil {
		conn.WriteToken(protocol.TokenBufferFailed)
		return fmt.Errorf("receive input: %w", err)
	}
	if err := conn.WriteToken(protocol.TokenBufferOK); err != nil {
		return err
	}

	// Artifact names are basenames by contract; Base also keeps a hostile
	// name from escaping the working directory.
	exePath := filepath.Join(w.workDir(), filepath.Base(req.ExeName))
	inPath := filepath.Join(w.workDir(), filepath.Base(req.InName))

	if err := os.WriteFile(exePath, exeData, 0o755); err != nil {
		return fmt.Errorf("write executable: %w", err)
	}
	if err := os.WriteFile(inPath, inData, 0o644); err != nil {
		os.Remove(exePath)
		return fmt.Errorf("write input: %w", err)
	}

	runErr := w.execute(req.Command)

	// The executable and input are deleted as soon as the run finishes,
	// whatever its outcome.
	os.Remove(exePath)
	os.Remove(inPath)

	if runErr != nil {
		conn.WriteToken(protocol.TokenJobOutputFailed)
		return fmt.Errorf("execute %q: %w", req.Command, runErr)
	}

	outName := types.OutputNameFor(filepath.Base(req.ExeName))
	outPath := filepath.Join(w.workDir(), outName)
	outData, err := os.ReadFile(outPath)
	if err != nil {
		conn.WriteToken(protocol.TokenJobOutputFailed)
		return fmt.Errorf("job produced no output file: %w", err)
	}

	meta := protocol.OutputMeta{Name: outName, Size: len(outData)}
	if err := conn.WriteControl(protocol.FormatOutputMeta(meta)); err != nil {
		return err
	}
	if err := conn.Expect(protocol.TokenJobOutputOK); err != nil {
		return err
	}
	if err := conn.WriteChunks(outData); err != nil {
		return err
	}
	if err := conn.Expect(protocol.TokenBufferOK); err != nil {
		return err
	}

	// Output is removed only after the master acknowledged the bytes.
	os.Remove(outPath)

	logger.Info().Int("out_size", len(outData)).Msg("Job completed")
	return nil
}

func (w *Worker) workDir() string {
	if w.cfg.WorkDir != "" {
		return w.cfg.WorkDir
	}
	return "."
}
