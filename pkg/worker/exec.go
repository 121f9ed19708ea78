package worker

import (
	"os/exec"
)

// execute runs a job command synchronously in the working directory through
// the shell, matching the "./<exe> <input>" command contract.
func (w *Worker) execute(command string) error {
	cmd := exec.CommandContext(w.ctx, "/bin/sh", "-c", command)
	cmd.Dir = w.workDir()

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		w.logger.Debug().Str("output", string(out)).Msg("Job process output")
	}
	return err
}
