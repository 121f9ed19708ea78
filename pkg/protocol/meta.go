package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/drover/pkg/types"
)

// JobRequest is the parsed form of a job metadata line. Command is empty for
// the client submission variant; the master fills it in before dispatching.
type JobRequest struct {
	ExeName string
	ExeSize int
	InName  string
	InSize  int
	Command string
}

// FormatSubmitRequest encodes the Client→Master metadata line:
// "<exe_basename> <exe_size> <in_basename> <in_size>".
func FormatSubmitRequest(r JobRequest) string {
	return fmt.Sprintf("%s %d %s %d", r.ExeName, r.ExeSize, r.InName, r.InSize)
}

// FormatDispatchRequest encodes the Master→Worker metadata line:
// "<exe_basename> <exe_size> <in_basename> <in_size> <command>".
func FormatDispatchRequest(r JobRequest) string {
	return fmt.Sprintf("%s %d %s %d %s", r.ExeName, r.ExeSize, r.InName, r.InSize, r.Command)
}

// ParseSubmitRequest decodes the four-field client submission metadata line.
func ParseSubmitRequest(line string) (JobRequest, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return JobRequest{}, fmt.Errorf("protocol: malformed job request %q", line)
	}
	return buildJobRequest(fields[0], fields[1], fields[2], fields[3], "")
}

// ParseDispatchRequest decodes the five-field dispatch metadata line. The
// command is the unsplit remainder of the line; it contains spaces.
func ParseDispatchRequest(line string) (JobRequest, error) {
	fields := strings.SplitN(line, " ", 5)
	if len(fields) != 5 || fields[4] == "" {
		return JobRequest{}, fmt.Errorf("protocol: malformed dispatch request %q", line)
	}
	return buildJobRequest(fields[0], fields[1], fields[2], fields[3], fields[4])
}

func buildJobRequest(exeName, exeSize, inName, inSize, command string) (JobRequest, error) {
	es, err := parseSize(exeSize)
	if err != nil {
		return JobRequest{}, fmt.Errorf("protocol: executable size: %w", err)
	}
	is, err := parseSize(inSize)
	if err != nil {
		return JobRequest{}, fmt.Errorf("protocol: input size: %w", err)
	}
	return JobRequest{
		ExeName: exeName,
		ExeSize: es,
		InName:  inName,
		InSize:  is,
		Command: command,
	}, nil
}

// OutputMeta is the parsed form of an output metadata line:
// "<out_basename> <out_size>".
type OutputMeta struct {
	Name string
	Size int
}

// FormatOutputMeta encodes an output metadata line.
func FormatOutputMeta(m OutputMeta) string {
	return fmt.Sprintf("%s %d", m.Name, m.Size)
}

// ParseOutputMeta decodes an output metadata line.
func ParseOutputMeta(line string) (OutputMeta, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return OutputMeta{}, fmt.Errorf("protocol: malformed output metadata %q", line)
	}
	size, err := parseSize(fields[1])
	if err != nil {
		return OutputMeta{}, fmt.Errorf("protocol: output size: %w", err)
	}
	return OutputMeta{Name: fields[0], Size: size}, nil
}

// FormatUtilizationReport encodes the Worker→Master load line:
// "<worker_id> <utilization>".
func FormatUtilizationReport(r types.UtilizationReport) string {
	return fmt.Sprintf("%d %f", r.WorkerID, r.Value)
}

// ParseUtilizationReport decodes a load report line. Range validation
// against the registry happens at the listener; only syntax is checked here.
func ParseUtilizationReport(line string) (types.UtilizationReport, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return types.UtilizationReport{}, fmt.Errorf("protocol: malformed utilization report %q", line)
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return types.UtilizationReport{}, fmt.Errorf("protocol: worker id: %w", err)
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return types.UtilizationReport{}, fmt.Errorf("protocol: utilization value: %w", err)
	}
	return types.UtilizationReport{WorkerID: id, Value: value}, nil
}

// ParseRegistrationReply decodes the Master→Worker registration response:
// "{SUCCESSFULLY_ADDED_SLAVE} <id>" or "{FAILED_TO_ADD_SLAVE} <id>".
func ParseRegistrationReply(line string) (Token, int, error) {
	token, rest := SplitControl(line)
	if token != TokenWorkerAdded && token != TokenWorkerAddFailed {
		return "", 0, fmt.Errorf("protocol: malformed registration reply %q", line)
	}
	id, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return "", 0, fmt.Errorf("protocol: registration id: %w", err)
	}
	return token, id, nil
}

func parseSize(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n, nil
}
