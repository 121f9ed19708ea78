package types

import (
	"fmt"
	"time"
)

// WorkerInfo describes a registered worker node.
//
// IDs are assigned densely from 0 in registration order; a worker's ID is
// also its index in the registry. Utilization starts at 1.0 ("fully busy")
// until the worker reports a real value.
type WorkerInfo struct {
	ID           int
	Address      string // IPv4 host identifier, no port
	Utilization  float64
	RegisteredAt time.Time
	ReportedAt   time.Time // zero until the first utilization report
}

// Buffer is a named, sized byte payload carried over the wire.
type Buffer struct {
	Name string // basename only
	Data []byte
}

// Size returns the payload length in bytes. The metadata line on the wire
// must always carry exactly this value.
func (b Buffer) Size() int {
	return len(b.Data)
}

// Job is one unit of work: an executable artifact, its input file, and the
// command line that runs them on a worker.
type Job struct {
	ID         string
	Executable Buffer
	Input      Buffer
	Command    string
	CreatedAt  time.Time
}

// CommandFor builds the conventional job command line for a pair of
// artifact basenames.
func CommandFor(exeName, inputName string) string {
	return fmt.Sprintf("./%s %s", exeName, inputName)
}

// OutputNameFor returns the output file name a job binary is required to
// produce for a given executable basename.
func OutputNameFor(exeName string) string {
	return exeName + "_output.txt"
}

// UtilizationReport is one utilization sample pushed by a worker. It is
// discarded once applied to the registry.
type UtilizationReport struct {
	WorkerID int
	Value    float64
}
