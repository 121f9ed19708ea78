/*
Package types defines the shared data model for Drover.

Core types:

  - WorkerInfo: a registered worker with its dense ID, address and last
    reported utilization
  - Buffer: a named byte payload (executable, input or output file)
  - Job: the (executable, input, command) triple dispatched to a worker
  - UtilizationReport: one worker load sample

Types here carry no behavior beyond derived naming helpers; protocol
encoding lives in pkg/protocol and coordination in pkg/registry.
*/
package types
