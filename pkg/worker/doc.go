/*
Package worker implements the Drover compute node.

A worker runs three pieces:

  - Registrar: a one-shot handshake at startup that announces the worker's
    address on the master's registration endpoint and learns its id. The
    announced address is derived from the connection itself, so the master
    dials back the interface that can actually reach it.
  - UtilizationReporter: a loop that sleeps a random duration, opens a
    fresh connection to the master's utilization endpoint, pushes
    "<id> <utilization>", and reads the acknowledgment. Failures are
    retried on the next tick.
  - JobListener: the exec server. It serves exactly one job at a time:
    receive the executable and input, run the command, stream back the
    "<exe>_output.txt" the job produced, and delete all three files.
    Further dispatches queue on the listen backlog.

CPU utilization comes from a delta-based /proc/stat sampler; tests and
non-Linux hosts can inject their own reading via Config.Utilization.
*/
package worker
