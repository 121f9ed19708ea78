/*
Package master implements the Drover coordinator node.

The master runs three concurrent TCP listeners sharing one worker registry:

  - Registration (default 8081): workers announce their address and receive
    a dense id. One transaction per connection.
  - Submission (default 8082): clients upload a job; an independent handler
    per connection runs the submission state machine and blocks in dispatch
    until the job resolves.
  - Utilization (default 8083): workers push "<id> <value>" load reports
    that drive worker selection.

The dispatcher is a synchronous sub-operation of a client handler. It waits
on the registry's signal-on-insert channel until a worker exists, then runs
the execution sub-protocol against the current optimal (lowest-utilization)
worker, re-reading the selection on every retry.

Shutdown is cooperative: Stop cancels the master context and closes the
listeners; accept loops exit immediately and session handlers unwind at
their next I/O boundary. No partial job survives shutdown.

An optional prober TCP-checks worker exec endpoints for diagnostics, and an
optional side HTTP listener serves Prometheus metrics plus health and
readiness endpoints.
*/
package master
