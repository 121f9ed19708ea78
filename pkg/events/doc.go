/*
Package events provides an in-process publish/subscribe broker for cluster
events.

The master publishes an event when a worker registers, a utilization report
is applied, and at each stage of a job's life (submitted, dispatched,
completed, failed). Subscribers receive events on buffered channels; slow
subscribers drop events rather than stall the broker.
*/
package events
