/*
Package registry maintains the master's shared worker pool.

The Registry owns the ordered worker list behind a mutex and serves every
query and update through it; it is the only shared mutable state in the
master. Worker ids are dense (id == index) and workers are never removed.

Selection policy: Optimal returns the worker with the minimum reported
utilization, ties broken by lowest id. The result is derived on every call
rather than cached, so a reader always sees the effect of the most recently
applied utilization update.

AwaitOptimal gives dispatchers a blocking variant: it parks on a channel
that is closed when the first worker registers, avoiding any busy-wait
before the pool is populated.
*/
package registry
