/*
Package metrics exposes Prometheus instrumentation and health endpoints for
the Drover master.

Collectors cover the registry (worker count, utilization per worker,
registration outcomes), the submission path (jobs submitted, completed,
failed, bytes moved) and the dispatcher (attempts including retries,
end-to-end dispatch latency). The master serves them over a side HTTP
listener:

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())

Timer is a small helper for observing operation durations into histograms.
The health checker tracks per-listener liveness; readiness requires the
registration, submission and utilization listeners to be up.
*/
package metrics
