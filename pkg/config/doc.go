/*
Package config loads the drover YAML configuration.

Every field has a working default, so all three subcommands run with no
file at all. A file overrides only what it sets:

	master:
	  metrics_addr: ":9090"
	  registry_capacity: 50
	  dispatch_retry_delay: 5s
	worker:
	  work_dir: /var/lib/drover
	  report_max_interval: 8s

The wire constants (frame sizes, token alphabet) are part of the cluster
contract and deliberately not configurable; only addresses, ports, bounds
and intervals live here.
*/
package config
