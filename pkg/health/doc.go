/*
Package health provides connectivity checks for cluster peers.

The master uses the TCP checker to periodically probe each registered
worker's exec endpoint. Probe results are diagnostic: they feed logs and
metrics but do not change the utilization-based selection policy.
*/
package health
