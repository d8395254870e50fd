// Package health probes service instances and turns the results into health
// status and circuit breaker input.
//
// Three probe kinds exist: HTTP (GET on the instance address, 2xx healthy),
// TCP (a successful dial) and bus (request/reply on {service}/ping/{instanceId}
// answered with "ack"). Each probe runs under its own timeout; a timeout is a
// single unhealthy result, never retried within the same cycle.
//
// The Monitor runs one probing loop per watched instance. The first probe is
// delayed by a random offset within the interval so that instances started
// together do not probe in lockstep, and a weighted semaphore caps how many
// probes run at once across the whole fleet.
package health
