// Package control
// License: Apache-2.0
//
// Runtime introspection for the bridge process: effective configuration,
// counters and gauges, and named debug probes. The local HTTP API serves all
// three from a single Control value.
package control
