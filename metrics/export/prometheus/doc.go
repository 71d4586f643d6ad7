// Package prometheus renders engine metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [tokenwell.Engine] and exposes an
// http.Handler serving every engine counter and the refresh latency
// histogram. Counter names are prefixed tokenwell_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
