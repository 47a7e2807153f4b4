// Package metrics provides observability hooks for pmeyes runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	p := pipeline.New(cfg).WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// When a Prometheus registry is in use the collected metrics can be exported
// through HTTPHandler (serve) or WriteTextfile (one-shot commands, for the
// node_exporter textfile collector).
package metrics
