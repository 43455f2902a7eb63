// Package metrics exposes Gray Twin runtime metrics to Prometheus.
//
// Gateway implements gateway.Metrics (command queue depth, queue wait and
// run time per command name). RegisterRouter adds notification delivery
// counters. Handler serves the registry in the Prometheus text format.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.NewGateway(reg)
//	if err != nil {
//	    return err
//	}
//	gw.SetMetrics(m)
//	metrics.RegisterRouter(reg, router)
//	r.Handle(cfg.Metrics.Path, metrics.Handler(reg))
package metrics
