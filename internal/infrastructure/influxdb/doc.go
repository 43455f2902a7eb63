// Package influxdb mirrors committed resource values into InfluxDB v2 for
// long-term trending.
//
// Client wraps influxdb-client-go's non-blocking write API: points are
// batched in memory and flushed every flush_interval seconds or batch_size
// points, whichever comes first. Write failures are asynchronous and are
// reported through SetOnError. Sink adapts the client to a notify listener
// on DATA/#:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // no sink
//	}
//	defer client.Close()
//
//	sink := influxdb.NewSink(client)
//	router.Subscribe(sink.Patterns(), sink)
package influxdb
