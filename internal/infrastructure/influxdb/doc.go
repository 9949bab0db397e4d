// Package influxdb provides an optional time-series mirror for telemetry.
//
// SQLite remains the authoritative store for readings; this package
// forwards the numeric fields of each reading to InfluxDB so that
// time-window dashboards can query a purpose-built TSDB. When the
// mirror is disabled or unreachable the pipeline runs unaffected.
//
// Writes are non-blocking and batched via the InfluxDB v2 WriteAPI;
// async write failures surface through the SetOnError callback.
package influxdb
