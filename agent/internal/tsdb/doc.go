// Package tsdb queries the time-series database that antenna, T1 and T2
// services write their monitor points to.
//
// Querier is the collaborator the health monitor depends on: it takes a
// measurement, a list of fields and a time range, and returns named tables.
// Client implements it over the InfluxDB 1.x HTTP API (/query with
// epoch=ms); tests substitute an in-memory Querier.
package tsdb
