// Package board keeps the latest value of every monitor point under a
// prefix, fed by a store prefix watch.
//
// Follow seeds the board from List and keeps it current from WatchPrefix.
// Entries not updated within the TTL are hidden from List and removed by
// Run. OnUpdate hooks see every accepted update; the alert engine and the
// gRPC health reporter hang off them.
package board
