// Package report computes the daily observing fraction and keeps its
// history.
//
// Scheduler runs on a five-field cron expression in UTC. Each run evaluates
// the previous UTC day in 160 s blocks through compute.Monitor.FractionOfDay
// and stores the outcome in a SQLite database (daily_fraction table) via
// History.
package report
