// Package calstatus encodes and decodes the calibration pipeline status
// word: a bitmask where each bit flags one error condition.
//
// The bit assignments are shared with every consumer of the status word and
// are append-only. New conditions take the next free bit below UnknownErr's
// position; existing bits are never renumbered.
package calstatus
