// Package cnf resolves subsystem names (t2, corr, cal, ...) to their
// configuration payloads.
//
// A Registry holds a name→key mapping and a static fallback table, both
// copied at construction and never modified afterwards. In remote mode Get
// reads the mapped /cnf key from the store; otherwise it serves the static
// table. The built-in mapping and table are embedded from defaults.yaml.
//
// limits.go evaluates monitor points against the minmax_* tables.
package cnf
