// Package types defines the JSON-shaped Value shared by the store, the
// configuration registry, the monitor and the gateway.
//
// Values stored under the key namespace are JSON documents. Some producers
// write NaN and Infinity for missing or saturated readings, which standard
// JSON rejects, so Marshal and Unmarshal take an allowNonFinite flag: when
// false, non-finite numbers are an error (ErrNonFinite); when true they are
// written and read as the bare tokens NaN, Infinity and -Infinity.
package types
