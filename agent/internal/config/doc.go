// Package config loads the statusmon YAML configuration: monitor thresholds,
// the etcd and InfluxDB connections, publishing, the daily report, metrics
// and logging.
//
// Load applies defaults, then the file, then validation. Watch reloads the
// file on change; main applies the monitor section of a reloaded config to
// the running monitor without a restart.
package config
