// Package compute decides whether the array is observing.
//
// stats.go holds the pure statistics behind each criterion: the median, the
// elevation deviation summary over core antennas, the mean DM searched and
// the summed gulp status.
//
// monitor.go provides Monitor, which queries a trailing window of telemetry
// through a tsdb.Querier, judges each criterion, and combines them into one
// overall verdict. A criterion whose query returns no rows is Skipped and
// does not take part in the verdict. Monitor.Run repeats the evaluation on a
// fixed period, sleeping whatever remains of the period after each cycle.
//
// fraction.go evaluates a whole day block by block and reports the fraction
// of blocks in which the array was observing.
package compute
