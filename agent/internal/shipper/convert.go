package shipper

import (
	"strconv"

	"github.com/dsa110/mnc/agent/internal/compute"
	"github.com/dsa110/mnc/pkg/mjd"
	"github.com/dsa110/mnc/pkg/types"
)

// PayloadVersion is written to the version field of every status payload.
const PayloadVersion = 1

// Payload builds the status document for one evaluation:
//
//	{status, status0, status1, status2, status_num, version, time, skipped}
//
// status and statusN are 1 for pass and 0 otherwise, so a skipped criterion
// reads 0 and is named in skipped. time is the evaluation time as an MJD.
func Payload(res *compute.Result, statusNum int) types.Value {
	skipped := make([]types.Value, 0, compute.NumCriteria)
	for _, c := range res.Skipped() {
		skipped = append(skipped, types.String(c.String()))
	}

	fields := map[string]types.Value{
		"status":     types.Int(b2i(res.Overall)),
		"status_num": types.Int(int64(statusNum)),
		"version":    types.Int(PayloadVersion),
		"time":       types.Number(mjd.FromTime(res.At)),
		"skipped":    types.Array(skipped...),
	}
	for i, ok := range res.Vector() {
		fields["status"+strconv.Itoa(i)] = types.Int(b2i(ok))
	}
	return types.Object(fields)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
