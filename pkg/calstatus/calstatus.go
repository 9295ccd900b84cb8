package calstatus

import (
	"strings"
)

// Code is a calibration status word. Zero means no error.
type Code uint32

// ---- BIT ASSIGNMENTS ----

const (
	InvAntNum Code = 1 << iota
	InvPol
	InvGainAmpP1
	InvGainAmpP2
	InvGainPhaseP1
	InvGainPhaseP2
	InvDelayP1
	InvDelayP2
	InvCalSource
	InvGainCalTime
	InvDelayCalTime
	InvSim
	InfileErr
	CalMissingErr
	InfileFormatErr
	FringesErr
	MSWriteErr
	FlaggingErr
	DelayCalErr
	GainBPCalErr
	GainTblErr
	DelayTblErr
	CalNameErr
	SimErr
	UnknownErr
)

// catalog lists the named bits in bit order. Decode output follows it.
var catalog = []struct {
	name string
	bit  Code
}{
	{"inv_antnum", InvAntNum},
	{"inv_pol", InvPol},
	{"inv_gainamp_p1", InvGainAmpP1},
	{"inv_gainamp_p2", InvGainAmpP2},
	{"inv_gainphase_p1", InvGainPhaseP1},
	{"inv_gainphase_p2", InvGainPhaseP2},
	{"inv_delay_p1", InvDelayP1},
	{"inv_delay_p2", InvDelayP2},
	{"inv_calsource", InvCalSource},
	{"inv_gaincaltime", InvGainCalTime},
	{"inv_delaycaltime", InvDelayCalTime},
	{"inv_sim", InvSim},
	{"infile_err", InfileErr},
	{"cal_missing_err", CalMissingErr},
	{"infile_format_err", InfileFormatErr},
	{"fringes_err", FringesErr},
	{"ms_write_err", MSWriteErr},
	{"flagging_err", FlaggingErr},
	{"delay_cal_err", DelayCalErr},
	{"gain_bp_cal_err", GainBPCalErr},
	{"gain_tbl_err", GainTblErr},
	{"delay_tbl_err", DelayTblErr},
	{"calname_err", CalNameErr},
	{"sim_err", SimErr},
	{"unknown_err", UnknownErr},
}

var byName = func() map[string]Code {
	m := make(map[string]Code, len(catalog))
	for _, c := range catalog {
		m[c.name] = c.bit
	}
	return m
}()

// Lookup returns the bit for name.
func Lookup(name string) (Code, bool) {
	c, ok := byName[name]
	return c, ok
}

// Names returns every condition name in bit order.
func Names() []string {
	out := make([]string, len(catalog))
	for i, c := range catalog {
		out[i] = c.name
	}
	return out
}

// Encode returns current with the bits of the named conditions set.
// A name outside the catalog sets UnknownErr instead.
func Encode(current Code, names ...string) Code {
	for _, n := range names {
		if c, ok := byName[n]; ok {
			current |= c
		} else {
			current |= UnknownErr
		}
	}
	return current
}

// EncodeCode returns current with the raw bits of code set.
func EncodeCode(current, code Code) Code {
	return current | code
}

// Unknown returns the names that Encode would map to UnknownErr.
func Unknown(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Decode returns the names of the set bits in catalog order.
// Bits beyond the catalog are ignored.
func Decode(status Code) []string {
	var out []string
	for _, c := range catalog {
		if status&c.bit != 0 {
			out = append(out, c.name)
		}
	}
	return out
}

// IsSet reports whether status and bit share any set bit.
func IsSet(status, bit Code) bool {
	return status&bit != 0
}

func (c Code) String() string {
	if c == 0 {
		return "ok"
	}
	return strings.Join(Decode(c), "|")
}
