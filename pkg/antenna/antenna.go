// Package antenna sends commands to DSA-110 antennas through the key
// namespace and reads back their monitor points.
//
// Commands are written to /cmd/ant/<n> as {"cmd": name, "val": value}.
// Antenna 0 addresses every antenna at once.
package antenna

import (
	"context"
	"errors"
	"fmt"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

// All is the antenna number that addresses every antenna.
const All = 0

// Command names understood by the antenna controllers.
const (
	CmdMove     = "move"
	CmdNoiseAOn = "noise_a_on"
	CmdNoiseBOn = "noise_b_on"
)

// ErrNoMonitorData is returned by Status when the antenna has not published.
var ErrNoMonitorData = errors.New("antenna: no monitor data")

// Store is the part of *store.Store an Antenna uses.
type Store interface {
	Put(ctx context.Context, key string, v types.Value, opts ...store.PutOption) error
	Get(ctx context.Context, key string, opts ...store.GetOption) (types.Value, bool, error)
}

// Antenna controls one antenna, or all of them when Num is All.
type Antenna struct {
	Num int
	st  Store
}

// New returns a controller for antenna n.
func New(st Store, n int) (*Antenna, error) {
	if n < 0 {
		return nil, fmt.Errorf("antenna: invalid antenna number %d", n)
	}
	return &Antenna{Num: n, st: st}, nil
}

// Key returns the command key for this antenna.
func (a *Antenna) Key() string { return store.CmdKey("ant", a.Num) }

func (a *Antenna) send(ctx context.Context, cmd string, val types.Value) error {
	v := types.Object(map[string]types.Value{
		"cmd": types.String(cmd),
		"val": val,
	})
	if err := a.st.Put(ctx, a.Key(), v); err != nil {
		return fmt.Errorf("antenna %d: %s: %w", a.Num, cmd, err)
	}
	return nil
}

// Move commands the antenna to elevation el, in degrees.
func (a *Antenna) Move(ctx context.Context, el float64) error {
	return a.send(ctx, CmdMove, types.Number(el))
}

// NoiseA switches noise diode A.
func (a *Antenna) NoiseA(ctx context.Context, on bool) error {
	return a.send(ctx, CmdNoiseAOn, types.Bool(on))
}

// NoiseB switches noise diode B.
func (a *Antenna) NoiseB(ctx context.Context, on bool) error {
	return a.send(ctx, CmdNoiseBOn, types.Bool(on))
}

// NoiseAB switches both noise diodes, A first.
func (a *Antenna) NoiseAB(ctx context.Context, on bool) error {
	if err := a.NoiseA(ctx, on); err != nil {
		return err
	}
	return a.NoiseB(ctx, on)
}

// Status reads the antenna's monitor point /mon/ant/<n>. Monitor points
// may carry NaN for unread sensors, so non-finite tokens are accepted.
func (a *Antenna) Status(ctx context.Context) (types.Value, error) {
	v, ok, err := a.st.Get(ctx, store.MonKey("ant", a.Num), store.AllowNonFinite(true))
	if err != nil {
		return types.Value{}, fmt.Errorf("antenna %d: %w", a.Num, err)
	}
	if !ok {
		return types.Value{}, fmt.Errorf("antenna %d: %w", a.Num, ErrNoMonitorData)
	}
	return v, nil
}
