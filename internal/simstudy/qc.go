// Package simstudy runs capacity tests on PVsyst hourly simulations to
// compare sensor placements and reference-condition strategies.
package simstudy

import (
	"fmt"
	"math"

	"pvcaptest/domain/frame"
)

// QC methods accepted by MarkQC.
const (
	QCDefault = "Default"
	QCERear75 = "E_rear<75"
)

// Flag is the quality marking of one row. Later checks win.
type Flag uint8

const (
	FlagOK Flag = iota
	FlagLowGlobInc
	FlagClippedPower
	FlagLowERear
)

var flagNames = [...]string{"Ok", "Low GlobInc", "Clipped power", "Low E_rear"}

func (f Flag) String() string {
	if int(f) < len(flagNames) {
		return flagNames[f]
	}
	return fmt.Sprintf("Flag(%d)", f)
}

// Thresholds used by MarkQC.
const (
	MinGlobInc     = 400.0
	ClippingFactor = 0.995
	MinERear       = 75.0
)

// MarkQC flags rows with low plane-of-array irradiance or clipped inverter
// output, and with method QCERear75 also low outboard rear irradiance.
// Missing values fail their check.
func MarkQC(f *frame.Frame, method string) ([]Flag, error) {
	if method != QCDefault && method != QCERear75 {
		return nil, fmt.Errorf("unexpected QC method %q", method)
	}
	globInc, err := column(f, "GlobInc")
	if err != nil {
		return nil, err
	}
	power, err := column(f, "EOutInv")
	if err != nil {
		return nil, err
	}
	var eRear []float64
	if method == QCERear75 {
		if eRear, err = column(f, "E_rear_outboard"); err != nil {
			return nil, err
		}
	}

	maxPower := math.Inf(-1)
	for _, p := range power {
		if !math.IsNaN(p) && p > maxPower {
			maxPower = p
		}
	}

	flags := make([]Flag, f.Len())
	for i := range flags {
		if !(globInc[i] >= MinGlobInc) {
			flags[i] = FlagLowGlobInc
		}
		if !(power[i] <= ClippingFactor*maxPower) {
			flags[i] = FlagClippedPower
		}
		if eRear != nil && !(eRear[i] > MinERear) {
			flags[i] = FlagLowERear
		}
	}
	return flags, nil
}

// ApplyQC keeps the rows flagged FlagOK.
func ApplyQC(f *frame.Frame, flags []Flag) (*frame.Frame, error) {
	keep := make([]bool, len(flags))
	for i, fl := range flags {
		keep[i] = fl == FlagOK
	}
	return f.Filter(keep)
}

// CountFlags tallies flags by name.
func CountFlags(flags []Flag) map[string]int {
	out := make(map[string]int)
	for _, fl := range flags {
		out[fl.String()]++
	}
	return out
}

func column(f *frame.Frame, name string) ([]float64, error) {
	values, ok := f.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in data", name)
	}
	return values, nil
}
