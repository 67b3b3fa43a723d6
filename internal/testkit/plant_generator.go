// Package testkit generates synthetic plant measurements for tests and demos.
package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"pvcaptest/domain/frame"
)

// Measured column names written by the generator.
const (
	ColIrradiance = "GlobInc"
	ColAmbient    = "T_Amb"
	ColWind       = "WindVel"
	ColPower      = "EOutInv"
)

// PlantGeneratorConfig configures the synthetic plant
type PlantGeneratorConfig struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
	Seed  int64
	// Coefficients a1..a4 of P = E·(a1 + a2·E + a3·T_a + a4·v).
	Coefficients [4]float64
	// Noise is the standard deviation of the power error.
	Noise float64
	// MissingRate is the share of irradiance values dropped.
	MissingRate float64
}

// DefaultPlantConfig returns one month of hourly data without noise.
func DefaultPlantConfig() PlantGeneratorConfig {
	return PlantGeneratorConfig{
		Start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Step:         time.Hour,
		Seed:         42,
		Coefficients: [4]float64{7, 1e-3, -0.02, 0.03},
	}
}

// PlantGenerator produces daytime measurement rows
type PlantGenerator struct {
	config PlantGeneratorConfig
	rng    *rand.Rand
}

func NewPlantGenerator(config PlantGeneratorConfig) *PlantGenerator {
	return &PlantGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Power evaluates the plant model without noise.
func (g *PlantGenerator) Power(e, ta, v float64) float64 {
	c := g.config.Coefficients
	return e * (c[0] + c[1]*e + c[2]*ta + c[3]*v)
}

// Generate returns rows between Start and End where the sun is up. Rows are
// in time order.
func (g *PlantGenerator) Generate() (*frame.Frame, error) {
	if g.config.Step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %s", g.config.Step)
	}
	var index []time.Time
	cols := map[string][]float64{}
	for ts := g.config.Start; ts.Before(g.config.End); ts = ts.Add(g.config.Step) {
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		sun := math.Sin(math.Pi * (hour - 6) / 12)
		if sun <= 0.05 {
			continue
		}
		cloud := 0.6 + 0.4*g.rng.Float64()
		e := 1000 * sun * cloud
		ta := 5 + 15*sun + 2*g.rng.NormFloat64()
		v := math.Abs(3 + 1.5*g.rng.NormFloat64())
		p := g.Power(e, ta, v) + g.config.Noise*g.rng.NormFloat64()
		if g.rng.Float64() < g.config.MissingRate {
			e = math.NaN()
		}

		index = append(index, ts)
		cols[ColIrradiance] = append(cols[ColIrradiance], e)
		cols[ColAmbient] = append(cols[ColAmbient], ta)
		cols[ColWind] = append(cols[ColWind], v)
		cols[ColPower] = append(cols[ColPower], p)
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("no daytime rows between %s and %s", g.config.Start, g.config.End)
	}
	return frame.FromColumns(index, []string{ColIrradiance, ColAmbient, ColWind, ColPower}, cols)
}

// WriteCSV writes f with a leading "Timestamp" column in layout. Missing
// values are written as empty cells.
func WriteCSV(w io.Writer, f *frame.Frame, layout string) error {
	cw := csv.NewWriter(w)
	names := f.Names()
	if err := cw.Write(append([]string{"Timestamp"}, names...)); err != nil {
		return err
	}
	rec := make([]string, len(names)+1)
	for i, ts := range f.Index() {
		rec[0] = ts.Format(layout)
		for j, name := range names {
			values, _ := f.Column(name)
			rec[j+1] = ""
			if !math.IsNaN(values[i]) {
				rec[j+1] = strconv.FormatFloat(values[i], 'g', -1, 64)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
