package simstudy

import (
	"fmt"
	"math"
	"strings"

	"pvcaptest/domain/frame"
	"pvcaptest/domain/outboard"
)

// RunInfo describes one PVsyst simulation variant.
type RunInfo struct {
	PRJ         string  `yaml:"prj"`
	Variant     string  `yaml:"variant"`
	BifiSim     bool    `yaml:"bifi_sim"`
	SystemLabel string  `yaml:"system_label"`
	NearAlbedo  float64 `yaml:"near_albedo"`
	Bifaciality float64 `yaml:"bifaciality"`
	Height      float64 `yaml:"height"`
	GCR         float64 `yaml:"gcr"`

	CSVFile    string `yaml:"csv_file"`
	Separator  string `yaml:"sep"`
	DayFirst   bool   `yaml:"dayfirst"`
	DateFormat string `yaml:"date_format"`
}

// Key identifies the run by project and variant.
func (ri RunInfo) Key() string { return ri.PRJ + "/" + ri.Variant }

// Geometry is the outboard sensor geometry at offset.
func (ri RunInfo) Geometry(offset float64) outboard.Geometry {
	return outboard.Geometry{Height: ri.Height, Offset: offset, GCR: ri.GCR, NearAlbedo: ri.NearAlbedo}
}

func (ri RunInfo) singleAxis() (bool, error) {
	switch {
	case strings.Contains(ri.SystemLabel, "SAT"):
		return true, nil
	case strings.Contains(ri.SystemLabel, "FT"):
		return false, nil
	}
	return false, fmt.Errorf("cannot determine array orientation from system label %q", ri.SystemLabel)
}

// Augment adds the derived columns the sample capacity tests use:
// DiffuseFraction, Tilt and GlobCell, and for bifacial runs GlobBakUnshd and
// E_rear_outboard. Fixed-tilt runs use the unshaded rear irradiance as the
// outboard value. data is not modified.
func Augment(data *frame.Frame, ri RunInfo, offset float64) (*frame.Frame, error) {
	out, err := data.Select(data.Names())
	if err != nil {
		return nil, err
	}
	n := out.Len()
	cols, err := columnsOf(out, "DiffHor", "GlobHor", "PhiAng")
	if err != nil {
		return nil, err
	}
	diffuse := make([]float64, n)
	tilt := make([]float64, n)
	for i := range diffuse {
		diffuse[i] = cols["DiffHor"][i] / cols["GlobHor"][i]
		tilt[i] = math.Abs(cols["PhiAng"][i])
	}
	if err := out.Set("DiffuseFraction", diffuse); err != nil {
		return nil, err
	}
	if err := out.Set("Tilt", tilt); err != nil {
		return nil, err
	}

	if !ri.BifiSim {
		eff, err := column(out, "GlobEff")
		if err != nil {
			return nil, err
		}
		return out, out.Set("GlobCell", eff)
	}

	sat, err := ri.singleAxis()
	if err != nil {
		return nil, err
	}
	bk, err := columnsOf(out, "GlobBak", "BackShd", "GlobInc")
	if err != nil {
		return nil, err
	}
	unshaded := make([]float64, n)
	cell := make([]float64, n)
	for i := range unshaded {
		unshaded[i] = bk["GlobBak"][i] + bk["BackShd"][i]
		cell[i] = bk["GlobInc"][i] + ri.Bifaciality*bk["GlobBak"][i]
	}
	if err := out.Set("GlobBakUnshd", unshaded); err != nil {
		return nil, err
	}
	if err := out.Set("GlobCell", cell); err != nil {
		return nil, err
	}

	rear := unshaded
	if sat {
		if rear, err = OutboardRear(out, ri.Geometry(offset)); err != nil {
			return nil, err
		}
	}
	return out, out.Set("E_rear_outboard", rear)
}

// OutboardRear evaluates the outboard rear irradiance for every row.
func OutboardRear(f *frame.Frame, g outboard.Geometry) ([]float64, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	cols, err := columnsOf(f, "AzSol", "HSol", "PhiAng", "GlobHor", "GlobGnd", "BkVFLss", "DifSBak", "BmIncBk")
	if err != nil {
		return nil, err
	}
	out := make([]float64, f.Len())
	for i := range out {
		out[i] = outboard.RearIrradiance(outboard.Sample{
			AzSol:   cols["AzSol"][i],
			HSol:    cols["HSol"][i],
			PhiAng:  cols["PhiAng"][i],
			GlobHor: cols["GlobHor"][i],
			GlobGnd: cols["GlobGnd"][i],
			BkVFLss: cols["BkVFLss"][i],
			DifSBak: cols["DifSBak"][i],
			BmIncBk: cols["BmIncBk"][i],
		}, g)
	}
	return out, nil
}

func columnsOf(f *frame.Frame, names ...string) (map[string][]float64, error) {
	out := make(map[string][]float64, len(names))
	var missing []string
	for _, name := range names {
		values, ok := f.Column(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = values
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("columns not in data: %v", missing)
	}
	return out, nil
}
