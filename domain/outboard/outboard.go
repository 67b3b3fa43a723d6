// Package outboard estimates the rear-side irradiance seen by a downward
// facing sensor mounted outboard of a single-axis tracker row, from PVsyst
// hourly simulation variables.
package outboard

import (
	"fmt"
	"math"
)

// Geometry holds the site constants of the outboard sensor installation.
type Geometry struct {
	Height     float64 // sensor height above grade, same unit as Offset
	Offset     float64 // horizontal distance from the south row edge along the torque tube
	GCR        float64 // ground cover ratio
	NearAlbedo float64 // ground albedo under the array
}

// Validate rejects geometry that makes the view-factor terms undefined.
func (g Geometry) Validate() error {
	if g.Height <= 0 {
		return fmt.Errorf("height must be > 0, got %g", g.Height)
	}
	if g.GCR <= 0 || g.GCR > 1 {
		return fmt.Errorf("GCR must be in (0, 1], got %g", g.GCR)
	}
	if g.NearAlbedo < 0 || g.NearAlbedo > 1 {
		return fmt.Errorf("albedo must be in [0, 1], got %g", g.NearAlbedo)
	}
	return nil
}

// Sample is one timestamp of PVsyst variables. Angles are in degrees and
// irradiances in W/m2.
type Sample struct {
	AzSol   float64 // sun azimuth
	HSol    float64 // sun elevation
	PhiAng  float64 // tracker roll, + to west
	GlobHor float64 // global horizontal
	GlobGnd float64 // global reaching the ground after tracker blockage
	BkVFLss float64 // rear view factor loss
	DifSBak float64 // diffuse sky on the rear side
	BmIncBk float64 // beam incident on the rear side
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

// CosPhi is the cosine of the north-south shade angle, the projected angle
// from the south edge of the tracker to the ground shade line. The shade line
// is approximated as due east-west.
func CosPhi(azSol, hSol float64) float64 {
	return math.Cos(deg2rad(azSol)) * math.Cos(deg2rad(hSol))
}

// Psi is the north-south angle (radians) from the sensor to the shade line.
// The sensor offset makes it smaller than phi.
func Psi(phiRad, height, offset float64) float64 {
	sPhi := math.Sin(phiRad)
	cPhi := math.Cos(phiRad)
	oSPhi := offset * sPhi
	hCPhi := height * cPhi
	num := oSPhi + hCPhi
	den2 := oSPhi*oSPhi + 2*hCPhi*oSPhi + height*height
	return math.Acos(num / math.Sqrt(den2))
}

// W is the fraction of unshaded ground in the sensor's downward view.
func W(psiRad float64) float64 {
	return 0.5 * (1 + math.Cos(psiRad))
}

// SkyRear is the sky diffuse contribution on a rear-facing sensor rolled by phiAng.
func SkyRear(diffHor, phiAng float64) float64 {
	return 0.5 * (1 - math.Cos(deg2rad(phiAng))) * diffHor
}

// GroundRear is the ground-reflected contribution on the rear sensor.
func GroundRear(globHor, globGnd, albInc, bkVFLss, w, albedoNear, gcr float64) float64 {
	return w*(globHor*albedoNear-albInc) + (1-w)*(globGnd*albedoNear/gcr-bkVFLss)
}

// RearIrradiance combines the rear sky diffuse, rear beam and the ground term
// weighted by the rolled sensor's view of the ground.
func RearIrradiance(s Sample, g Geometry) float64 {
	for _, v := range []float64{s.AzSol, s.HSol, s.PhiAng, s.GlobHor, s.GlobGnd, s.BkVFLss, s.DifSBak, s.BmIncBk} {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	if s.HSol <= 0 {
		return 0
	}
	phi := math.Acos(CosPhi(s.AzSol, s.HSol))
	w := W(Psi(phi, g.Height, g.Offset))
	ground := GroundRear(s.GlobHor, s.GlobGnd, 0, s.BkVFLss, w, g.NearAlbedo, g.GCR)
	groundView := 0.5 * (1 + math.Cos(deg2rad(s.PhiAng)))
	return s.DifSBak + s.BmIncBk + groundView*ground
}
