// Package lighting turns the tracker's ambient lighting sample into the
// uniform values used to shade virtual objects.
package lighting

import (
	"fmt"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// SHCoefficients is the number of spherical-harmonics floats in a lighting
// sample: 9 basis coefficients times 3 colour channels.
const SHCoefficients = 27

// shFactors are the order-2 SH basis normalisations pre-multiplied by the
// Lambertian cosine convolution.
var shFactors = [9]float32{
	0.282095,
	-0.325735,
	0.325735,
	-0.325735,
	0.273137,
	-0.273137,
	0.078848,
	-0.273137,
	0.136569,
}

// PremultiplySH scales each coefficient by its basis factor:
// out[i] = coefficients[i] * shFactors[i/3].
//
// It panics unless len(coefficients) == SHCoefficients.
func PremultiplySH(coefficients []float32) [SHCoefficients]float32 {
	if len(coefficients) != SHCoefficients {
		panic(fmt.Sprintf("lighting: want %d spherical harmonics coefficients, got %d", SHCoefficients, len(coefficients)))
	}
	var out [SHCoefficients]float32
	for i, c := range coefficients {
		out[i] = c * shFactors[i/3]
	}
	return out
}

// Params are the shader-ready lighting values. They persist across frames:
// an invalid sample only clears Valid.
type Params struct {
	Valid              bool
	ViewInverse        posemath.Mat4
	ViewLightDirection [4]float64
	LightIntensity     [3]float32
	SphericalHarmonics [SHCoefficients]float32
	CubeMap            *tracking.CubeMap
}

// Apply writes the lighting uniforms into p.
func (l *Params) Apply(p render.ShaderParams) {
	p[render.UniformLightEstimateIsValid] = l.Valid
	p[render.UniformViewInverse] = l.ViewInverse.ColumnMajor32()
	p[render.UniformViewLightDirection] = [4]float32{
		float32(l.ViewLightDirection[0]),
		float32(l.ViewLightDirection[1]),
		float32(l.ViewLightDirection[2]),
		float32(l.ViewLightDirection[3]),
	}
	p[render.UniformLightIntensity] = l.LightIntensity
	p[render.UniformSphericalHarmonics] = l.SphericalHarmonics
	if l.CubeMap != nil {
		p[render.UniformCubeMap] = l.CubeMap
	}
}

// Estimator keeps the last applied lighting values. It is owned by the
// render loop and is not safe for concurrent use.
type Estimator struct {
	params Params
}

// Params returns the current values.
func (e *Estimator) Params() Params {
	return e.params
}

// Update folds a new sample into the current values using view, the
// world-to-camera matrix for the same frame.
//
// A sample that is not valid only clears the Valid flag. If view cannot be
// inverted the values are left untouched, Valid is cleared and the error is
// returned.
func (e *Estimator) Update(est tracking.LightEstimate, view posemath.Mat4) error {
	if est.State != tracking.LightValid {
		e.params.Valid = false
		return nil
	}
	viewInverse, err := posemath.Invert(view)
	if err != nil {
		e.params.Valid = false
		return fmt.Errorf("invert view matrix: %w", err)
	}
	sh := PremultiplySH(est.SphericalHarmonics)

	d := est.MainLightDirection
	dir := posemath.MulVec4(view, [4]float64{float64(d[0]), float64(d[1]), float64(d[2]), 0})

	e.params = Params{
		Valid:              true,
		ViewInverse:        viewInverse,
		ViewLightDirection: dir,
		LightIntensity:     est.MainLightIntensity,
		SphericalHarmonics: sh,
		CubeMap:            est.CubeMap,
	}
	return nil
}
