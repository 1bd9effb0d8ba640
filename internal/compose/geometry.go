/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package compose holds the pure fit geometry and the raster compositor used
// for instant local preview. Two fit strategies are kept deliberately
// consistent with the server's rendering convention: backgrounds cover the
// frame (overflow cropped), the car overlay starts from contain fit and is
// adjusted multiplicatively by the user.
package compose

import (
	"math"

	"showroom/internal/domain"
)

// CoverFit describes a scaled, centered draw that fills the surface
// completely. Overflow is cropped by the surface bounds.
type CoverFit struct {
	Scale float64
	// Draw size in surface pixels.
	W, H float64
	// Top-left of the draw rect; negative when the image overflows.
	X, Y float64
}

// Cover computes the cover fit of an image into a surface:
// scale = max(surfaceW/imgW, surfaceH/imgH), centered.
func Cover(surfaceW, surfaceH, imgW, imgH int) CoverFit {
	sw, sh := float64(surfaceW), float64(surfaceH)
	iw, ih := float64(imgW), float64(imgH)
	scale := math.Max(sw/iw, sh/ih)
	w, h := iw*scale, ih*scale
	return CoverFit{
		Scale: scale,
		W:     w,
		H:     h,
		X:     (sw - w) / 2,
		Y:     (sh - h) / 2,
	}
}

// ContainScale returns the contain base scale: the largest uniform scale at
// which the image fits fully inside the surface without cropping.
func ContainScale(surfaceW, surfaceH, imgW, imgH int) float64 {
	return math.Min(float64(surfaceW)/float64(imgW), float64(surfaceH)/float64(imgH))
}

// Overlay is the resolved car-layer transform: contain base scale times the
// user's multiplicative scale, user rotation, and a translation from the
// surface center. Offsets are given in background-relative units and applied
// scaled by the base scale so they track the server render.
type Overlay struct {
	BaseScale      float64
	EffectiveScale float64
	AngleRad       float64
	// Center of the drawn cutout in surface pixels.
	CenterX, CenterY float64
}

// OverlayFor resolves the car overlay transform for a surface, a cutout's
// native dimensions and the user's edit settings.
func OverlayFor(surfaceW, surfaceH, carW, carH int, s domain.EditSettings) Overlay {
	base := ContainScale(surfaceW, surfaceH, carW, carH)
	pct := domain.ClampScalePercent(s.Scale)
	return Overlay{
		BaseScale:      base,
		EffectiveScale: base * float64(pct) / 100.0,
		AngleRad:       s.Rotate * math.Pi / 180.0,
		CenterX:        float64(surfaceW)/2 + s.X*base,
		CenterY:        float64(surfaceH)/2 + s.Y*base,
	}
}
