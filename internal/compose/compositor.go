/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package compose

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"showroom/internal/domain"
)

// Composite renders the local interactive preview: the background cover-fitted
// into a fresh surface, the car cutout drawn over it with the user transform.
// This is a visual approximation of the authoritative server render, not a
// pixel match; both agree on fit mode per layer.
func Composite(surfaceW, surfaceH int, bg, car image.Image, s domain.EditSettings) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, surfaceW, surfaceH))
	DrawCover(dst, bg)
	if car != nil {
		DrawOverlay(dst, car, s)
	}
	return dst
}

// DrawCover draws src cover-fitted into dst: the surface is filled completely
// and overflow is cropped. No rotation.
func DrawCover(dst *image.RGBA, src image.Image) {
	if src == nil {
		return
	}
	b := dst.Bounds()
	sb := src.Bounds()
	fit := Cover(b.Dx(), b.Dy(), sb.Dx(), sb.Dy())
	dr := image.Rect(
		b.Min.X+int(math.Round(fit.X)),
		b.Min.Y+int(math.Round(fit.Y)),
		b.Min.X+int(math.Round(fit.X+fit.W)),
		b.Min.Y+int(math.Round(fit.Y+fit.H)),
	)
	// Writes outside dst bounds are clipped, which is exactly the crop.
	xdraw.CatmullRom.Scale(dst, dr, src, sb, xdraw.Src, nil)
}

// DrawOverlay draws the car cutout with the transform stack applied in order
// translate, rotate, scale, centered on the cutout's own midpoint.
func DrawOverlay(dst *image.RGBA, car image.Image, s domain.EditSettings) {
	b := dst.Bounds()
	cb := car.Bounds()
	ov := OverlayFor(b.Dx(), b.Dy(), cb.Dx(), cb.Dy(), s)

	sin, cos := math.Sincos(ov.AngleRad)
	sc := ov.EffectiveScale
	hw := float64(cb.Dx()) / 2
	hh := float64(cb.Dy()) / 2

	// Translate(center) · Rotate(angle) · Scale(eff) · Translate(-mid), so the
	// cutout rotates and scales about its own bounding-box midpoint.
	m := f64.Aff3{
		sc * cos, -sc * sin, float64(b.Min.X) + ov.CenterX - sc*(cos*hw-sin*hh),
		sc * sin, sc * cos, float64(b.Min.Y) + ov.CenterY - sc*(sin*hw+cos*hh),
	}
	xdraw.BiLinear.Transform(dst, m, car, cb, xdraw.Over, nil)
}
