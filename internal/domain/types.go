/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model shared by the workflow, the poller,
// the compositor and the export coordinator. JSON tags mirror the backend API
// wire format exactly.

// ImageStatus is the per-image processing status reported by the backend.
// Ready and Error are terminal; a terminal status never regresses.
type ImageStatus string

const (
	StatusQueued     ImageStatus = "queued"
	StatusProcessing ImageStatus = "processing"
	StatusReady      ImageStatus = "ready"
	StatusError      ImageStatus = "error"
)

// Terminal reports whether no further processing will occur for this status.
func (s ImageStatus) Terminal() bool { return s == StatusReady || s == StatusError }

// ImageAsset is one uploaded photo and its background-removal state.
type ImageAsset struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	Status      ImageStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	OriginalURL string      `json:"original_url"`
	CutoutURL   string      `json:"cutout_url"`
}

// Job is one upload batch. The id is immutable for the batch's lifetime.
type Job struct {
	ID     string       `json:"job_id"`
	Images []ImageAsset `json:"images"`
}

// Background is a showroom backdrop from the catalog; immutable for the session.
type Background struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ThumbURL    string `json:"thumb_url"`
}

// AdsenseConfig carries the ad slot configuration for unpaid sessions.
type AdsenseConfig struct {
	Client string `json:"client"`
	Slot   string `json:"slot"`
}

// AccountStatus is the server-confirmed feature state for this client token.
// Read-only to the core; only toggled by server responses.
type AccountStatus struct {
	Paid             bool          `json:"paid"`
	StripeConfigured bool          `json:"stripe_configured"`
	Adsense          AdsenseConfig `json:"adsense"`
}

// Scale percent bounds; the server clamps the scale fraction to [0.5, 2.0],
// the client mirrors that in percent so preview and render agree.
const (
	MinScalePercent = 50
	MaxScalePercent = 200
)

// EditSettings are the per-image edit parameters. X and Y are signed offsets
// in background-relative units, Rotate is degrees, Scale is percent with 100
// meaning neutral, BackgroundID is empty until one is chosen.
type EditSettings struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Rotate       float64 `json:"rotate"`
	Scale        int     `json:"scale"`
	BackgroundID string  `json:"background_id"`
	Shadow       bool    `json:"shadow"`
}

// DefaultSettings returns the neutral edit record for a freshly visited image.
func DefaultSettings(backgroundID string) EditSettings {
	return EditSettings{X: 0, Y: 0, Rotate: 0, Scale: 100, BackgroundID: backgroundID, Shadow: true}
}

// ClampScalePercent bounds a user scale percent to the server-accepted range.
func ClampScalePercent(p int) int {
	if p < MinScalePercent {
		return MinScalePercent
	}
	if p > MaxScalePercent {
		return MaxScalePercent
	}
	return p
}

// RenderSpec is one authoritative render request. Scale is a fraction
// (percent/100). Snap asks the server to auto-fit/center, ignoring the
// transform parameters.
type RenderSpec struct {
	ImageID      string  `json:"image_id"`
	BackgroundID string  `json:"bg_id"`
	Rotate       float64 `json:"rotate"`
	Scale        float64 `json:"scale"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Shadow       bool    `json:"shadow"`
	Snap         bool    `json:"snap"`
}

// SpecFromSettings builds the render spec for an image from its edit record.
// Snap is always false here: the user's exact transform must be honored.
func SpecFromSettings(imageID string, s EditSettings) RenderSpec {
	return RenderSpec{
		ImageID:      imageID,
		BackgroundID: s.BackgroundID,
		Rotate:       s.Rotate,
		Scale:        float64(ClampScalePercent(s.Scale)) / 100.0,
		X:            s.X,
		Y:            s.Y,
		Shadow:       s.Shadow,
		Snap:         false,
	}
}

// Output formats accepted by the render endpoints.
const (
	FormatJPG = "jpg"
	FormatPNG = "png"
)

// NormalizeFormat maps arbitrary user input to a supported output format,
// defaulting to JPG like the download endpoint does.
func NormalizeFormat(fmt string) string {
	switch fmt {
	case "png", "PNG":
		return FormatPNG
	default:
		return FormatJPG
	}
}
