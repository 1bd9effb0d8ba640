/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export assembles per-image render specifications from the settings
// store and issues authoritative single or batch export requests. Exports are
// server renders; the local compositor plays no part here.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"showroom/internal/domain"
	applog "showroom/internal/log"
	"showroom/internal/workflow"
)

// Renderer is the slice of the API client the coordinator needs.
type Renderer interface {
	RenderZip(ctx context.Context, items []domain.RenderSpec, format string) ([]byte, error)
	DownloadURL(spec domain.RenderSpec, format string) string
}

// Coordinator builds render specs and manages export output.
type Coordinator struct {
	renderer Renderer
	dir      string
	format   string
	log      *slog.Logger
}

// New creates a coordinator writing archives into dir using the given output
// format ("jpg" or "png").
func New(renderer Renderer, dir, format string) *Coordinator {
	return &Coordinator{
		renderer: renderer,
		dir:      dir,
		format:   domain.NormalizeFormat(format),
		log:      applog.WithComponent("export"),
	}
}

// Format returns the configured output format.
func (c *Coordinator) Format() string { return c.format }

// SetFormat switches the output format for subsequent exports.
func (c *Coordinator) SetFormat(format string) { c.format = domain.NormalizeFormat(format) }

// SingleSpec builds the render specification for the current image from the
// active edit parameters. Snap is false: the exact transform is honored.
func (c *Coordinator) SingleSpec(w *workflow.Context) (domain.RenderSpec, error) {
	img, ok := w.CurrentImage()
	if !ok {
		return domain.RenderSpec{}, errors.New("no current image")
	}
	s := w.Active()
	if s.BackgroundID == "" {
		s.BackgroundID = w.ActiveBackground()
	}
	if s.BackgroundID == "" {
		return domain.RenderSpec{}, errors.New("no background chosen")
	}
	if s.Scale == 0 {
		s = domain.DefaultSettings(s.BackgroundID)
	}
	return domain.SpecFromSettings(img.ID, s), nil
}

// DownloadURL returns the navigational URL for the authoritative single
// export of the current image. Auth travels as a query parameter because the
// download is a navigation, not a programmatic fetch.
func (c *Coordinator) DownloadURL(w *workflow.Context) (string, error) {
	spec, err := c.SingleSpec(w)
	if err != nil {
		return "", err
	}
	return c.renderer.DownloadURL(spec, c.format), nil
}

// BatchSpecs builds one specification per image. Images without a saved
// settings record fall back to the neutral defaults with the session's active
// background.
func (c *Coordinator) BatchSpecs(w *workflow.Context) ([]domain.RenderSpec, error) {
	images := w.Images()
	if len(images) == 0 {
		return nil, errors.New("no images to export")
	}
	activeBG := w.ActiveBackground()
	if activeBG == "" {
		return nil, errors.New("no background chosen")
	}
	store := w.Settings()
	specs := make([]domain.RenderSpec, 0, len(images))
	for i, img := range images {
		s, ok := store.Load(i)
		if !ok {
			s = domain.DefaultSettings(activeBG)
		}
		if s.BackgroundID == "" {
			s.BackgroundID = activeBG
		}
		specs = append(specs, domain.SpecFromSettings(img.ID, s))
	}
	return specs, nil
}

// ExportBatch requests the authoritative batch archive and saves it locally.
// The payload is schema-validated before it leaves the client. Returns the
// written archive path.
func (c *Coordinator) ExportBatch(ctx context.Context, w *workflow.Context) (string, error) {
	specs, err := c.BatchSpecs(w)
	if err != nil {
		return "", err
	}
	if err := validateBatch(specs, c.format); err != nil {
		return "", fmt.Errorf("batch payload invalid: %w", err)
	}
	data, err := c.renderer.RenderZip(ctx, specs, c.format)
	if err != nil {
		return "", fmt.Errorf("batch render: %w", err)
	}
	name := fmt.Sprintf("showroom-%s.zip", time.Now().Format("20060102-150405"))
	path := filepath.Join(c.dir, name)
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("save archive: %w", err)
	}
	c.log.Info("batch archive saved", slog.String("path", path), slog.Int("images", len(specs)))
	return path, nil
}
