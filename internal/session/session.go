/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session wires the API client, the workflow context, the asset cache
// and the export coordinator into UI-agnostic command handlers. The desktop
// shell only ever talks to this package and to the workflow's navigation
// methods; no component here touches a UI toolkit.
package session

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"showroom/internal/api"
	"showroom/internal/assetcache"
	"showroom/internal/compose"
	"showroom/internal/config"
	"showroom/internal/domain"
	"showroom/internal/export"
	applog "showroom/internal/log"
	"showroom/internal/poll"
	"showroom/internal/resilience"
	"showroom/internal/workflow"
)

// Session is the per-run application state. There is a single logical thread
// of control: ordering between network calls and dependent re-renders is
// enforced by sequencing, not locks.
type Session struct {
	API      *api.Client
	Cache    *assetcache.Cache
	Workflow *workflow.Context
	Export   *export.Coordinator

	log          *slog.Logger
	pollInterval time.Duration

	// earlyKey is written by the poll goroutine and read by the UI goroutine;
	// it is the only session state crossing that boundary mid-upload.
	mu       sync.Mutex
	earlyKey string
}

// New builds a session from a loaded configuration and the client token.
func New(cfg config.AppConfig, token string) (*Session, error) {
	rc := resilience.DefaultConfig()
	rc.MaxAttempts = cfg.Poll.MaxAttempts
	exec := resilience.NewExecutor(rc)

	client := api.New(cfg.Backend.BaseURL, token, time.Duration(cfg.Backend.TimeoutMs)*time.Millisecond, exec)

	dir, err := cfg.ExportDir()
	if err != nil {
		return nil, fmt.Errorf("resolve export dir: %w", err)
	}

	return &Session{
		API:          client,
		Cache:        assetcache.New(0),
		Workflow:     workflow.New(),
		Export:       export.New(client, dir, cfg.Export.Format),
		log:          applog.WithComponent("session"),
		pollInterval: time.Duration(cfg.Poll.IntervalMs) * time.Millisecond,
	}, nil
}

// Bootstrap registers the client identity, refreshes the account state and
// loads the background catalog. Called once at startup; the account refresh
// is repeated after a payment-return callback.
func (s *Session) Bootstrap(ctx context.Context) error {
	if err := s.API.Register(ctx); err != nil {
		return fmt.Errorf("register client: %w", err)
	}
	if err := s.RefreshAccount(ctx); err != nil {
		return err
	}
	bgs, err := s.API.Backgrounds(ctx)
	if err != nil {
		return fmt.Errorf("load backgrounds: %w", err)
	}
	s.Workflow.SetCatalog(bgs)
	return nil
}

// RefreshAccount re-reads the server-confirmed account state.
func (s *Session) RefreshAccount(ctx context.Context) error {
	st, err := s.API.Me(ctx)
	if err != nil {
		return fmt.Errorf("account status: %w", err)
	}
	s.Workflow.SetAccount(st)
	return nil
}

// Upload submits a batch and runs the reconciliation loop to completion.
// On a fetch failure mid-loop the whole attempt aborts: the error propagates
// and the workflow resets to Upload. The returned state distinguishes
// all-ready, partial and the all-failed dead end; for the latter the workflow
// stays on Processing and FailureNote carries the message.
func (s *Session) Upload(ctx context.Context, files []api.Upload, onProgress func(poll.Progress)) (poll.State, error) {
	s.mu.Lock()
	s.earlyKey = ""
	s.mu.Unlock()

	job, err := s.API.CreateJob(ctx, files)
	if err != nil {
		return poll.StatePolling, fmt.Errorf("submit batch: %w", err)
	}
	if err := s.Workflow.BeginJob(job); err != nil {
		return poll.StatePolling, err
	}

	rec := poll.New(s.API, s.Workflow, s.pollInterval)
	rec.OnProgress = onProgress
	rec.OnFirstReady = s.earlyPreview

	state, err := rec.Run(ctx)
	if err != nil {
		s.Workflow.Reset()
		return state, err
	}

	switch err := s.Workflow.FinishProcessing(); {
	case err == nil:
		return state, nil
	case err == workflow.ErrNoReadyImages:
		// Dead end: stay on Processing, message via FailureNote.
		return poll.StateAllFailed, nil
	default:
		s.Workflow.Reset()
		return state, err
	}
}

// earlyPreview gives the user an early true-to-render glimpse: as soon as the
// first image is ready and no background is chosen yet, default one from the
// catalog and request an authoritative low-resolution render with neutral
// parameters and snap enabled (server auto-fit/center).
func (s *Session) earlyPreview(img domain.ImageAsset) {
	if s.Workflow.ActiveBackground() != "" {
		return
	}
	bg := s.Workflow.DefaultBackground()
	if bg == "" {
		return
	}
	spec := domain.RenderSpec{
		ImageID:      img.ID,
		BackgroundID: bg,
		Rotate:       0,
		Scale:        1.0,
		X:            0,
		Y:            0,
		Shadow:       true,
		Snap:         true,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	data, err := s.API.RenderPreview(ctx, spec, domain.FormatPNG)
	if err != nil {
		s.log.Warn("early preview failed", slog.String("image", img.ID), slog.Any("err", err))
		return
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Warn("early preview decode failed", slog.String("image", img.ID), slog.Any("err", err))
		return
	}
	key := previewKey(img.ID, bg)
	s.Cache.Put(key, decoded)
	s.mu.Lock()
	s.earlyKey = key
	s.mu.Unlock()
}

// EarlyPreview returns the cached early server render once it exists. Safe to
// call from the UI goroutine while the upload is still polling; it never
// touches the workflow context.
func (s *Session) EarlyPreview() (image.Image, bool) {
	s.mu.Lock()
	key := s.earlyKey
	s.mu.Unlock()
	if key == "" {
		return nil, false
	}
	return s.Cache.Lookup(key)
}

// EarlyPreviewImage returns the cached early server render, if any.
func (s *Session) EarlyPreviewImage(imageID, backgroundID string) (image.Image, bool) {
	return s.Cache.Lookup(previewKey(imageID, backgroundID))
}

func previewKey(imageID, backgroundID string) string {
	return "preview://" + imageID + "/" + backgroundID
}

// LocalPreview composites the current image over the active background into a
// surface of the given size for instant interactive feedback. Both layers
// come from the resolved-asset cache, so slider drags only redraw.
func (s *Session) LocalPreview(ctx context.Context, surfaceW, surfaceH int) (*image.RGBA, error) {
	img, ok := s.Workflow.CurrentImage()
	if !ok {
		return nil, fmt.Errorf("no current image")
	}
	settings := s.Workflow.Active()
	bgID := settings.BackgroundID
	if bgID == "" {
		bgID = s.Workflow.ActiveBackground()
	}
	var bgThumb string
	for _, b := range s.Workflow.Catalog() {
		if b.ID == bgID {
			bgThumb = b.ThumbURL
			break
		}
	}
	if bgThumb == "" {
		return nil, fmt.Errorf("background %q not in catalog", bgID)
	}
	bg, err := s.Cache.Get(ctx, s.API.ResolveAsset(bgThumb))
	if err != nil {
		return nil, fmt.Errorf("load background: %w", err)
	}
	car, err := s.Cache.Get(ctx, s.API.ResolveAsset(img.CutoutURL))
	if err != nil {
		return nil, fmt.Errorf("load cutout: %w", err)
	}
	return compose.Composite(surfaceW, surfaceH, bg, car, settings), nil
}

// ServerPreview requests an authoritative preview of the current image with
// its exact saved transform (snap off).
func (s *Session) ServerPreview(ctx context.Context) (image.Image, error) {
	spec, err := s.Export.SingleSpec(s.Workflow)
	if err != nil {
		return nil, err
	}
	data, err := s.API.RenderPreview(ctx, spec, domain.FormatPNG)
	if err != nil {
		return nil, fmt.Errorf("server preview: %w", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	return decoded, nil
}

// DownloadURL returns the authoritative single-export URL for the current
// image, to be opened via navigation.
func (s *Session) DownloadURL() (string, error) {
	return s.Export.DownloadURL(s.Workflow)
}

// ExportAll requests the batch archive and saves it locally, returning the
// written path.
func (s *Session) ExportAll(ctx context.Context) (string, error) {
	return s.Export.ExportBatch(ctx, s.Workflow)
}

// StartCheckout obtains the external payment redirect URL.
func (s *Session) StartCheckout(ctx context.Context) (string, error) {
	url, err := s.API.CreateCheckout(ctx)
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	return url, nil
}

// ConfirmCheckout verifies a completed payment and refreshes the account
// state; the paid flag only flips from the server response. The refresh fully
// completes before any dependent re-render.
func (s *Session) ConfirmCheckout(ctx context.Context, sessionID string) error {
	if _, err := s.API.CheckoutStatus(ctx, sessionID); err != nil {
		return fmt.Errorf("checkout status: %w", err)
	}
	return s.RefreshAccount(ctx)
}

// ResetAll performs the full workflow reset (Download → Upload): clears the
// job, records, settings and cached rasters. The identity token survives.
func (s *Session) ResetAll() {
	s.Workflow.Reset()
	s.Cache.Clear()
	s.mu.Lock()
	s.earlyKey = ""
	s.mu.Unlock()
}
