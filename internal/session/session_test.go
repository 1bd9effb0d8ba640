/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"showroom/internal/api"
	"showroom/internal/config"
	"showroom/internal/domain"
	"showroom/internal/poll"
	"showroom/internal/workflow"
)

// fakeBackend is a minimal scripted stand-in for the processing service.
type fakeBackend struct {
	t           *testing.T
	statusPolls int32
	// statuses returned per poll; the last entry repeats.
	pollScript [][]domain.ImageStatus
	imageCount int
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func (b *fakeBackend) images(statuses []domain.ImageStatus) []domain.ImageAsset {
	out := make([]domain.ImageAsset, len(statuses))
	for i, st := range statuses {
		out[i] = domain.ImageAsset{
			ID:        fmt.Sprintf("img-%d", i),
			Filename:  fmt.Sprintf("car-%d.jpg", i),
			Status:    st,
			CutoutURL: fmt.Sprintf("/static/cutout/img-%d.png", i),
		}
	}
	return out
}

func (b *fakeBackend) handler() http.Handler {
	raster := pngPayload(b.t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/client/register", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paid":false,"stripe_configured":true,"adsense":{"client":"","slot":""}}`))
	})
	mux.HandleFunc("/api/backgrounds", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"backgrounds":[
			{"id":"studio_neutral","name":"Studio Neutral","description":"","thumb_url":"/static/bg/studio_neutral.jpg"},
			{"id":"outdoor_lot","name":"Outdoor Lot","description":"","thumb_url":"/static/bg/outdoor_lot.jpg"}
		]}`))
	})
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			http.Error(w, `{"detail":"bad multipart"}`, http.StatusBadRequest)
			return
		}
		b.imageCount = len(r.MultipartForm.File["files"])
		job := domain.Job{ID: "job-1", Images: b.images(make([]domain.ImageStatus, b.imageCount))}
		for i := range job.Images {
			job.Images[i].Status = domain.StatusQueued
		}
		_ = json.NewEncoder(w).Encode(job)
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&b.statusPolls, 1)) - 1
		if n >= len(b.pollScript) {
			n = len(b.pollScript) - 1
		}
		job := domain.Job{ID: "job-1", Images: b.images(b.pollScript[n])}
		_ = json.NewEncoder(w).Encode(job)
	})
	mux.HandleFunc("/api/render/preview", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(raster)
	})
	mux.HandleFunc("/static/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(raster)
	})
	return mux
}

func newTestSession(t *testing.T, b *fakeBackend) *Session {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = srv.URL
	cfg.Poll.IntervalMs = 1
	cfg.Export.Dir = t.TempDir()

	s, err := New(cfg, "tok-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func uploads(n int) []api.Upload {
	out := make([]api.Upload, n)
	for i := range out {
		out[i] = api.Upload{
			Filename: fmt.Sprintf("car-%d.jpg", i),
			Data:     []byte("fake-jpeg-bytes"),
		}
	}
	return out
}

func TestBootstrapLoadsAccountAndCatalog(t *testing.T) {
	b := &fakeBackend{t: t}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if s.Workflow.Account().Paid {
		t.Fatalf("account should start unpaid")
	}
	if got := len(s.Workflow.Catalog()); got != 2 {
		t.Fatalf("catalog size = %d, want 2", got)
	}
}

func TestUploadHappyPath(t *testing.T) {
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusProcessing, domain.StatusProcessing},
		{domain.StatusReady, domain.StatusProcessing},
		{domain.StatusReady, domain.StatusReady},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	var percents []int
	state, err := s.Upload(context.Background(), uploads(2), func(p poll.Progress) {
		percents = append(percents, p.Percent)
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if state != poll.StateAllReady {
		t.Fatalf("state = %s, want all-ready", state)
	}
	if got := s.Workflow.Screen(); got != workflow.ScreenBackground {
		t.Fatalf("Screen = %s, want Background", got)
	}
	if got := s.Workflow.ActiveBackground(); got != "studio_neutral" {
		t.Fatalf("ActiveBackground = %q, want catalog default", got)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed: %v", percents)
		}
	}
	// The early authoritative preview was cached for the first ready image.
	if _, ok := s.EarlyPreviewImage("img-0", "studio_neutral"); !ok {
		t.Fatalf("early preview missing from cache")
	}
}

func TestEarlyPreviewReadableFromProgressCallback(t *testing.T) {
	// The desktop shell polls EarlyPreview on every progress tick from its
	// own goroutine. That path must go through the session's synchronized
	// handoff and never touch the workflow context mid-upload.
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusProcessing, domain.StatusProcessing},
		{domain.StatusReady, domain.StatusProcessing},
		{domain.StatusReady, domain.StatusReady},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	var wg sync.WaitGroup
	var sawPreview atomic.Bool
	if _, err := s.Upload(context.Background(), uploads(2), func(p poll.Progress) {
		// Mimic the UI goroutine: read concurrently with the poll loop.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.EarlyPreview(); ok {
				sawPreview.Store(true)
			}
		}()
	}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	wg.Wait()

	// After completion the preview is certainly there.
	if _, ok := s.EarlyPreview(); !ok {
		t.Fatalf("early preview not available after upload")
	}
	_ = sawPreview.Load()
}

func TestEarlyPreviewClearedOnReset(t *testing.T) {
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusReady, domain.StatusReady},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := s.Upload(context.Background(), uploads(2), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, ok := s.EarlyPreview(); !ok {
		t.Fatalf("early preview should be cached after upload")
	}
	s.ResetAll()
	if _, ok := s.EarlyPreview(); ok {
		t.Fatalf("early preview should be cleared by reset")
	}
}

func TestUploadPartialReady(t *testing.T) {
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusReady, domain.StatusError},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	state, err := s.Upload(context.Background(), uploads(2), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if state != poll.StatePartialReady {
		t.Fatalf("state = %s, want partial-ready", state)
	}
	// The failed image is filtered out for good.
	if got := len(s.Workflow.Images()); got != 1 {
		t.Fatalf("surviving images = %d, want 1", got)
	}
	if got := s.Workflow.Screen(); got != workflow.ScreenBackground {
		t.Fatalf("Screen = %s, want Background", got)
	}
}

func TestUploadAllFailedDeadEnd(t *testing.T) {
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusError, domain.StatusError},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	state, err := s.Upload(context.Background(), uploads(2), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if state != poll.StateAllFailed {
		t.Fatalf("state = %s, want all-failed", state)
	}
	if got := s.Workflow.Screen(); got != workflow.ScreenProcessing {
		t.Fatalf("Screen = %s, want to stay on Processing", got)
	}
	if got := len(s.Workflow.Images()); got != 0 {
		t.Fatalf("images = %d, want 0 in the dead end", got)
	}
	if !s.Workflow.AllFailed() || s.Workflow.FailureNote() == "" {
		t.Fatalf("dead-end substate not set")
	}
}

func TestUploadFetchErrorResetsToUpload(t *testing.T) {
	// A backend whose status endpoint always fails mid-poll.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(8 << 20)
		_, _ = w.Write([]byte(`{"job_id":"job-1","images":[{"id":"img-0","filename":"a.jpg","status":"queued","original_url":"","cutout_url":""}]}`))
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"backend crashed"}`, http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Backend.BaseURL = srv.URL
	cfg.Poll.IntervalMs = 1
	cfg.Export.Dir = t.TempDir()
	s, err := New(cfg, "tok-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = s.Upload(context.Background(), uploads(1), nil)
	if err == nil {
		t.Fatalf("Upload should propagate the poll failure")
	}
	if got := s.Workflow.Screen(); got != workflow.ScreenUpload {
		t.Fatalf("Screen = %s after fatal poll error, want Upload", got)
	}
}

func TestLocalPreviewComposites(t *testing.T) {
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusReady},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := s.Upload(context.Background(), uploads(1), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Workflow.EnterPosition(); err != nil {
		t.Fatalf("EnterPosition: %v", err)
	}
	img, err := s.LocalPreview(context.Background(), 300, 200)
	if err != nil {
		t.Fatalf("LocalPreview: %v", err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 200 {
		t.Fatalf("preview size = %v", img.Bounds())
	}
}

func TestResetAllClearsCacheAndWorkflow(t *testing.T) {
	b := &fakeBackend{t: t, pollScript: [][]domain.ImageStatus{
		{domain.StatusReady},
	}}
	s := newTestSession(t, b)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := s.Upload(context.Background(), uploads(1), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	s.ResetAll()
	if got := s.Workflow.Screen(); got != workflow.ScreenUpload {
		t.Fatalf("Screen = %s after ResetAll, want Upload", got)
	}
	if s.Cache.Len() != 0 {
		t.Fatalf("cache survived ResetAll")
	}
}
