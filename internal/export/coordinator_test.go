/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"os"
	"strings"
	"testing"

	"showroom/internal/domain"
	"showroom/internal/workflow"
)

type fakeRenderer struct {
	zipItems  []domain.RenderSpec
	zipFormat string
	zipData   []byte
	zipErr    error
}

func (f *fakeRenderer) RenderZip(_ context.Context, items []domain.RenderSpec, format string) ([]byte, error) {
	f.zipItems = items
	f.zipFormat = format
	return f.zipData, f.zipErr
}

func (f *fakeRenderer) DownloadURL(spec domain.RenderSpec, format string) string {
	return "http://backend/api/render/download?image_id=" + spec.ImageID + "&fmt=" + format
}

// editReadyContext builds a workflow that reached Position with n ready
// images and the first image's settings loaded.
func editReadyContext(t *testing.T, n int) *workflow.Context {
	t.Helper()
	w := workflow.New()
	w.SetCatalog([]domain.Background{{ID: "studio_neutral"}, {ID: "outdoor_lot"}})
	job := domain.Job{ID: "job-1"}
	for i := 0; i < n; i++ {
		job.Images = append(job.Images, domain.ImageAsset{
			ID:     "img-" + string(rune('a'+i)),
			Status: domain.StatusReady,
		})
	}
	if err := w.BeginJob(job); err != nil {
		t.Fatalf("BeginJob: %v", err)
	}
	if err := w.FinishProcessing(); err != nil {
		t.Fatalf("FinishProcessing: %v", err)
	}
	if err := w.EnterPosition(); err != nil {
		t.Fatalf("EnterPosition: %v", err)
	}
	return w
}

func TestSingleSpecUsesActiveEdits(t *testing.T) {
	w := editReadyContext(t, 1)
	s := w.Active()
	s.X = 14
	s.Rotate = -2
	s.Scale = 150
	w.SetActive(s)

	c := New(&fakeRenderer{}, t.TempDir(), "jpg")
	spec, err := c.SingleSpec(w)
	if err != nil {
		t.Fatalf("SingleSpec: %v", err)
	}
	if spec.ImageID != "img-a" || spec.BackgroundID != "studio_neutral" {
		t.Fatalf("identity fields wrong: %+v", spec)
	}
	if spec.X != 14 || spec.Rotate != -2 || spec.Scale != 1.5 {
		t.Fatalf("transform wrong: %+v", spec)
	}
	if spec.Snap {
		t.Fatalf("exports must not snap")
	}
}

func TestDownloadURLDelegatesToRenderer(t *testing.T) {
	w := editReadyContext(t, 1)
	c := New(&fakeRenderer{}, t.TempDir(), "png")
	u, err := c.DownloadURL(w)
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if !strings.Contains(u, "image_id=img-a") || !strings.Contains(u, "fmt=png") {
		t.Fatalf("unexpected url: %s", u)
	}
}

func TestBatchSpecsFallbackDefaults(t *testing.T) {
	w := editReadyContext(t, 3)
	// Edit only the first image; the others were never visited.
	s := w.Active()
	s.Y = -30
	w.SetActive(s)
	w.SaveActive()

	c := New(&fakeRenderer{}, t.TempDir(), "jpg")
	specs, err := c.BatchSpecs(w)
	if err != nil {
		t.Fatalf("BatchSpecs: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("len(specs) = %d, want 3", len(specs))
	}
	if specs[0].Y != -30 {
		t.Fatalf("edited image lost its settings: %+v", specs[0])
	}
	for _, spec := range specs[1:] {
		if spec.Rotate != 0 || spec.Scale != 1.0 || spec.X != 0 || spec.Y != 0 {
			t.Fatalf("unvisited image not neutral: %+v", spec)
		}
		if !spec.Shadow {
			t.Fatalf("unvisited image should default shadow on: %+v", spec)
		}
		if spec.BackgroundID != "studio_neutral" {
			t.Fatalf("unvisited image bg = %q, want session active", spec.BackgroundID)
		}
	}
}

func TestExportBatchWritesArchive(t *testing.T) {
	w := editReadyContext(t, 2)
	dir := t.TempDir()
	r := &fakeRenderer{zipData: []byte("PK\x03\x04fake")}
	c := New(r, dir, "jpg")

	path, err := c.ExportBatch(context.Background(), w)
	if err != nil {
		t.Fatalf("ExportBatch: %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".zip") {
		t.Fatalf("unexpected archive path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if string(data) != "PK\x03\x04fake" {
		t.Fatalf("archive content mismatch")
	}
	if len(r.zipItems) != 2 || r.zipFormat != "jpg" {
		t.Fatalf("renderer got %d items fmt %q", len(r.zipItems), r.zipFormat)
	}
}

func TestExportBatchNoBackground(t *testing.T) {
	w := workflow.New()
	// No catalog: finishing processing leaves no background to default to.
	if err := w.BeginJob(domain.Job{ID: "j", Images: []domain.ImageAsset{{ID: "a", Status: domain.StatusReady}}}); err != nil {
		t.Fatalf("BeginJob: %v", err)
	}
	if err := w.FinishProcessing(); err != nil {
		t.Fatalf("FinishProcessing: %v", err)
	}
	c := New(&fakeRenderer{}, t.TempDir(), "jpg")
	if _, err := c.ExportBatch(context.Background(), w); err == nil {
		t.Fatalf("ExportBatch without background should fail")
	}
}

func TestValidateBatch(t *testing.T) {
	good := []domain.RenderSpec{{ImageID: "i", BackgroundID: "b", Scale: 1.0, Shadow: true}}
	if err := validateBatch(good, "jpg"); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := validateBatch(nil, "jpg"); err == nil {
		t.Fatalf("empty items accepted")
	}
	badScale := []domain.RenderSpec{{ImageID: "i", BackgroundID: "b", Scale: 3.0}}
	if err := validateBatch(badScale, "jpg"); err == nil {
		t.Fatalf("out-of-range scale accepted")
	}
	emptyID := []domain.RenderSpec{{ImageID: "", BackgroundID: "b", Scale: 1.0}}
	if err := validateBatch(emptyID, "jpg"); err == nil {
		t.Fatalf("empty image id accepted")
	}
	if err := validateBatch(good, "webp"); err == nil {
		t.Fatalf("unsupported format accepted")
	}
}
