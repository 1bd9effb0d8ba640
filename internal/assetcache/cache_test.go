/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package assetcache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestGetFetchesOnce(t *testing.T) {
	var hits int32
	payload := pngBytes(t, 4, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	c := New(5 * time.Second)
	for i := 0; i < 3; i++ {
		img, err := c.Get(context.Background(), srv.URL+"/cutout.png")
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
			t.Fatalf("decoded size = %v", img.Bounds())
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("server hits = %d, want 1 (subsequent Gets cached)", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestGetHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := New(5 * time.Second)
	if _, err := c.Get(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Fatalf("expected error for 404 response")
	}
	if c.Len() != 0 {
		t.Fatalf("failed fetch must not populate the cache")
	}
}

func TestGetUndecodablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	t.Cleanup(srv.Close)

	c := New(5 * time.Second)
	if _, err := c.Get(context.Background(), srv.URL+"/garbage"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPutAndLookup(t *testing.T) {
	c := New(time.Second)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	c.Put("preview://i1/bg", img)

	got, ok := c.Lookup("preview://i1/bg")
	if !ok || got != img {
		t.Fatalf("Lookup after Put = (%v, %v)", got, ok)
	}
	if _, ok := c.Lookup("preview://other"); ok {
		t.Fatalf("Lookup hit for absent key")
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c := New(time.Second)
	c.Put("a", image.NewRGBA(image.Rect(0, 0, 1, 1)))
	c.Put("b", image.NewRGBA(image.Rect(0, 0, 1, 1)))

	c.Invalidate("a")
	if _, ok := c.Lookup("a"); ok {
		t.Fatalf("entry survived Invalidate")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d after Invalidate, want 1", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after Clear, want 0", c.Len())
	}
}
