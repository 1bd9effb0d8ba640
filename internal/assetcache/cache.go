/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package assetcache caches decoded rasters by fully resolved asset URL so
// continuous interactive adjustment (slider drags) never refetches. Requests
// are not deduplicated mid-flight: two concurrent loads of the same unresolved
// URL may both fetch, and the second result wins; only loads after the first
// completion hit the cache.
package assetcache

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	applog "showroom/internal/log"
)

// Cache is an in-memory URL → decoded image map.
type Cache struct {
	hc  *http.Client
	log *slog.Logger

	mu      sync.Mutex
	entries map[string]image.Image
}

// New creates a cache with its own HTTP client. timeout <= 0 picks a default
// suitable for raster downloads.
func New(timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Cache{
		hc:      &http.Client{Timeout: timeout},
		log:     applog.WithComponent("assetcache"),
		entries: make(map[string]image.Image),
	}
}

// Get returns the decoded raster for url, fetching and decoding on a miss.
// The url must already carry any auth it needs (token as query parameter).
func (c *Cache) Get(ctx context.Context, url string) (image.Image, error) {
	c.mu.Lock()
	img, ok := c.entries[url]
	c.mu.Unlock()
	if ok {
		return img, nil
	}

	img, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[url] = img
	c.mu.Unlock()
	return img, nil
}

// Lookup returns a cached raster without fetching on a miss. Used for keys
// that are populated via Put only, such as early preview renders.
func (c *Cache) Lookup(url string) (image.Image, bool) {
	c.mu.Lock()
	img, ok := c.entries[url]
	c.mu.Unlock()
	return img, ok
}

// Put stores an already-decoded raster, e.g. a server preview render.
func (c *Cache) Put(url string, img image.Image) {
	c.mu.Lock()
	c.entries[url] = img
	c.mu.Unlock()
}

// Invalidate drops one entry; used when a cutout is reprocessed.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

// Clear empties the cache; called on workflow reset.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]image.Image)
	c.mu.Unlock()
}

// Len reports the number of cached rasters.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset: status %d", resp.StatusCode)
	}
	img, format, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	c.log.Debug("asset decoded", slog.String("url", url), slog.String("format", format))
	return img, nil
}
