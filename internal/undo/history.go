/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-image undo/redo stacks for edit settings on the
// position screen. Slider drags produce a burst of near-identical states, so
// entries within MinInterval coalesce into one instead of flooding the stack.
package undo

import (
	"sync"
	"time"

	"showroom/internal/domain"
)

// Entry is one reversible edit state for an image.
type Entry struct {
	Index    int
	Settings domain.EditSettings
	TS       time.Time
}

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxPerImage limits entries kept per image (0 means unlimited).
	MaxPerImage int
	// MinInterval coalesces entries recorded within the interval for the same
	// image, replacing the previous one instead of pushing a new entry.
	MinInterval time.Duration
}

// Manager provides an in-memory undo/redo stack per image.
// It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-image stacks
	undo map[int][]Entry
	redo map[int][]Entry
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxPerImage <= 0 {
		cfg.MaxPerImage = 100
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[int][]Entry), redo: make(map[int][]Entry)}
}

// Record pushes the state an image had before a mutation. If within
// MinInterval from the last entry for the same image, it replaces the last
// one. Any new change invalidates the redo stack for that image.
func (m *Manager) Record(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[e.Index]
	if n := len(stack); n > 0 && e.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		stack[n-1] = e
		m.undo[e.Index] = stack
		m.redo[e.Index] = nil
		return
	}
	stack = append(stack, e)
	if m.cfg.MaxPerImage > 0 && len(stack) > m.cfg.MaxPerImage {
		stack = append([]Entry{}, stack[len(stack)-m.cfg.MaxPerImage:]...)
	}
	m.undo[e.Index] = stack
	m.redo[e.Index] = nil
}

// Undo pops the most recent prior state for an image. The caller passes the
// current settings, which become the redo target.
func (m *Manager) Undo(index int, current domain.EditSettings) (domain.EditSettings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[index]
	if len(stack) == 0 {
		return domain.EditSettings{}, false
	}
	e := stack[len(stack)-1]
	m.undo[index] = stack[:len(stack)-1]
	m.redo[index] = append(m.redo[index], Entry{Index: index, Settings: current, TS: time.Now()})
	return e.Settings, true
}

// Redo reverses the most recent Undo for an image. The caller passes the
// current settings, which go back onto the undo stack.
func (m *Manager) Redo(index int, current domain.EditSettings) (domain.EditSettings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[index]
	if len(r) == 0 {
		return domain.EditSettings{}, false
	}
	e := r[len(r)-1]
	m.redo[index] = r[:len(r)-1]
	m.undo[index] = append(m.undo[index], Entry{Index: index, Settings: current, TS: time.Now()})
	return e.Settings, true
}

// CanUndo reports whether an image has prior states to return to.
func (m *Manager) CanUndo(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[index]) > 0
}

// CanRedo reports whether an image has undone states to restore.
func (m *Manager) CanRedo(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[index]) > 0
}

// Clear drops the stacks for one image.
func (m *Manager) Clear(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.undo, index)
	delete(m.redo, index)
}

// Reset drops all stacks.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = make(map[int][]Entry)
	m.redo = make(map[int][]Entry)
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (images int, totalEntries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	images = len(m.undo)
	for _, v := range m.undo {
		totalEntries += len(v)
	}
	return images, totalEntries
}
