/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package workflow is the screen state machine and the owned per-image edit
// state for the editing client. It has no UI dependency; the desktop shell
// drives it through explicit command methods and re-renders via the hook.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"showroom/internal/domain"
	applog "showroom/internal/log"
	"showroom/internal/undo"
)

var (
	// ErrInvalidTransition is returned when a navigation command is not legal
	// from the current screen.
	ErrInvalidTransition = errors.New("invalid screen transition")
	// ErrNoReadyImages marks the all-failed dead end: processing finished but
	// nothing survived. Only an explicit return to Upload leaves this state.
	ErrNoReadyImages = errors.New("no images finished successfully")
	// ErrStaleJob guards against applying a poll result from a previous,
	// since-reset job.
	ErrStaleJob = errors.New("stale job id")
	// ErrNoJob is returned when an operation needs a submitted batch.
	ErrNoJob = errors.New("no active job")
)

// Context is the single owned workflow state, passed explicitly to the
// components that need it. The current image index is shared between
// navigation, the settings store and the compositor; every index change
// flushes the active edit parameters first.
type Context struct {
	log *slog.Logger

	screen  Screen
	account domain.AccountStatus

	job    domain.Job
	images []domain.ImageAsset

	backgrounds []domain.Background
	activeBG    string

	settings *SettingsStore
	history  *undo.Manager
	current  int
	active   domain.EditSettings

	allFailed   bool
	failureNote string

	onScreen func(Screen)
}

// New returns a fresh workflow context on the Upload screen.
func New() *Context {
	return &Context{
		log:      applog.WithComponent("workflow"),
		screen:   ScreenUpload,
		settings: NewSettingsStore(),
		history:  undo.NewManager(undo.Config{}),
	}
}

// SetRenderHook registers the callback invoked after every screen change.
// Raster surfaces are not kept in sync across screens, so each transition
// re-renders the destination.
func (w *Context) SetRenderHook(fn func(Screen)) { w.onScreen = fn }

func (w *Context) setScreen(s Screen) {
	if w.screen != s {
		w.log.Info("screen change", slog.String("from", w.screen.String()), slog.String("to", s.String()))
	}
	w.screen = s
	if w.onScreen != nil {
		w.onScreen(s)
	}
}

// Screen returns the active screen.
func (w *Context) Screen() Screen { return w.screen }

// SetAccount stores the server-confirmed account state.
func (w *Context) SetAccount(a domain.AccountStatus) { w.account = a }

// Account returns the last known account state.
func (w *Context) Account() domain.AccountStatus { return w.account }

// SetCatalog stores the background catalog; loaded once per session.
func (w *Context) SetCatalog(bgs []domain.Background) { w.backgrounds = bgs }

// Catalog returns the background catalog.
func (w *Context) Catalog() []domain.Background { return w.backgrounds }

// BeginJob records a successfully submitted batch and moves to Processing.
func (w *Context) BeginJob(job domain.Job) error {
	if w.screen != ScreenUpload {
		return fmt.Errorf("%w: begin job from %s", ErrInvalidTransition, w.screen)
	}
	if job.ID == "" {
		return errors.New("job id is empty")
	}
	w.job = job
	w.images = append([]domain.ImageAsset(nil), job.Images...)
	w.allFailed = false
	w.failureNote = ""
	w.setScreen(ScreenProcessing)
	return nil
}

// JobID returns the active job id ("" when none).
func (w *Context) JobID() string { return w.job.ID }

// Images returns a copy of the local image records.
func (w *Context) Images() []domain.ImageAsset {
	return append([]domain.ImageAsset(nil), w.images...)
}

// MergeImages merges a server snapshot into the local records, keyed by image
// id. A server record fully replaces the local one, except that a terminal
// local status is never regressed by a stale non-terminal server status.
// Records absent from the snapshot stay untouched; ids the client never saw
// are ignored. jobID must match the active job.
func (w *Context) MergeImages(jobID string, server []domain.ImageAsset) error {
	if w.job.ID == "" {
		return ErrNoJob
	}
	if jobID != w.job.ID {
		return fmt.Errorf("%w: got %s want %s", ErrStaleJob, jobID, w.job.ID)
	}
	byID := make(map[string]domain.ImageAsset, len(server))
	for _, img := range server {
		byID[img.ID] = img
	}
	for i, local := range w.images {
		remote, ok := byID[local.ID]
		if !ok {
			continue
		}
		if local.Status.Terminal() && !remote.Status.Terminal() {
			continue
		}
		w.images[i] = remote
	}
	return nil
}

// AllTerminal reports whether every local record reached ready or error.
func (w *Context) AllTerminal() bool {
	for _, img := range w.images {
		if !img.Status.Terminal() {
			return false
		}
	}
	return len(w.images) > 0
}

// FinishProcessing concludes the reconciliation phase: failed images are
// filtered out for good, and when at least one survived the workflow moves on
// to Background, defaulting the active background from the catalog if unset.
// With zero survivors it stays on Processing in the all-failed dead end and
// returns ErrNoReadyImages.
func (w *Context) FinishProcessing() error {
	if w.screen != ScreenProcessing {
		return fmt.Errorf("%w: finish processing from %s", ErrInvalidTransition, w.screen)
	}
	failed := 0
	ready := w.images[:0:0]
	for _, img := range w.images {
		switch img.Status {
		case domain.StatusReady:
			ready = append(ready, img)
		case domain.StatusError:
			failed++
		default:
			return fmt.Errorf("image %s still %s", img.ID, img.Status)
		}
	}
	w.images = ready
	if failed > 0 {
		w.log.Warn("images failed processing", slog.Int("failed", failed), slog.Int("ready", len(ready)))
	}
	if len(ready) == 0 {
		w.allFailed = true
		w.failureNote = "All images failed background removal. Please try different photos."
		return ErrNoReadyImages
	}
	if w.activeBG == "" && len(w.backgrounds) > 0 {
		w.activeBG = w.backgrounds[0].ID
	}
	w.setScreen(ScreenBackground)
	return nil
}

// AllFailed reports the terminal dead-end substate of Processing.
func (w *Context) AllFailed() bool { return w.allFailed }

// FailureNote returns the user-facing message for the dead-end state.
func (w *Context) FailureNote() string { return w.failureNote }

// ActiveBackground returns the session's active background id ("" if unset).
func (w *Context) ActiveBackground() string { return w.activeBG }

// DefaultBackground sets the active background from the catalog's first entry
// if none is chosen yet. Used by the reconciliation loop for the early
// authoritative preview.
func (w *Context) DefaultBackground() string {
	if w.activeBG == "" && len(w.backgrounds) > 0 {
		w.activeBG = w.backgrounds[0].ID
	}
	return w.activeBG
}

// ChooseBackground binds a background id into the session and into the active
// image's settings record (when one exists). Legal on the Background screen.
func (w *Context) ChooseBackground(id string) error {
	if w.screen != ScreenBackground {
		return fmt.Errorf("%w: choose background from %s", ErrInvalidTransition, w.screen)
	}
	if !w.knownBackground(id) {
		return fmt.Errorf("unknown background %q", id)
	}
	w.activeBG = id
	w.active.BackgroundID = id
	if w.settings.Has(w.current) {
		rec, _ := w.settings.Load(w.current)
		rec.BackgroundID = id
		w.settings.Save(w.current, rec)
	}
	return nil
}

func (w *Context) knownBackground(id string) bool {
	for _, b := range w.backgrounds {
		if b.ID == id {
			return true
		}
	}
	return false
}

// EnterPosition moves Background → Position. Requires a non-null active
// background (defaulted from the catalog if unset) and loads the current
// image's settings into the active edit parameters.
func (w *Context) EnterPosition() error {
	if w.screen != ScreenBackground {
		return fmt.Errorf("%w: enter position from %s", ErrInvalidTransition, w.screen)
	}
	if len(w.images) == 0 {
		return ErrNoReadyImages
	}
	if w.DefaultBackground() == "" {
		return errors.New("no background available")
	}
	w.settings.EnsureDefault(w.current, w.activeBG)
	w.active, _ = w.settings.Load(w.current)
	w.setScreen(ScreenPosition)
	return nil
}

// BackToBackground moves Position → Background, flushing the active edits.
func (w *Context) BackToBackground() error {
	if w.screen != ScreenPosition {
		return fmt.Errorf("%w: back to background from %s", ErrInvalidTransition, w.screen)
	}
	w.SaveActive()
	w.setScreen(ScreenBackground)
	return nil
}

// EnterDownload moves Position → Download; always permitted once Position is
// reachable. Flushes the active edits.
func (w *Context) EnterDownload() error {
	if w.screen != ScreenPosition {
		return fmt.Errorf("%w: enter download from %s", ErrInvalidTransition, w.screen)
	}
	w.SaveActive()
	w.setScreen(ScreenDownload)
	return nil
}

// BackToPosition moves Download → Position and reloads the current record.
func (w *Context) BackToPosition() error {
	if w.screen != ScreenDownload {
		return fmt.Errorf("%w: back to position from %s", ErrInvalidTransition, w.screen)
	}
	w.settings.EnsureDefault(w.current, w.activeBG)
	w.active, _ = w.settings.Load(w.current)
	w.setScreen(ScreenPosition)
	return nil
}

// BackToUpload leaves the Processing dead end (or Background) without a full
// reset of the identity; it clears the batch state.
func (w *Context) BackToUpload() {
	w.Reset()
}

// Reset clears the job, image records, settings store and index, returning to
// Upload. The client identity token is untouched.
func (w *Context) Reset() {
	w.job = domain.Job{}
	w.images = nil
	w.settings.Reset()
	w.history.Reset()
	w.current = 0
	w.active = domain.EditSettings{}
	w.activeBG = ""
	w.allFailed = false
	w.failureNote = ""
	w.setScreen(ScreenUpload)
}

// CurrentIndex returns the shared current image index.
func (w *Context) CurrentIndex() int { return w.current }

// CurrentImage returns the image record at the current index.
func (w *Context) CurrentImage() (domain.ImageAsset, bool) {
	if w.current < 0 || w.current >= len(w.images) {
		return domain.ImageAsset{}, false
	}
	return w.images[w.current], true
}

// SelectImage changes the current index. The active edit parameters are
// flushed to the old index first (save-before-mutate), then the new index's
// record is defaulted lazily and loaded.
func (w *Context) SelectImage(index int) error {
	if index < 0 || index >= len(w.images) {
		return fmt.Errorf("image index %d out of range [0,%d)", index, len(w.images))
	}
	if w.settings.Has(w.current) {
		w.settings.Save(w.current, w.active)
	}
	w.current = index
	w.settings.EnsureDefault(index, w.activeBG)
	w.active, _ = w.settings.Load(index)
	return nil
}

// Active returns the in-flight edit parameters for the current image.
func (w *Context) Active() domain.EditSettings { return w.active }

// SetActive replaces the in-flight edit parameters; sliders write here on
// every input event. The prior state is recorded for undo; bursts from a
// single drag coalesce in the history.
func (w *Context) SetActive(s domain.EditSettings) {
	s.Scale = domain.ClampScalePercent(s.Scale)
	if s != w.active {
		w.history.Record(undo.Entry{Index: w.current, Settings: w.active, TS: time.Now()})
	}
	w.active = s
}

// UndoEdit restores the previous edit state for the current image. Returns
// false when there is nothing to undo.
func (w *Context) UndoEdit() bool {
	s, ok := w.history.Undo(w.current, w.active)
	if !ok {
		return false
	}
	w.active = s
	w.settings.Save(w.current, s)
	return true
}

// RedoEdit reverses the most recent UndoEdit for the current image.
func (w *Context) RedoEdit() bool {
	s, ok := w.history.Redo(w.current, w.active)
	if !ok {
		return false
	}
	w.active = s
	w.settings.Save(w.current, s)
	return true
}

// CanUndo reports whether the current image has edit history.
func (w *Context) CanUndo() bool { return w.history.CanUndo(w.current) }

// CanRedo reports whether the current image has undone edits.
func (w *Context) CanRedo() bool { return w.history.CanRedo(w.current) }

// SaveActive writes the in-flight parameters back into the settings record.
func (w *Context) SaveActive() {
	w.settings.Save(w.current, w.active)
}

// Settings exposes the store to the export coordinator (read access).
func (w *Context) Settings() *SettingsStore { return w.settings }
