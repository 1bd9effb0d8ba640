/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package poll reconciles asynchronous server-side background-removal jobs
// into the local image records. The loop is strictly sequential: one fetch,
// one merge, one progress report, then a fixed sleep; it ends when every
// image reaches a terminal status. A transient fetch failure is fatal for the
// whole upload attempt and propagates to the caller.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"showroom/internal/domain"
	applog "showroom/internal/log"
)

// DefaultInterval is the fixed delay between poll iterations.
const DefaultInterval = 900 * time.Millisecond

// uploadPhaseWeight is the fixed share of overall progress attributed to the
// already-finished upload phase; the removal phase fills the remaining 40.
const uploadPhaseWeight = 55

// State is the reconciliation outcome.
type State int

const (
	StatePolling State = iota
	StateAllReady
	StatePartialReady
	StateAllFailed
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateAllReady:
		return "all-ready"
	case StatePartialReady:
		return "partial-ready"
	case StateAllFailed:
		return "all-failed"
	default:
		return "unknown"
	}
}

// Progress is the blended progress report for the Processing screen.
type Progress struct {
	Percent int
	Message string
}

// Target is the slice of workflow state the reconciler needs: the job id
// guard, the merge operation and the merged records.
type Target interface {
	JobID() string
	MergeImages(jobID string, images []domain.ImageAsset) error
	Images() []domain.ImageAsset
	AllTerminal() bool
}

// Fetcher supplies the current server-side job state; satisfied by the API
// client.
type Fetcher interface {
	JobStatus(ctx context.Context, jobID string) (domain.Job, error)
}

// Reconciler drives the poll loop for one job.
type Reconciler struct {
	fetch    Fetcher
	target   Target
	interval time.Duration
	log      *slog.Logger

	// OnProgress receives the blended progress after each merge.
	OnProgress func(Progress)
	// OnFirstReady is invoked once, when the first ready image is discovered
	// mid-loop; the session uses it to issue the early authoritative preview.
	OnFirstReady func(img domain.ImageAsset)
}

// New builds a reconciler. interval <= 0 picks DefaultInterval.
func New(fetch Fetcher, target Target, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		fetch:    fetch,
		target:   target,
		interval: interval,
		log:      applog.WithComponent("poll"),
	}
}

// Run polls until every image in the job is terminal, then classifies the
// outcome. The returned error is non-nil only for fatal conditions (fetch
// failure, stale job, cancellation); per-image errors are an outcome, not an
// error.
func (r *Reconciler) Run(ctx context.Context) (State, error) {
	jobID := r.target.JobID()
	if jobID == "" {
		return StatePolling, fmt.Errorf("poll: no job to reconcile")
	}
	firstReadySeen := false

	for {
		job, err := r.fetch.JobStatus(ctx, jobID)
		if err != nil {
			return StatePolling, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		if err := r.target.MergeImages(jobID, job.Images); err != nil {
			return StatePolling, err
		}

		ready, failed, total := r.tally()
		r.report(ready, total)

		if !firstReadySeen && ready > 0 {
			firstReadySeen = true
			if r.OnFirstReady != nil {
				if img, ok := r.firstReady(); ok {
					r.OnFirstReady(img)
				}
			}
		}

		if r.target.AllTerminal() {
			state := classify(ready, failed)
			r.log.Info("reconciliation finished",
				slog.String("job", jobID),
				slog.String("state", state.String()),
				slog.Int("ready", ready),
				slog.Int("failed", failed))
			return state, nil
		}

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return StatePolling, ctx.Err()
		case <-timer.C:
		}
	}
}

func classify(ready, failed int) State {
	switch {
	case ready == 0:
		return StateAllFailed
	case failed > 0:
		return StatePartialReady
	default:
		return StateAllReady
	}
}

func (r *Reconciler) tally() (ready, failed, total int) {
	images := r.target.Images()
	for _, img := range images {
		switch img.Status {
		case domain.StatusReady:
			ready++
		case domain.StatusError:
			failed++
		}
	}
	return ready, failed, len(images)
}

func (r *Reconciler) firstReady() (domain.ImageAsset, bool) {
	for _, img := range r.target.Images() {
		if img.Status == domain.StatusReady {
			return img, true
		}
	}
	return domain.ImageAsset{}, false
}

func (r *Reconciler) report(ready, total int) {
	if r.OnProgress == nil || total == 0 {
		return
	}
	pct := uploadPhaseWeight + int(math.Round(40*float64(ready)/float64(total)))
	r.OnProgress(Progress{
		Percent: pct,
		Message: fmt.Sprintf("Processing %d/%d…", ready, total),
	})
}
