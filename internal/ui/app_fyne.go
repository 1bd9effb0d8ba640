//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"showroom/internal/api"
	"showroom/internal/config"
	"showroom/internal/crash"
	"showroom/internal/domain"
	"showroom/internal/identity"
	applog "showroom/internal/log"
	"showroom/internal/poll"
	"showroom/internal/session"
	"showroom/internal/telemetry"
	"showroom/internal/workflow"
)

const maxBatchSize = 20

// Run starts the Fyne-based desktop shell: a five-screen wizard over the
// session command layer. All network work runs off the UI goroutine and
// reports back through fyne.Do.
func Run() error {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := identity.Ensure()
	if err != nil {
		return err
	}
	sess, err := session.New(cfg, token)
	if err != nil {
		return err
	}
	exportDir, _ := cfg.ExportDir()
	defer func() { crash.Recover(sess.Workflow, exportDir) }()
	telemetry.InitDefault()

	fyneApp := app.NewWithID("showroom")
	w := fyneApp.NewWindow("Showroom Studio")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1100)
	winH := prefs.IntWithFallback("window.height", 760)
	if winW < 900 {
		winW = 900
	}
	if winH < 640 {
		winH = 640
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	content := container.NewStack()

	// --- Upload screen -----------------------------------------------------

	var pending []api.Upload
	pendingNames := []string{}
	pendingList := widget.NewList(
		func() int { return len(pendingNames) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) { o.(*widget.Label).SetText(pendingNames[i]) },
	)
	countLabel := widget.NewLabel("0 photos selected")
	startBtn := widget.NewButton("Create Showroom Photos", nil)
	startBtn.Disable()
	watermarkNote := widget.NewLabel("")

	refreshPending := func() {
		pendingNames = pendingNames[:0]
		for _, u := range pending {
			pendingNames = append(pendingNames, u.Filename)
		}
		pendingList.Refresh()
		countLabel.SetText(fmt.Sprintf("%d photos selected (max %d)", len(pending), maxBatchSize))
		if len(pending) > 0 && len(pending) <= maxBatchSize {
			startBtn.Enable()
		} else {
			startBtn.Disable()
		}
	}

	addBtn := widget.NewButton("Add Photo…", func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil || rc == nil {
				return
			}
			defer func() { _ = rc.Close() }()
			if len(pending) >= maxBatchSize {
				status.SetText(fmt.Sprintf("Batch limit is %d photos.", maxBatchSize))
				return
			}
			data, err := io.ReadAll(rc)
			if err != nil {
				dialog.ShowError(fmt.Errorf("read %s: %w", rc.URI().Name(), err), w)
				return
			}
			pending = append(pending, api.Upload{Filename: rc.URI().Name(), Data: data})
			refreshPending()
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".jpg", ".jpeg", ".png", ".webp"}))
		fd.Show()
	})
	clearBtn := widget.NewButton("Clear", func() {
		pending = pending[:0]
		refreshPending()
	})

	uploadScreen := container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Upload your car photos", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			widget.NewLabel("Backgrounds are replaced automatically; you pick the scene next."),
			watermarkNote,
			widget.NewSeparator(),
		),
		container.NewVBox(countLabel, container.NewGridWithColumns(3, addBtn, clearBtn, startBtn)),
		nil, nil,
		pendingList,
	)

	// --- Processing screen -------------------------------------------------

	progressBar := widget.NewProgressBar()
	progressLabel := widget.NewLabel("Uploading…")
	earlyPreview := canvas.NewImageFromImage(nil)
	earlyPreview.FillMode = canvas.ImageFillContain
	earlyPreview.SetMinSize(fyne.NewSize(480, 300))
	failureLabel := widget.NewLabel("")
	failureLabel.Wrapping = fyne.TextWrapWord

	processingScreen := container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Working on your photos", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			progressBar,
			progressLabel,
			failureLabel,
			widget.NewSeparator(),
		),
		nil, nil, nil,
		earlyPreview,
	)

	// --- Background screen -------------------------------------------------

	bgNames := []string{}
	bgIDs := []string{}
	selectedBG := -1
	bgList := widget.NewList(
		func() int { return len(bgNames) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) { o.(*widget.Label).SetText(bgNames[i]) },
	)
	bgThumb := canvas.NewImageFromImage(nil)
	bgThumb.FillMode = canvas.ImageFillContain
	bgThumb.SetMinSize(fyne.NewSize(450, 280))
	bgDescription := widget.NewLabel("")
	bgDescription.Wrapping = fyne.TextWrapWord
	bgContinueBtn := widget.NewButton("Continue", nil)

	loadBGThumb := func(id string) {
		var thumbURL string
		for _, b := range sess.Workflow.Catalog() {
			if b.ID == id {
				thumbURL = b.ThumbURL
				bgDescription.SetText(b.Description)
				break
			}
		}
		if thumbURL == "" {
			return
		}
		go func(u string) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			img, err := sess.Cache.Get(ctx, sess.API.ResolveAsset(u))
			fyne.Do(func() {
				if err != nil {
					l.Warn("background thumb failed", slog.Any("err", err))
					return
				}
				bgThumb.Image = img
				bgThumb.Refresh()
			})
		}(thumbURL)
	}

	refreshBackgrounds := func() {
		bgNames = bgNames[:0]
		bgIDs = bgIDs[:0]
		for _, b := range sess.Workflow.Catalog() {
			bgNames = append(bgNames, b.Name)
			bgIDs = append(bgIDs, b.ID)
		}
		bgList.Refresh()
		active := sess.Workflow.ActiveBackground()
		for i, id := range bgIDs {
			if id == active {
				selectedBG = i
				bgList.Select(i)
				loadBGThumb(id)
				break
			}
		}
	}
	bgList.OnSelected = func(id widget.ListItemID) {
		selectedBG = int(id)
		if selectedBG >= 0 && selectedBG < len(bgIDs) {
			if err := sess.Workflow.ChooseBackground(bgIDs[selectedBG]); err != nil {
				l.Warn("choose background rejected", slog.Any("err", err))
				return
			}
			telemetry.Event("background_chosen", map[string]any{"background": bgIDs[selectedBG]})
			loadBGThumb(bgIDs[selectedBG])
		}
	}

	backgroundScreen := container.NewBorder(
		widget.NewLabelWithStyle("Choose a scene", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewLabel(""), bgContinueBtn),
		bgList, nil,
		container.NewVBox(bgThumb, bgDescription),
	)

	// --- Position screen ---------------------------------------------------

	positionPreview := canvas.NewImageFromImage(nil)
	positionPreview.FillMode = canvas.ImageFillContain
	positionPreview.SetMinSize(fyne.NewSize(640, 400))
	imageIndexLabel := widget.NewLabel("")

	const previewW, previewH = 900, 560

	renderPosition := func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			img, err := sess.LocalPreview(ctx, previewW, previewH)
			fyne.Do(func() {
				if err != nil {
					l.Warn("local preview failed", slog.Any("err", err))
					status.SetText("Preview unavailable.")
					return
				}
				positionPreview.Image = img
				positionPreview.Refresh()
			})
		}()
	}

	xSlider := widget.NewSlider(-float64(previewW)/2, float64(previewW)/2)
	ySlider := widget.NewSlider(-float64(previewH)/2, float64(previewH)/2)
	rotateSlider := widget.NewSlider(-45, 45)
	scaleSlider := widget.NewSlider(domain.MinScalePercent, domain.MaxScalePercent)
	shadowCheck := widget.NewCheck("Drop shadow", nil)

	loadSliders := func() {
		s := sess.Workflow.Active()
		xSlider.SetValue(s.X)
		ySlider.SetValue(s.Y)
		rotateSlider.SetValue(s.Rotate)
		scaleSlider.SetValue(float64(s.Scale))
		shadowCheck.SetChecked(s.Shadow)
		total := len(sess.Workflow.Images())
		imageIndexLabel.SetText(fmt.Sprintf("Image %d of %d", sess.Workflow.CurrentIndex()+1, total))
	}

	applySliders := func() {
		s := sess.Workflow.Active()
		s.X = xSlider.Value
		s.Y = ySlider.Value
		s.Rotate = rotateSlider.Value
		s.Scale = int(scaleSlider.Value)
		s.Shadow = shadowCheck.Checked
		sess.Workflow.SetActive(s)
		renderPosition()
	}
	xSlider.OnChanged = func(float64) { applySliders() }
	ySlider.OnChanged = func(float64) { applySliders() }
	rotateSlider.OnChanged = func(float64) { applySliders() }
	scaleSlider.OnChanged = func(float64) { applySliders() }
	shadowCheck.OnChanged = func(bool) { applySliders() }

	resetBtn := widget.NewButton("Reset", func() {
		sess.Workflow.SetActive(domain.DefaultSettings(sess.Workflow.Active().BackgroundID))
		loadSliders()
		renderPosition()
	})
	undoBtn := widget.NewButton("Undo", func() {
		if sess.Workflow.UndoEdit() {
			loadSliders()
			renderPosition()
		}
	})
	redoBtn := widget.NewButton("Redo", func() {
		if sess.Workflow.RedoEdit() {
			loadSliders()
			renderPosition()
		}
	})
	prevBtn := widget.NewButton("‹ Prev", func() {
		if err := sess.Workflow.SelectImage(sess.Workflow.CurrentIndex() - 1); err != nil {
			return
		}
		loadSliders()
		renderPosition()
	})
	nextBtn := widget.NewButton("Next ›", func() {
		if err := sess.Workflow.SelectImage(sess.Workflow.CurrentIndex() + 1); err != nil {
			return
		}
		loadSliders()
		renderPosition()
	})
	positionBackBtn := widget.NewButton("Back", nil)
	positionContinueBtn := widget.NewButton("Continue", nil)

	positionScreen := container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Position your car", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			container.NewHBox(prevBtn, imageIndexLabel, nextBtn),
		),
		container.NewVBox(
			container.NewGridWithColumns(2, widget.NewLabel("Horizontal"), xSlider),
			container.NewGridWithColumns(2, widget.NewLabel("Vertical"), ySlider),
			container.NewGridWithColumns(2, widget.NewLabel("Rotate"), rotateSlider),
			container.NewGridWithColumns(2, widget.NewLabel("Size"), scaleSlider),
			container.NewHBox(shadowCheck, undoBtn, redoBtn, resetBtn),
			container.NewGridWithColumns(2, positionBackBtn, positionContinueBtn),
		),
		nil, nil,
		positionPreview,
	)

	// --- Download screen ---------------------------------------------------

	finalPreview := canvas.NewImageFromImage(nil)
	finalPreview.FillMode = canvas.ImageFillContain
	finalPreview.SetMinSize(fyne.NewSize(640, 400))
	downloadIndexLabel := widget.NewLabel("")
	upgradeNote := widget.NewLabel("")
	upgradeNote.Wrapping = fyne.TextWrapWord

	renderFinal := func() {
		status.SetText("Rendering preview…")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			img, err := sess.ServerPreview(ctx)
			fyne.Do(func() {
				if err != nil {
					l.Warn("server preview failed", slog.Any("err", err))
					status.SetText("Preview failed; the download will still render server-side.")
					return
				}
				finalPreview.Image = img
				finalPreview.Refresh()
				status.SetText("Ready")
				total := len(sess.Workflow.Images())
				downloadIndexLabel.SetText(fmt.Sprintf("Image %d of %d", sess.Workflow.CurrentIndex()+1, total))
			})
		}()
	}

	formatSelect := widget.NewSelect([]string{domain.FormatJPG, domain.FormatPNG}, func(v string) {
		sess.Export.SetFormat(v)
	})
	formatSelect.SetSelected(sess.Export.Format())

	openURL := func(raw string) {
		u, err := url.Parse(raw)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if err := fyneApp.OpenURL(u); err != nil {
			dialog.ShowError(err, w)
		}
	}

	downloadOneBtn := widget.NewButton("Download This Image", func() {
		u, err := sess.DownloadURL()
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		telemetry.Event("download_single", map[string]any{"format": sess.Export.Format()})
		openURL(u)
	})
	downloadAllBtn := widget.NewButton("Download All (ZIP)", nil)
	downloadAllBtn.OnTapped = func() {
		downloadAllBtn.Disable()
		status.SetText("Exporting archive…")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			path, err := sess.ExportAll(ctx)
			fyne.Do(func() {
				downloadAllBtn.Enable()
				if err != nil {
					status.SetText("Export failed.")
					dialog.ShowError(err, w)
					return
				}
				status.SetText("Ready")
				telemetry.Event("download_zip", map[string]any{"count": len(sess.Workflow.Images()), "format": sess.Export.Format()})
				dialog.ShowInformation("Export complete", "Saved to:\n"+path, w)
			})
		}()
	}

	checkoutEntry := widget.NewEntry()
	checkoutEntry.SetPlaceHolder("Checkout session id from the return page")
	upgradeBtn := widget.NewButton("Upgrade (remove watermark)…", nil)
	confirmPaidBtn := widget.NewButton("I've completed payment", nil)
	var refreshPaidUI func()
	upgradeBtn.OnTapped = func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			u, err := sess.StartCheckout(ctx)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				telemetry.Event("checkout_started", nil)
				openURL(u)
			})
		}()
	}
	confirmPaidBtn.OnTapped = func() {
		sid := strings.TrimSpace(checkoutEntry.Text)
		if sid == "" {
			dialog.ShowInformation("Checkout", "Paste the session id shown after payment.", w)
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := sess.ConfirmCheckout(ctx, sid)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				refreshPaidUI()
				renderFinal()
			})
		}()
	}
	paidRow := container.NewVBox(upgradeNote, upgradeBtn, checkoutEntry, confirmPaidBtn)

	refreshPaidUI = func() {
		acct := sess.Workflow.Account()
		if acct.Paid {
			upgradeNote.SetText("")
			paidRow.Hide()
			watermarkNote.SetText("")
			return
		}
		watermarkNote.SetText("Free downloads carry a watermark.")
		if acct.StripeConfigured {
			upgradeNote.SetText("Downloads are watermarked. Upgrade to export clean images.")
			paidRow.Show()
		} else {
			upgradeNote.SetText("Downloads are watermarked.")
			upgradeBtn.Hide()
			checkoutEntry.Hide()
			confirmPaidBtn.Hide()
			paidRow.Show()
		}
	}

	downloadBackBtn := widget.NewButton("Back", nil)
	startOverBtn := widget.NewButton("Start Over", nil)
	downloadPrevBtn := widget.NewButton("‹ Prev", func() {
		if err := sess.Workflow.SelectImage(sess.Workflow.CurrentIndex() - 1); err != nil {
			return
		}
		renderFinal()
	})
	downloadNextBtn := widget.NewButton("Next ›", func() {
		if err := sess.Workflow.SelectImage(sess.Workflow.CurrentIndex() + 1); err != nil {
			return
		}
		renderFinal()
	})

	downloadScreen := container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Download", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			container.NewHBox(downloadPrevBtn, downloadIndexLabel, downloadNextBtn),
		),
		container.NewVBox(
			container.NewGridWithColumns(2, widget.NewLabel("Format"), formatSelect),
			container.NewGridWithColumns(2, downloadOneBtn, downloadAllBtn),
			paidRow,
			container.NewGridWithColumns(2, downloadBackBtn, startOverBtn),
		),
		nil, nil,
		finalPreview,
	)

	// --- Screen switching --------------------------------------------------

	screens := map[workflow.Screen]fyne.CanvasObject{
		workflow.ScreenUpload:     uploadScreen,
		workflow.ScreenProcessing: processingScreen,
		workflow.ScreenBackground: backgroundScreen,
		workflow.ScreenPosition:   positionScreen,
		workflow.ScreenDownload:   downloadScreen,
	}
	showScreen := func(s workflow.Screen) {
		obj, ok := screens[s]
		if !ok {
			return
		}
		content.Objects = []fyne.CanvasObject{obj}
		content.Refresh()
		switch s {
		case workflow.ScreenUpload:
			refreshPending()
		case workflow.ScreenProcessing:
			failureLabel.SetText(sess.Workflow.FailureNote())
		case workflow.ScreenBackground:
			refreshBackgrounds()
		case workflow.ScreenPosition:
			loadSliders()
			renderPosition()
		case workflow.ScreenDownload:
			refreshPaidUI()
			renderFinal()
		}
		l.Info("screen shown", slog.String("screen", s.String()))
	}
	sess.Workflow.SetRenderHook(func(s workflow.Screen) {
		fyne.Do(func() { showScreen(s) })
	})

	bgContinueBtn.OnTapped = func() {
		if err := sess.Workflow.EnterPosition(); err != nil {
			dialog.ShowError(err, w)
		}
	}
	positionBackBtn.OnTapped = func() {
		if err := sess.Workflow.BackToBackground(); err != nil {
			dialog.ShowError(err, w)
		}
	}
	positionContinueBtn.OnTapped = func() {
		if err := sess.Workflow.EnterDownload(); err != nil {
			dialog.ShowError(err, w)
		}
	}
	downloadBackBtn.OnTapped = func() {
		if err := sess.Workflow.BackToPosition(); err != nil {
			dialog.ShowError(err, w)
		}
	}
	startOverBtn.OnTapped = func() {
		dialog.ShowConfirm("Start over?", "This discards the current batch and all edits.", func(ok bool) {
			if !ok {
				return
			}
			pending = pending[:0]
			sess.ResetAll()
			telemetry.Event("session_reset", nil)
		}, w)
	}

	startBtn.OnTapped = func() {
		files := append([]api.Upload(nil), pending...)
		startBtn.Disable()
		progressBar.SetValue(0)
		progressLabel.SetText("Uploading…")
		failureLabel.SetText("")
		earlyPreview.Image = nil
		earlyPreview.Refresh()
		telemetry.Event("batch_started", map[string]any{"count": len(files)})
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			state, err := sess.Upload(ctx, files, func(p poll.Progress) {
				fyne.Do(func() {
					progressBar.SetValue(float64(p.Percent) / 100)
					progressLabel.SetText(p.Message)
					maybeShowEarlyPreview(sess, earlyPreview)
				})
			})
			fyne.Do(func() {
				startBtn.Enable()
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				switch state {
				case poll.StateAllFailed:
					failureLabel.SetText(sess.Workflow.FailureNote())
					progressLabel.SetText("Processing failed.")
				case poll.StatePartialReady:
					status.SetText("Some photos could not be processed and were skipped.")
					pending = pending[:0]
				default:
					status.SetText("Ready")
					pending = pending[:0]
				}
			})
		}()
	}

	showScreen(workflow.ScreenUpload)

	w.SetContent(container.NewBorder(nil, status, nil, nil, content))
	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		telemetry.Event("app_closed", nil)
	})

	// Bootstrap in the background so the window appears immediately.
	status.SetText("Connecting…")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		err := sess.Bootstrap(ctx)
		fyne.Do(func() {
			if err != nil {
				l.Error("bootstrap failed", slog.Any("err", err))
				status.SetText("Could not reach the processing service.")
				dialog.ShowError(err, w)
				return
			}
			status.SetText("Ready")
			refreshPaidUI()
		})
	}()

	w.ShowAndRun()
	return nil
}

// maybeShowEarlyPreview swaps in the cached first-ready server render once it
// exists. Cheap to call on every progress tick. The workflow context is owned
// by the poll goroutine while an upload runs, so this reads only the
// session's synchronized preview handoff.
func maybeShowEarlyPreview(sess *session.Session, target *canvas.Image) {
	if target.Image != nil {
		return
	}
	if cached, ok := sess.EarlyPreview(); ok {
		target.Image = cached
		target.Refresh()
	}
}
