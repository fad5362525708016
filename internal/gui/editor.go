// Package gui is the fyne preview window: it draws the scenes resolved by
// the compositor and exposes transport, editing and export controls.
package gui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sort"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/compositor"
	"github.com/kikiluvv/splice/internal/config"
	"github.com/kikiluvv/splice/internal/export"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/project"
	"github.com/kikiluvv/splice/internal/textrender"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

// Options configure the preview window.
type Options struct {
	Project   *project.Project
	Exporter  *export.Exporter
	Extractor FrameExtractor
	TempDir   string
	Preview   config.PreviewConfig
}

type editor struct {
	logger  zerolog.Logger
	opts    Options
	tl      *timeline.Timeline
	player  *compositor.Player
	sel     *timeline.Selection
	session *export.Session
	frames  *frameCache
	pending chan compositor.Scene

	window   fyne.Window
	stage    *fyne.Container
	slider   *widget.Slider
	timeText *widget.Label
	playBtn  *widget.Button
	clipList *widget.Select
	progress *widget.ProgressBar

	clipLabels map[string]string
	seeking    bool
	job        *export.Job
}

// Run opens the preview window and blocks until it is closed.
func Run(ctx context.Context, logger zerolog.Logger, opts Options) error {
	if opts.Project == nil {
		return fmt.Errorf("no project loaded")
	}
	logger = logging.WithComponent(logger, "gui")
	a := app.NewWithID("splice")

	cacheDir, err := os.MkdirTemp(opts.TempDir, "splice-preview-*")
	if err != nil {
		return fmt.Errorf("failed to create preview cache: %w", err)
	}
	defer os.RemoveAll(cacheDir)

	text := textrender.New(logger)
	defer text.Close()

	cw, ch := export.Resolution(opts.Project.Aspect)
	e := &editor{
		logger:     logger,
		opts:       opts,
		tl:         opts.Project.Timeline,
		session:    export.NewSession(opts.Exporter),
		frames:     newFrameCache(logger, opts.Extractor, text, cacheDir, opts.Preview.FrameRate, uint(opts.Preview.Width), uint(opts.Preview.Height), cw, ch),
		pending:    make(chan compositor.Scene, 1),
		clipLabels: make(map[string]string),
	}

	e.player = compositor.NewPlayer(logger, e.tl, compositor.NewClock(nil), compositor.PlayerOptions{
		FrameRate:      opts.Preview.FrameRate,
		DriftTolerance: opts.Preview.DriftTolerance,
		OnFrame:        e.onFrame,
	})
	defer e.player.Close()
	e.tl.SetPlayhead(e.player)

	e.sel = timeline.NewSelection(e.tl)
	defer e.sel.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.renderLoop(ctx)

	e.window = a.NewWindow("splice preview")
	e.window.Resize(fyne.NewSize(opts.Preview.Width+40, opts.Preview.Height+180))
	e.window.SetContent(e.build())

	unsubscribe := e.tl.Subscribe(func(timeline.Event) {
		fyne.Do(e.refreshTimeline)
	})
	defer unsubscribe()

	e.refreshTimeline()
	e.player.Seek(0)
	e.window.ShowAndRun()

	if e.job != nil {
		e.job.Cancel()
		e.job.Wait()
	}
	return nil
}

func (e *editor) build() fyne.CanvasObject {
	bg := canvas.NewRectangle(color.Black)
	bg.SetMinSize(fyne.NewSize(e.opts.Preview.Width, e.opts.Preview.Height))
	e.stage = container.NewStack(bg)

	e.timeText = widget.NewLabel(util.FormatDuration(0))
	e.slider = widget.NewSlider(0, 1)
	e.slider.Step = 0.01
	e.slider.OnChanged = func(v float64) {
		if e.seeking {
			return
		}
		e.player.Seek(util.FromSeconds(v))
	}

	e.playBtn = widget.NewButton("Play", func() {
		e.player.Toggle()
		e.updatePlayButton()
	})

	e.clipList = widget.NewSelect(nil, func(label string) {
		for id, l := range e.clipLabels {
			if l == label {
				e.sel.Select(id)
				return
			}
		}
		e.sel.Select("")
	})
	e.clipList.PlaceHolder = "Select a clip"

	splitBtn := widget.NewButton("Split at playhead", func() {
		id, ok := e.sel.Selected()
		if !ok {
			return
		}
		if _, _, err := e.tl.Split(id, e.player.Now()); err != nil {
			if errors.Is(err, timeline.ErrInvalidOperation) {
				e.logger.Debug().Err(err).Msg("split ignored")
				return
			}
			dialog.ShowError(err, e.window)
		}
	})

	removeBtn := widget.NewButton("Remove", func() {
		id, ok := e.sel.Selected()
		if !ok {
			return
		}
		if err := e.tl.Remove(id); err != nil {
			dialog.ShowError(err, e.window)
		}
	})

	e.progress = widget.NewProgressBar()
	exportBtn := widget.NewButton("Export", e.startExport)
	cancelBtn := widget.NewButton("Cancel export", func() {
		if e.job != nil {
			e.job.Cancel()
		}
	})

	transport := container.NewBorder(nil, nil, e.playBtn, e.timeText, e.slider)
	editing := container.NewBorder(nil, nil, nil, container.NewHBox(splitBtn, removeBtn), e.clipList)
	exporting := container.NewBorder(nil, nil, nil, container.NewHBox(exportBtn, cancelBtn), e.progress)

	return container.NewBorder(nil, container.NewVBox(transport, editing, exporting), nil, nil, e.stage)
}

// onFrame runs on the player goroutine; only the latest scene is kept.
func (e *editor) onFrame(s compositor.Scene) {
	select {
	case <-e.pending:
	default:
	}
	select {
	case e.pending <- s:
	default:
	}
}

// renderLoop turns scenes into images off the UI thread.
func (e *editor) renderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-e.pending:
			layers := e.layers(ctx, s)
			fyne.Do(func() { e.show(s, layers) })
		}
	}
}

// layers resolves the images to stack, bottom to top.
func (e *editor) layers(ctx context.Context, s compositor.Scene) []image.Image {
	var out []image.Image
	if s.Background != nil {
		img, err := e.frames.videoFrame(ctx, *s.Background, s.Time)
		if err != nil {
			e.logger.Debug().Err(err).Str("clip", s.Background.ID).Msg("frame unavailable")
		} else {
			out = append(out, img)
		}
	}
	for _, c := range s.Texts {
		img, err := e.frames.textLayer(c)
		if err != nil {
			e.logger.Warn().Err(err).Str("clip", c.ID).Msg("text render failed")
			continue
		}
		out = append(out, img)
	}
	for _, c := range s.Images {
		img, err := e.frames.still(c)
		if err != nil {
			e.logger.Warn().Err(err).Str("clip", c.ID).Msg("image unavailable")
			continue
		}
		out = append(out, img)
	}
	return out
}

func (e *editor) show(s compositor.Scene, layers []image.Image) {
	objects := []fyne.CanvasObject{e.stage.Objects[0]}
	for _, img := range layers {
		ci := canvas.NewImageFromImage(img)
		ci.FillMode = canvas.ImageFillContain
		objects = append(objects, ci)
	}
	e.stage.Objects = objects
	e.stage.Refresh()

	e.timeText.SetText(util.FormatDuration(s.Time))
	e.seeking = true
	e.slider.SetValue(s.Time.Seconds())
	e.seeking = false
	e.updatePlayButton()
}

func (e *editor) updatePlayButton() {
	if e.player.State() == compositor.Playing {
		e.playBtn.SetText("Pause")
		return
	}
	e.playBtn.SetText("Play")
}

// refreshTimeline updates the slider range and the clip list.
func (e *editor) refreshTimeline() {
	total := e.tl.TotalDuration()
	e.slider.Max = total.Seconds()
	if e.slider.Max <= 0 {
		e.slider.Max = 1
	}
	e.slider.Refresh()

	clips := e.tl.Clips()
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].Start < clips[j].Start })

	e.clipLabels = make(map[string]string, len(clips))
	labels := make([]string, 0, len(clips))
	for _, c := range clips {
		l := clipLabel(c)
		e.clipLabels[c.ID] = l
		labels = append(labels, l)
	}
	e.clipList.SetOptions(labels)

	if id, ok := e.sel.Selected(); ok {
		e.clipList.SetSelected(e.clipLabels[id])
	} else {
		e.clipList.ClearSelected()
	}
}

func clipLabel(c timeline.Clip) string {
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := c.Source
	if c.Text != nil {
		name = fmt.Sprintf("%q", c.Text.Text)
	}
	return fmt.Sprintf("%s %s %s-%s %s", c.Kind, id, util.FormatDuration(c.Start), util.FormatDuration(c.End()), name)
}

func (e *editor) startExport() {
	if e.opts.Exporter == nil {
		dialog.ShowError(errors.New("export is not configured"), e.window)
		return
	}
	dialog.ShowFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, e.window)
			return
		}
		if w == nil {
			return
		}

		e.progress.SetValue(0)
		job, err := e.session.Start(context.Background(), e.tl, e.opts.Project.Aspect, w, func(f float64) {
			fyne.Do(func() { e.progress.SetValue(f) })
		})
		if err != nil {
			w.Close()
			dialog.ShowError(err, e.window)
			return
		}
		e.job = job

		go func() {
			start := time.Now()
			res, err := job.Wait()
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			fyne.Do(func() {
				switch {
				case errors.Is(err, export.ErrCancelled):
					e.progress.SetValue(0)
				case err != nil:
					dialog.ShowError(err, e.window)
				default:
					dialog.ShowInformation("Export finished",
						fmt.Sprintf("%dx%d, %s in %s", res.Width, res.Height, util.FormatDuration(res.Duration), time.Since(start).Round(time.Second)),
						e.window)
				}
			})
		}()
	}, e.window)
}
