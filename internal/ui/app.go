package ui

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"framepipe/internal/config"
	"framepipe/internal/ui/cwidget"
	"framepipe/processing/capture"
	"framepipe/processing/capture/webcam"
	processing "framepipe/processing/detector"
	"framepipe/processing/pipeline"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// TransportFactory builds the capture transport for a configuration
// snapshot.
type TransportFactory func(cfg *config.Config) (capture.Transport, error)

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config       *config.Config
	configPath   string
	detector     processing.Detector
	newTransport TransportFactory

	controller *pipeline.Controller
	stopStats  chan struct{}

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	videoCanvas  *canvas.Image
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	statsLabel   *widget.Label
}

func CreateApp(cfg *config.Config, configPath string, det processing.Detector, newTransport TransportFactory) *DetectApp {
	a := app.New()
	w := a.NewWindow(cfg.Display.WindowName)

	w.Resize(fyne.NewSize(1200, 600))

	return &DetectApp{
		fyneApp:      a,
		mainWin:      w,
		config:       cfg,
		configPath:   configPath,
		detector:     det,
		newTransport: newTransport,
	}
}

func (a *DetectApp) Run() {
	a.dynamicSettings = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.SetSource(config.SourceType(s))
		a.refreshSettingsUI(s)
	})

	sourceTypeSelect.SetSelected(string(a.config.GetSource()))

	settingsLabel := widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	a.latencyLabel = widget.NewLabel(formatLatency(0))
	a.fpsLabel = widget.NewLabel(formatFPS(0))
	a.statsLabel = widget.NewLabel(formatStats(processing.Stats{}, 0))

	videoContainer := container.NewBorder(
		container.NewHBox(a.fpsLabel, widget.NewSeparator(), a.latencyLabel, widget.NewSeparator(), a.statsLabel),
		nil, nil, nil,
		a.videoCanvas,
	)

	a.setupConfigSettings()

	sidebar := container.NewVBox(
		settingsLabel,
		widget.NewSeparator(),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
		widget.NewSeparator(),
		container.NewGridWithColumns(2,
			widget.NewButtonWithIcon("Start Processing", theme.MediaPlayIcon(), func() {
				a.StartProcessing(true)
			}),
			widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
				a.StopProcessing()
			}),
		),
	)

	split := container.NewHSplit(
		container.NewVScroll(container.NewPadded(sidebar)),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)

	a.refreshSettingsUI(string(a.config.GetSource()))

	a.mainWin.SetCloseIntercept(func() {
		a.StopProcessing()
		if err := a.saveConfig(); err != nil {
			slog.Warn("ui: saving config", "path", a.configPath, "error", err)
		}
		a.mainWin.Close()
	})

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *DetectApp) saveConfig() error {
	if a.configPath == "" {
		return a.config.SaveByDefault()
	}
	return a.config.Save(a.configPath)
}

// StopProcessing stops the running pipeline, if any, and waits for every
// frame to be released.
func (a *DetectApp) StopProcessing() {
	if a.controller == nil {
		return
	}

	if err := a.controller.Stop(); err != nil {
		slog.Warn("ui: pipeline stopped with error", "error", err)
	}
	close(a.stopStats)
	a.controller = nil
}

func (a *DetectApp) StartProcessing(forceRestart bool) {
	if a.controller != nil && !forceRestart {
		return
	}

	a.StopProcessing()

	snapshot := a.config.Clone()
	if err := snapshot.Validate(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	transport, err := a.newTransport(snapshot)
	if err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	display := newCanvasDisplay(a.videoCanvas, snapshot.GetFPS())
	ctrl := pipeline.New(snapshot, transport, a.detector, display)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		display.Close()
		dialog.ShowError(err, a.mainWin)
		return
	}

	a.controller = ctrl
	a.stopStats = make(chan struct{})
	go a.runStatLoop(ctrl, a.stopStats)
	go a.watchPipeline(ctrl)
}

// watchPipeline tears down a pipeline whose render loop died on its own and
// reports the error.
func (a *DetectApp) watchPipeline(ctrl *pipeline.Controller) {
	<-ctrl.Done()
	if err := ctrl.Err(); err != nil {
		fyne.Do(func() {
			if a.controller == ctrl {
				a.StopProcessing()
			}
			dialog.ShowError(err, a.mainWin)
		})
	}
}

func (a *DetectApp) runStatLoop(ctrl *pipeline.Controller, stop <-chan struct{}) {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			stats := ctrl.Stats()
			queued := ctrl.Queued()
			fyne.Do(func() {
				a.latencyLabel.SetText(formatLatency(stats.Latency))
				a.fpsLabel.SetText(formatFPS(stats.FPS))
				a.statsLabel.SetText(formatStats(stats, queued))
			})
		case <-stop:
			return
		}
	}
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func formatStats(s processing.Stats, queued int) string {
	return fmt.Sprintf("Queued: %d  Inference: %d (%d failed)  Errors: %d",
		queued, s.Dispatched, s.InferenceFailures, s.FrameFailures)
}

func (a *DetectApp) setupConfigSettings() {

	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	current := a.config.Clone()
	modulus := current.DispatchModulus
	threshold := current.Overlay.RenderThreshold

	modulusInput := cwidget.NewIntInput(
		"Detect every N frames",
		"Enter integer",
		int(modulus),
		func(i int) {
			a.config.SetDispatchModulus(uint(i))
		},
	)

	thresholdInput := cwidget.NewFloatInput(
		"Render threshold",
		"0..1",
		math.Round(float64(threshold)*1000)/1000,
		0, 1,
		func(v float64) {
			a.config.SetRenderThreshold(float32(v))
		},
	)

	applayCfg := widget.NewButton("Save config", func() {
		if err := a.saveConfig(); err != nil {
			dialog.ShowError(err, a.mainWin)
			return
		}
		a.StartProcessing(true)
	})

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)
	a.staticSettings.Add(modulusInput)
	a.staticSettings.Add(thresholdInput)

	a.staticSettings.Add(applayCfg)

}

func (a *DetectApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.Objects = nil
	a.StopProcessing()

	switch config.SourceType(sourceType) {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.Clone().Local.Path)

		pathEntry.OnChanged = func(s string) {
			a.config.Update(func(st *config.Settings) { st.Local.Path = s })
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					path := reader.URI().Path()
					reader.Close()
					pathEntry.SetText(path)
				}
			}, a.mainWin)
		})

		loopCheck := widget.NewCheck("Loop", func(b bool) {
			a.config.Update(func(st *config.Settings) { st.Local.Loop = b })
		})
		loopCheck.SetChecked(a.config.Clone().Local.Loop)

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))
		a.dynamicSettings.Add(loopCheck)

	case config.SourceWebcam:
		cameraIDs := map[string]string{}
		deviceSelect := widget.NewSelect([]string{"Loading cameras..."}, func(s string) {
			if id, ok := cameraIDs[s]; ok {
				a.config.Update(func(st *config.Settings) { st.Webcam.DeviceID = id })
			}
		})
		deviceSelect.SetSelected("Loading cameras...")
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)
		a.dynamicSettings.Refresh()

		current := a.config.Clone().Webcam.DeviceID
		go func() {
			devices := webcam.ListCameras()

			fyne.Do(func() {
				if len(devices) == 0 {
					deviceSelect.Options = []string{"No cameras found"}
					deviceSelect.Refresh()
					return
				}

				options := make([]string, 0, len(devices))
				selected := ""
				for _, d := range devices {
					name := d.Label
					if name == "" {
						name = d.ID
					}
					cameraIDs[name] = d.ID
					options = append(options, name)
					if d.ID == current {
						selected = name
					}
				}
				if selected == "" {
					selected = options[0]
				}

				deviceSelect.Options = options
				deviceSelect.Enable()
				deviceSelect.SetSelected(selected)
				deviceSelect.Refresh()
			})
		}()

	case config.SourceRTSP:
		rtsp := a.config.Clone().RTSP

		urlEntry := widget.NewEntry()
		urlEntry.SetPlaceHolder("rtsp://192.168.53.1/live")
		urlEntry.SetText(rtsp.Address)
		urlEntry.OnChanged = func(s string) {
			a.config.Update(func(st *config.Settings) { st.RTSP.Address = s })
		}

		latencyInput := cwidget.NewIntInput(
			"Latency, ms",
			"Enter integer",
			rtsp.LatencyMS,
			func(i int) {
				a.config.Update(func(st *config.Settings) { st.RTSP.LatencyMS = i })
			},
		)
		latencyInput.SetText(strconv.Itoa(rtsp.LatencyMS))

		a.dynamicSettings.Add(widget.NewLabel("Stream URL:"))
		a.dynamicSettings.Add(urlEntry)
		a.dynamicSettings.Add(latencyInput)
	}

	a.dynamicSettings.Refresh()
}
