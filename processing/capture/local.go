package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"framepipe/processing/frame"
)

// LocalFileStreamer decodes a video file with ffmpeg and delivers raw frames
// at the target rate.
type LocalFileStreamer struct {
	path      string
	targetFPS uint
	loop      bool
	pool      *bufferPool

	mu      sync.Mutex
	cb      Callbacks
	running bool

	cmdMu sync.Mutex
	cmd   *exec.Cmd

	stopChan chan struct{}
	done     chan struct{}
}

func NewLocalStreamer(path string, targetFPS uint, width, height int, layout frame.Layout, loop bool) *LocalFileStreamer {
	if targetFPS == 0 {
		targetFPS = standartFps
	}
	return &LocalFileStreamer{
		path:      path,
		targetFPS: targetFPS,
		loop:      loop,
		pool:      newBufferPool(frame.Format{Layout: layout, Width: width, Height: height}),
	}
}

const standartFps uint = 30

func (ls *LocalFileStreamer) SetCallbacks(cb Callbacks) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.cb = cb
}

// Connect checks that the file holds a video stream.
func (ls *LocalFileStreamer) Connect(ctx context.Context) error {
	w, h, err := probeVideoDimensions(ctx, ls.path)
	if err != nil {
		return fmt.Errorf("failed to probe video: %w", err)
	}
	slog.Info("capture: local source ready",
		"path", ls.path,
		"source_size", fmt.Sprintf("%dx%d", w, h),
		"output", ls.pool.format.String(),
	)
	return nil
}

func (ls *LocalFileStreamer) Disconnect() error {
	return nil
}

func (ls *LocalFileStreamer) StartStreaming() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.cb == nil {
		return errors.New("capture: callbacks not set")
	}
	if ls.running {
		return nil
	}
	ls.running = true
	ls.stopChan = make(chan struct{})
	ls.done = make(chan struct{})

	go ls.run(ls.cb)
	return nil
}

func (ls *LocalFileStreamer) StopStreaming() error {
	ls.mu.Lock()
	if !ls.running {
		ls.mu.Unlock()
		return nil
	}
	ls.running = false
	cb := ls.cb
	close(ls.stopChan)
	done := ls.done
	ls.mu.Unlock()

	ls.stopCmdOut()
	<-done

	cb.OnFlushRequested()
	return nil
}

func (ls *LocalFileStreamer) run(cb Callbacks) {
	defer close(ls.done)

	cb.OnStreamStarted()
	for {
		stdout, err := ls.startCmd()
		if err != nil {
			slog.Error("capture: ffmpeg start failed", "path", ls.path, "error", err)
			cb.OnStreamEnded()
			return
		}

		err = ls.pump(stdout, cb)
		ls.stopCmdOut()

		select {
		case <-ls.stopChan:
			cb.OnStreamEnded()
			return
		default:
		}

		if errors.Is(err, io.EOF) && ls.loop {
			slog.Info("capture: end of file, looping", "path", ls.path)
			cb.OnFlushRequested()
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Warn("capture: read error", "path", ls.path, "error", err)
		}
		cb.OnStreamEnded()
		return
	}
}

func (ls *LocalFileStreamer) startCmd() (io.Reader, error) {
	f := ls.pool.format
	args := []string{
		"-i", ls.path,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d:flags=neighbor", ls.targetFPS, f.Width, f.Height),
		"-f", "image2pipe",
		"-pix_fmt", f.Layout.FFmpegPixFmt(),
		"-vcodec", "rawvideo",
		"-",
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	ls.cmdMu.Lock()
	ls.cmd = cmd
	ls.cmdMu.Unlock()
	return stdout, nil
}

// pump delivers frames from r until it is exhausted (io.EOF), fails, or the
// streamer is stopped (nil).
func (ls *LocalFileStreamer) pump(r io.Reader, cb Callbacks) error {
	frameDuration := time.Second / time.Duration(ls.targetFPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ls.stopChan:
			return nil

		case <-ticker.C:
			buf := ls.pool.get()
			if _, err := io.ReadFull(r, buf.data); err != nil {
				buf.Unref()
				if errors.Is(err, io.ErrUnexpectedEOF) {
					return io.EOF
				}
				return err
			}

			cb.OnFrameAvailable(buf)
			buf.Unref()
		}
	}
}

func (ls *LocalFileStreamer) stopCmdOut() {
	ls.cmdMu.Lock()
	defer ls.cmdMu.Unlock()

	if ls.cmd != nil && ls.cmd.Process != nil {
		ls.cmd.Process.Kill()
		ls.cmd.Wait()
	}
	ls.cmd = nil
}

type probeData struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(ctx context.Context, path string) (uint16, uint16, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
