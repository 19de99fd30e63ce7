// Package webcam captures raw frames from a local camera with mediadevices.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	mdframe "github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"

	"framepipe/processing/capture"
)

type Config struct {
	DeviceID  string
	Width     int
	Height    int
	TargetFPS uint
}

type Camera struct {
	ID    string
	Label string
}

// ListCameras returns the video inputs mediadevices can open.
func ListCameras() []Camera {
	var cams []Camera
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		cams = append(cams, Camera{ID: d.DeviceID, Label: d.Label})
	}
	return cams
}

type Streamer struct {
	cfg Config

	mu      sync.Mutex
	cb      capture.Callbacks
	track   *mediadevices.VideoTrack
	running bool
	done    chan struct{}
}

func New(cfg Config) *Streamer {
	return &Streamer{cfg: cfg}
}

func (s *Streamer) SetCallbacks(cb capture.Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Streamer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track != nil {
		return nil
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormat(mdframe.FormatI420)
			c.Width = prop.Int(s.cfg.Width)
			c.Height = prop.Int(s.cfg.Height)
			if s.cfg.TargetFPS > 0 {
				c.FrameRate = prop.Float(float32(s.cfg.TargetFPS))
			}
			if s.cfg.DeviceID != "" {
				c.DeviceID = prop.String(s.cfg.DeviceID)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("webcam: open device %q: %w", s.cfg.DeviceID, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return errors.New("webcam: no video track")
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return fmt.Errorf("webcam: unexpected track type %T", tracks[0])
	}
	s.track = track

	slog.Info("webcam: device opened", "device", s.cfg.DeviceID, "track", track.ID())
	return nil
}

func (s *Streamer) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil {
		return errors.New("webcam: not connected")
	}
	if s.cb == nil {
		return errors.New("webcam: callbacks not set")
	}
	if s.running {
		return nil
	}
	s.running = true
	s.done = make(chan struct{})

	go s.read(s.track, s.cb, s.done)
	return nil
}

func (s *Streamer) read(track *mediadevices.VideoTrack, cb capture.Callbacks, done chan struct{}) {
	defer close(done)

	reader := track.NewReader(false)
	cb.OnStreamStarted()
	defer cb.OnStreamEnded()

	for {
		img, release, err := reader.Read()
		if err != nil {
			if s.isRunning() {
				slog.Warn("webcam: read failed", "error", err)
			}
			return
		}

		buf := newImageBuffer(img, release)
		cb.OnFrameAvailable(buf)
		buf.Unref()
	}
}

func (s *Streamer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StopStreaming closes the track, which ends the blocked reader. The device
// cannot be restarted without a new Connect.
func (s *Streamer) StopStreaming() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	track, cb, done := s.track, s.cb, s.done
	s.track = nil
	s.mu.Unlock()

	err := track.Close()
	<-done
	cb.OnFlushRequested()
	return err
}

func (s *Streamer) Disconnect() error {
	s.mu.Lock()
	track := s.track
	s.track = nil
	s.mu.Unlock()

	if track == nil {
		return nil
	}
	return track.Close()
}
