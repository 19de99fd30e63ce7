// Package source picks the capture transport named by the configuration.
package source

import (
	"fmt"

	"framepipe/internal/config"
	"framepipe/processing/capture"
	"framepipe/processing/capture/rtsp"
	"framepipe/processing/capture/webcam"
)

func NewStreamer(t *config.Config) (capture.Transport, error) {
	layout := t.PixelLayout()

	switch t.GetSource() {
	case config.SourceWebcam:
		return webcam.New(webcam.Config{
			DeviceID:  t.Webcam.DeviceID,
			Width:     t.GetWidth(),
			Height:    t.GetHeight(),
			TargetFPS: t.GetFPS(),
		}), nil
	case config.SourceLocal:
		return capture.NewLocalStreamer(t.Local.Path, t.GetFPS(), t.GetWidth(), t.GetHeight(), layout, t.Local.Loop), nil
	case config.SourceRTSP:
		return rtsp.New(rtsp.Config{
			Address:   t.RTSP.Address,
			Launch:    t.RTSP.Launch,
			LatencyMS: uint(max(t.RTSP.LatencyMS, 0)),
			Layout:    layout,
			Width:     t.GetWidth(),
			Height:    t.GetHeight(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown source: %s", t.ActiveSource)
	}
}
