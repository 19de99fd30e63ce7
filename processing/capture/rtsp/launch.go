package rtsp

import (
	"fmt"
	"strings"

	"framepipe/processing/frame"
)

const sinkName = "sink"

type Config struct {
	Address   string
	LatencyMS uint
	// Launch replaces the generated source part of the pipeline. It must end
	// in raw video; the caps filter and appsink are appended.
	Launch string
	Layout frame.Layout
	Width  int
	Height int
}

func (c Config) format() frame.Format {
	return frame.Format{Layout: c.Layout, Width: c.Width, Height: c.Height}
}

// launchLine builds the gst-launch description of the receive pipeline.
func launchLine(c Config) string {
	src := strings.TrimSpace(c.Launch)
	if src == "" {
		src = fmt.Sprintf("rtspsrc location=%s latency=%d ! decodebin ! videoconvert ! videoscale",
			c.Address, c.LatencyMS)
	}
	caps := fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d", c.Layout, c.Width, c.Height)
	return fmt.Sprintf("%s ! %s ! appsink name=%s sync=false", src, caps, sinkName)
}
