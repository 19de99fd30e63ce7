package models

import (
	"fmt"
	"strconv"
)

// Detection is one inference result. Box is normalized [x, y, width, height]
// with the origin at the top-left corner of the frame.
type Detection struct {
	Class      int        `json:"class"`
	Confidence float32    `json:"confidence"`
	Box        [4]float32 `json:"box"`
}

type LabelMap map[int]string

func DefaultLabels() LabelMap {
	return LabelMap{
		1: "animal",
		2: "person",
		3: "vehicle",
	}
}

func (m LabelMap) Name(class int) string {
	if name, ok := m[class]; ok {
		return name
	}
	return strconv.Itoa(class)
}

// InferenceRequest precedes the binary pixel message on the detector socket.
type InferenceRequest struct {
	ID       uint64 `json:"id"`
	Model    string `json:"model"`
	Version  string `json:"version"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
}

type InferenceResponse struct {
	ID         uint64          `json:"id"`
	Detections []WireDetection `json:"detections"`
	Error      string          `json:"error,omitempty"`
}

// WireDetection follows the detector's output format: the category is a
// string id and bbox is normalized [x_min, y_min, width, height].
type WireDetection struct {
	Category string     `json:"category"`
	Conf     float32    `json:"conf"`
	BBox     [4]float32 `json:"bbox"`
}

func (w WireDetection) Detection() (Detection, error) {
	class, err := strconv.Atoi(w.Category)
	if err != nil {
		return Detection{}, fmt.Errorf("bad category %q: %w", w.Category, err)
	}
	return Detection{Class: class, Confidence: w.Conf, Box: w.BBox}, nil
}
