package cwidget

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
)

func TestIntInputValidator(t *testing.T) {
	test.NewTempApp(t)

	var got int
	input := NewIntInput("FPS", "Enter integer", 30, func(v int) { got = v })

	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 30, false},
		{"25", 25, false},
		{"0", 30, true},
		{"-4", 30, true},
		{"ten", 30, true},
	}
	for _, tt := range tests {
		v, err := input.Validator(tt.in)
		assert.Equal(t, tt.want, v, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}

	input.SetText("12")
	assert.Equal(t, 12, got)
	assert.Equal(t, "FPS: 12", input.labelWidget.Text)

	input.SetText("nope")
	assert.Equal(t, 12, got, "invalid text keeps the last value")
	assert.False(t, input.errorWidget.Hidden)
}

func TestFloatInputValidator(t *testing.T) {
	test.NewTempApp(t)

	var got float64
	input := NewFloatInput("Threshold", "0..1", 0.2, 0, 1, func(v float64) { got = v })
	assert.Equal(t, "Threshold: 0.2", input.labelWidget.Text)

	_, err := input.Validator("1.5")
	assert.Error(t, err)

	input.SetText("0.35")
	assert.InDelta(t, 0.35, got, 1e-9)
	assert.True(t, input.errorWidget.Hidden)
}
