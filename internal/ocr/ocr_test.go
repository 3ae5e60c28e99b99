package ocr

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/deckscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "eng", false},
		{"eng", "eng", false},
		{"chi_sim", "chi_sim", false},
		{"en", "eng", false},
		{"de-CH", "deu", false},
		{"eng+de", "eng+deu", false},
		{"!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeLanguage(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinConfidence = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Language = "??"
	assert.Error(t, cfg.Validate())
}

func TestPreprocess(t *testing.T) {
	img := testutil.TextImage("AB")
	out := Preprocess(img)

	assert.Equal(t, minRecognitionWidth, out.Bounds().Dx())

	r, g, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestFitImage(t *testing.T) {
	c := ImageConstraints{MaxWidth: 400, MaxHeight: 300, MinWidth: 100}

	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"within bounds", 200, 100, 200, 100},
		{"too wide", 800, 100, 400, 50},
		{"too tall", 100, 600, 50, 300},
		{"upscaled", 50, 20, 100, 40},
		{"upscale capped by height", 50, 200, 75, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FitImage(image.NewGray(image.Rect(0, 0, tt.w, tt.h)), c)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}

	empty := image.NewGray(image.Rectangle{})
	assert.Same(t, empty, FitImage(empty, c))
}
