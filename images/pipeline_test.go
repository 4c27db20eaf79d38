package images

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvr-ai/visiondrop/inference"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"gorgonia.org/tensor"
)

// gradient returns a width x height image with a deterministic color ramp.
func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), uint8((x + y) % 256), 255})
		}
	}
	return img
}

// writeImage encodes img into dir/name using the encoder matching the extension.
func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(name) {
	case ".jpg", ".jpeg":
		require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
	case ".png":
		require.NoError(t, png.Encode(f, img))
	case ".gif":
		require.NoError(t, gif.Encode(f, img, nil))
	case ".bmp":
		require.NoError(t, bmp.Encode(f, img))
	default:
		t.Fatalf("no encoder for %s", name)
	}
	return path
}

func TestDecodeFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file   string
		format ImageFormat
	}{
		{file: "photo.jpg", format: FormatJPEG},
		{file: "photo.png", format: FormatPNG},
		{file: "photo.gif", format: FormatGIF},
		{file: "photo.bmp", format: FormatBMP},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := writeImage(t, dir, tt.file, gradient(40, 30))

			img, source, err := Decode(path)
			require.NoError(t, err)
			assert.Equal(t, tt.format, source.Format)
			assert.Equal(t, 40, source.Width)
			assert.Equal(t, 30, source.Height)
			assert.Positive(t, source.Size)
			assert.Equal(t, tt.file, source.Name())
			assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
		})
	}
}

func TestDecodeRejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	notImage := filepath.Join(dir, "notes.jpg")
	require.NoError(t, os.WriteFile(notImage, []byte("definitely not a jpeg"), 0o644))

	truncated := writeImage(t, dir, "cut.png", gradient(64, 64))
	data, err := os.ReadFile(truncated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(truncated, data[:len(data)/3], 0o644))

	for _, path := range []string{notImage, truncated, filepath.Join(dir, "missing.png"), dir} {
		_, _, err := Decode(path)
		assert.ErrorIs(t, err, ErrImageDecode, path)
	}
}

func TestToRGBDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	src.SetNRGBA(5, 5, color.NRGBA{R: 200, G: 10, B: 20, A: 128})
	src.SetNRGBA(6, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	rgb := ToRGB(src)
	assert.Equal(t, image.Rect(0, 0, 2, 1), rgb.Bounds())
	assert.Equal(t, color.RGBA{R: 200, G: 10, B: 20, A: 255}, rgb.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, rgb.RGBAAt(1, 0))

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 77})
	assert.Equal(t, color.RGBA{R: 77, G: 77, B: 77, A: 255}, ToRGB(gray).RGBAAt(0, 0))
}

func TestThumbnail(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		height   int
		expected image.Point
	}{
		{name: "landscape", width: 1024, height: 768, expected: image.Pt(350, 262)},
		{name: "portrait", width: 100, height: 1000, expected: image.Pt(35, 350)},
		{name: "already small", width: 200, height: 100, expected: image.Pt(200, 100)},
		{name: "exact", width: 350, height: 350, expected: image.Pt(350, 350)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thumb := Thumbnail(gradient(tt.width, tt.height), 350)
			assert.Equal(t, tt.expected, thumb.Bounds().Size())
		})
	}
}

func TestPipelineLoad(t *testing.T) {
	dir := t.TempDir()
	pipeline, err := NewPipeline(DefaultThumbnailSize)
	require.NoError(t, err)

	tests := []struct {
		name   string
		file   string
		width  int
		height int
		config *preprocess.ModelConfig
	}{
		{name: "large jpeg for 224", file: "large.jpg", width: 1024, height: 768, config: preprocess.GetTFConfig("mobilenet", 224, 224)},
		{name: "tiny png for 299", file: "tiny.png", width: 7, height: 3, config: preprocess.GetTFConfig("inception", 299, 299)},
		{name: "bmp for caffe", file: "wide.bmp", width: 640, height: 120, config: preprocess.GetCaffeConfig("resnet", 224, 224)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeImage(t, dir, tt.file, gradient(tt.width, tt.height))
			pre, err := preprocess.NewPreprocessor(tt.config)
			require.NoError(t, err)

			artifacts, err := pipeline.Load(context.Background(), path, pre)
			require.NoError(t, err)

			expected := tensor.Shape{1, tt.config.InputHeight, tt.config.InputWidth, 3}
			assert.True(t, expected.Eq(artifacts.Tensor.Shape()), "got %v", artifacts.Tensor.Shape())
			size := artifacts.ThumbnailSize()
			assert.LessOrEqual(t, size.X, DefaultThumbnailSize)
			assert.LessOrEqual(t, size.Y, DefaultThumbnailSize)
			assert.Equal(t, tt.width, artifacts.Source.Width)
		})
	}
}

func TestPipelineLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "a.png", gradient(10, 10))
	pipeline, err := NewPipeline(50)
	require.NoError(t, err)
	pre, err := preprocess.NewPreprocessor(preprocess.GetTFConfig("m", 8, 8))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipeline.Load(ctx, path, pre)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineLoadWithoutPreprocessor(t *testing.T) {
	path := writeImage(t, t.TempDir(), "a.png", gradient(10, 10))
	pipeline, err := NewPipeline(50)
	require.NoError(t, err)

	_, err = pipeline.Load(context.Background(), path, nil)
	assert.ErrorIs(t, err, inference.ErrInference)
	assert.NotErrorIs(t, err, ErrImageDecode)
}

func TestDebugLine(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "cat.png", gradient(700, 350))
	pipeline, err := NewPipeline(350)
	require.NoError(t, err)
	pre, err := preprocess.NewPreprocessor(preprocess.GetTFConfig("m", 224, 224))
	require.NoError(t, err)

	artifacts, err := pipeline.Load(context.Background(), path, pre)
	require.NoError(t, err)

	line := artifacts.DebugLine(model.InputSpec{Width: 224, Height: 224, Channels: 3})
	assert.True(t, strings.HasPrefix(line, "Image: cat.png ("), line)
	assert.Contains(t, line, "| Size: (350, 175) |")
	assert.Contains(t, line, "| Array shape: (1, 224, 224, 3) |")
	assert.True(t, strings.HasSuffix(line, "| Model input: (None, 224, 224, 3)"), line)
}

func TestNewPipelineRejectsBadSize(t *testing.T) {
	_, err := NewPipeline(0)
	assert.Error(t, err)
}

func TestIsSupportedExtension(t *testing.T) {
	assert.True(t, IsSupportedExtension("a/B.JPG"))
	assert.True(t, IsSupportedExtension("x.webp"))
	assert.False(t, IsSupportedExtension("x.tiff"))
	assert.False(t, IsSupportedExtension("README"))
}
