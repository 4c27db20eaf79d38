// Package preprocess - Converts decoded images into normalized model input tensors.
package preprocess

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne NormalizationType = iota
	// NormalizeStandardize applies per-channel mean and std normalization.
	NormalizeStandardize
)

// String returns the name of the normalization type.
func (n NormalizationType) String() string {
	switch n {
	case NormalizeMinusOneToOne:
		return "minus-one-to-one"
	case NormalizeStandardize:
		return "standardize"
	default:
		return fmt.Sprintf("normalization(%d)", int(n))
	}
}

// ColorMode defines the channel color order written into the tensor.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (caffe style models).
	ColorModeBGR
)

// ModelConfig defines preprocessing configuration for a specific model.
// Tensors are always laid out Height-Width-Channel, as Keras exports expect.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels. Only 3 is supported.
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization, in tensor channel order.
	MeanValues []float32
	// StdValues for standardization, in tensor channel order.
	StdValues []float32
	// ColorMode defines the color order (RGB, BGR).
	ColorMode ColorMode
	// Interpolation is the resampling filter used to reach the input size.
	Interpolation resize.InterpolationFunction
}

// Shape returns the batched tensor shape the configuration produces.
func (c *ModelConfig) Shape() tensor.Shape {
	return tensor.Shape{1, c.InputHeight, c.InputWidth, c.InputChannels}
}

// Validate checks that the configuration can produce a tensor.
func (c *ModelConfig) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("invalid input size %dx%d for %s", c.InputWidth, c.InputHeight, c.Name)
	}
	if c.InputChannels != 3 {
		return fmt.Errorf("unsupported channel count %d for %s", c.InputChannels, c.Name)
	}
	switch c.NormalizationType {
	case NormalizeMinusOneToOne:
	case NormalizeStandardize:
		if len(c.MeanValues) != c.InputChannels || len(c.StdValues) != c.InputChannels {
			return fmt.Errorf("standardization for %s needs %d mean and std values", c.Name, c.InputChannels)
		}
		for _, std := range c.StdValues {
			if std == 0 {
				return fmt.Errorf("zero std value for %s", c.Name)
			}
		}
	default:
		return fmt.Errorf("unsupported normalization %s for %s", c.NormalizationType, c.Name)
	}
	return nil
}

// Preprocessor handles image preprocessing for classifier models.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
// - error if the configuration is unusable.
//
// @example
//
//	preprocessor, err := NewPreprocessor(GetTFConfig("mobilenet_v2", 224, 224))
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("preprocess config is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid preprocess config")
	}
	return &Preprocessor{config: config}, nil
}

// Shape returns the tensor shape Preprocess produces.
func (p *Preprocessor) Shape() tensor.Shape {
	return p.config.Shape()
}

// Preprocess resizes img to the exact model input size and converts it into a
// normalized batched tensor. The aspect ratio is not preserved.
//
// Arguments:
// - img: The decoded source image.
//
// Returns:
// - The (1, H, W, 3) float32 tensor.
// - error if the image is empty.
func (p *Preprocessor) Preprocess(img image.Image) (*tensor.Dense, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	resized := resize.Resize(uint(p.config.InputWidth), uint(p.config.InputHeight), img, p.config.Interpolation)

	data := p.imageToTensor(resized)
	p.normalize(data)

	return tensor.New(tensor.WithShape(p.config.Shape()...), tensor.WithBacking(data)), nil
}

// imageToTensor writes the resized image into a float32 slice in HWC layout
// and the configured color order. Values stay in the 0-255 range.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	width := p.config.InputWidth
	height := p.config.InputHeight
	data := make([]float32, width*height*p.config.InputChannels)

	bounds := img.Bounds()
	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r8, g8, b8 := float32(r>>8), float32(g>>8), float32(b>>8)

			if p.config.ColorMode == ColorModeBGR {
				r8, b8 = b8, r8
			}
			data[idx] = r8
			data[idx+1] = g8
			data[idx+2] = b8
			idx += 3
		}
	}
	return data
}

// normalize applies the configured normalization in place.
func (p *Preprocessor) normalize(data []float32) {
	switch p.config.NormalizationType {
	case NormalizeMinusOneToOne:
		for i := range data {
			data[i] = (data[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]
			for i := c; i < len(data); i += channels {
				data[i] = (data[i] - mean) / std
			}
		}
	}
}

// GetTFConfig returns the "tf" mode configuration used by MobileNetV2 and
// InceptionV3: RGB input scaled to [-1, 1].
//
// Arguments:
// - name: The model name.
// - width: The model input width.
// - height: The model input height.
//
// Returns:
// - A configured ModelConfig.
func GetTFConfig(name string, width, height int) *ModelConfig {
	return &ModelConfig{
		Name:              name,
		InputWidth:        width,
		InputHeight:       height,
		InputChannels:     3,
		NormalizationType: NormalizeMinusOneToOne,
		ColorMode:         ColorModeRGB,
		Interpolation:     resize.Bicubic,
	}
}

// GetCaffeConfig returns the "caffe" mode configuration used by ResNet50:
// BGR input, zero-centered by the ImageNet channel means, without scaling.
//
// Arguments:
// - name: The model name.
// - width: The model input width.
// - height: The model input height.
//
// Returns:
// - A configured ModelConfig.
func GetCaffeConfig(name string, width, height int) *ModelConfig {
	return &ModelConfig{
		Name:              name,
		InputWidth:        width,
		InputHeight:       height,
		InputChannels:     3,
		NormalizationType: NormalizeStandardize,
		MeanValues:        []float32{103.939, 116.779, 123.68},
		StdValues:         []float32{1, 1, 1},
		ColorMode:         ColorModeBGR,
		Interpolation:     resize.Bicubic,
	}
}
