// Package model - Definitions for classifier variants, their inputs and predictions.
package model

import (
	"fmt"

	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"gorgonia.org/tensor"
)

// Family is the family of models, which fixes the label set they decode to.
type Family string

const (
	// ModelFamilyImageNet is the 1000 class ILSVRC-2012 label set.
	ModelFamilyImageNet Family = "imagenet"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameMobileNetV2 is the name of the MobileNetV2 model.
	ModelNameMobileNetV2 Name = "MobileNetV2"
	// ModelNameResNet50 is the name of the ResNet50 model.
	ModelNameResNet50 Name = "ResNet50"
	// ModelNameInceptionV3 is the name of the InceptionV3 model.
	ModelNameInceptionV3 Name = "InceptionV3"
)

// InputSpec is the spatial input a model expects, batch dimension excluded.
type InputSpec struct {
	Width    int
	Height   int
	Channels int
}

// Shape returns the batched NHWC tensor shape for the input spec.
func (s InputSpec) Shape() tensor.Shape {
	return tensor.Shape{1, s.Height, s.Width, s.Channels}
}

// String formats the input spec the way Keras prints an input shape.
func (s InputSpec) String() string {
	return fmt.Sprintf("(None, %d, %d, %d)", s.Height, s.Width, s.Channels)
}

// Prediction is one decoded class and its probability.
type Prediction struct {
	// Index is the position of the class in the raw output vector.
	Index int
	// ClassID is the dataset identifier of the class (a WordNet id for ImageNet).
	ClassID string
	// Label is the human-readable class name.
	Label string
	// Probability is the model confidence in [0, 1].
	Probability float32
}

// Decoder maps a raw output vector to the k most probable classes.
type Decoder func(output []float32, classes *OutputClassSet, k int) ([]Prediction, error)

// Variant binds a model choice to its input spec, preprocessing and decoding.
type Variant struct {
	// Name is the user facing model name.
	Name Name
	// Aliases are additional accepted spellings of Name.
	Aliases []string
	// Family selects the label set.
	Family Family
	// File is the ONNX file name inside the models directory.
	File string
	// Input is the spatial size the model was exported with.
	Input InputSpec
	// Preprocessing builds a fresh preprocessing configuration for Input.
	Preprocessing func(spec InputSpec) *preprocess.ModelConfig
	// Decode turns the output vector into ranked predictions.
	Decode Decoder
}

// NewPreprocessor returns a preprocessor producing tensors of the variant's input shape.
func (v Variant) NewPreprocessor() (*preprocess.Preprocessor, error) {
	if v.Preprocessing == nil {
		return nil, fmt.Errorf("model %s has no preprocessing", v.Name)
	}
	return preprocess.NewPreprocessor(v.Preprocessing(v.Input))
}

// String returns the model name.
func (v Variant) String() string {
	return string(v.Name)
}
