// Package models - registry for the selectable classifier variants.
package models

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
)

// Default is the variant selected at startup when nothing else is configured.
const Default = model.ModelNameMobileNetV2

var variants = []model.Variant{
	{
		Name:    model.ModelNameMobileNetV2,
		Aliases: []string{"mobilenet", "mobilenet_v2", "mobilenetv2"},
		Family:  model.ModelFamilyImageNet,
		File:    "mobilenet_v2.onnx",
		Input:   model.InputSpec{Width: 224, Height: 224, Channels: 3},
		Preprocessing: func(spec model.InputSpec) *preprocess.ModelConfig {
			return preprocess.GetTFConfig(string(model.ModelNameMobileNetV2), spec.Width, spec.Height)
		},
		Decode: model.DecodeTopK,
	},
	{
		Name:    model.ModelNameResNet50,
		Aliases: []string{"resnet", "resnet50", "resnet_50"},
		Family:  model.ModelFamilyImageNet,
		File:    "resnet50.onnx",
		Input:   model.InputSpec{Width: 224, Height: 224, Channels: 3},
		Preprocessing: func(spec model.InputSpec) *preprocess.ModelConfig {
			return preprocess.GetCaffeConfig(string(model.ModelNameResNet50), spec.Width, spec.Height)
		},
		Decode: model.DecodeTopK,
	},
	{
		Name:    model.ModelNameInceptionV3,
		Aliases: []string{"inception", "inception_v3", "inceptionv3"},
		Family:  model.ModelFamilyImageNet,
		File:    "inception_v3.onnx",
		Input:   model.InputSpec{Width: 299, Height: 299, Channels: 3},
		Preprocessing: func(spec model.InputSpec) *preprocess.ModelConfig {
			return preprocess.GetTFConfig(string(model.ModelNameInceptionV3), spec.Width, spec.Height)
		},
		Decode: model.DecodeTopK,
	},
}

// Lookup resolves a model name or alias to its variant.
//
// Names are matched case-insensitively, so "resnet50", "ResNet50" and "resnet"
// all resolve to the ResNet50 variant.
//
// Arguments:
//   - name: The user supplied model name.
//
// Returns:
//   - model.Variant: The matching variant.
//   - error: An error if no variant carries that name.
//
// Example:
//
// ```go
//
//	variant, err := Lookup("inception")
//	if err != nil {
//	    log.Fatalf("unknown model: %v", err)
//	}
//	fmt.Println(variant.Input) // (None, 299, 299, 3)
//
// ```
func Lookup(name string) (model.Variant, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, v := range variants {
		if strings.ToLower(string(v.Name)) == key {
			return v, nil
		}
		for _, alias := range v.Aliases {
			if alias == key {
				return v, nil
			}
		}
	}
	return model.Variant{}, fmt.Errorf("unsupported model name: %s", name)
}

// All returns every registered variant in menu order.
func All() []model.Variant {
	out := make([]model.Variant, len(variants))
	copy(out, variants)
	return out
}

// Names returns the canonical names of every registered variant.
func Names() []string {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v.Name)
	}
	return names
}
