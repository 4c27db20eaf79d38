package models

import (
	"testing"

	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		expected model.Name
		width    int
	}{
		{name: "MobileNetV2", expected: model.ModelNameMobileNetV2, width: 224},
		{name: "mobilenet", expected: model.ModelNameMobileNetV2, width: 224},
		{name: " RESNET50 ", expected: model.ModelNameResNet50, width: 224},
		{name: "resnet", expected: model.ModelNameResNet50, width: 224},
		{name: "inceptionv3", expected: model.ModelNameInceptionV3, width: 299},
		{name: "Inception", expected: model.ModelNameInceptionV3, width: 299},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v.Name)
			assert.Equal(t, tt.width, v.Input.Width)
			assert.Equal(t, tt.width, v.Input.Height)
		})
	}

	_, err := Lookup("vgg16")
	assert.Error(t, err)
}

func TestDefaultIsRegistered(t *testing.T) {
	v, err := Lookup(string(Default))
	require.NoError(t, err)
	assert.Equal(t, Default, v.Name)
}

func TestVariantsProduceTheirInputShape(t *testing.T) {
	for _, v := range All() {
		t.Run(string(v.Name), func(t *testing.T) {
			p, err := v.NewPreprocessor()
			require.NoError(t, err)
			assert.True(t, v.Input.Shape().Eq(p.Shape()), "variant %s shape %v", v.Name, p.Shape())
			assert.NotNil(t, v.Decode)
			assert.NotEmpty(t, v.File)
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"MobileNetV2", "ResNet50", "InceptionV3"}, Names())
}
