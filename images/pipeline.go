package images

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/nvr-ai/visiondrop/inference"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DefaultThumbnailSize is the display bound used when none is configured.
const DefaultThumbnailSize = 350

// Artifacts are the two products derived from a single decode of an image.
type Artifacts struct {
	// Source describes the file that was decoded.
	Source Image
	// Thumbnail is the display image, bounded by the pipeline thumbnail size.
	Thumbnail image.Image
	// Tensor is the normalized model input of shape (1, H, W, C).
	Tensor *tensor.Dense
}

// ThumbnailSize returns the width and height of the thumbnail.
func (a *Artifacts) ThumbnailSize() image.Point {
	return a.Thumbnail.Bounds().Size()
}

// DebugLine summarises the request for display under the results.
//
// Arguments:
//   - input: The input spec of the model the tensor was produced for.
//
// Returns:
//   - string: e.g. "Image: cat.jpg (84kB) | Size: (350, 262) | Array shape: (1, 224, 224, 3) | Model input: (None, 224, 224, 3)".
func (a *Artifacts) DebugLine(input model.InputSpec) string {
	size := a.ThumbnailSize()
	return fmt.Sprintf("Image: %s (%s) | Size: (%d, %d) | Array shape: %s | Model input: %s",
		a.Source.Name(), humanSize(a.Source.Size), size.X, size.Y, FormatShape(a.Tensor.Shape()), input)
}

// Pipeline decodes image files and derives display and model artifacts.
type Pipeline struct {
	thumbnailSize int
}

// NewPipeline creates a pipeline producing thumbnails bounded by thumbnailSize.
func NewPipeline(thumbnailSize int) (*Pipeline, error) {
	if thumbnailSize <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", thumbnailSize)
	}
	return &Pipeline{thumbnailSize: thumbnailSize}, nil
}

// Load decodes the file at path once and derives both artifacts from it. The
// model tensor is resized from the full resolution decode, not the thumbnail.
//
// Arguments:
//   - ctx: Cancels the request between stages.
//   - path: The image file to load.
//   - pre: The preprocessor of the active model.
//
// Returns:
//   - *Artifacts: The thumbnail and the model tensor.
//   - error: An error wrapping ErrImageDecode for unreadable files or images
//     that cannot be turned into a tensor, inference.ErrInference without a
//     preprocessor, or ctx.Err() when cancelled.
func (p *Pipeline) Load(ctx context.Context, path string, pre *preprocess.Preprocessor) (*Artifacts, error) {
	if pre == nil {
		return nil, fmt.Errorf("%w: no preprocessor for %s", inference.ErrInference, path)
	}

	img, source, err := Decode(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumb := Thumbnail(img, p.thumbnailSize)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := pre.Preprocess(img)
	if err != nil {
		return nil, errors.Wrapf(fmt.Errorf("%w: %v", ErrImageDecode, err), "preprocess %s", source.Name())
	}

	return &Artifacts{
		Source:    source,
		Thumbnail: thumb,
		Tensor:    input,
	}, nil
}

// FormatShape formats a tensor shape as a tuple, e.g. "(1, 224, 224, 3)".
func FormatShape(shape tensor.Shape) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
