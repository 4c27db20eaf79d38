package images

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
)

// ErrImageDecode is returned when a file cannot be read or decoded as an image.
var ErrImageDecode = errors.New("image decode error")

// Decode reads the file at path and returns it converted to opaque RGB along
// with a description of the source file.
//
// Arguments:
//   - path: The image file path.
//
// Returns:
//   - *image.RGBA: The decoded image with alpha dropped.
//   - Image: The source description.
//   - error: An error wrapping ErrImageDecode if the file is unreadable or corrupt.
func Decode(path string) (*image.RGBA, Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, Image{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if !info.Mode().IsRegular() {
		return nil, Image{}, fmt.Errorf("%w: %s is not a regular file", ErrImageDecode, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, Image{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	defer f.Close()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, Image{}, fmt.Errorf("%w: %s: %v", ErrImageDecode, info.Name(), err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, Image{}, fmt.Errorf("%w: %s has no pixels", ErrImageDecode, info.Name())
	}

	return ToRGB(img), Image{
		Path:   path,
		Format: ImageFormat(format),
		Size:   info.Size(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// ToRGB converts any image to an opaque RGBA image anchored at the origin.
// Transparent pixels keep their color channels and lose their alpha, so a
// translucent red stays red instead of being blended toward black.
func ToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	switch src := img.(type) {
	case *image.RGBA:
		if opaque(src) {
			draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
			return dst
		}
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
		return dst
	}

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

func opaque(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
