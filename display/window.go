// Package display - OpenCV window showing the current thumbnail.
package display

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultTitle is the window title.
const DefaultTitle = "VisionDrop"

// Window shows thumbnails in a native OpenCV window. Every method must be
// called from the goroutine that created the window, which should be locked
// to its OS thread.
type Window struct {
	mu     sync.Mutex
	window *gocv.Window
	frame  gocv.Mat
	size   int
	closed bool
}

// NewWindow opens a window able to hold a size x size thumbnail.
//
// Arguments:
// - title: The window title.
// - size: The largest thumbnail dimension.
//
// Returns:
// - *Window: The open window, showing an empty canvas.
// - error: An error if size is not positive.
func NewWindow(title string, size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid window size: %d", size)
	}
	w := &Window{
		window: gocv.NewWindow(title),
		frame:  gocv.NewMat(),
		size:   size,
	}
	w.window.ResizeWindow(size, size)
	w.Clear()
	return w, nil
}

// Show replaces the displayed image.
func (w *Window) Show(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert thumbnail: %w", err)
	}
	w.replace(mat)
	return nil
}

// Clear shows an empty canvas.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	blank := gocv.NewMatWithSize(w.size, w.size, gocv.MatTypeCV8UC3)
	blank.SetTo(gocv.NewScalar(240, 240, 240, 0))
	gocv.PutText(&blank, "Drop an image", image.Pt(10, w.size/2),
		gocv.FontHersheyPlain, 1.2, color.RGBA{90, 90, 90, 0}, 1)
	w.replace(blank)
}

// Pump processes pending window events. It returns the key pressed, or -1.
func (w *Window) Pump() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return -1
	}
	return w.window.WaitKey(1)
}

// Close destroys the window and releases the frame.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.frame.Close()
	return w.window.Close()
}

func (w *Window) replace(mat gocv.Mat) {
	w.frame.Close()
	w.frame = mat
	w.window.IMShow(w.frame)
}
