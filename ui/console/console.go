// Package console - Terminal front end: reads commands and dropped paths,
// runs the controller on its loop goroutine and renders its output.
package console

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	units "github.com/docker/go-units"
	"github.com/nvr-ai/visiondrop/controller"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/nvr-ai/visiondrop/util"
	"github.com/sirupsen/logrus"
)

// pumpInterval is how often the thumbnail window processes its events.
const pumpInterval = 30 * time.Millisecond

// Actions are the controller operations the console triggers.
type Actions interface {
	LoadModel(name string)
	Open(path string)
	Speak()
	Clear()
	State() controller.State
	Session() controller.Session
	SpeechAvailable() bool
}

// Input supplies typed lines. *readline.Instance satisfies it.
type Input interface {
	Readline() (string, error)
}

// Thumbnailer shows thumbnails outside the terminal.
type Thumbnailer interface {
	Show(img image.Image) error
	Clear()
	Pump() int
	Close() error
}

// Options configures a console.
type Options struct {
	// Out receives all user-visible output.
	Out io.Writer
	// Log receives diagnostic logging.
	Log logrus.FieldLogger
	// Window optionally shows thumbnails.
	Window Thumbnailer
	// Dir is the directory listed by the file picker.
	Dir string
}

// Console is the interactive loop. It implements controller.View and
// controller.Dispatcher.
type Console struct {
	out    io.Writer
	log    logrus.FieldLogger
	window Thumbnailer
	dir    string

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	outMu   sync.Mutex
	entries []util.ImageFile

	status        string
	busy          bool
	speechEnabled bool
}

// New creates a console.
func New(opts Options) (*Console, error) {
	if opts.Out == nil {
		return nil, errors.New("console needs an output writer")
	}
	if opts.Log == nil {
		return nil, errors.New("console needs a logger")
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return &Console{
		out:    opts.Out,
		log:    opts.Log,
		window: opts.Window,
		dir:    dir,
		wake:   make(chan struct{}, 1),
		status: controller.StatusReady,
	}, nil
}

// Post queues fn to run on the loop goroutine. It never blocks.
func (c *Console) Post(fn func()) {
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run reads input until quit, end of input or ctx is done. It must be
// called on the goroutine that owns the controller.
func (c *Console) Run(ctx context.Context, actions Actions, input Input) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			line, err := input.Readline()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-stop:
				return
			}
		}
	}()

	var pump <-chan time.Time
	if c.window != nil {
		ticker := time.NewTicker(pumpInterval)
		defer ticker.Stop()
		pump = ticker.C
	}

	c.println(helpText)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
			c.drain()
		case <-pump:
			c.window.Pump()
		case err := <-readErr:
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		case line := <-lines:
			if quit := c.Handle(actions, line); quit {
				return nil
			}
			c.drain()
		}
	}
}

// Handle executes one input line and reports whether the user asked to quit.
func (c *Console) Handle(actions Actions, line string) bool {
	cmd := ParseCommand(line)
	switch cmd.Name {
	case "":
		if cmd.Arg == "" {
			return false
		}
		path, err := ParseDrop(cmd.Arg)
		if err != nil {
			c.Notify(err)
			return false
		}
		actions.Open(path)
	case CmdOpen:
		c.open(actions, cmd.Arg)
	case CmdModel:
		if cmd.Arg == "" {
			c.printf("Active model: %s (available: %s)\n", modelName(actions.Session()), strings.Join(models.Names(), ", "))
			return false
		}
		actions.LoadModel(cmd.Arg)
	case CmdSpeak:
		if !actions.SpeechAvailable() {
			c.println("Speech is not available")
			return false
		}
		actions.Speak()
	case CmdClear:
		actions.Clear()
	case CmdStatus:
		c.printStatus(actions)
	case CmdHelp:
		c.println(helpText)
	case CmdQuit, CmdExit:
		return true
	}
	return false
}

// Entries returns the names from the last picker listing.
func (c *Console) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Warn prints a warning that needs no action.
func (c *Console) Warn(msg string) {
	c.printf("Warning: %s\n", msg)
}

// ShowThumbnail implements controller.View.
func (c *Console) ShowThumbnail(img image.Image) {
	b := img.Bounds()
	c.printf("Thumbnail: %dx%d\n", b.Dx(), b.Dy())
	if c.window == nil {
		return
	}
	if err := c.window.Show(img); err != nil {
		c.log.WithError(err).Warn("Thumbnail not shown")
	}
}

// ClearThumbnail implements controller.View.
func (c *Console) ClearThumbnail() {
	if c.window != nil {
		c.window.Clear()
	}
}

// ShowResults implements controller.View.
func (c *Console) ShowResults(text string) {
	if text != "" {
		c.println(text)
	}
}

// SetDebug implements controller.View.
func (c *Console) SetDebug(text string) {
	if text != "" {
		c.println(text)
	}
}

// SetStatus implements controller.View.
func (c *Console) SetStatus(text string) {
	c.status = text
	c.printf("Status: %s\n", text)
}

// SetBusy implements controller.View.
func (c *Console) SetBusy(busy bool) {
	c.busy = busy
}

// SetSpeechEnabled implements controller.View.
func (c *Console) SetSpeechEnabled(enabled bool) {
	c.speechEnabled = enabled
}

// Notify implements controller.View.
func (c *Console) Notify(err error) {
	if errors.Is(err, ErrInvalidDrop) {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Error: An error occurred: %v\n", err)
}

func (c *Console) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		fn()
	}
}

func (c *Console) open(actions Actions, arg string) {
	if arg == "" {
		c.listEntries()
		return
	}

	if n, err := strconv.Atoi(arg); err == nil {
		c.mu.Lock()
		empty := len(c.entries) == 0
		c.mu.Unlock()
		if empty {
			if err := c.refresh(); err != nil {
				c.Notify(err)
				return
			}
		}
		c.mu.Lock()
		if n < 1 || n > len(c.entries) {
			count := len(c.entries)
			c.mu.Unlock()
			c.printf("No image %d (%d listed)\n", n, count)
			return
		}
		path := c.entries[n-1].Path
		c.mu.Unlock()
		actions.Open(path)
		return
	}

	path, err := ParseDrop(arg)
	if err != nil {
		c.printf("File not found: %s\n", arg)
		return
	}
	actions.Open(path)
}

func (c *Console) refresh() error {
	files, err := util.ListImageFiles(c.dir)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = files
	c.mu.Unlock()
	return nil
}

func (c *Console) listEntries() {
	if err := c.refresh(); err != nil {
		c.Notify(err)
		return
	}
	c.mu.Lock()
	files := append([]util.ImageFile(nil), c.entries...)
	c.mu.Unlock()

	if len(files) == 0 {
		c.printf("No images in %s\n", c.dir)
		return
	}
	for i, f := range files {
		c.printf("%3d. %s (%s)\n", i+1, f.Name, units.HumanSize(float64(f.Size)))
	}
}

func (c *Console) printStatus(actions Actions) {
	session := actions.Session()
	path := session.ImagePath
	if path == "" {
		path = "none"
	}
	c.printf("State: %s | Model: %s | Image: %s | Speech: %s | Status: %s\n",
		actions.State(), modelName(session), path, onOff(c.speechEnabled), c.status)
}

func (c *Console) println(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, text)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func modelName(s controller.Session) string {
	if s.Model == "" {
		return "none"
	}
	return string(s.Model)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
