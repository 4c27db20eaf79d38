// Package controller - Routes user actions to the image pipeline, classifier
// and speaker, and owns the current session.
package controller

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/visiondrop/images"
	"github.com/nvr-ai/visiondrop/inference"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/nvr-ai/visiondrop/models/model"
	"github.com/nvr-ai/visiondrop/models/model/preprocess"
	"github.com/nvr-ai/visiondrop/profiler"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

// Status texts shown by the view.
const (
	StatusReady             = "Ready"
	StatusComplete          = "Recognition complete"
	StatusError             = "Error occurred"
	StatusModelError        = "Error loading model"
	StatusSpeaking          = "Speaking results..."
	StatusAlreadySpeaking   = "Already speaking"
	statusLoadingFormat     = "Loading %s model..."
	statusLoadedFormat      = "%s model loaded successfully"
	statusProcessingFormat  = "Processing %s..."
	statusSpeechErrorFormat = "TTS Error: %v"
)

// shutdownGrace bounds how long Close waits for background work.
const shutdownGrace = 2 * time.Second

// View renders controller output. All methods are called on the loop goroutine.
type View interface {
	ShowThumbnail(img image.Image)
	ClearThumbnail()
	ShowResults(text string)
	SetDebug(text string)
	SetStatus(text string)
	SetBusy(busy bool)
	SetSpeechEnabled(enabled bool)
	// Notify reports a failed operation. It is called once per failure.
	Notify(err error)
}

// Dispatcher runs closures on the loop goroutine. Post must not block.
type Dispatcher interface {
	Post(fn func())
}

// Classifier is the model adapter.
type Classifier interface {
	Load(ctx context.Context, variant model.Variant) (model.InputSpec, error)
	Classify(ctx context.Context, input *tensor.Dense) ([]model.Prediction, error)
	Active() (model.Variant, *preprocess.Preprocessor, error)
}

// Pipeline derives the thumbnail and model tensor from an image file.
type Pipeline interface {
	Load(ctx context.Context, path string, pre *preprocess.Preprocessor) (*images.Artifacts, error)
}

// Speaker reads predictions aloud.
type Speaker interface {
	Available() bool
	Speak(ctx context.Context, predictions []model.Prediction) error
}

// Options wires the controller's collaborators.
type Options struct {
	Classifier Classifier
	Pipeline   Pipeline
	Speaker    Speaker
	View       View
	Dispatcher Dispatcher
	Log        logrus.FieldLogger
	Profiler   *profiler.Profiler
}

// Controller owns the session and the state machine. Its methods must be
// called on the loop goroutine; background work reports back through the
// dispatcher, so the session is only ever written there.
type Controller struct {
	classifier Classifier
	pipeline   Pipeline
	speaker    Speaker
	view       View
	dispatcher Dispatcher
	log        logrus.FieldLogger
	profiler   *profiler.Profiler

	ctx      context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	state    State
	session  Session
	speaking bool

	// Single slot task: starting a task cancels the previous one and bumps
	// generation so its late result is discarded.
	generation   uint64
	cancelTask   context.CancelFunc
	loading      bool
	inflightPath string
	pendingPath  string
}

// New creates a controller in the Idle state.
func New(opts Options) (*Controller, error) {
	if opts.Classifier == nil || opts.Pipeline == nil || opts.View == nil || opts.Dispatcher == nil {
		return nil, errors.New("controller needs a classifier, pipeline, view and dispatcher")
	}
	if opts.Log == nil {
		return nil, errors.New("controller needs a logger")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		classifier: opts.Classifier,
		pipeline:   opts.Pipeline,
		speaker:    opts.Speaker,
		view:       opts.View,
		dispatcher: opts.Dispatcher,
		log:        opts.Log,
		profiler:   opts.Profiler,
		ctx:        ctx,
		shutdown:   cancel,
		state:      Idle,
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Session returns a copy of the current session.
func (c *Controller) Session() Session {
	s := c.session
	if s.Predictions != nil {
		s.Predictions = append([]model.Prediction(nil), s.Predictions...)
	}
	return s
}

// SpeechAvailable reports whether results can be spoken right now.
func (c *Controller) SpeechAvailable() bool {
	return c.speaker != nil && c.speaker.Available() && c.session.HasResults()
}

// LoadModel makes the named model active. When an image is loaded it is
// classified again with the new model once loading completes; predictions
// from the previous model are dropped as soon as the new one is active.
//
// Arguments:
//   - name: A model name or alias.
func (c *Controller) LoadModel(name string) {
	variant, err := models.Lookup(name)
	if err != nil {
		c.view.SetStatus(StatusModelError)
		c.view.Notify(err)
		return
	}

	log := c.log.WithField("model", variant.Name)
	if c.inflightPath != "" {
		c.pendingPath = c.inflightPath
		c.inflightPath = ""
	}
	c.loading = true
	c.setState(Processing)
	c.view.SetBusy(true)
	c.view.SetStatus(fmt.Sprintf(statusLoadingFormat, variant.Name))

	c.start(func(ctx context.Context) func() {
		spec, err := c.classifier.Load(ctx, variant)
		return func() {
			c.loading = false
			c.view.SetBusy(false)
			if err != nil {
				c.restoreState()
				if isCancellation(err) {
					return
				}
				log.WithError(err).Error("Model load failed")
				c.view.SetStatus(StatusModelError)
				c.view.Notify(err)
				c.resumePending()
				return
			}

			if c.session.Model != variant.Name && c.session.HasResults() {
				// Old predictions belong to the previous model; the image is rerun below.
				c.session.Predictions = nil
				c.view.ShowResults("")
				c.view.SetSpeechEnabled(false)
			}
			c.session.Model = variant.Name
			c.restoreState()
			c.view.SetStatus(fmt.Sprintf(statusLoadedFormat, variant.Name))
			c.view.SetDebug(fmt.Sprintf("Model: %s | Input shape: %s", variant.Name, spec))
			log.WithField("input", spec.String()).Info("Model active")

			if c.pendingPath == "" && c.session.ImagePath != "" {
				c.pendingPath = c.session.ImagePath
			}
			c.resumePending()
		}
	})
}

// Open classifies the image at path with the active model. A request made
// while a model is loading runs once loading finishes.
//
// Arguments:
//   - path: The image file.
func (c *Controller) Open(path string) {
	if c.loading {
		c.pendingPath = path
		c.view.SetStatus(fmt.Sprintf(statusProcessingFormat, filepath.Base(path)))
		return
	}

	requestID := uuid.New().String()
	log := c.log.WithFields(logrus.Fields{"request_id": requestID, "image": path})

	c.inflightPath = path
	c.setState(Processing)
	c.view.SetBusy(true)
	c.view.SetStatus(fmt.Sprintf(statusProcessingFormat, filepath.Base(path)))

	c.start(func(ctx context.Context) func() {
		res, err := c.classify(ctx, path)
		return func() {
			c.inflightPath = ""
			c.view.SetBusy(false)
			if err != nil {
				if isCancellation(err) {
					c.restoreState()
					return
				}
				log.WithError(err).Error("Classification failed")
				c.fail(err)
				return
			}

			c.session = Session{
				ImagePath:   path,
				Predictions: res.predictions,
				Model:       res.variant.Name,
			}
			c.view.ShowThumbnail(res.artifacts.Thumbnail)
			c.view.ShowResults(FormatResults(res.predictions))
			c.view.SetDebug(res.artifacts.DebugLine(res.variant.Input))
			c.view.SetSpeechEnabled(c.SpeechAvailable())
			c.view.SetStatus(StatusComplete)
			c.setState(ResultsReady)

			top := res.predictions[0]
			log.WithFields(logrus.Fields{
				"model":       res.variant.Name,
				"label":       top.Label,
				"probability": top.Probability,
			}).Info("Image classified")
		}
	})
}

// Speak reads the current predictions aloud in the background. It does
// nothing without results or a speech engine.
func (c *Controller) Speak() {
	if !c.SpeechAvailable() {
		return
	}
	if c.speaking {
		c.view.SetStatus(StatusAlreadySpeaking)
		return
	}

	predictions := c.Session().Predictions
	c.speaking = true
	c.view.SetStatus(StatusSpeaking)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.speaker.Speak(c.ctx, predictions)
		c.dispatcher.Post(func() {
			c.speaking = false
			if err != nil {
				if isCancellation(err) {
					return
				}
				c.log.WithError(err).Warn("Speech failed")
				c.view.SetStatus(fmt.Sprintf(statusSpeechErrorFormat, err))
				return
			}
			c.view.SetStatus(StatusReady)
		})
	}()
}

// Clear drops the current image and predictions and cancels an in-flight
// classification. A model load in flight keeps running.
func (c *Controller) Clear() {
	if !c.loading {
		c.cancelCurrent()
	}
	c.inflightPath = ""
	c.pendingPath = ""
	c.session = Session{Model: c.session.Model}

	c.view.ClearThumbnail()
	c.view.ShowResults("")
	c.view.SetDebug("")
	c.view.SetSpeechEnabled(false)
	c.view.SetBusy(c.loading)
	c.view.SetStatus(StatusReady)
	c.setState(Idle)
}

// Close cancels background work and waits briefly for it to finish.
func (c *Controller) Close() {
	c.cancelCurrent()
	c.shutdown()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		c.log.Warn("Background work still running at shutdown")
	}
}

type classification struct {
	variant     model.Variant
	artifacts   *images.Artifacts
	predictions []model.Prediction
}

// classify runs on a background goroutine and touches no controller state.
func (c *Controller) classify(ctx context.Context, path string) (*classification, error) {
	done := c.profiler.StartOperation(profiler.OpClassification)
	defer done()

	variant, pre, err := c.classifier.Active()
	if err != nil {
		return nil, err
	}

	donePre := c.profiler.StartOperation(profiler.OpPreprocess)
	artifacts, err := c.pipeline.Load(ctx, path, pre)
	donePre()
	if err != nil {
		return nil, err
	}

	predictions, err := c.classifier.Classify(ctx, artifacts.Tensor)
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, fmt.Errorf("%w: %s returned no predictions", inference.ErrInference, variant.Name)
	}
	return &classification{variant: variant, artifacts: artifacts, predictions: predictions}, nil
}

// start runs work on a background goroutine and posts its result closure to
// the loop, unless a newer task has started since.
func (c *Controller) start(work func(ctx context.Context) func()) {
	c.cancelCurrent()

	ctx, cancel := context.WithCancel(c.ctx)
	generation := c.generation
	c.cancelTask = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		apply := work(ctx)
		c.dispatcher.Post(func() {
			cancel()
			if generation != c.generation {
				return
			}
			c.cancelTask = nil
			apply()
		})
	}()
}

// cancelCurrent cancels the in-flight task, if any, and invalidates its result.
func (c *Controller) cancelCurrent() {
	c.generation++
	if c.cancelTask != nil {
		c.cancelTask()
		c.cancelTask = nil
	}
}

// resumePending classifies the image queued while a model was loading.
func (c *Controller) resumePending() {
	path := c.pendingPath
	c.pendingPath = ""
	if path != "" {
		c.Open(path)
	}
}

// fail passes through the Error state, reports err once and returns to the
// state the session supports.
func (c *Controller) fail(err error) {
	c.setState(Error)
	c.view.SetStatus(StatusError)
	c.view.Notify(err)
	c.restoreState()
}

// restoreState returns to ResultsReady or Idle depending on the session.
func (c *Controller) restoreState() {
	if c.session.HasResults() {
		c.setState(ResultsReady)
		return
	}
	c.setState(Idle)
}

func (c *Controller) setState(next State) {
	if next == c.state {
		return
	}
	c.log.WithFields(logrus.Fields{"from": c.state, "to": next}).Debug("State transition")
	c.state = next
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
