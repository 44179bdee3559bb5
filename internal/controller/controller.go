// Package controller drives the submission flow: it owns the visible state,
// hands inputs to the pipeline, and applies outcomes to the view.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/history"
	"github.com/MLeys/hotdog-classifier/internal/imaging"
	"github.com/MLeys/hotdog-classifier/internal/pipeline"
)

// State is the controller's visible phase.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateResultShown
	StateErrorShown
)

// PreviewError reports an image source the view could not render.
type PreviewError struct {
	Source string
}

func (e *PreviewError) Error() string {
	return "failed to load image preview"
}

// View is the rendering surface the controller mutates. Implementations
// decide how each call is displayed.
type View interface {
	ShowPreview(source string)
	HidePreview()
	ShowLoading()
	HideLoading()
	ShowResult(verdict *classifier.Verdict)
	HideResult()
	ShowError(message string)
	HideError()
	RenderHistory(entries []history.Entry, stats history.Stats)
}

// Submitter is the pipeline surface the controller submits through.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*classifier.Verdict, error)
}

// Recorder is the history surface the controller records outcomes to.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
	Reset(ctx context.Context) error
	Entries() []history.Entry
	Stats() history.Stats
}

// Controller wires the view, pipeline, and history together. Submissions
// settle asynchronously; each carries a sequence token so a stale response
// can never overwrite the state of a newer submission.
type Controller struct {
	mu          sync.Mutex
	state       State
	seq         uint64
	view        View
	pipe        Submitter
	hist        Recorder
	logger      *zap.Logger
	bannerDelay time.Duration
	bannerTimer *time.Timer
	now         func() time.Time
}

// New builds a controller in the Idle state. bannerDelay is how long an
// error banner stays up before hiding itself.
func New(view View, pipe Submitter, hist Recorder, bannerDelay time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		view:        view,
		pipe:        pipe,
		hist:        hist,
		logger:      logger.Named("controller"),
		bannerDelay: bannerDelay,
		now:         time.Now,
	}
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubmitFile submits picked or dropped file bytes. The returned channel
// closes when the submission has settled.
func (c *Controller) SubmitFile(ctx context.Context, name, mimeType string, data []byte) <-chan struct{} {
	return c.submit(ctx, pipeline.FileSubmission(name, mimeType, data))
}

// SubmitURL submits the text-input value, which may be a URL or a
// data:image string.
func (c *Controller) SubmitURL(ctx context.Context, rawURL string) <-chan struct{} {
	return c.submit(ctx, pipeline.URLSubmission(rawURL))
}

// SubmitBase64 submits an embedded data:image string.
func (c *Controller) SubmitBase64(ctx context.Context, data string) <-chan struct{} {
	return c.submit(ctx, pipeline.Base64Submission(data))
}

func (c *Controller) submit(ctx context.Context, sub pipeline.Submission) <-chan struct{} {
	source := sub.Source()

	c.mu.Lock()
	c.seq++
	token := c.seq
	c.stopBannerLocked()
	c.view.HideResult()
	c.view.HideError()
	c.view.ShowPreview(source)
	c.view.ShowLoading()
	c.state = StateAwaitingResponse
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		verdict, err := c.pipe.Submit(ctx, sub)
		c.settle(ctx, token, source, verdict, err)
	}()
	return done
}

func (c *Controller) settle(ctx context.Context, token uint64, source string, verdict *classifier.Verdict, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.seq {
		c.logger.Debug("discarding stale completion", zap.Uint64("token", token), zap.Uint64("current", c.seq))
		return
	}

	c.view.HideLoading()
	if err != nil {
		c.failLocked(err)
		return
	}

	entry := history.Entry{
		ImageSource: source,
		Label:       verdict.Label,
		IsHotdog:    verdict.IsHotdog,
		Description: verdict.Description,
		Timestamp:   c.now().UTC().Format(time.RFC3339),
	}
	if err := c.hist.Record(ctx, entry); err != nil {
		c.logger.Error("failed to record history entry", zap.Error(err))
		c.failLocked(err)
		return
	}

	c.view.ShowResult(verdict)
	c.view.RenderHistory(c.hist.Entries(), c.hist.Stats())
	c.state = StateResultShown
}

// PreviewFailed is called by the view when the image source could not be
// rendered. The preview area is hidden again and the error banner shown.
func (c *Controller) PreviewFailed(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.HidePreview()
	c.failLocked(&PreviewError{Source: source})
}

// ResetHistory clears history and stats. It does nothing unless confirmed;
// prompting the user is the caller's job.
func (c *Controller) ResetHistory(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.hist.Reset(ctx); err != nil {
		c.failLocked(err)
		return err
	}
	c.view.RenderHistory(c.hist.Entries(), c.hist.Stats())
	return nil
}

// failLocked enters ErrorShown and arms the banner auto-hide timer.
// Callers hold c.mu.
func (c *Controller) failLocked(err error) {
	c.state = StateErrorShown
	c.view.ShowError(messageFor(err))
	c.stopBannerLocked()
	c.bannerTimer = time.AfterFunc(c.bannerDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.view.HideError()
		if c.state == StateErrorShown {
			c.state = StateIdle
		}
	})
}

func (c *Controller) stopBannerLocked() {
	if c.bannerTimer != nil {
		c.bannerTimer.Stop()
		c.bannerTimer = nil
	}
}

// messageFor maps error kinds to banner text. Server-supplied messages are
// shown verbatim; transport failures get a generic message.
func messageFor(err error) string {
	var validation *imaging.ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	var apiErr *pipeline.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var preview *PreviewError
	if errors.As(err, &preview) {
		return preview.Error()
	}
	var network *pipeline.NetworkError
	if errors.As(err, &network) {
		return "could not reach the classification service"
	}
	return err.Error()
}
