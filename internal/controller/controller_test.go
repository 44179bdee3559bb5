package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/history"
	"github.com/MLeys/hotdog-classifier/internal/imaging"
	"github.com/MLeys/hotdog-classifier/internal/pipeline"
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (m *memStore) Put(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = string(encoded)
	return nil
}

func (m *memStore) Get(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), out)
}

type fakeView struct {
	mu       sync.Mutex
	calls    []string
	previews []string
	errors   []string
	results  []*classifier.Verdict
}

func (v *fakeView) record(call string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, call)
}

func (v *fakeView) ShowPreview(source string) {
	v.mu.Lock()
	v.previews = append(v.previews, source)
	v.mu.Unlock()
	v.record("ShowPreview")
}

func (v *fakeView) HidePreview() { v.record("HidePreview") }
func (v *fakeView) ShowLoading() { v.record("ShowLoading") }
func (v *fakeView) HideLoading() { v.record("HideLoading") }

func (v *fakeView) ShowResult(verdict *classifier.Verdict) {
	v.mu.Lock()
	v.results = append(v.results, verdict)
	v.mu.Unlock()
	v.record("ShowResult")
}

func (v *fakeView) HideResult() { v.record("HideResult") }

func (v *fakeView) ShowError(message string) {
	v.mu.Lock()
	v.errors = append(v.errors, message)
	v.mu.Unlock()
	v.record("ShowError")
}

func (v *fakeView) HideError() { v.record("HideError") }

func (v *fakeView) RenderHistory(entries []history.Entry, stats history.Stats) {
	v.record("RenderHistory")
}

func (v *fakeView) count(call string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.calls {
		if c == call {
			n++
		}
	}
	return n
}

type stubSubmitter struct {
	verdict *classifier.Verdict
	err     error
}

func (s *stubSubmitter) Submit(ctx context.Context, sub pipeline.Submission) (*classifier.Verdict, error) {
	return s.verdict, s.err
}

type gateResult struct {
	verdict *classifier.Verdict
	err     error
}

type gatedCall struct {
	sub     pipeline.Submission
	release chan gateResult
}

// gatedSubmitter blocks each Submit until the test releases it, so tests
// can interleave overlapping submissions deterministically.
type gatedSubmitter struct {
	calls chan *gatedCall
}

func (g *gatedSubmitter) Submit(ctx context.Context, sub pipeline.Submission) (*classifier.Verdict, error) {
	call := &gatedCall{sub: sub, release: make(chan gateResult)}
	g.calls <- call
	r := <-call.release
	return r.verdict, r.err
}

func newTestController(sub Submitter, delay time.Duration) (*Controller, *fakeView, *history.Aggregator) {
	view := &fakeView{}
	hist := history.New(newMemStore(), zap.NewNop())
	ctrl := New(view, sub, hist, delay, zap.NewNop())
	return ctrl, view, hist
}

func TestSubmitSuccessTransitionsToResultShown(t *testing.T) {
	verdict := &classifier.Verdict{Label: classifier.LabelHotdog, IsHotdog: true}
	ctrl, view, hist := newTestController(&stubSubmitter{verdict: verdict}, time.Minute)

	done := ctrl.SubmitURL(context.Background(), "http://example.com/dog.jpg")
	<-done

	if got := ctrl.State(); got != StateResultShown {
		t.Fatalf("expected ResultShown, got %d", got)
	}
	if view.count("ShowResult") != 1 {
		t.Fatal("expected one ShowResult call")
	}
	if view.count("RenderHistory") != 1 {
		t.Fatal("expected history panel to be re-rendered")
	}
	if len(view.previews) != 1 || view.previews[0] != "http://example.com/dog.jpg" {
		t.Fatalf("expected preview of submitted URL, got %v", view.previews)
	}

	entries := hist.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	if !entries[0].IsHotdog {
		t.Fatal("expected positive entry")
	}
	if stats := hist.Stats(); stats.Total != 1 || stats.PositiveCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubmitAPIErrorShowsServerMessageAndRecordsNothing(t *testing.T) {
	apiErr := &pipeline.APIError{Status: 500, Message: "model unavailable"}
	ctrl, view, hist := newTestController(&stubSubmitter{err: apiErr}, time.Minute)

	done := ctrl.SubmitURL(context.Background(), "http://example.com/dog.jpg")
	<-done

	if got := ctrl.State(); got != StateErrorShown {
		t.Fatalf("expected ErrorShown, got %d", got)
	}
	if len(view.errors) != 1 || view.errors[0] != "model unavailable" {
		t.Fatalf("expected server message verbatim, got %v", view.errors)
	}
	if len(hist.Entries()) != 0 {
		t.Fatal("expected no history entry on failure")
	}
}

func TestSubmitValidationErrorShowsMessage(t *testing.T) {
	validation := &imaging.ValidationError{Message: "invalid URL provided"}
	ctrl, view, _ := newTestController(&stubSubmitter{err: validation}, time.Minute)

	done := ctrl.SubmitURL(context.Background(), "ftp://example.com/a.jpg")
	<-done

	if len(view.errors) != 1 || view.errors[0] != "invalid URL provided" {
		t.Fatalf("expected validation message, got %v", view.errors)
	}
}

func TestErrorBannerHidesItselfAfterDelay(t *testing.T) {
	ctrl, view, _ := newTestController(&stubSubmitter{err: &pipeline.NetworkError{Err: errors.New("offline")}}, 30*time.Millisecond)

	done := ctrl.SubmitURL(context.Background(), "http://example.com/dog.jpg")
	<-done

	if ctrl.State() != StateErrorShown {
		t.Fatal("expected ErrorShown before the delay elapses")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == StateIdle {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ctrl.State() != StateIdle {
		t.Fatal("expected banner timer to return the controller to Idle")
	}
	if view.count("HideError") == 0 {
		t.Fatal("expected HideError to be called by the timer")
	}
}

func TestNewSubmissionCancelsPendingBannerTimer(t *testing.T) {
	gate := &gatedSubmitter{calls: make(chan *gatedCall, 2)}
	ctrl, _, _ := newTestController(gate, 50*time.Millisecond)
	ctx := context.Background()

	done1 := ctrl.SubmitURL(ctx, "http://example.com/1.jpg")
	call1 := <-gate.calls
	call1.release <- gateResult{err: &pipeline.NetworkError{Err: errors.New("offline")}}
	<-done1

	done2 := ctrl.SubmitURL(ctx, "http://example.com/2.jpg")
	call2 := <-gate.calls
	call2.release <- gateResult{verdict: &classifier.Verdict{Label: classifier.LabelHotdog, IsHotdog: true}}
	<-done2

	// The first submission's banner timer must not knock the controller
	// back to Idle.
	time.Sleep(120 * time.Millisecond)
	if got := ctrl.State(); got != StateResultShown {
		t.Fatalf("expected ResultShown to stick, got %d", got)
	}
}

func TestStaleResponseCannotOverwriteNewerSubmission(t *testing.T) {
	gate := &gatedSubmitter{calls: make(chan *gatedCall, 2)}
	ctrl, view, hist := newTestController(gate, time.Minute)
	ctx := context.Background()

	done1 := ctrl.SubmitURL(ctx, "http://example.com/1.jpg")
	call1 := <-gate.calls

	done2 := ctrl.SubmitURL(ctx, "http://example.com/2.jpg")
	call2 := <-gate.calls

	// The first response arrives after the second submission started: it is
	// stale and must be dropped.
	call1.release <- gateResult{verdict: &classifier.Verdict{Label: classifier.LabelNotHotdog, IsHotdog: false}}
	<-done1

	if view.count("ShowResult") != 0 {
		t.Fatal("stale response must not render a result")
	}
	if len(hist.Entries()) != 0 {
		t.Fatal("stale response must not be recorded")
	}
	if ctrl.State() != StateAwaitingResponse {
		t.Fatalf("expected to still be awaiting the newer submission, got %d", ctrl.State())
	}

	call2.release <- gateResult{verdict: &classifier.Verdict{Label: classifier.LabelHotdog, IsHotdog: true}}
	<-done2

	if view.count("ShowResult") != 1 {
		t.Fatal("expected exactly one rendered result")
	}
	entries := hist.Entries()
	if len(entries) != 1 || entries[0].ImageSource != "http://example.com/2.jpg" {
		t.Fatalf("expected only the newer submission in history, got %+v", entries)
	}
}

func TestPreviewFailedHidesPreviewAndShowsBanner(t *testing.T) {
	ctrl, view, _ := newTestController(&stubSubmitter{}, time.Minute)

	ctrl.PreviewFailed("http://example.com/broken.jpg")

	if ctrl.State() != StateErrorShown {
		t.Fatal("expected ErrorShown after preview failure")
	}
	if view.count("HidePreview") != 1 {
		t.Fatal("expected preview to be hidden")
	}
	if len(view.errors) != 1 || view.errors[0] != "failed to load image preview" {
		t.Fatalf("unexpected banner message: %v", view.errors)
	}
}

func TestResetHistoryRequiresConfirmation(t *testing.T) {
	verdict := &classifier.Verdict{Label: classifier.LabelHotdog, IsHotdog: true}
	ctrl, view, hist := newTestController(&stubSubmitter{verdict: verdict}, time.Minute)
	ctx := context.Background()

	<-ctrl.SubmitURL(ctx, "http://example.com/dog.jpg")

	if err := ctrl.ResetHistory(ctx, false); err != nil {
		t.Fatalf("unconfirmed reset errored: %v", err)
	}
	if len(hist.Entries()) != 1 {
		t.Fatal("unconfirmed reset must not clear history")
	}

	if err := ctrl.ResetHistory(ctx, true); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if len(hist.Entries()) != 0 {
		t.Fatal("expected history cleared after confirmed reset")
	}
	if stats := hist.Stats(); stats.Total != 0 || stats.PositiveCount != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	if view.count("RenderHistory") < 2 {
		t.Fatal("expected history panel re-render after reset")
	}
}
