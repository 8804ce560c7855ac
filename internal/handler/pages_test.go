package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lanternlabs/lantern/internal/telemetry"
)

func newPageFixture(t *testing.T) (*mockRenderer, *http.ServeMux, *telemetry.ChannelSink) {
	t.Helper()

	sink := telemetry.NewChannelSink(4)
	dispatcher := telemetry.NewDispatcher(sink, 4)
	t.Cleanup(dispatcher.Close)

	renderer := &mockRenderer{}
	h := NewPageHandler(renderer, telemetry.NewAnalytics(dispatcher), testLogger())

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return renderer, mux, sink
}

func TestHome(t *testing.T) {
	renderer, mux, _ := newPageFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if renderer.lastName != "home" || renderer.partial {
		t.Errorf("rendered %q (partial=%v), want home page", renderer.lastName, renderer.partial)
	}

	view, ok := renderer.lastData.(HomeView)
	if !ok {
		t.Fatalf("rendered data is %T, want HomeView", renderer.lastData)
	}
	if view.Headline == "" || len(view.Features) == 0 || len(view.Plans) == 0 {
		t.Error("expected populated landing page view")
	}
	for _, plan := range view.Plans {
		for _, column := range view.PlanColumns {
			if _, ok := plan.Details[column]; !ok {
				t.Errorf("plan %q missing detail for column %q", plan.Name, column)
			}
		}
	}
}

func TestHomeUnknownPath(t *testing.T) {
	_, mux, _ := newPageFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTrackCTA(t *testing.T) {
	_, mux, sink := newPageFixture(t)

	form := url.Values{"location": {"hero"}, "target": {"secondary"}}
	req := httptest.NewRequest(http.MethodPost, "/track/cta", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	event := receiveCTAEvent(t, sink)
	if event.Name != "cta_clicked" {
		t.Errorf("event = %q, want cta_clicked", event.Name)
	}
	if event.Props["location"] != "hero" || event.Props["target"] != "secondary" {
		t.Errorf("props = %v", event.Props)
	}
}

func receiveCTAEvent(t *testing.T, sink *telemetry.ChannelSink) telemetry.Event {
	t.Helper()
	select {
	case event := <-sink.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telemetry event")
		return telemetry.Event{}
	}
}

func TestTrackCTANormalizesTarget(t *testing.T) {
	_, mux, sink := newPageFixture(t)

	form := url.Values{"location": {"footer"}, "target": {"<script>"}}
	req := httptest.NewRequest(http.MethodPost, "/track/cta", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}

	event := receiveCTAEvent(t, sink)
	if event.Props["target"] != "primary" {
		t.Errorf("target = %q, want primary fallback", event.Props["target"])
	}
}
