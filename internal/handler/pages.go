package handler

import (
	"log/slog"
	"net/http"

	"github.com/lanternlabs/lantern/internal/telemetry"
)

// Feature is one entry in the landing page's feature grid.
type Feature struct {
	Title       string
	Description string
}

// Plan is one column of the pricing teaser.
type Plan struct {
	Name     string
	Summary  string
	Details  map[string]string
	Featured bool
}

// Quote is one social-proof testimonial.
type Quote struct {
	Body   string
	Author string
	Role   string
}

// HomeView is the template data for the landing page.
type HomeView struct {
	Headline      string
	Subheadline   string
	Features      []Feature
	PlanColumns   []string
	Plans         []Plan
	Quotes        []Quote
	CurrentPath   string
	VideoEmbedURL string
}

// PageHandler serves the static marketing pages.
type PageHandler struct {
	renderer  TemplateRenderer
	analytics *telemetry.Analytics
	logger    *slog.Logger
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(renderer TemplateRenderer, analytics *telemetry.Analytics, logger *slog.Logger) *PageHandler {
	return &PageHandler{
		renderer:  renderer,
		analytics: analytics,
		logger:    logger,
	}
}

// RegisterRoutes registers the page routes.
func (h *PageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", h.Home)
	mux.HandleFunc("POST /track/cta", h.TrackCTA)
}

// Home renders the landing page.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	// Only handle the exact root path
	if r.URL.Path != "/" {
		NotFoundResponse(w, r, h.logger)
		return
	}

	h.renderer.RenderHTTP(w, "home", homeView(r.URL.Path))
}

// TrackCTA records a call-to-action click. Fire-and-forget: the response
// is 204 regardless of what the analytics pipeline does with it.
func (h *PageHandler) TrackCTA(w http.ResponseWriter, r *http.Request) {
	location := r.FormValue("location")
	target := r.FormValue("target")
	if target != "primary" && target != "secondary" {
		target = "primary"
	}

	h.analytics.RecordCTAClick(location, target)
	w.WriteHeader(http.StatusNoContent)
}

func homeView(path string) HomeView {
	return HomeView{
		Headline:    "Launch Faster With Production-Ready Foundations",
		Subheadline: "Build secure onboarding, observability, and conversion-ready experiences without starting from zero.",
		Features: []Feature{
			{
				Title:       "Reliable By Default",
				Description: "Built-in observability and guardrails keep releases stable under real traffic.",
			},
			{
				Title:       "Ship Faster",
				Description: "Opinionated building blocks remove weeks of setup from every new product surface.",
			},
			{
				Title:       "Actionable Insights",
				Description: "Track signup and retention trends with lightweight analytics instrumentation.",
			},
		},
		PlanColumns: []string{"API Limits", "Support SLA", "Team Seats"},
		Plans: []Plan{
			{
				Name:    "Free",
				Summary: "For early exploration",
				Details: map[string]string{
					"API Limits":  "10k / month",
					"Support SLA": "Community support",
					"Team Seats":  "Up to 3 seats",
				},
			},
			{
				Name:     "Pro",
				Summary:  "For teams shipping to production",
				Featured: true,
				Details: map[string]string{
					"API Limits":  "1M / month",
					"Support SLA": "Next business day",
					"Team Seats":  "Up to 20 seats",
				},
			},
		},
		Quotes: []Quote{
			{
				Body:   "We replaced three internal tools the first week. Signups went up and pager noise went down.",
				Author: "Maya Okafor",
				Role:   "Engineering Lead",
			},
			{
				Body:   "The auth flow alone saved us a sprint. Everything worked with our existing provider.",
				Author: "Daniel Reyes",
				Role:   "Founder",
			},
		},
		CurrentPath:   path,
		VideoEmbedURL: "https://player.vimeo.com/video/76979871",
	}
}
