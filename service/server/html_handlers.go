package server

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/awrenn/colonyfeed/service/config"
	"github.com/awrenn/colonyfeed/service/feed"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	// Parse all templates from embedded filesystem
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

// feedRow is the template model for one rendered feed row. Recipient
// addresses are not part of it: rows resolve them independently through the
// recipients endpoint so the list never waits on the slow two-hop lookup.
type feedRow struct {
	PrimaryText  string
	DisplayDate  string
	DateUnknown  bool
	FundingPotID string
}

// handleFeedPage serves the server-rendered activity feed page.
func handleFeedPage(renderer *TemplateRenderer, aggregator *feed.Aggregator, cfg *config.Config, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := aggregator.Snapshot()
		if len(snap.Events) == 0 && !snap.Loading {
			// Same cold-start behavior as the feed endpoint: start a cycle off
			// the request context and let the page's reload pick it up.
			snap.Loading = true
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.RefreshTimeout)
				defer cancel()
				if _, _, err := aggregator.Refresh(ctx); err != nil {
					logger.Error("background feed refresh failed", "error", err)
				}
			}()
		}

		rows := make([]feedRow, len(snap.Events))
		for i, ev := range snap.Events {
			row := feedRow{
				PrimaryText: ev.PrimaryText(),
				DisplayDate: ev.DisplayDate,
				DateUnknown: ev.TimestampUnknown,
			}
			if ev.FundingPotID != nil {
				row.FundingPotID = *ev.FundingPotID
			}
			rows[i] = row
		}

		warnings := make([]string, len(snap.Warnings))
		for i, warn := range snap.Warnings {
			warnings[i] = warn.Category.String()
		}

		data := map[string]interface{}{
			"Rows":     rows,
			"Warnings": warnings,
			"Loading":  snap.Loading,
			"Colony":   cfg.ColonyAddress,
		}
		if err := renderer.Render(w, "feed.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
