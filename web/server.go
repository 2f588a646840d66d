// ABOUTME: Web UI server with embedded templates
// ABOUTME: Provides a read-only pipeline and billing dashboard on localhost
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/harperreed/agencyops/viz"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Server struct {
	src       viz.Sources
	templates *template.Template
	logger    zerolog.Logger
	mux       *http.ServeMux
}

func NewServer(src viz.Sources, logger zerolog.Logger) (*Server, error) {
	// Helper functions for templates
	funcMap := template.FuncMap{
		"cents": func(v int64) string {
			return fmt.Sprintf("$%.2f", float64(v)/100)
		},
		"value": func(v *int64) string {
			if v == nil {
				return "-"
			}
			return fmt.Sprintf("$%.2f", float64(*v)/100)
		},
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		src:       src,
		templates: tmpl,
		logger:    logger.With().Str("component", "web").Logger(),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("GET /pipeline", s.handlePipeline)
	s.mux.HandleFunc("GET /alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /graph.svg", s.handleGraph)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting web server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := viz.GenerateDashboardStats(r.Context(), s.src, time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}

	type poolRow struct {
		Label string
		Count int
		Value int64
	}
	var pools []poolRow
	for _, p := range models.LivePools {
		ps := stats.Pools[p]
		pools = append(pools, poolRow{Label: p.Label(), Count: ps.Count, Value: ps.Value})
	}

	s.render(w, "dashboard.html", map[string]any{
		"Title": "Dashboard",
		"Stats": stats,
		"Pools": pools,
	})
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var pool models.Pool
	if q := r.URL.Query().Get("pool"); q != "" {
		p, ok := models.ParsePool(q)
		if !ok || !p.IsLive() {
			http.Error(w, "invalid pool", http.StatusBadRequest)
			return
		}
		pool = p
	}

	opps, err := s.src.Opportunities.List(r.Context(), pool)
	if err != nil {
		s.fail(w, err)
		return
	}
	pipeline.SortByScore(opps)

	s.render(w, "pipeline.html", map[string]any{
		"Title":         "Pipeline",
		"Opportunities": opps,
		"Pools":         models.LivePools,
		"Selected":      pool,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	status := models.AlertStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	alerts, err := s.src.Alerts.List(r.Context(), billing.Filter{
		ClientID: r.URL.Query().Get("client"),
		Status:   status,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	s.render(w, "alerts.html", map[string]any{
		"Title":  "Billing alerts",
		"Alerts": alerts,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	stats, err := viz.GenerateDashboardStats(r.Context(), s.src, time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	svg, err := viz.GeneratePipelineGraph(r.Context(), stats, graphviz.SVG)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("template error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
