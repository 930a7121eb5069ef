// Package api exposes the local management surface: an authenticated chi
// router for the CLI and an MCP server for agent access.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jkoval/apptrack/internal/aggregate"
	"github.com/jkoval/apptrack/internal/pipeline"
	"github.com/jkoval/apptrack/internal/reconcile"
	"github.com/jkoval/apptrack/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const lastReportKey = "last_run_report"

// Runner abstracts triggering one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// AppDeps holds dependencies for the management API.
type AppDeps struct {
	Store         *storage.Store
	Runner        Runner
	Token         string
	SweepInactive time.Duration
}

// NewAppHandler builds the management router. Everything except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.Token))

		r.Post("/runs", handleTriggerRun(deps))
		r.Get("/runs/latest", handleLatestRun(deps))
		r.Get("/applications", handleListApplications(deps))
		r.Get("/aggregates", handleAggregates(deps))
		r.Post("/applications/merge", handleMerge(deps))
		r.Post("/sweep", handleSweep(deps))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func httpError(w http.ResponseWriter, code int, kind, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"type":    kind,
			"message": fmt.Sprintf(format, args...),
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func handleTriggerRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Runner.Run(r.Context())
		if err != nil {
			if errors.Is(err, storage.ErrRunInProgress) {
				httpError(w, http.StatusConflict, "run_in_progress", "a run is already in progress")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "run failed: %v", err)
			return
		}

		if data, err := json.Marshal(report); err == nil {
			if err := deps.Store.SetSetting(lastReportKey, string(data)); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "saving run report: %v", err)
				return
			}
		}
		writeJSON(w, report)
	}
}

func handleLatestRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := deps.Store.GetSetting(lastReportKey)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading run report: %v", err)
			return
		}
		if raw == "" {
			httpError(w, http.StatusNotFound, "not_found", "no run recorded yet")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(raw))
	}
}

// applicationView is the JSON shape returned for one row.
type applicationView struct {
	ID           string `json:"id"`
	Platform     string `json:"platform"`
	Company      string `json:"company"`
	JobTitle     string `json:"job_title"`
	Status       string `json:"status"`
	PeakStatus   string `json:"peak_status"`
	EmailDate    string `json:"email_date"`
	LastUpdate   string `json:"last_update"`
	EmailSubject string `json:"email_subject"`
	EmailLink    string `json:"email_link"`
	Notes        string `json:"notes,omitempty"`
}

func toView(a storage.Application) applicationView {
	return applicationView{
		ID:           a.ID,
		Platform:     a.Platform,
		Company:      a.Company,
		JobTitle:     a.JobTitle,
		Status:       a.Status,
		PeakStatus:   a.PeakStatus,
		EmailDate:    a.EmailDate.UTC().Format(time.RFC3339),
		LastUpdate:   a.LastUpdate.UTC().Format(time.RFC3339),
		EmailSubject: a.EmailSubject,
		EmailLink:    a.EmailLink,
		Notes:        a.Notes,
	}
}

func handleListApplications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Store.ListApplications()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing applications: %v", err)
			return
		}

		statusFilter := r.URL.Query().Get("status")
		views := make([]applicationView, 0, len(rows))
		for _, a := range rows {
			if statusFilter != "" && !strings.EqualFold(a.Status, statusFilter) {
				continue
			}
			views = append(views, toView(a))
		}
		writeJSON(w, views)
	}
}

func handleAggregates(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Store.ListApplications()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing applications: %v", err)
			return
		}
		agg := aggregate.Compute(rows)
		writeJSON(w, map[string]any{
			"funnel":      agg.Funnel,
			"peak_funnel": aggregate.PeakFunnel(rows),
			"platforms":   agg.Platforms,
			"weekly":      agg.Weekly,
		})
	}
}

type mergeRequest struct {
	SourceID string `json:"source_id"`
	DestID   string `json:"dest_id"`
}

func handleMerge(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req mergeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SourceID == "" || req.DestID == "" || req.SourceID == req.DestID {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source_id and dest_id must be distinct non-empty ids")
			return
		}

		src, err := deps.Store.GetApplication(req.SourceID)
		if err != nil {
			httpError(w, statusForStoreErr(err), "api_error", "loading source: %v", err)
			return
		}
		dst, err := deps.Store.GetApplication(req.DestID)
		if err != nil {
			httpError(w, statusForStoreErr(err), "api_error", "loading dest: %v", err)
			return
		}

		merged := reconcile.Merge(dst, src)
		if err := deps.Store.UpdateApplication(merged); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving merged row: %v", err)
			return
		}
		if err := deps.Store.DeleteApplication(src.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "removing source row: %v", err)
			return
		}
		writeJSON(w, toView(merged))
	}
}

func handleSweep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		swept, err := pipeline.SweepStale(deps.Store, deps.SweepInactive, time.Now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "sweep failed: %v", err)
			return
		}
		writeJSON(w, map[string]int{"swept": swept})
	}
}

func statusForStoreErr(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
