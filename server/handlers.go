package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/tabulator"
	"github.com/sdzerobot/sdzerobot/version"
)

// ReportResponse is the body of GET /database-report
type ReportResponse struct {
	Page    string         `json:"page"`
	Results []ResultStatus `json:"results"`
}

// ResultStatus summarises one template run
type ResultStatus struct {
	RunID        string   `json:"run_id,omitempty"`
	Outcome      string   `json:"outcome"`
	Rows         int      `json:"rows"`
	Pages        int      `json:"pages"`
	QueryRuntime float64  `json:"query_runtime"`
	Warnings     []string `json:"warnings,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Get().Short(),
		"clients": s.clientCount(),
	})
}

// handleReport runs every report on ?page= and returns the outcomes.
// The run is not tied to the request, so a client that disconnects does not
// leave a half-updated page.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	page := strings.TrimSpace(r.URL.Query().Get("page"))
	if page == "" {
		writeError(w, http.StatusBadRequest, "Missing page parameter")
		return
	}

	ctx := tabulator.WithTrigger(context.WithoutCancel(r.Context()), history.TriggerWeb)
	results, err := s.runner.RunPage(ctx, page)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context(), s.logger).Warnw("Report request failed",
				logger.FieldPage, page,
				logger.FieldError, err)
		}
		writeError(w, status, err.Error())
		return
	}

	resp := ReportResponse{Page: page, Results: make([]ResultStatus, 0, len(results))}
	for _, res := range results {
		st := ResultStatus{
			RunID:        res.RunID,
			Outcome:      res.Outcome.String(),
			Rows:         res.Rows,
			Pages:        res.Pages,
			QueryRuntime: res.QueryRuntime.Seconds(),
			Warnings:     res.Warnings,
		}
		if res.Err != nil {
			st.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, st)
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// handleRuns lists recent runs, optionally for one page
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	var runs []history.Run
	var err error
	if page := strings.TrimSpace(r.URL.Query().Get("page")); page != "" {
		runs, err = s.runs.ForPage(r.Context(), page, limit)
	} else {
		runs, err = s.runs.Recent(r.Context(), limit)
	}
	if err != nil {
		s.logger.Warnw("Failed to list runs", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	_ = writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debugw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	c := newClient(s, conn)
	select {
	case s.register <- c:
	case <-s.ctx.Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
