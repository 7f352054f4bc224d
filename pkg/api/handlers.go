package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/config"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/mail"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/render"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/report"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxDataPage = 500

// Handler handles HTTP API requests
type Handler struct {
	store     *store.Store
	sessions  *sessionCache
	renderer  render.Backend
	assembler *report.Assembler
	mailer    *mail.Mailer
	cfg       *config.Config
}

// NewHandler creates a new API handler
func NewHandler(st *store.Store, renderer render.Backend, mailer *mail.Mailer, cfg *config.Config) (*Handler, error) {
	sessions, err := newSessionCache(st, cfg.Sessions.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Handler{
		store:     st,
		sessions:  sessions,
		renderer:  renderer,
		assembler: report.NewAssembler(cfg.Report.Title),
		mailer:    mailer,
		cfg:       cfg,
	}, nil
}

// Router returns the application's HTTP handler with middleware applied
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Report-Checksum", "X-Report-Chart-Fallback"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndexPage)
	r.Get("/sessions/{id}", h.handleSessionPage)
	r.Get("/health", h.handleHealth)
	r.Handle("/static/*", StaticHandler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Put("/selection", h.handleUpdateSelection)
			r.Post("/file", h.handleReplaceFile)
			r.Get("/data", h.handleData)
			r.Get("/chart", h.handleChart)
			r.Get("/stats", h.handleStats)
			r.Post("/report", h.handleReport)
			r.Post("/report/email", h.handleEmailReport)
			r.Get("/runs", h.handleRuns)
		})
		r.Post("/smtp/test", h.handleSMTPTest)
	})
}

// EvictSession drops a cached dataset; the janitor calls it for expired sessions
func (h *Handler) EvictSession(id string) {
	h.sessions.evict(id)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// handleCreateSession handles POST /api/sessions (multipart field "file")
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	fileName, source, err := h.readUpload(w, r)
	if err != nil {
		respondError(w, err)
		return
	}

	a, err := analyze(r.Context(), fileName, source)
	if err != nil {
		log.Printf("[API] Rejected upload %s: %v", fileName, err)
		respondError(w, err)
		return
	}
	sel, err := model.DefaultSelection(a.Dataset)
	if err != nil {
		respondError(w, err)
		return
	}

	session := &model.Session{FileName: fileName, Source: source, Selection: sel}
	if err := h.store.CreateSession(session); err != nil {
		respondError(w, fmt.Errorf("failed to create session: %w", err))
		return
	}
	h.sessions.put(session.ID, a)

	log.Printf("[API] Created session %s for %s (%d rows, %d columns)", session.ID, fileName, a.Dataset.Rows, len(a.Dataset.Columns))
	respondJSONStatus(w, http.StatusCreated, newSessionView(session, a))
}

// handleGetSession handles GET /api/sessions/{id}
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, a, err := h.sessions.load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, newSessionView(session, a))
}

// handleDeleteSession handles DELETE /api/sessions/{id}
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSession(id); err != nil {
		respondError(w, err)
		return
	}
	h.sessions.evict(id)
	log.Printf("[API] Deleted session %s", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateSelection handles PUT /api/sessions/{id}/selection
func (h *Handler) handleUpdateSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var sel model.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		respondError(w, fmt.Errorf("%w: %v", model.ErrInvalidSelection, err))
		return
	}
	if sel.Color == "" {
		sel.Color = model.NoColor
	}

	session, a, err := h.sessions.load(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := model.ValidateSelection(a.Dataset, sel); err != nil {
		respondError(w, err)
		return
	}
	if err := h.store.UpdateSelection(id, sel); err != nil {
		respondError(w, err)
		return
	}

	session.Selection = sel
	respondJSON(w, newSessionView(session, a))
}

// handleReplaceFile handles POST /api/sessions/{id}/file: a new upload replaces
// the dataset and resets the selection
func (h *Handler) handleReplaceFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetSession(id); err != nil {
		respondError(w, err)
		return
	}

	fileName, source, err := h.readUpload(w, r)
	if err != nil {
		respondError(w, err)
		return
	}
	a, err := analyze(r.Context(), fileName, source)
	if err != nil {
		respondError(w, err)
		return
	}
	sel, err := model.DefaultSelection(a.Dataset)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.store.ReplaceSource(id, fileName, source, sel); err != nil {
		respondError(w, err)
		return
	}
	h.sessions.put(id, a)

	session, err := h.store.GetSession(id)
	if err != nil {
		respondError(w, err)
		return
	}
	log.Printf("[API] Replaced dataset of session %s with %s", id, fileName)
	respondJSON(w, newSessionView(session, a))
}

// handleData handles GET /api/sessions/{id}/data?offset=&limit=
func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	_, a, err := h.sessions.load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > maxDataPage {
		limit = maxDataPage
	}
	if offset < 0 {
		offset = 0
	}

	ds := a.Dataset
	end := offset + limit
	if end > ds.Rows {
		end = ds.Rows
	}
	rows := make([][]*string, 0)
	for i := offset; i < end; i++ {
		row := make([]*string, len(ds.Columns))
		for j, col := range ds.Columns {
			if !col.Missing[i] {
				text := col.Text[i]
				row[j] = &text
			}
		}
		rows = append(rows, row)
	}

	respondJSON(w, map[string]interface{}{
		"columns": ds.ColumnNames(),
		"offset":  offset,
		"total":   ds.Rows,
		"rows":    rows,
	})
}

// handleChart handles GET /api/sessions/{id}/chart and returns the Vega-Lite spec
func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	session, a, err := h.sessions.load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	spec, err := render.VegaLiteSpec(a.Dataset, session.Selection)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, spec)
}

// handleStats handles GET /api/sessions/{id}/stats
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	_, a, err := h.sessions.load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, newStatsView(a.Stats))
}

// handleReport handles POST /api/sessions/{id}/report and streams the PDF
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	session, res, err := h.generateReport(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", h.cfg.Report.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PDF)))
	w.Header().Set("X-Report-Checksum", res.Checksum)
	w.Header().Set("X-Report-Chart-Fallback", strconv.FormatBool(res.ChartFallback))
	w.Write(res.PDF)
	log.Printf("[API] Served report for session %s (%d bytes)", session.ID, len(res.PDF))
}

// emailRequest is the body of POST /api/sessions/{id}/report/email
type emailRequest struct {
	Recipients model.Recipients `json:"recipients"`
	Subject    string           `json:"subject"`
	Body       string           `json:"body"`
}

// handleEmailReport handles POST /api/sessions/{id}/report/email
func (h *Handler) handleEmailReport(w http.ResponseWriter, r *http.Request) {
	if h.mailer == nil || !h.mailer.Enabled() {
		respondErrorMessage(w, http.StatusServiceUnavailable, mail.ErrMailDisabled.Error(), "")
		return
	}

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.mailer.Validate(req.Recipients); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	deliver := func(ctx context.Context, session *model.Session, res *report.Result) error {
		vars := map[string]string{
			"file.name":           session.FileName,
			"selection.x":         session.Selection.X,
			"selection.y":         session.Selection.Y,
			"report.generated_at": time.Now().Format(time.RFC1123),
		}
		subject, body := req.Subject, req.Body
		if subject == "" {
			subject = mail.DefaultSubject
		}
		if body == "" {
			body = mail.DefaultBody
		}
		return h.mailer.SendReport(ctx, req.Recipients,
			mail.InterpolateTemplate(subject, vars), mail.InterpolateTemplate(body, vars),
			res.PDF, h.cfg.Report.Filename)
	}

	session, res, err := h.generateReport(r.Context(), chi.URLParam(r, "id"), &delivery{
		recipients: req.Recipients,
		send:       deliver,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, map[string]interface{}{
		"success":        true,
		"session_id":     session.ID,
		"recipients":     len(req.Recipients.All()),
		"bytes":          len(res.PDF),
		"chart_fallback": res.ChartFallback,
	})
}

// handleRuns handles GET /api/sessions/{id}/runs
func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetSession(id); err != nil {
		respondError(w, err)
		return
	}
	runs, err := h.store.ListRuns(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"runs": runs})
}

// handleSMTPTest handles POST /api/smtp/test against the configured server
func (h *Handler) handleSMTPTest(w http.ResponseWriter, r *http.Request) {
	if h.mailer == nil {
		respondJSON(w, map[string]interface{}{"success": false, "error": mail.ErrMailDisabled.Error()})
		return
	}
	if err := h.mailer.TestConnection(); err != nil {
		respondJSON(w, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"host":    h.cfg.SMTP.Host,
			"port":    h.cfg.SMTP.Port,
		})
		return
	}
	respondJSON(w, map[string]interface{}{
		"success": true,
		"message": "Successfully connected to SMTP server",
		"host":    h.cfg.SMTP.Host,
		"port":    h.cfg.SMTP.Port,
		"tls":     h.cfg.SMTP.UseTLS,
	})
}

// delivery sends a finished report somewhere besides the HTTP response
type delivery struct {
	recipients model.Recipients
	send       func(ctx context.Context, session *model.Session, res *report.Result) error
}

// generateReport builds the report for a session and records the run.
// Chart failures are absorbed by the assembler; any other failure fails the run.
func (h *Handler) generateReport(ctx context.Context, id string, d *delivery) (*model.Session, *report.Result, error) {
	session, a, err := h.sessions.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	run := &model.ReportRun{
		SessionID: session.ID,
		StartedAt: time.Now(),
		Status:    model.RunStatusRunning,
		Selection: session.Selection,
		Renderer:  h.renderer.Name(),
	}
	if err := h.store.CreateRun(run); err != nil {
		log.Printf("[API] WARNING: Failed to create run record for session %s: %v", session.ID, err)
	}

	res, err := h.assembler.Build(ctx, report.Input{
		Dataset:    a.Dataset,
		Selection:  session.Selection,
		Stats:      a.Stats,
		Rasterizer: h.renderer,
	})
	if err == nil && d != nil {
		if err = d.send(ctx, session, res); err == nil {
			run.EmailedTo = d.recipients
		}
	}

	now := time.Now()
	run.FinishedAt = &now
	if err != nil {
		run.Status = model.RunStatusFailed
		run.ErrorText = err.Error()
	} else {
		run.Status = model.RunStatusCompleted
		run.ChartFallback = res.ChartFallback
		run.Pages = res.Pages
		run.Bytes = int64(len(res.PDF))
		run.Checksum = res.Checksum
	}
	if run.ID != 0 {
		if uerr := h.store.UpdateRun(run); uerr != nil {
			log.Printf("[API] WARNING: Failed to update run record %d: %v", run.ID, uerr)
		}
	}

	if err != nil {
		log.Printf("[API] Report for session %s failed: %v", session.ID, err)
		return nil, nil, fmt.Errorf("%w: %v", errReportFailed, err)
	}
	return session, res, nil
}

// readUpload reads the multipart "file" field within the configured size limit
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := h.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("%w: file exceeds %d MB", errUploadTooLarge, h.cfg.Server.MaxUploadMB)
		}
		return "", nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing form field 'file'", errBadUpload)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	return header.Filename, data, nil
}

// Views

type columnView struct {
	Name string           `json:"name"`
	Kind model.ColumnKind `json:"kind"`
}

type sessionView struct {
	ID           string          `json:"id"`
	FileName     string          `json:"file_name"`
	Rows         int             `json:"rows"`
	Columns      []columnView    `json:"columns"`
	AxisOptions  []string        `json:"axis_options"`
	ColorOptions []string        `json:"color_options"`
	Selection    model.Selection `json:"selection"`
	Preview      report.Table    `json:"preview"`
	Stats        statsView       `json:"stats"`
	CreatedAt    time.Time       `json:"created_at"`
	LastSeenAt   time.Time       `json:"last_seen_at"`
}

func newSessionView(session *model.Session, a *model.Analysis) sessionView {
	ds := a.Dataset
	cols := make([]columnView, len(ds.Columns))
	for i, c := range ds.Columns {
		cols[i] = columnView{Name: c.Name, Kind: c.Kind}
	}
	return sessionView{
		ID:           session.ID,
		FileName:     session.FileName,
		Rows:         ds.Rows,
		Columns:      cols,
		AxisOptions:  ds.NumericColumns(),
		ColorOptions: model.ColorOptions(ds),
		Selection:    session.Selection,
		Preview:      report.PreviewTable(ds),
		Stats:        newStatsView(a.Stats),
		CreatedAt:    session.CreatedAt,
		LastSeenAt:   session.LastSeenAt,
	}
}

type statRow struct {
	Stat   string     `json:"stat"`
	Values []*float64 `json:"values"` // null when undefined
}

type statsView struct {
	Columns []string  `json:"columns"`
	Rows    []statRow `json:"rows"`
}

func newStatsView(stats *model.Stats) statsView {
	view := statsView{Columns: stats.Columns, Rows: make([]statRow, 0, len(model.StatNames))}
	for _, name := range model.StatNames {
		row := statRow{Stat: name, Values: make([]*float64, len(stats.Columns))}
		for i, col := range stats.Columns {
			if v, ok := stats.Get(name, col); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				v := v
				row.Values[i] = &v
			}
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
