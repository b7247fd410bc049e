package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"danceimport/internal/calendar"
	"danceimport/internal/config"
	appLog "danceimport/internal/log"
	"danceimport/internal/model"
	"danceimport/internal/refresh"
)

// maxAgendaDays bounds the ?days= parameter of /api/agenda.
const maxAgendaDays = 90

// Refresher is the part of refresh.Runner the HTTP API needs.
type Refresher interface {
	Snapshot() (refresh.Snapshot, bool)
	Run(ctx context.Context) (refresh.Snapshot, error)
	Location() *time.Location
}

// Server exposes the latest snapshot over HTTP.
type Server struct {
	cfg     *config.Config
	runner  Refresher
	metrics http.Handler
	linker  *calendar.Linker
	mux     *http.ServeMux
	now     func() time.Time
}

// NewServer constructs a new Server. metrics may be nil to leave /metrics
// unregistered.
func NewServer(cfg *config.Config, runner Refresher, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		runner:  runner,
		metrics: metrics,
		linker:  calendar.NewLinker("", ""),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	if cfg != nil {
		s.linker = calendar.NewLinker(cfg.Calendar.TemplateURL, cfg.Calendar.DetailsPrefix)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="danceimport", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Generous: POST /api/refresh may drive a headless browser.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
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
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/agenda", s.handleAgenda)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/calendar.ics", s.handleICS)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of a NormalizedEvent. Instants are null when
// the date could not be interpreted.
type eventDTO struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Location     string     `json:"location"`
	DateLabel    string     `json:"date_label"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
	AllDay       bool       `json:"all_day"`
	SourceURL    string     `json:"source_url,omitempty"`
	CalendarLink string     `json:"calendar_link,omitempty"`
	Categories   []string   `json:"categories"`
}

type categoryDTO struct {
	Label  string     `json:"label"`
	Events []eventDTO `json:"events"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	RefreshedAt     time.Time     `json:"refreshed_at"`
	Source          string        `json:"source"`
	DisplayTimeZone string        `json:"display_timezone"`
	UpcomingCount   int           `json:"upcoming_count"`
	PastCount       int           `json:"past_count"`
	DroppedCount    int           `json:"dropped_count"`
	Categories      []categoryDTO `json:"categories"`
}

type agendaEntryDTO struct {
	Day      string   `json:"day"`
	DayIndex int      `json:"day_index"`
	DayCount int      `json:"day_count"`
	Event    eventDTO `json:"event"`
}

// agendaResponse is the JSON response shape for /api/agenda.
type agendaResponse struct {
	RangeStart      time.Time        `json:"range_start"`
	RangeEnd        time.Time        `json:"range_end"`
	DisplayTimeZone string           `json:"display_timezone"`
	Entries         []agendaEntryDTO `json:"entries"`
}

type refreshResponse struct {
	RefreshedAt   time.Time `json:"refreshed_at"`
	UpcomingCount int       `json:"upcoming_count"`
	PastCount     int       `json:"past_count"`
	DroppedCount  int       `json:"dropped_count"`
}

func toDTO(ev model.NormalizedEvent, loc *time.Location) eventDTO {
	dto := eventDTO{
		ID:           ev.ID,
		Title:        ev.Title,
		Location:     ev.Location,
		DateLabel:    ev.DateLabel,
		AllDay:       ev.AllDay,
		SourceURL:    ev.SourceURL,
		CalendarLink: ev.CalendarLink,
		Categories:   ev.Categories,
	}
	if ev.Start != nil {
		t := ev.Start.In(loc)
		dto.Start = &t
	}
	if ev.End != nil {
		t := ev.End.In(loc)
		dto.End = &t
	}
	return dto
}

// snapshot writes a 503 and returns false when no refresh has succeeded yet.
func (s *Server) snapshot(w http.ResponseWriter) (refresh.Snapshot, bool) {
	snap, ok := s.runner.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no events loaded yet")
	}
	return snap, ok
}

// handleEvents returns the latest snapshot grouped by category, in label
// order.
//
// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	loc := s.runner.Location()

	resp := eventsResponse{
		RefreshedAt:     snap.RefreshedAt,
		Source:          snap.Source,
		DisplayTimeZone: loc.String(),
		UpcomingCount:   snap.Result.UpcomingCount,
		PastCount:       snap.Result.PastCount,
		DroppedCount:    snap.Result.DroppedCount,
		Categories:      make([]categoryDTO, 0, len(snap.Result.Categories)),
	}
	for _, label := range snap.Result.Categories {
		events := snap.Result.Categorized[label]
		dtos := make([]eventDTO, 0, len(events))
		for _, ev := range events {
			dtos = append(dtos, toDTO(ev, loc))
		}
		resp.Categories = append(resp.Categories, categoryDTO{Label: label, Events: dtos})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAgenda lays upcoming events out per day.
//
// GET /api/agenda?days=14
//   - days: number of days from today (default agenda_days, max 90)
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	def := 14
	if s.cfg != nil && s.cfg.AgendaDays > 0 {
		def = s.cfg.AgendaDays
	}
	days := parseIntDefault(r.URL.Query().Get("days"), def)
	if days <= 0 {
		days = def
	}
	if days > maxAgendaDays {
		days = maxAgendaDays
	}

	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	loc := s.runner.Location()

	now := s.now().In(loc)
	rangeStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	rangeEnd := rangeStart.AddDate(0, 0, days)

	entries := calendar.ExpandAgenda(snap.Result.Upcoming, rangeStart, rangeEnd.Add(-time.Nanosecond), loc)
	resp := agendaResponse{
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
		Entries:         make([]agendaEntryDTO, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, agendaEntryDTO{
			Day:      e.Day.Format("2006-01-02"),
			DayIndex: e.DayIndex,
			DayCount: e.DayCount,
			Event:    toDTO(e.Event, loc),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleICS serves the upcoming events as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	if err := s.linker.WriteICS(w, snap.Result.Upcoming, snap.RefreshedAt); err != nil {
		appLog.Error("failed to write ICS response", err)
	}
}

// handleRefresh runs one refresh cycle synchronously.
//
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	snap, err := s.runner.Run(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		RefreshedAt:   snap.RefreshedAt,
		UpcomingCount: snap.Result.UpcomingCount,
		PastCount:     snap.Result.PastCount,
		DroppedCount:  snap.Result.DroppedCount,
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
