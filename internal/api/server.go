// Package api serves the daemon's loopback HTTP interface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/rs/zerolog/log"

	"reminder/internal/domain"
	"reminder/internal/heartbeat"
	"reminder/internal/journal"
	"reminder/internal/normalize"
	"reminder/internal/store"
)

// HealthFunc reports the daemon's current liveness.
type HealthFunc func() (heartbeat.Status, error)

type Deps struct {
	Repo           store.Repository
	Journal        journal.Repository
	Health         HealthFunc
	Metrics        http.Handler
	AllowedOrigins []string
	Now            func() time.Time
}

type Server struct {
	repo    store.Repository
	journal journal.Repository
	health  HealthFunc
	now     func() time.Time
}

func NewServer(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	s := &Server{repo: d.Repo, journal: d.Journal, health: d.Health, now: d.Now}
	if s.now == nil {
		s.now = time.Now
	}

	r.Get("/health", s.healthz)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	r.Route("/api/reminders", func(r chi.Router) {
		r.Get("/", s.listReminders)
		r.Post("/", s.createReminder)
		r.Get("/{id}", s.getReminder)
		r.Delete("/{id}", s.deleteReminder)
		r.Post("/{id}/pause", s.pauseReminder)
		r.Post("/{id}/resume", s.resumeReminder)
		r.Get("/{id}/deliveries", s.reminderDeliveries)
	})
	r.Get("/api/deliveries", s.recentDeliveries)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"state": "running"})
		return
	}
	st, err := s.health()
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if st.State != heartbeat.Running {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	var (
		rs  []domain.Reminder
		err error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		rs, err = s.repo.FilterByTag(r.Context(), tag)
	} else {
		rs, err = s.repo.Load(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("all") != "true" {
		open := rs[:0]
		for _, rem := range rs {
			if !rem.Completed {
				open = append(open, rem)
			}
		}
		rs = open
	}
	store.SortByNextTrigger(rs)
	writeJSON(w, http.StatusOK, rs)
}

type createReq struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Time        string   `json:"time"`
	Cron        string   `json:"cron"`
	Tags        []string `json:"tags"`
}

func (c createReq) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.Time, validation.By(func(interface{}) error {
			switch {
			case c.Time == "" && c.Cron == "":
				return errors.New("time or cron is required")
			case c.Time != "" && c.Cron != "":
				return errors.New("time and cron are mutually exclusive")
			}
			return nil
		})),
	)
}

func (s *Server) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.now()
	var (
		rem domain.Reminder
		err error
	)
	if req.Cron != "" {
		var expr string
		if expr, err = normalize.ParseCron(req.Cron); err == nil {
			rem, err = domain.NewRecurring(req.Title, req.Description, expr, req.Tags, now)
		}
	} else {
		var at time.Time
		if at, err = normalize.ParseTime(req.Time, now); err == nil {
			rem, err = domain.NewOneTime(req.Title, req.Description, at, req.Tags, now)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.repo.Add(r.Context(), rem); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := s.repo.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	ok, err := s.repo.Delete(r.Context(), chi.URLParam(r, "id"))
	s.writeMutation(w, ok, err)
}

func (s *Server) pauseReminder(w http.ResponseWriter, r *http.Request) {
	ok, err := s.repo.Pause(r.Context(), chi.URLParam(r, "id"))
	s.writeMutation(w, ok, err)
}

func (s *Server) resumeReminder(w http.ResponseWriter, r *http.Request) {
	ok, err := s.repo.Resume(r.Context(), chi.URLParam(r, "id"), s.now())
	var se *domain.ScheduleError
	if ok && errors.As(err, &se) {
		log.Warn().Err(err).Msg("resumed reminder has no next trigger")
		err = nil
	}
	s.writeMutation(w, ok, err)
}

func (s *Server) writeMutation(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reminderDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	rem, err := s.repo.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ds, err := s.journal.ForReminder(r.Context(), rem.ID, limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) recentDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	ds, err := s.journal.Recent(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return 50
	}
	return n
}

func writeError(w http.ResponseWriter, err error) {
	var amb *domain.AmbiguousIDError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &amb):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidInput):
		// Guidance text follows a blank line; the first line is enough here.
		msg, _, _ := strings.Cut(err.Error(), "\n")
		http.Error(w, msg, http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("api request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
