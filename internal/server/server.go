// Package server exposes interaction measurement over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fast-interactions/internal/cfg"
	"fast-interactions/internal/common"
	"fast-interactions/internal/dataset"
	"fast-interactions/internal/ml"
	"fast-interactions/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var errFetch = errors.New("dataset fetch failed")

// Measurer runs one interaction measurement.
type Measurer interface {
	Measure(X []dataset.Column, y dataset.Column, opts ml.Options) (*ml.Result, error)
}

// Fetcher loads a remote CSV dataset.
type Fetcher interface {
	FetchCSV(ctx context.Context, url, target string) (*dataset.Frame, error)
}

// RunStore persists measurements.
type RunStore interface {
	SaveRun(run storage.Run) (storage.Run, error)
	GetRun(id string) (storage.Run, error)
}

// MetricsInterface records front end activity.
type MetricsInterface interface {
	RequestObserve(endpoint, outcome string)
	RunsStoredInc()
	DatasetsLoadedInc()
}

// Options wires the collaborators of a Server. Fetcher, Store, Metrics and
// Gatherer may be nil.
type Options struct {
	Measurer Measurer
	Fetcher  Fetcher
	Store    RunStore
	Metrics  MetricsInterface
	Gatherer prometheus.Gatherer
	Defaults cfg.Settings
}

// Server is the HTTP front end of the ranking service.
type Server struct {
	measurer Measurer
	fetcher  Fetcher
	store    RunStore
	metrics  MetricsInterface
	defaults cfg.Settings
	upgrader websocket.Upgrader
	handler  http.Handler
	server   *http.Server
}

// New creates a server listening on port.
func New(opts Options, port int) *Server {
	s := &Server{
		measurer: opts.Measurer,
		fetcher:  opts.Fetcher,
		store:    opts.Store,
		metrics:  opts.Metrics,
		defaults: opts.Defaults,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rank", s.handleRank)
	mux.HandleFunc("/ws/rank", s.handleStream)
	mux.HandleFunc("/runs/", s.handleRun)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.handler = mux

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       common.ServerReadTimeout,
		WriteTimeout:      common.ServerWriteTimeout,
		IdleTimeout:       common.ServerIdleTimeout,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting ranking server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) observe(endpoint, outcome string) {
	if s.metrics != nil {
		s.metrics.RequestObserve(endpoint, outcome)
	}
}

// run measures a prepared job and stores it when asked to.
func (s *Server) run(j *job) (*ml.Result, string, error) {
	res, err := s.measurer.Measure(j.x, j.y, j.opts)
	if err != nil {
		return nil, "", err
	}
	if !j.store || s.store == nil {
		return res, "", nil
	}

	saved, err := s.store.SaveRun(storage.Run{
		Source:   j.source,
		Target:   j.target,
		Samples:  j.y.Len(),
		Settings: j.settings(),
		Result:   res,
	})
	if err != nil {
		// The measurement stands even when it cannot be persisted.
		log.Error().Err(err).Msg("failed to store ranking run")
		return res, "", nil
	}
	if s.metrics != nil {
		s.metrics.RunsStoredInc()
	}
	return res, saved.ID, nil
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, common.ErrMsgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	var req RankRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, common.MaxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.observe("rank", "invalid")
		http.Error(w, fmt.Sprintf("%s: %v", common.ErrMsgInvalidRequest, err), http.StatusBadRequest)
		return
	}

	j, err := s.prepare(r.Context(), &req)
	if err != nil {
		s.fail(w, "rank", err)
		return
	}
	res, runID, err := s.run(j)
	if err != nil {
		s.fail(w, "rank", err)
		return
	}

	s.observe("rank", "ok")
	writeJSON(w, http.StatusOK, RankResponse{RunID: runID, Result: res})
}

func (s *Server) fail(w http.ResponseWriter, endpoint string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("endpoint", endpoint).Msg(common.ErrMsgRankingFailed)
		s.observe(endpoint, "error")
	} else {
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("rejected ranking request")
		s.observe(endpoint, "invalid")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps the measurement error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ml.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ml.ErrShape), errors.Is(err, ml.ErrLookup):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		s.observe("ws_rank", "invalid")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(common.MaxRequestBytes)

	var req RankRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.observe("ws_rank", "invalid")
		_ = conn.WriteJSON(StreamMessage{Type: msgError, Error: fmt.Sprintf("%s: %v", common.ErrMsgInvalidRequest, err)})
		return
	}

	j, err := s.prepare(r.Context(), &req)
	if err == nil {
		var res *ml.Result
		var runID string
		if res, runID, err = s.run(j); err == nil {
			s.stream(conn, res, runID)
			return
		}
	}

	if statusFor(err) >= http.StatusInternalServerError {
		log.Error().Err(err).Str("endpoint", "ws_rank").Msg(common.ErrMsgRankingFailed)
		s.observe("ws_rank", "error")
	} else {
		s.observe("ws_rank", "invalid")
	}
	_ = conn.WriteJSON(StreamMessage{Type: msgError, Error: err.Error()})
}

func (s *Server) stream(conn *websocket.Conn, res *ml.Result, runID string) {
	for i := range res.Interactions {
		in := res.Interactions[i]
		msg := StreamMessage{
			Type:        msgInteraction,
			Rank:        i + 1,
			Interaction: &in,
			Names:       []string{res.FeatureNames[in.Features[0]], res.FeatureNames[in.Features[1]]},
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Warn().Err(err).Int("sent", i).Msg("websocket client went away")
			s.observe("ws_rank", "aborted")
			return
		}
	}

	_ = conn.WriteJSON(StreamMessage{Type: msgDone, RunID: runID})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.observe("ws_rank", "ok")
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, common.ErrMsgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "run storage is disabled", http.StatusNotFound)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	run, err := s.store.GetRun(id)
	if errors.Is(err, storage.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to load run")
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": s.store != nil,
		"time":    time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}
