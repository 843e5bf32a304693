// Package http exposes the import pipeline over a small JSON API alongside
// health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"songlift/internal/core"
	"songlift/internal/flood"
)

const maxRequestBody = 4 << 20 // 4 MiB of song lines is far beyond any real batch

// Engine is the application core the API delegates to; implemented by
// core.Service.
type Engine interface {
	ProcessSongs(ctx context.Context, input io.Reader, concurrency, batchSize int) (*core.Report, error)
	CreatePlaylist(ctx context.Context, name string, public bool, description string, uris []string) (*core.PlaylistResult, error)
}

type Server struct {
	config   *core.ServerConfig
	engine   Engine
	throttle *flood.Throttle
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
}

type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	SongsTotal     *prometheus.CounterVec
	ThrottledTotal prometheus.Counter
	TracksAdded    prometheus.Counter
	ProcessingTime *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songlift_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"endpoint", "status"},
		),
		SongsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songlift_songs_total",
				Help: "Total number of songs processed by match status",
			},
			[]string{"status"},
		),
		ThrottledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songlift_throttled_total",
				Help: "Total number of requests rejected by the per-client throttle",
			},
		),
		TracksAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songlift_tracks_added_total",
				Help: "Total number of tracks added to playlists",
			},
		),
		ProcessingTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songlift_processing_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	reg.MustRegister(
		metrics.RequestsTotal,
		metrics.SongsTotal,
		metrics.ThrottledTotal,
		metrics.TracksAdded,
		metrics.ProcessingTime,
	)

	return metrics
}

func NewServer(config *core.ServerConfig, engine Engine, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		engine:  engine,
		logger:  logger,
		metrics: newMetrics(prometheus.DefaultRegisterer),
	}
	if config.ThrottlePerMinute > 0 {
		s.throttle = flood.New(config.ThrottlePerMinute)
	}

	s.server = createHTTPServer(config, s.setupRoutes())

	return s
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"songlift"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"songlift"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/api/process-songs", s.throttled(http.HandlerFunc(s.handleProcessSongs)))
	mux.Handle("/api/create-playlist", s.throttled(http.HandlerFunc(s.handleCreatePlaylist)))

	return mux
}

// throttled enforces the per-client request limit before the handler runs.
func (s *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.throttle != nil && !s.throttle.Allow(clientKey(r)) {
			s.metrics.ThrottledTotal.Inc()
			s.logger.Warn("Request throttled", zap.String("client", clientKey(r)))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type processSongsRequest struct {
	SongList    string `json:"song_list"`
	Concurrency int    `json:"concurrency,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
}

type matchedSongJSON struct {
	Input        string   `json:"input"`
	Status       string   `json:"status"`
	TrackName    string   `json:"track_name"`
	TrackArtists []string `json:"track_artists"`
	URI          string   `json:"uri"`
	Album        string   `json:"album,omitempty"`
	Score        float64  `json:"score"`
}

type unmatchedSongJSON struct {
	Input  string `json:"input"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type processSongsResponse struct {
	TotalSongs     int                 `json:"total_songs"`
	MatchedSongs   []matchedSongJSON   `json:"matched_songs"`
	UnmatchedSongs []unmatchedSongJSON `json:"unmatched_songs"`
}

func (s *Server) handleProcessSongs(w http.ResponseWriter, r *http.Request) {
	const endpoint = "process-songs"
	start := time.Now()
	defer func() {
		s.metrics.ProcessingTime.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "method_not_allowed").Inc()
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req processSongsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SongList) == "" {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "song_list must not be empty")
		return
	}

	report, err := s.engine.ProcessSongs(r.Context(), strings.NewReader(req.SongList), req.Concurrency, req.BatchSize)
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "error").Inc()
		s.logger.Error("Processing songs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	resp := processSongsResponse{
		TotalSongs:     report.Summary.TotalInputLines,
		MatchedSongs:   []matchedSongJSON{},
		UnmatchedSongs: []unmatchedSongJSON{},
	}
	for _, res := range report.Results {
		s.metrics.SongsTotal.WithLabelValues(string(res.Status)).Inc()
		if res.Matched != nil {
			resp.MatchedSongs = append(resp.MatchedSongs, matchedSongJSON{
				Input:        res.Line,
				Status:       string(res.Status),
				TrackName:    res.Matched.Name,
				TrackArtists: res.Matched.Artists,
				URI:          res.Matched.URI,
				Album:        res.Matched.Album,
				Score:        res.Matched.FinalScore,
			})
			continue
		}
		resp.UnmatchedSongs = append(resp.UnmatchedSongs, unmatchedSongJSON{
			Input:  res.Line,
			Status: string(res.Status),
			Error:  res.ErrMessage,
		})
	}

	s.metrics.RequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

type createPlaylistRequest struct {
	Name        string   `json:"name"`
	Public      bool     `json:"public"`
	Description string   `json:"description,omitempty"`
	URIs        []string `json:"uris"`
}

type createPlaylistResponse struct {
	PlaylistID   string `json:"playlist_id"`
	PlaylistURL  string `json:"playlist_url"`
	Name         string `json:"name"`
	AddedTracks  int    `json:"added_tracks"`
	FailedTracks int    `json:"failed_tracks"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	const endpoint = "create-playlist"
	start := time.Now()
	defer func() {
		s.metrics.ProcessingTime.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "method_not_allowed").Inc()
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req createPlaylistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if len(req.URIs) == 0 {
		s.metrics.RequestsTotal.WithLabelValues(endpoint, "bad_request").Inc()
		writeError(w, http.StatusBadRequest, "uris must not be empty")
		return
	}

	result, err := s.engine.CreatePlaylist(r.Context(), req.Name, req.Public, req.Description, req.URIs)
	if err != nil {
		var addErr *core.PlaylistAddError
		if errors.As(err, &addErr) && result != nil {
			// Playlist exists; report the partial fill instead of failing
			// the whole request.
			s.metrics.RequestsTotal.WithLabelValues(endpoint, "partial").Inc()
			s.metrics.TracksAdded.Add(float64(result.AddedTracks))
			s.logger.Warn("Playlist filled partially",
				zap.String("playlistID", result.PlaylistID),
				zap.Int("added", result.AddedTracks),
				zap.Error(err))
			writeJSON(w, http.StatusOK, createPlaylistResponse{
				PlaylistID:   result.PlaylistID,
				PlaylistURL:  result.PlaylistURL,
				Name:         result.Name,
				AddedTracks:  result.AddedTracks,
				FailedTracks: result.FailedTracks,
				Error:        addErr.Error(),
			})
			return
		}

		s.metrics.RequestsTotal.WithLabelValues(endpoint, "error").Inc()
		s.logger.Error("Creating playlist failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.metrics.RequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	s.metrics.TracksAdded.Add(float64(result.AddedTracks))
	writeJSON(w, http.StatusOK, createPlaylistResponse{
		PlaylistID:   result.PlaylistID,
		PlaylistURL:  result.PlaylistURL,
		Name:         result.Name,
		AddedTracks:  result.AddedTracks,
		FailedTracks: result.FailedTracks,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
		if s.throttle != nil {
			s.throttle.Stop()
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
