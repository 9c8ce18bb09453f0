// Package server re-exposes the dashboard operations as a small JSON API
// that a browser dashboard can poll from its own origin.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bft-labs/mpcwatch/pkg/dashboard"
	"github.com/bft-labs/mpcwatch/pkg/log"
	"github.com/bft-labs/mpcwatch/pkg/participant"
	"github.com/bft-labs/mpcwatch/pkg/transport"
)

// maxRequestBytes bounds request bodies accepted from the browser.
const maxRequestBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer produced here.
type ErrorResponse struct {
	Error   string `json:"error"`
	Offline bool   `json:"offline,omitempty"`
}

// EndpointResponse describes the backend currently in use.
type EndpointResponse struct {
	Endpoint    string                 `json:"endpoint"`
	Participant participant.Descriptor `json:"participant"`
}

// Server serves the relay API.
type Server struct {
	service *dashboard.Service
	logger  log.Logger
	router  chi.Router
}

// New creates a server for svc.
func New(svc *dashboard.Service, logger log.Logger) *Server {
	s := &Server{service: svc, logger: log.OrNoop(logger)}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/self", s.handleSelf)
		r.Get("/participants", s.handleParticipants)
		r.Get("/endpoint", s.handleEndpoint)

		r.Get("/status", s.relay(s.service.Status))
		r.Get("/backend-output", s.relay(s.service.BackendOutput))
		r.Get("/online-status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.service.OnlineStatus(r.Context()))
		})
		r.Get("/step-progress", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.service.StepProgress(r.Context()))
		})
		r.Get("/coordinator/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.service.CoordinatorStatus(r.Context()))
		})
		r.Get("/snapshot", s.handleSnapshot)

		r.Route("/training", func(r chi.Router) {
			r.Get("/history", s.relay(s.service.TrainingHistory))
			r.Get("/status", s.relay(s.service.TrainingStatus))
			r.Get("/batch-history", s.relay(s.service.BatchHistory))
		})

		r.Route("/collaborative", func(r chi.Router) {
			r.Post("/decrypt", s.submit(s.service.CollaborativeDecrypt))
			r.Post("/refresh", s.submit(s.service.CollaborativeRefresh))
		})
	})
	return r
}

func (s *Server) handleSelf(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Self())
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, participant.All())
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, EndpointResponse{
		Endpoint:    s.service.Endpoint(),
		Participant: s.service.Self(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) relay(op func(context.Context) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := op(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeRaw(w, http.StatusOK, data)
	}
}

func (s *Server) submit(op func(context.Context, json.RawMessage) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "read request body: " + err.Error()})
			return
		}
		if len(body) > maxRequestBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		data, err := op(r.Context(), body)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeRaw(w, http.StatusOK, data)
	}
}

// writeError maps request-layer failures onto HTTP answers: upstream
// application errors pass through unchanged.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var se *transport.StatusError
	switch transport.Classify(err) {
	case transport.KindApplication:
		errors.As(err, &se)
		writeRaw(w, se.StatusCode, se.Body)
	case transport.KindConnectivity:
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Offline: true})
	case transport.KindValidation:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("relay request failed", log.Err(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("relay request",
			log.String("request_id", middleware.GetReqID(r.Context())),
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", ww.Status()),
			log.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, b)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", log.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
