package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/pkg/log"
)

type Querier interface {
	Call(ctx context.Context, name string, params []json.RawMessage) (any, error)
}

type Error struct {
	Error string `json:"error"`
}

type Methods struct {
	Methods []string `json:"methods"`
}

type Server struct {
	q              Querier
	srv            http.Server
	apiCredentials *Credentials
}

type Credentials struct {
	Login    string
	Password string
}

func NewServer(addr string, q Querier, credentials *Credentials) *Server {
	s := &Server{
		q:              q,
		apiCredentials: credentials,
	}

	s.srv = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.checkCredentials)

		r.Post("/", s.handleRPC)
		r.Post("/rpc", s.handleRPC)
		r.Get("/api/v1/methods", s.handleMethods)
	})
	return r
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("starting api server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) checkCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiCredentials != nil {
			login, password, ok := r.BasicAuth()
			if !ok {
				writeErr(w, 401, "unauthorized")
				return
			}

			if s.apiCredentials.Password != password || s.apiCredentials.Login != login {
				writeErr(w, 401, "unauthorized")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMethods(w http.ResponseWriter, _ *http.Request) {
	writeResp(w, Methods{Methods: gateway.Methods()})
}

func writeErr(w http.ResponseWriter, code int, text string) {
	data, _ := json.Marshal(Error{text})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func writeResp(w http.ResponseWriter, obj any) {
	data, _ := json.Marshal(obj)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	_, _ = w.Write(data)
}
