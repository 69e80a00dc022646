package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/intfreactor/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// Service represents the HTTP server for the API
type Service struct {
	address string
	port    int

	status StatusSource
	intfs  InterfaceSource
	agent  AgentState

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	closed   bool
}

func NewService(host string, port int, status StatusSource, intfs InterfaceSource, agent AgentState) *Service {
	return &Service{
		address: host,
		port:    port,
		status:  status,
		intfs:   intfs,
		agent:   agent,
	}
}

// Addr returns the bound address once Start is listening.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves the API until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.address, fmt.Sprint(s.port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.server = srv
	s.listener = l
	s.mu.Unlock()

	log.Infof("Starting IntfReactor API service at %s", l.Addr())
	defer log.Info("Stopping IntfReactor API service")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("API service did not shut down cleanly")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve API")
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if !s.agent.Initialized() {
				http.Error(w, "Agent not initialized", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, AgentInfo{
			Version:          version.Version,
			Initialized:      s.agent.Initialized(),
			Enabled:          s.agent.Enabled(),
			WatchingAll:      s.agent.WatchingAll(),
			ShutdownComplete: s.agent.ShutdownComplete(),
			Undelivered:      s.agent.Undelivered(),
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, s.status.Entries())
	})
	mux.HandleFunc("/interfaces", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, s.intfs.States())
	})
	mux.HandleFunc("/ws/status", func(w http.ResponseWriter, r *http.Request) {
		StreamStatus(s, w, r)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
