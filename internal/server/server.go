package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"campus-ranked/internal/ranked"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
	h             handler
}

// NewServer returns new Server struct exposing the ranked engine endpoints
// with provided zap.SugaredLogger and ranked.Service
func NewServer(logger *zap.SugaredLogger, service *ranked.Service, opts ...Option) (*Server, error) {
	srv := &Server{
		logger: logger,
		h: handler{
			logger:  logger,
			service: service,
			parsers: parsers{
				userPool:    fastjson.ParserPool{},
				matchPool:   fastjson.ParserPool{},
				sendPool:    fastjson.ParserPool{},
				messagePool: fastjson.ParserPool{},
			},
		},
	}

	handlers := map[string]http.Handler{
		"/ranked/queue":           http.HandlerFunc(srv.h.enqueueAndMatch),
		"/ranked/queue/cancel":    http.HandlerFunc(srv.h.cancelQueue),
		"/ranked/status":          http.HandlerFunc(srv.h.status),
		"/ranked/messages/get":    http.HandlerFunc(srv.h.fetchMessages),
		"/ranked/messages/add":    http.HandlerFunc(srv.h.sendMessage),
		"/ranked/messages/update": http.HandlerFunc(srv.h.updateMessage),
		"/ranked/messages/delete": http.HandlerFunc(srv.h.deleteMessage),
		"/ranked/transcript/save": http.HandlerFunc(srv.h.saveTranscript),
		"/ranked/transcript/get":  http.HandlerFunc(srv.h.getTranscript),
		"/ranked/timeout":         http.HandlerFunc(srv.h.markTimeout),
	}

	mux := http.NewServeMux()
	for pattern, h := range handlers {
		mux.Handle(pattern, log(enforcePostJson(h), logger.Desugar()))
	}

	httpServer := &http.Server{
		Addr:    "0.0.0.0:9000",
		Handler: mux,
	}

	cfg := &config{httpServer: httpServer}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	srv.httpServer = httpServer
	srv.afterShutdown = cfg.afterShutdown

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
