package httpapi

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Server: HTTP-сервер API.
type Server struct {
	srv *http.Server
}

// NewServer создаёт сервер на адресе из конфигурации.
func NewServer(d Deps) *Server {
	return &Server{srv: &http.Server{
		Addr:         d.Cfg.HTTPAddr,
		Handler:      NewRouter(d),
		ReadTimeout:  d.Cfg.HTTPReadTimeout,
		WriteTimeout: d.Cfg.HTTPWriteTimeout,
	}}
}

// Run слушает порт до ctx.Done(), затем дожидается текущих запросов.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.srv.Addr).Info("HTTP API запущен")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.srv.WriteTimeout+s.srv.ReadTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("HTTP API остановлен")
	return nil
}
