package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"
)

type Config struct {
	Addr            string        // ":8080"
	ReadTimeout     time.Duration // 15s
	WriteTimeout    time.Duration // 30s
	IdleTimeout     time.Duration // 60s
	ShutdownTimeout time.Duration // 10s
}

type Server struct {
	cfg Config
	srv *http.Server

	// onShutdown вызывается после Shutdown: hijacked WS-соединения сервер сам не закрывает.
	onShutdown []func(context.Context) error
}

func New(cfg Config, handler http.Handler) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{
		cfg: cfg,
		srv: s,
	}
}

// OnShutdown регистрирует хук, выполняемый при остановке в пределах ShutdownTimeout.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run запускает HTTP-сервер и блокирует до завершения ctx.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logger.L().Info("http listening", slog.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := s.srv.Shutdown(shCtx)
		for _, fn := range s.onShutdown {
			if hookErr := fn(shCtx); hookErr != nil {
				logger.L().Warn("shutdown hook failed", slog.Any("err", hookErr))
				err = errors.Join(err, hookErr)
			}
		}
		logger.L().Info("http stopped")
		return err
	case err := <-errCh:
		return err
	}
}
