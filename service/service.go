package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/virtinfra/guest-acceptor/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	MetricsHost = "0.0.0.0"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	healthzPort string
	metricsPort string
}

func New(version, healthzPort, metricsPort string) *Service {
	s := &Service{
		Healthz:     &HealthzServer{Version: version},
		Metrics:     &MetricsServer{},
		healthzPort: healthzPort,
		metricsPort: metricsPort,
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	zap.S().Info("service starting")

	go func() {
		addr := net.JoinHostPort(HealthzHost, s.healthzPort)
		zap.S().Infow("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorw("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	go func() {
		addr := net.JoinHostPort(MetricsHost, s.metricsPort)
		zap.S().Infow("starting metrics server", "addr", addr)
		if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorw("error starting metrics server", "err", err)
			metrics.RecordErrorDetails("error starting metrics server", err)
		}
	}()

	zap.S().Info("service started")
}

func (s *Service) Shutdown() {
	zap.S().Info("service shutting down")

	_ = s.Healthz.Shutdown()
	zap.S().Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	zap.S().Info("metrics stopped")

	zap.S().Info("service stopped")
}
