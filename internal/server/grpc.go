package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/pricing"
	"PortfolioAnalytics/internal/query"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// PortfolioService is the read API exposed over HTTP.
type PortfolioService interface {
	GetPortfolioSummary(ctx context.Context, userID uuid.UUID) (*query.SummaryResponse, error)
	GetPortfolioRisk(ctx context.Context, userID uuid.UUID) (*query.RiskResponse, error)
	GetPortfolioPerformance(ctx context.Context, userID uuid.UUID, window event.DateRange) (*query.PerformanceResponse, error)
	GetPortfolioAnalytics(ctx context.Context, userID uuid.UUID, window event.DateRange) (*query.AnalyticsResponse, error)
}

// PriceAdmin is the operator surface of the price cache.
type PriceAdmin interface {
	Invalidate(symbols ...string) int
	Stats() pricing.Stats
}

type Config struct {
	GRPCAddr       string
	HTTPAddr       string
	RequestTimeout time.Duration
}

// Server serves the HTTP/JSON API through a grpc-gateway mux, and gRPC health
// and reflection on a separate listener.
type Server struct {
	cfg           Config
	svc           PortfolioService
	prices        PriceAdmin
	healthChecker *observability.HealthChecker
	log           zerolog.Logger

	grpcServer *grpc.Server
	grpcHealth *health.Server
	httpServer *http.Server
}

// ServerDeps holds everything the handlers need. Prices and HealthChecker
// may be nil.
type ServerDeps struct {
	Service       PortfolioService
	Prices        PriceAdmin
	HealthChecker *observability.HealthChecker
	Log           zerolog.Logger
}

func New(cfg Config, deps ServerDeps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &Server{
		cfg:           cfg,
		svc:           deps.Service,
		prices:        deps.Prices,
		healthChecker: deps.HealthChecker,
		log:           deps.Log,
		grpcServer:    grpcServer,
		grpcHealth:    healthServer,
	}
}

// SetServing flips the gRPC health status together with HTTP readiness.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", st)
	if s.healthChecker != nil {
		s.healthChecker.SetReady(serving)
	}
}

// StartGRPC serves gRPC until ctx is cancelled.
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.cfg.GRPCAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP serves the JSON API until ctx is cancelled.
func (s *Server) StartHTTP(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("HTTP shutdown")
		}
	}()

	s.log.Info().Str("addr", s.cfg.HTTPAddr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
