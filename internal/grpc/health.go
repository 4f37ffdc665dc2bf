package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name clients may query besides ""
const ServiceName = "library.catalog"

// Pinger reports whether the catalog store is reachable
type Pinger interface {
	Ping() error
}

// BrokerStatus reports whether the event broker connection is usable
type BrokerStatus interface {
	IsHealthy() bool
}

// HealthServer implements the gRPC health checking protocol for the catalog
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	store    Pinger
	broker   BrokerStatus
	interval time.Duration
	log      *zap.Logger
}

// NewHealthServer creates a new health check server. broker may be nil
// when event publishing is disabled.
func NewHealthServer(store Pinger, broker BrokerStatus, log *zap.Logger) *HealthServer {
	return &HealthServer{
		store:    store,
		broker:   broker,
		interval: 5 * time.Second,
		log:      log,
	}
}

// Register attaches the health service to s
func Register(s *grpc.Server, h *HealthServer) {
	grpc_health_v1.RegisterHealthServer(s, h)
}

// Check implements the health check
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if !knownService(req.GetService()) {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	return &grpc_health_v1.HealthCheckResponse{Status: h.status()}, nil
}

// Watch streams the serving status, sending an update whenever it changes
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	if !knownService(req.GetService()) {
		return server.Send(&grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN,
		})
	}

	last := h.status()
	if err := server.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil {
		return err
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-server.Context().Done():
			return nil
		case <-ticker.C:
			current := h.status()
			if current == last {
				continue
			}
			last = current
			if err := server.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
		}
	}
}

// Healthy reports the combined store and broker health
func (h *HealthServer) Healthy() bool {
	return h.status() == grpc_health_v1.HealthCheckResponse_SERVING
}

func (h *HealthServer) status() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if err := h.store.Ping(); err != nil {
		h.log.Error("Database health check failed", zap.Error(err))
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}

	if h.broker != nil && !h.broker.IsHealthy() {
		h.log.Error("RabbitMQ health check failed")
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}

	return grpc_health_v1.HealthCheckResponse_SERVING
}

func knownService(name string) bool {
	return name == "" || name == ServiceName
}
