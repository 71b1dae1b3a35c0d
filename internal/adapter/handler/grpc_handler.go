package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// InventoryServiceName is the service name reported by the health endpoint.
const InventoryServiceName = "patrion.Inventory"

const probeTimeout = 3 * time.Second

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCHandler serves grpc.health.v1. Its status follows store reachability,
// which Run re-checks every interval.
type GRPCHandler struct {
	health   *health.Server
	store    Pinger
	interval time.Duration
	logger   *zap.Logger
	metrics  *Metrics
}

func NewGRPCHandler(store Pinger, interval time.Duration, logger *zap.Logger, metrics *Metrics) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GRPCHandler{
		health:   health.NewServer(),
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Run probes the store until ctx is cancelled, then marks every service as
// not serving.
func (h *GRPCHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *GRPCHandler) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store unreachable", zap.Error(err))
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		h.metrics.setStoreUp(false)
		return
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
	h.metrics.setStoreUp(true)
}

func (h *GRPCHandler) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(InventoryServiceName, status)
}
