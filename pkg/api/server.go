package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/cuemby/vcp/pkg/events"
	"github.com/cuemby/vcp/pkg/ipam"
	"github.com/cuemby/vcp/pkg/log"
	"github.com/cuemby/vcp/pkg/manager"
	"github.com/cuemby/vcp/pkg/orchestrator"
	"github.com/cuemby/vcp/pkg/security"
	"github.com/cuemby/vcp/pkg/types"
)

// Config holds the REST server's own settings, separate from the
// manager/orchestrator it fronts.
type Config struct {
	AllowedOrigins []string
}

// Server is the REST control surface: a chi router wired to the
// manager (reads, users/roles), the orchestrator service (writes that
// dispatch to an agent), the IP allocator (network address endpoints),
// and the security package's token/RBAC primitives.
type Server struct {
	router *chi.Mux
	http   *http.Server

	manager      *manager.Manager
	orchestrator *orchestrator.Service
	ipam         *ipam.Allocator
	tokens       *security.TokenManager
	rbac         *security.RBAC
	broker       *events.Broker
	logger       zerolog.Logger
}

// NewServer wires a Server over already-constructed dependencies,
// mirroring orchestrator.NewService's assembled-elsewhere convention.
func NewServer(mgr *manager.Manager, svc *orchestrator.Service, alloc *ipam.Allocator, tokens *security.TokenManager, cfg Config) *Server {
	s := &Server{
		manager:      mgr,
		orchestrator: svc,
		ipam:         alloc,
		tokens:       tokens,
		rbac:         security.NewRBAC(mgr.GetRole),
		broker:       mgr.GetEventBroker(),
		logger:       log.WithComponent("api"),
	}
	s.routes(cfg)
	return s
}

func (s *Server) routes(cfg Config) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.Recoverer, s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/nodes", func(r chi.Router) {
			r.With(s.requirePermission(types.PermNodeRead)).Get("/", s.listNodes)
			r.With(s.requirePermission(types.PermNodeRead)).Get("/stats", s.nodeStats)
			r.With(s.requirePermission(types.PermNodeWrite)).Post("/", s.createNode)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.requirePermission(types.PermNodeRead)).Get("/", s.getNode)
				r.With(s.requirePermission(types.PermNodeWrite)).Put("/", s.updateNode)
				r.With(s.requirePermission(types.PermNodeWrite)).Delete("/", s.deleteNode)
				r.With(s.requirePermission(types.PermNodeWrite)).Post("/heartbeat", s.heartbeatNode)
			})
		})

		r.Route("/vms", func(r chi.Router) {
			r.With(s.requirePermission(types.PermVMRead)).Get("/", s.listVMs)
			r.With(s.requirePermission(types.PermVMWrite)).Post("/", s.createVM)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.requirePermission(types.PermVMRead)).Get("/", s.getVM)
				r.With(s.requirePermission(types.PermVMWrite)).Put("/", s.updateVM)
				r.With(s.requirePermission(types.PermVMWrite)).Delete("/", s.deleteVM)
				r.With(s.requirePermission(types.PermVMWrite)).Post("/start", s.startVM)
				r.With(s.requirePermission(types.PermVMWrite)).Post("/stop", s.stopVM)
				r.With(s.requirePermission(types.PermVMWrite)).Post("/restart", s.restartVM)
				r.With(s.requirePermission(types.PermVMWrite)).Post("/migrate", s.migrateVM)
				r.With(s.requirePermission(types.PermVMWrite)).Post("/volumes/attach", s.attachVolume)
				r.With(s.requirePermission(types.PermVMWrite)).Post("/volumes/detach", s.detachVolume)
				r.With(s.requirePermission(types.PermVMRead)).Get("/volumes", s.vmVolumes)
				r.With(s.requirePermission(types.PermVMRead)).Get("/networks", s.vmNetworks)
			})
		})

		r.Route("/storage/pools", func(r chi.Router) {
			r.With(s.requirePermission(types.PermVolumeRead)).Get("/", s.listPools)
			r.With(s.requirePermission(types.PermVolumeWrite)).Post("/", s.createPool)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.requirePermission(types.PermVolumeRead)).Get("/", s.getPool)
				r.With(s.requirePermission(types.PermVolumeWrite)).Put("/", s.updatePool)
				r.With(s.requirePermission(types.PermVolumeWrite)).Delete("/", s.deletePool)
			})
		})

		r.Route("/storage/volumes", func(r chi.Router) {
			r.With(s.requirePermission(types.PermVolumeRead)).Get("/", s.listVolumes)
			r.With(s.requirePermission(types.PermVolumeWrite)).Post("/", s.createVolume)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.requirePermission(types.PermVolumeRead)).Get("/", s.getVolume)
				r.With(s.requirePermission(types.PermVolumeWrite)).Put("/", s.updateVolume)
				r.With(s.requirePermission(types.PermVolumeWrite)).Delete("/", s.deleteVolume)
				r.With(s.requirePermission(types.PermVolumeWrite)).Post("/resize", s.resizeVolume)
				r.With(s.requirePermission(types.PermVolumeWrite)).Post("/clone", s.cloneVolume)
				r.With(s.requirePermission(types.PermVolumeWrite)).Post("/snapshot", s.snapshotVolume)
			})
		})

		r.Route("/storage/snapshots", func(r chi.Router) {
			r.With(s.requirePermission(types.PermVolumeRead)).Get("/", s.listSnapshots)
			r.With(s.requirePermission(types.PermVolumeWrite)).Post("/", s.createSnapshot)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.requirePermission(types.PermVolumeRead)).Get("/", s.getSnapshot)
				r.With(s.requirePermission(types.PermVolumeWrite)).Put("/", s.updateSnapshot)
				r.With(s.requirePermission(types.PermVolumeWrite)).Delete("/", s.deleteSnapshot)
				r.With(s.requirePermission(types.PermVolumeWrite)).Post("/restore", s.restoreSnapshot)
			})
		})

		r.Route("/networks", func(r chi.Router) {
			r.With(s.requirePermission(types.PermNetworkRead)).Get("/", s.listNetworks)
			r.With(s.requirePermission(types.PermNetworkWrite)).Post("/", s.createNetwork)
			r.Route("/{id}", func(r chi.Router) {
				r.With(s.requirePermission(types.PermNetworkRead)).Get("/", s.getNetwork)
				r.With(s.requirePermission(types.PermNetworkWrite)).Put("/", s.updateNetwork)
				r.With(s.requirePermission(types.PermNetworkWrite)).Delete("/", s.deleteNetwork)
				r.With(s.requirePermission(types.PermNetworkRead)).Get("/ips", s.networkIPs)
				r.With(s.requirePermission(types.PermNetworkWrite)).Post("/allocate-ip", s.allocateIP)
				r.With(s.requirePermission(types.PermNetworkWrite)).Post("/release-ip", s.releaseIP)
			})
		})
	})

	r.Get("/ws/frontend", s.handleWSFrontend)

	s.router = r
}

// Start runs the REST server until it errors or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("REST API listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the REST server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
