package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/usb-isoupdater/isoupdater/internal/config"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/internal/store"
	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
	"golang.org/x/sync/semaphore"
)

const (
	LogFieldRequestID   = "requestId"
	LogFieldHTTPRequest = "httpRequest"
	LogFieldStatus      = "status"
	LogFieldReason      = "reason"
)

type ReleaseSource interface {
	Resolve(ctx context.Context, v *distro.Variant, arch, pinned string) (*distro.Resolved, error)
}

type DeviceResolver interface {
	Resolve(configured catalog.USBIdentity) (catalog.Device, error)
}

type Syncer interface {
	Run(ctx context.Context, entries []catalog.Entry, targetPath string) catalog.Report
}

type Server struct {
	router        chi.Router
	log           *logrus.Logger
	config        *config.UpdaterConfig
	catalog       *distro.Catalog
	source        ReleaseSource
	store         *store.Store
	devices       DeviceResolver
	syncer        Syncer
	syncSemaphore *semaphore.Weighted
	cache         *cache.Cache

	lastReportMu sync.Mutex
	lastReport   *catalog.Report
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"service": "usb-isoupdater",
		"target":  s.config.TargetPath,
		"version": s.config.Version,
	})
}

func New(log *logrus.Logger, cfg *config.UpdaterConfig, c *distro.Catalog, source ReleaseSource, st *store.Store, devices DeviceResolver, syncer Syncer) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:        router,
		log:           log,
		config:        cfg,
		catalog:       c,
		source:        source,
		store:         st,
		devices:       devices,
		syncer:        syncer,
		syncSemaphore: semaphore.NewWeighted(1),
		cache:         cache.New(5*time.Minute, 10*time.Minute),
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	// a sync pass downloads whole images and is not bounded by the request timeout
	router.With(server.authMiddleware).Post("/api/v1/sync", server.runSync)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))
		r.Get("/", server.indexHandler)
		r.With(server.cacheMiddleware).Group(func(r chi.Router) {
			r.Get("/api/v1/distros", server.listDistros)
			r.Get("/api/v1/distros/{distro}", server.getDistro)
			r.Get("/api/v1/distros/{distro}/{arch}/release", server.getRelease)
		})
		r.Get("/api/v1/config", server.getConfig)
		r.Get("/api/v1/usb", server.getUSBDevice)
		r.Get("/api/v1/sync/last", server.getLastSync)
		r.Get("/api/v1/metrics", server.getMetrics)
	})

	return server
}
