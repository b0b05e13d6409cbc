package api

import (
	"context"
	"net/http"

	"ip-setkeeper/dao"
	"ip-setkeeper/reconcile"
	"ip-setkeeper/registry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the part of the keeper the http api drives.
type Service interface {
	Registry() *registry.Registry
	DeployNow(ctx context.Context) (*reconcile.Report, error)
	SaveNow(ctx context.Context) error
}

type config struct {
	deployDao dao.IDeployDao
	gatherer  prometheus.Gatherer
}

type Option func(c *config)

func WithDeployDao(d dao.IDeployDao) Option {
	return func(c *config) {
		c.deployDao = d
	}
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *config) {
		c.gatherer = g
	}
}

func NewRouter(svc Service, opts ...Option) http.Handler {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	h := &handler{svc: svc, deployDao: c.deployDao}

	r := chi.NewRouter()
	r.Use(Recovery)
	r.Use(Logger)

	r.Get("/health", h.Health)
	if c.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sets", h.ListSets)
		r.Post("/sets", h.CreateSet)
		r.Delete("/sets", h.DeleteSets)
		r.Get("/sets/{name}", h.GetSet)
		r.Delete("/sets/{name}", h.DeleteSet)
		r.Post("/sets/{name}/members", h.AddMember)
		r.Delete("/sets/{name}/members", h.FlushSet)
		r.Get("/sets/{name}/lookup", h.Lookup)
		r.Post("/deploy", h.Deploy)
		r.Post("/save", h.Save)
		r.Get("/deploys", h.ListDeploys)
	})
	return r
}
