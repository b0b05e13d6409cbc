package ipsetkeeper

import (
	"time"

	"ip-setkeeper/binder"
	"ip-setkeeper/dao"
	"ip-setkeeper/metrics"
	"ip-setkeeper/model"
	"ip-setkeeper/persist"
	"ip-setkeeper/reconcile"
	"ip-setkeeper/registry"
)

// LocalNetworkFunc lists the networks seeded into the local network set.
type LocalNetworkFunc func() ([]model.Member, error)

type config struct {
	reg              *registry.Registry
	engine           *reconcile.Engine
	persist          *persist.Manager
	binder           binder.IBinder
	deployDao        dao.IDeployDao
	journalRetention time.Duration
	metrics          *metrics.Metrics
	deleteExtraneous bool
	syncInterval     time.Duration

	//
	setFiles        map[string][]string
	localNetworkSet string
	localNetworks   LocalNetworkFunc
	bindings        []binder.Binding
}

type Option func(c *config)

func WithRegistry(r *registry.Registry) Option {
	return func(c *config) {
		c.reg = r
	}
}

func WithEngine(e *reconcile.Engine) Option {
	return func(c *config) {
		c.engine = e
	}
}

func WithPersistManager(m *persist.Manager) Option {
	return func(c *config) {
		c.persist = m
	}
}

func WithBinder(b binder.IBinder, bindings []binder.Binding) Option {
	return func(c *config) {
		c.binder = b
		c.bindings = bindings
	}
}

func WithDeployDao(d dao.IDeployDao) Option {
	return func(c *config) {
		c.deployDao = d
	}
}

// WithJournalRetention keeps journal rows for d, 0 keeps them forever.
func WithJournalRetention(d time.Duration) Option {
	return func(c *config) {
		c.journalRetention = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func WithDeleteExtraneous(v bool) Option {
	return func(c *config) {
		c.deleteExtraneous = v
	}
}

// WithSyncInterval enables the periodic deploy and save loop, 0 disables it.
func WithSyncInterval(d time.Duration) Option {
	return func(c *config) {
		c.syncInterval = d
	}
}

// WithSetFiles maps a set name to the list files filling it at start.
func WithSetFiles(m map[string][]string) Option {
	return func(c *config) {
		c.setFiles = m
	}
}

func WithLocalNetworkSet(name string, fn LocalNetworkFunc) Option {
	return func(c *config) {
		c.localNetworkSet = name
		c.localNetworks = fn
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
