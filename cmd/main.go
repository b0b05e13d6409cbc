package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ipsetkeeper "ip-setkeeper"
	"ip-setkeeper/api"
	"ip-setkeeper/binder"
	"ip-setkeeper/config"
	"ip-setkeeper/dao"
	"ip-setkeeper/db"
	"ip-setkeeper/ipset"
	"ip-setkeeper/metrics"
	"ip-setkeeper/model"
	"ip-setkeeper/persist"
	"ip-setkeeper/reconcile"
	"ip-setkeeper/registry"
	"ip-setkeeper/route"

	"github.com/xxxsen/common/logger"
	"go.uber.org/zap"
)

var conf = flag.String("config", "./config.json", "config")
var dump = flag.Bool("dump", false, "print the saved snapshot and exit")

func main() {
	flag.Parse()
	c, err := config.Parse(*conf)
	if err != nil {
		log.Fatalf("parse config failed, err:%v", err)
	}
	log.Printf("config init succ, config:%+v", *c)
	logkit := logger.Init(c.LogConfig.File, c.LogConfig.Level, int(c.LogConfig.FileCount), int(c.LogConfig.FileSize), int(c.LogConfig.KeepDays), c.LogConfig.Console)

	reg, err := registry.New(
		registry.WithCommandPrefix(c.CommandPrefix),
		registry.WithPersistencePath(c.PersistencePath),
		registry.WithMaxSets(c.MaxSets),
		registry.WithMaxMembersPerSet(c.MaxMembersPerSet),
	)
	if err != nil {
		logkit.Fatal("init registry failed", zap.Error(err))
	}
	var deployDao dao.IDeployDao
	var store persist.Store = persist.NewFileStore(c.PersistencePath)
	if len(c.DBFile) > 0 {
		if err := db.InitDB(c.DBFile); err != nil {
			logkit.Fatal("init db failed", zap.Error(err))
		}
		if deployDao, err = dao.NewDeployDao(); err != nil {
			logkit.Fatal("init deploy dao failed", zap.Error(err))
		}
		if c.SnapshotBackend == config.SnapshotBackendDB {
			snapshotDao, err := dao.NewSnapshotDao()
			if err != nil {
				logkit.Fatal("init snapshot dao failed", zap.Error(err))
			}
			store = persist.NewDBStore(c.PersistencePath, snapshotDao)
		}
	}
	pm := persist.NewManager(store)
	if *dump {
		if err := pm.Restore(context.Background(), reg); err != nil {
			logkit.Fatal("restore snapshot failed", zap.Error(err))
		}
		if err := reg.Dump(os.Stdout); err != nil {
			logkit.Fatal("dump registry failed", zap.Error(err))
		}
		return
	}

	backend, err := ipset.New(reg.Config().CommandPrefix)
	if err != nil {
		logkit.Fatal("init ipset backend failed", zap.Error(err))
	}
	if ver, proto, err := backend.Version(context.Background()); err == nil {
		logkit.Info("ipset backend ready", zap.String("version", ver), zap.String("protocol", proto))
	} else {
		logkit.Warn("read ipset version failed", zap.Error(err))
	}
	mt := metrics.Get()
	engine := reconcile.New(backend,
		reconcile.WithCommandTimeout(c.CommandTimeoutDuration()),
		reconcile.WithManagedPrefix(c.ManagedPrefix),
		reconcile.WithRecorder(mt),
	)
	opts := []ipsetkeeper.Option{
		ipsetkeeper.WithRegistry(reg),
		ipsetkeeper.WithEngine(engine),
		ipsetkeeper.WithPersistManager(pm),
		ipsetkeeper.WithMetrics(mt),
		ipsetkeeper.WithDeleteExtraneous(c.DeleteExtraneous),
		ipsetkeeper.WithSyncInterval(c.SyncIntervalDuration()),
		ipsetkeeper.WithSetFiles(c.SetFiles),
	}
	if deployDao != nil {
		opts = append(opts, ipsetkeeper.WithDeployDao(deployDao), ipsetkeeper.WithJournalRetention(c.JournalRetentionDuration()))
	}
	if len(c.LocalNetworkSet) > 0 {
		ifaces := c.LocalInterfaces
		opts = append(opts, ipsetkeeper.WithLocalNetworkSet(c.LocalNetworkSet, func() ([]model.Member, error) {
			return route.LocalNetworks(ifaces...)
		}))
	}
	if len(c.Bindings) > 0 {
		bd, err := binder.NewBinder(reg)
		if err != nil {
			logkit.Fatal("init binder failed", zap.Error(err))
		}
		opts = append(opts, ipsetkeeper.WithBinder(bd, toBindings(c.Bindings)))
	}
	keeper, err := ipsetkeeper.New(opts...)
	if err != nil {
		logkit.Fatal("init keeper failed", zap.Error(err))
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	logkit.Info("start keeper...")
	if err := keeper.Start(ctx); err != nil {
		logkit.Fatal("start keeper failed", zap.Error(err))
	}

	var srv *http.Server
	if len(c.Listen) > 0 {
		apiOpts := []api.Option{api.WithGatherer(mt.Gatherer())}
		if deployDao != nil {
			apiOpts = append(apiOpts, api.WithDeployDao(deployDao))
		}
		srv = &http.Server{Addr: c.Listen, Handler: api.NewRouter(keeper, apiOpts...)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logkit.Error("http server exit", zap.Error(err))
			}
		}()
		logkit.Info("http api listening", zap.String("listen", c.Listen))
	}

	<-ctx.Done()
	logkit.Info("recv stop signal, stopping...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if srv != nil {
		_ = srv.Shutdown(stopCtx)
	}
	if err := keeper.Stop(stopCtx); err != nil {
		logkit.Error("stop keeper failed", zap.Error(err))
	}
}

func toBindings(items []config.BindingConfig) []binder.Binding {
	rs := make([]binder.Binding, 0, len(items))
	for _, item := range items {
		dir := item.Dir
		if len(dir) == 0 {
			dir = binder.DirSrc
		}
		rs = append(rs, binder.Binding{Set: item.Set, Hook: item.Hook, Dir: dir, Target: item.Target})
	}
	return rs
}
