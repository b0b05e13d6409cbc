package ipsetkeeper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ip-setkeeper/errs"
	"ip-setkeeper/model"
	"ip-setkeeper/persist"
	"ip-setkeeper/reconcile"
	"ip-setkeeper/registry"
	"ip-setkeeper/utils"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Keeper struct {
	c      *config
	passMu sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(opts ...Option) (*Keeper, error) {
	c := applyOpts(opts...)
	if c.reg == nil {
		return nil, fmt.Errorf("no registry found")
	}
	if c.engine == nil {
		return nil, fmt.Errorf("no engine found")
	}
	if c.persist == nil {
		return nil, fmt.Errorf("no persist manager found")
	}
	if c.localNetworkSet != "" && c.localNetworks == nil {
		return nil, fmt.Errorf("local network set:%s has no source", c.localNetworkSet)
	}
	return &Keeper{c: c, done: make(chan struct{})}, nil
}

func (k *Keeper) Registry() *registry.Registry {
	return k.c.reg
}

// Start brings the live state in line with the saved one: restore,
// repopulate, seed the configured sets, deploy, bind, save. The periodic
// loop is started last.
func (k *Keeper) Start(ctx context.Context) error {
	if err := k.restore(ctx); err != nil {
		return err
	}
	if _, err := k.repopulate(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("repopulate finish with failures", zap.Error(err))
	}
	if err := k.seedSets(ctx); err != nil {
		return err
	}
	if _, err := k.DeployNow(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("initial deploy finish with failures", zap.Error(err))
	}
	if err := k.bind(ctx); err != nil {
		return err
	}
	if err := k.SaveNow(ctx); err != nil {
		return fmt.Errorf("save snapshot failed, err:%w", err)
	}
	if k.c.syncInterval > 0 {
		k.wg.Add(1)
		go k.loop(ctx)
	}
	return nil
}

func (k *Keeper) restore(ctx context.Context) error {
	err := k.c.persist.Restore(ctx, k.c.reg)
	switch {
	case err == nil:
		return nil
	case errs.Has(err, errs.CodeNotFound):
		logutil.GetLogger(ctx).Info("no snapshot found, start with empty registry")
		return nil
	case errs.Has(err, errs.CodeCorruptPersistence):
		logutil.GetLogger(ctx).Error("snapshot corrupted, start with empty registry", zap.Error(err))
		return nil
	}
	return fmt.Errorf("restore snapshot failed, err:%w", err)
}

func (k *Keeper) repopulate(ctx context.Context) (*reconcile.RepopulateReport, error) {
	k.passMu.Lock()
	defer k.passMu.Unlock()
	return k.c.engine.Repopulate(ctx, k.c.reg)
}

func (k *Keeper) seedSets(ctx context.Context) error {
	names := make([]string, 0, len(k.c.setFiles))
	for name := range k.c.setFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		members := make([]model.Member, 0, 128)
		for _, f := range utils.StringSliceDedup(k.c.setFiles[name]) {
			lst, err := utils.ReadMemberListFromFile(f)
			if err != nil {
				return fmt.Errorf("read member list from file:%s failed, err:%w", f, err)
			}
			members = append(members, lst...)
		}
		if err := k.fillSet(name, members); err != nil {
			return fmt.Errorf("fill set:%s from files failed, err:%w", name, err)
		}
		logutil.GetLogger(ctx).Info("load set from files succ", zap.String("set", name), zap.Int("members", len(members)))
	}
	if k.c.localNetworkSet == "" {
		return nil
	}
	members, err := k.c.localNetworks()
	if err != nil {
		return fmt.Errorf("read local networks failed, err:%w", err)
	}
	if err := k.fillSet(k.c.localNetworkSet, members); err != nil {
		return fmt.Errorf("fill local network set failed, err:%w", err)
	}
	logutil.GetLogger(ctx).Info("load local network set succ", zap.String("set", k.c.localNetworkSet), zap.Int("members", len(members)))
	return nil
}

// fillSet replaces the members of name, creating the set when missing.
func (k *Keeper) fillSet(name string, members []model.Member) error {
	return k.c.reg.Exclusive(func(tx *registry.Tx) error {
		if _, ok := tx.Lookup(name); !ok {
			if err := tx.AddSet(name, 0); err != nil {
				return err
			}
		}
		return tx.ReplaceMembers(name, members)
	})
}

func (k *Keeper) bind(ctx context.Context) error {
	if k.c.binder == nil {
		return nil
	}
	for _, b := range k.c.bindings {
		if err := k.c.binder.Bind(ctx, b); err != nil {
			return fmt.Errorf("bind set:%s failed, err:%w", b.Set, err)
		}
	}
	return nil
}

// DeployNow runs one deploy pass, records it in the journal and refreshes
// the set gauges.
func (k *Keeper) DeployNow(ctx context.Context) (*reconcile.Report, error) {
	k.passMu.Lock()
	defer k.passMu.Unlock()
	rp, err := k.c.engine.Deploy(ctx, k.c.reg, k.c.deleteExtraneous)
	k.journal(ctx, rp)
	k.updateMetrics(ctx)
	return rp, err
}

// SaveNow writes a snapshot. References held by bindings are not saved,
// bind takes them again on the next start.
func (k *Keeper) SaveNow(ctx context.Context) error {
	k.passMu.Lock()
	defer k.passMu.Unlock()
	return k.c.persist.Save(ctx, k.c.reg, persist.WithRefOffsets(k.bindingRefs()))
}

func (k *Keeper) bindingRefs() map[string]int {
	if k.c.binder == nil {
		return nil
	}
	rs := make(map[string]int)
	for _, b := range k.c.binder.Bindings() {
		rs[b.Set]++
	}
	return rs
}

// pruneJournal drops journal rows older than the retention.
func (k *Keeper) pruneJournal(ctx context.Context) {
	if k.c.deployDao == nil || k.c.journalRetention <= 0 {
		return
	}
	before := uint64(time.Now().Add(-k.c.journalRetention).UnixMilli())
	cnt, err := k.c.deployDao.PruneDeploy(ctx, before)
	if err != nil {
		logutil.GetLogger(ctx).Error("prune deploy journal failed", zap.Error(err))
		return
	}
	if cnt > 0 {
		logutil.GetLogger(ctx).Debug("prune deploy journal succ", zap.Int64("rows", cnt))
	}
}

func (k *Keeper) journal(ctx context.Context, rp *reconcile.Report) {
	if k.c.deployDao == nil || rp == nil {
		return
	}
	item := &model.DeployTab{
		Sets:      int64(rp.Sets),
		Created:   int64(len(rp.Created)),
		Added:     int64(len(rp.Added)),
		Deleted:   int64(len(rp.Deleted)),
		Destroyed: int64(len(rp.Destroyed)),
		Failures:  int64(len(rp.Failures)),
	}
	if err := rp.Err(); err != nil {
		item.Detail = err.Error()
	}
	if err := k.c.deployDao.AddDeploy(ctx, item); err != nil {
		logutil.GetLogger(ctx).Error("write deploy journal failed", zap.Error(err))
	}
}

func (k *Keeper) updateMetrics(ctx context.Context) {
	if k.c.metrics == nil {
		return
	}
	if err := k.c.metrics.UpdateSets(k.c.reg); err != nil {
		logutil.GetLogger(ctx).Error("update set metrics failed", zap.Error(err))
	}
}

func (k *Keeper) loop(ctx context.Context) {
	defer k.wg.Done()
	ticker := time.NewTicker(k.c.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := k.DeployNow(ctx); err != nil {
				logutil.GetLogger(ctx).Error("periodic deploy failed", zap.Error(err))
			}
			if err := k.SaveNow(ctx); err != nil {
				logutil.GetLogger(ctx).Error("periodic save failed", zap.Error(err))
			}
			k.pruneJournal(ctx)
		case <-k.done:
			logutil.GetLogger(ctx).Debug("sync loop exit")
			return
		case <-ctx.Done():
			logutil.GetLogger(ctx).Debug("sync loop exit by context")
			return
		}
	}
}

// Stop ends the sync loop, removes the bindings, saves a last snapshot and
// closes the registry. Only the first call does anything.
func (k *Keeper) Stop(ctx context.Context) error {
	var err error
	k.once.Do(func() {
		logutil.GetLogger(ctx).Debug("start handle stop action")
		close(k.done)
		k.wg.Wait()
		if k.c.binder != nil {
			if berr := k.c.binder.Destroy(ctx); berr != nil {
				logutil.GetLogger(ctx).Error("clean binder rules failed", zap.Error(berr))
			}
		}
		if serr := k.SaveNow(ctx); serr != nil {
			err = fmt.Errorf("save snapshot failed, err:%w", serr)
		}
		_ = k.c.reg.Close()
		logutil.GetLogger(ctx).Debug("handle stop action finish")
	})
	return err
}
