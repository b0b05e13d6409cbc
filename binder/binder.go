package binder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ip-setkeeper/registry"

	"github.com/coreos/go-iptables/iptables"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	DirSrc = "src"
	DirDst = "dst"
)

// Binding references a set from a firewall rule. Hook is the builtin chain
// jumping into the keeper chain, e.g. INPUT or FORWARD.
type Binding struct {
	Set    string
	Hook   string
	Dir    string
	Target string
}

func (b Binding) key() string {
	return strings.Join([]string{b.Hook, b.Set, b.Dir, b.Target}, "|")
}

func (b Binding) rule() []string {
	return []string{"-m", "set", "--match-set", b.Set, b.Dir, "-j", b.Target}
}

func (b Binding) validate() error {
	if err := registry.ValidateSetName(b.Set); err != nil {
		return err
	}
	if len(b.Hook) == 0 || len(b.Target) == 0 {
		return fmt.Errorf("binding of set:%s needs hook and target", b.Set)
	}
	if b.Dir != DirSrc && b.Dir != DirDst {
		return fmt.Errorf("binding of set:%s has invalid dir:%s", b.Set, b.Dir)
	}
	return nil
}

type iptablesAPI interface {
	ChainExists(table, chain string) (bool, error)
	NewChain(table, chain string) error
	AppendUnique(table, chain string, rulespec ...string) error
	InsertUnique(table, chain string, pos int, rulespec ...string) error
	DeleteIfExists(table, chain string, rulespec ...string) error
	ClearAndDeleteChain(table, chain string) error
}

// IBinder keeps firewall rules referencing registry sets, every bound rule
// holds one reference on its set.
type IBinder interface {
	Bind(ctx context.Context, b Binding) error
	Unbind(ctx context.Context, b Binding) error
	Bindings() []Binding
	Destroy(ctx context.Context) error
}

type defaultBinder struct {
	c   *config
	ipt iptablesAPI
	reg *registry.Registry

	mu    sync.Mutex
	bound map[string]Binding
	order []string
	hooks map[string]struct{}
}

func NewBinder(reg *registry.Registry, opts ...Option) (IBinder, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, fmt.Errorf("init iptables failed, err:%w", err)
	}
	return newBinder(ipt, reg, opts...), nil
}

func newBinder(ipt iptablesAPI, reg *registry.Registry, opts ...Option) *defaultBinder {
	return &defaultBinder{
		c:     applyOpts(opts...),
		ipt:   ipt,
		reg:   reg,
		bound: make(map[string]Binding),
		hooks: make(map[string]struct{}),
	}
}

func (f *defaultBinder) ensureChain(hook string) error {
	ok, err := f.ipt.ChainExists(f.c.table, f.c.chain)
	if err != nil {
		return err
	}
	if !ok {
		if err := f.ipt.NewChain(f.c.table, f.c.chain); err != nil {
			return fmt.Errorf("create chain:%s failed, err:%w", f.c.chain, err)
		}
	}
	if _, ok := f.hooks[hook]; ok {
		return nil
	}
	if err := f.ipt.InsertUnique(f.c.table, hook, 1, "-j", f.c.chain); err != nil {
		return fmt.Errorf("insert jump to hook:%s failed, err:%w", hook, err)
	}
	f.hooks[hook] = struct{}{}
	return nil
}

func (f *defaultBinder) Bind(ctx context.Context, b Binding) error {
	if err := b.validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bound[b.key()]; ok {
		return nil
	}
	if _, err := f.reg.Acquire(b.Set); err != nil {
		return fmt.Errorf("acquire set:%s failed, err:%w", b.Set, err)
	}
	if err := f.ensureChain(b.Hook); err != nil {
		_, _ = f.reg.Release(b.Set)
		return err
	}
	if err := f.ipt.AppendUnique(f.c.table, f.c.chain, b.rule()...); err != nil {
		_, _ = f.reg.Release(b.Set)
		return fmt.Errorf("append rule of set:%s failed, err:%w", b.Set, err)
	}
	f.bound[b.key()] = b
	f.order = append(f.order, b.key())
	logutil.GetLogger(ctx).Info("bind set succ", zap.String("set", b.Set), zap.String("hook", b.Hook),
		zap.String("dir", b.Dir), zap.String("target", b.Target))
	return nil
}

func (f *defaultBinder) Unbind(ctx context.Context, b Binding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unbindLocked(ctx, b)
}

func (f *defaultBinder) unbindLocked(ctx context.Context, b Binding) error {
	if _, ok := f.bound[b.key()]; !ok {
		return fmt.Errorf("binding of set:%s not found", b.Set)
	}
	if err := f.ipt.DeleteIfExists(f.c.table, f.c.chain, b.rule()...); err != nil {
		return fmt.Errorf("delete rule of set:%s failed, err:%w", b.Set, err)
	}
	delete(f.bound, b.key())
	for i, k := range f.order {
		if k == b.key() {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	if _, err := f.reg.Release(b.Set); err != nil {
		logutil.GetLogger(ctx).Error("release set failed", zap.String("set", b.Set), zap.Error(err))
		return err
	}
	logutil.GetLogger(ctx).Info("unbind set succ", zap.String("set", b.Set), zap.String("hook", b.Hook))
	return nil
}

func (f *defaultBinder) Bindings() []Binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs := make([]Binding, 0, len(f.order))
	for _, k := range f.order {
		rs = append(rs, f.bound[k])
	}
	return rs
}

// Destroy drops every bound rule, the hook jumps and the keeper chain.
func (f *defaultBinder) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range append([]string(nil), f.order...) {
		if err := f.unbindLocked(ctx, f.bound[k]); err != nil {
			return err
		}
	}
	for hook := range f.hooks {
		if err := f.ipt.DeleteIfExists(f.c.table, hook, "-j", f.c.chain); err != nil {
			if !strings.Contains(err.Error(), "does not exist") {
				logutil.GetLogger(ctx).Error("delete chain jump rule failed", zap.String("hook", hook), zap.Error(err))
				return err
			}
			//不存在的错误直接忽略
		}
		delete(f.hooks, hook)
	}
	ok, err := f.ipt.ChainExists(f.c.table, f.c.chain)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := f.ipt.ClearAndDeleteChain(f.c.table, f.c.chain); err != nil {
		return fmt.Errorf("clean and delete chain failed, err:%w", err)
	}
	return nil
}
