package persist

import (
	"bytes"
	"context"
	"fmt"

	"ip-setkeeper/registry"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Manager struct {
	store Store
}

type saveConfig struct {
	refOffsets map[string]int
}

type SaveOption func(c *saveConfig)

// WithRefOffsets leaves out references held only by this process, e.g.
// firewall bindings, which are taken again on every start.
func WithRefOffsets(m map[string]int) SaveOption {
	return func(c *saveConfig) {
		c.refOffsets = m
	}
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Save snapshots every set of reg into the store.
func (m *Manager) Save(ctx context.Context, reg *registry.Registry, opts ...SaveOption) error {
	c := &saveConfig{}
	for _, opt := range opts {
		opt(c)
	}
	buf := &bytes.Buffer{}
	var count int
	if err := reg.Shared(func(sets []registry.SetInfo) error {
		count = len(sets)
		for i := range sets {
			sets[i].RefCount -= c.refOffsets[sets[i].Name]
			if sets[i].RefCount < 0 {
				sets[i].RefCount = 0
			}
		}
		return Encode(buf, sets)
	}); err != nil {
		return fmt.Errorf("encode registry failed, err:%w", err)
	}
	if err := m.store.WriteAll(ctx, buf.Bytes()); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Debug("save snapshot succ", zap.Int("sets", count), zap.Int("size", buf.Len()))
	return nil
}

// Restore replaces the content of reg with the stored snapshot. On any
// error reg is left as it was.
func (m *Manager) Restore(ctx context.Context, reg *registry.Registry) error {
	raw, err := m.store.ReadAll(ctx)
	if err != nil {
		return err
	}
	sets, err := Decode(raw)
	if err != nil {
		return err
	}
	if err := reg.Load(sets); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("restore snapshot succ", zap.Int("sets", len(sets)))
	return nil
}
