package reconcile

import (
	"context"
	"fmt"

	"ip-setkeeper/model"
	"ip-setkeeper/registry"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RepopulateReport summarizes one repopulate pass.
type RepopulateReport struct {
	// Updated sets got their members replaced by the live ones.
	Updated []string
	// Imported sets exist live only and were added with no reference.
	Imported []string
	// Dropped sets vanished live and had no reference.
	Dropped []string
	// Vanished sets vanished live but are still referenced, they are kept
	// empty so the next deploy recreates them.
	Vanished []string
	Failures []error
}

func (rp *RepopulateReport) fail(ctx context.Context, set string, err error) {
	rp.Failures = append(rp.Failures, err)
	logutil.GetLogger(ctx).Error("repopulate set failed", zap.String("set", set), zap.Error(err))
}

// Repopulate rebuilds set membership from the live state. Reference counts
// of surviving sets are kept. A set whose live listing fails is left as it
// is and the failure is reported with the others at the end.
func (e *Engine) Repopulate(ctx context.Context, reg *registry.Registry) (*RepopulateReport, error) {
	rp := &RepopulateReport{}
	err := reg.Exclusive(func(tx *registry.Tx) error {
		names, err := e.listSets(ctx)
		if err != nil {
			ce := &BackendCommandError{Op: OpListSets, Cause: err}
			rp.fail(ctx, "", ce)
			return nil
		}
		liveNames := make(map[string]struct{}, len(names))
		for _, name := range names {
			liveNames[name] = struct{}{}
		}
		sets := tx.Sets()
		candidates := make([]string, 0, len(names)+len(sets))
		seen := make(map[string]struct{}, len(names)+len(sets))
		for _, s := range sets {
			candidates = append(candidates, s.Name)
			seen[s.Name] = struct{}{}
		}
		for _, name := range names {
			if _, ok := seen[name]; ok || !e.managed(name) {
				continue
			}
			candidates = append(candidates, name)
			seen[name] = struct{}{}
		}

		live := make(map[string][]model.Member, len(candidates))
		skip := make(map[string]struct{})
		for _, name := range candidates {
			if _, ok := liveNames[name]; !ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			members, exists, err := e.listMembers(ctx, name)
			if err != nil {
				rp.fail(ctx, name, &BackendCommandError{Op: OpListMembers, Set: name, Cause: err})
				skip[name] = struct{}{}
				continue
			}
			if !exists {
				continue
			}
			live[name] = members
		}

		for _, s := range sets {
			if _, ok := skip[s.Name]; ok {
				continue
			}
			members, ok := live[s.Name]
			if ok {
				if err := tx.ReplaceMembers(s.Name, members); err != nil {
					rp.fail(ctx, s.Name, fmt.Errorf("replace members of set:%s failed, err:%w", s.Name, err))
					continue
				}
				rp.Updated = append(rp.Updated, s.Name)
				continue
			}
			if s.RefCount > 0 {
				if err := tx.Flush(s.Name); err != nil {
					rp.fail(ctx, s.Name, err)
					continue
				}
				rp.Vanished = append(rp.Vanished, s.Name)
				logutil.GetLogger(ctx).Warn("referenced set vanished from live state",
					zap.String("set", s.Name), zap.Int("ref_count", s.RefCount))
				continue
			}
			if err := tx.RemoveSet(s.Name); err != nil {
				rp.fail(ctx, s.Name, err)
				continue
			}
			rp.Dropped = append(rp.Dropped, s.Name)
		}

		for _, name := range candidates {
			if _, ok := tx.Lookup(name); ok {
				continue
			}
			members, ok := live[name]
			if !ok {
				continue
			}
			if _, dropped := skip[name]; dropped {
				continue
			}
			if err := tx.AddSet(name, 0); err != nil {
				rp.fail(ctx, name, fmt.Errorf("import set:%s failed, err:%w", name, err))
				continue
			}
			if err := tx.ReplaceMembers(name, members); err != nil {
				_ = tx.RemoveSet(name)
				rp.fail(ctx, name, fmt.Errorf("import members of set:%s failed, err:%w", name, err))
				continue
			}
			rp.Imported = append(rp.Imported, name)
		}
		return nil
	})
	e.c.recorder.ObservePass("repopulate", len(rp.Updated)+len(rp.Imported), len(rp.Failures))
	logutil.GetLogger(ctx).Info("repopulate finish",
		zap.Int("updated", len(rp.Updated)),
		zap.Int("imported", len(rp.Imported)),
		zap.Int("dropped", len(rp.Dropped)),
		zap.Int("vanished", len(rp.Vanished)),
		zap.Int("failures", len(rp.Failures)),
	)
	return rp, multierr.Append(multierr.Combine(rp.Failures...), err)
}
