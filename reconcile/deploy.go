package reconcile

import (
	"context"
	"time"

	"ip-setkeeper/model"
	"ip-setkeeper/registry"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Change is one member level operation issued by a deploy.
type Change struct {
	Set    string
	Member model.Member
}

// Report summarizes one deploy pass.
type Report struct {
	Sets      int
	Created   []string
	Added     []Change
	Deleted   []Change
	Destroyed []string
	Failures  []*BackendCommandError
	Duration  time.Duration
}

func (rp *Report) fail(ctx context.Context, op Op, set string, m *model.Member, err error) {
	ce := &BackendCommandError{Op: op, Set: set, Member: m, Cause: err}
	rp.Failures = append(rp.Failures, ce)
	fields := []zap.Field{zap.String("op", string(op)), zap.String("set", set), zap.Error(err)}
	if m != nil {
		fields = append(fields, zap.String("member", m.String()))
	}
	logutil.GetLogger(ctx).Error("deploy op failed", fields...)
}

// Err combines every failure of the pass, nil when the pass was clean.
func (rp *Report) Err() error {
	var err error
	for _, f := range rp.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

// Deploy pushes the registry content to the backend. Per set the order is
// create, additions, deletions. A failed command is recorded and the pass
// goes on; the combined failures are returned at the end. With
// deleteExtraneous, live members missing from the model are deleted and,
// once every model set is handled, live sets missing from the model are
// destroyed.
func (e *Engine) Deploy(ctx context.Context, reg *registry.Registry, deleteExtraneous bool) (*Report, error) {
	start := time.Now()
	rp := &Report{}
	err := reg.Exclusive(func(tx *registry.Tx) error {
		sets := tx.Sets()
		rp.Sets = len(sets)
		for _, s := range sets {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.deploySet(ctx, rp, s, deleteExtraneous)
		}
		if !deleteExtraneous {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e.destroyExtraneous(ctx, rp, sets)
		return nil
	})
	rp.Duration = time.Since(start)
	e.c.recorder.ObservePass("deploy", rp.Sets, len(rp.Failures))
	logutil.GetLogger(ctx).Info("deploy finish",
		zap.Int("sets", rp.Sets),
		zap.Int("created", len(rp.Created)),
		zap.Int("added", len(rp.Added)),
		zap.Int("deleted", len(rp.Deleted)),
		zap.Int("destroyed", len(rp.Destroyed)),
		zap.Int("failures", len(rp.Failures)),
		zap.Duration("cost", rp.Duration),
	)
	return rp, multierr.Append(rp.Err(), err)
}

func (e *Engine) deploySet(ctx context.Context, rp *Report, s registry.SetInfo, deleteExtraneous bool) {
	live, exists, err := e.listMembers(ctx, s.Name)
	if err != nil {
		rp.fail(ctx, OpListMembers, s.Name, nil, err)
		return
	}
	if !exists {
		if err := e.call(ctx, OpCreateSet, func(ctx context.Context) error {
			return e.backend.CreateSet(ctx, s.Name)
		}); err != nil {
			rp.fail(ctx, OpCreateSet, s.Name, nil, err)
			return
		}
		rp.Created = append(rp.Created, s.Name)
		live = nil
	}
	add, del := Diff(s.Members, live)
	for _, m := range add {
		if ctx.Err() != nil {
			return
		}
		m := m
		if err := e.call(ctx, OpAddMember, func(ctx context.Context) error {
			return e.backend.AddMember(ctx, s.Name, m)
		}); err != nil {
			rp.fail(ctx, OpAddMember, s.Name, &m, err)
			continue
		}
		rp.Added = append(rp.Added, Change{Set: s.Name, Member: m})
	}
	if !deleteExtraneous {
		return
	}
	for _, m := range del {
		if ctx.Err() != nil {
			return
		}
		m := m
		if err := e.call(ctx, OpDelMember, func(ctx context.Context) error {
			return e.backend.DelMember(ctx, s.Name, m)
		}); err != nil {
			rp.fail(ctx, OpDelMember, s.Name, &m, err)
			continue
		}
		rp.Deleted = append(rp.Deleted, Change{Set: s.Name, Member: m})
	}
}

func (e *Engine) destroyExtraneous(ctx context.Context, rp *Report, sets []registry.SetInfo) {
	names, err := e.listSets(ctx)
	if err != nil {
		rp.fail(ctx, OpListSets, "", nil, err)
		return
	}
	known := make(map[string]struct{}, len(sets))
	for _, s := range sets {
		known[s.Name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := known[name]; ok || !e.managed(name) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		name := name
		if err := e.call(ctx, OpDestroySet, func(ctx context.Context) error {
			return e.backend.DestroySet(ctx, name)
		}); err != nil {
			rp.fail(ctx, OpDestroySet, name, nil, err)
			continue
		}
		rp.Destroyed = append(rp.Destroyed, name)
	}
}
