package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ip-setkeeper/model"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultCommandTimeout = 10 * time.Second
)

// Backend is the live packet filter side of a pass.
type Backend interface {
	CreateSet(ctx context.Context, name string) error
	DestroySet(ctx context.Context, name string) error
	AddMember(ctx context.Context, name string, m model.Member) error
	DelMember(ctx context.Context, name string, m model.Member) error
	ListSets(ctx context.Context) ([]string, error)
	ListMembers(ctx context.Context, name string) ([]model.Member, bool, error)
}

// Recorder observes every backend call and every finished pass.
type Recorder interface {
	ObserveCommand(op Op, err error)
	ObservePass(kind string, sets int, failures int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCommand(Op, error)     {}
func (nopRecorder) ObservePass(string, int, int) {}

type config struct {
	timeout       time.Duration
	managedPrefix string
	recorder      Recorder
}

type Option func(c *config)

// WithCommandTimeout bounds every single backend invocation.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithManagedPrefix limits destroy and import of live sets to names with
// this prefix. Sets of the model are always handled.
func WithManagedPrefix(p string) Option {
	return func(c *config) {
		c.managedPrefix = p
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

type Engine struct {
	c       *config
	backend Backend
}

func New(backend Backend, opts ...Option) *Engine {
	c := &config{
		timeout:  defaultCommandTimeout,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = defaultCommandTimeout
	}
	return &Engine{c: c, backend: backend}
}

func (e *Engine) managed(name string) bool {
	return strings.HasPrefix(name, e.c.managedPrefix)
}

// call runs one backend command. The caller ctx only contributes values:
// an issued command always runs to completion or to its own timeout.
func (e *Engine) call(ctx context.Context, op Op, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.c.timeout)
	defer cancel()
	err := fn(cctx)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("command timeout after %s, err:%w", e.c.timeout, err)
	}
	e.c.recorder.ObserveCommand(op, err)
	if err != nil {
		logutil.GetLogger(ctx).Debug("backend command failed", zap.String("op", string(op)), zap.Error(err))
	}
	return err
}

func (e *Engine) listSets(ctx context.Context) ([]string, error) {
	var names []string
	err := e.call(ctx, OpListSets, func(ctx context.Context) error {
		var err error
		names, err = e.backend.ListSets(ctx)
		return err
	})
	return names, err
}

func (e *Engine) listMembers(ctx context.Context, name string) ([]model.Member, bool, error) {
	var members []model.Member
	var exists bool
	err := e.call(ctx, OpListMembers, func(ctx context.Context) error {
		var err error
		members, exists, err = e.backend.ListMembers(ctx, name)
		return err
	})
	return members, exists, err
}

// Diff returns the members of want missing from have, and the members of
// have missing from want. Both inputs are compared normalized, order of
// the outputs follows the inputs.
func Diff(want, have []model.Member) ([]model.Member, []model.Member) {
	wantIdx := make(map[model.Member]struct{}, len(want))
	for _, m := range want {
		wantIdx[m.Normalize()] = struct{}{}
	}
	haveIdx := make(map[model.Member]struct{}, len(have))
	for _, m := range have {
		haveIdx[m.Normalize()] = struct{}{}
	}
	var add, del []model.Member
	for _, m := range want {
		m = m.Normalize()
		if _, ok := haveIdx[m]; ok {
			continue
		}
		haveIdx[m] = struct{}{}
		add = append(add, m)
	}
	for _, m := range have {
		m = m.Normalize()
		if _, ok := wantIdx[m]; ok {
			continue
		}
		wantIdx[m] = struct{}{}
		del = append(del, m)
	}
	return add, del
}
