package registry

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"ip-setkeeper/errs"
	"ip-setkeeper/model"

	"github.com/gobwas/glob"
)

// Registry holds every set known to the controller. All mutations take the
// write lock for their whole duration, lookups share the read lock.
type Registry struct {
	c      *config
	mu     sync.RWMutex
	sets   map[string]*set
	order  []string
	closed bool
}

// DeleteResult reports the outcome of DeleteSetsMatching.
type DeleteResult struct {
	Deleted []string
	Skipped []string
}

func New(opts ...Option) (*Registry, error) {
	c := applyOpts(opts...)
	if err := validateConfig(c); err != nil {
		return nil, err
	}
	return &Registry{
		c:    c,
		sets: make(map[string]*set, c.maxSets),
	}, nil
}

func validateConfig(c *config) error {
	if c.maxSets <= 0 {
		return errs.Newf(errs.CodeConfig, "max sets should be positive, get:%d", c.maxSets)
	}
	if c.maxMembersPerSet <= 0 {
		return errs.Newf(errs.CodeConfig, "max members per set should be positive, get:%d", c.maxMembersPerSet)
	}
	if len(strings.TrimSpace(c.commandPrefix)) == 0 || strings.ContainsRune(c.commandPrefix, 0) {
		return errs.Newf(errs.CodeConfig, "invalid command prefix:%q", c.commandPrefix)
	}
	p := c.persistencePath
	if len(strings.TrimSpace(p)) == 0 || strings.ContainsRune(p, 0) || strings.HasSuffix(p, "/") {
		return errs.Newf(errs.CodeConfig, "invalid persistence path:%q", p)
	}
	return nil
}

// ValidateSetName checks the name against the ipset naming limits.
func ValidateSetName(name string) error {
	if len(name) == 0 {
		return errs.New(errs.CodeInvalidArgument, "empty set name")
	}
	if len(name) > MaxSetNameLen {
		return errs.Newf(errs.CodeInvalidArgument, "set name too long, len:%d, max:%d", len(name), MaxSetNameLen)
	}
	if strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || r == 0 }) >= 0 {
		return errs.Newf(errs.CodeInvalidArgument, "set name contains space:%q", name)
	}
	return nil
}

func (r *Registry) Config() Config {
	return Config{
		CommandPrefix:    r.c.commandPrefix,
		PersistencePath:  r.c.persistencePath,
		MaxSets:          r.c.maxSets,
		MaxMembersPerSet: r.c.maxMembersPerSet,
	}
}

func (r *Registry) AddSet(name string, opts ...SetOption) (SetInfo, error) {
	sc := &setConfig{}
	for _, opt := range opts {
		opt(sc)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return SetInfo{}, errs.ErrClosed
	}
	s, err := r.addSetLocked(name, sc.refCount)
	if err != nil {
		return SetInfo{}, err
	}
	return s.info(), nil
}

func (r *Registry) addSetLocked(name string, refCount int) (*set, error) {
	if err := ValidateSetName(name); err != nil {
		return nil, err
	}
	if refCount < 0 {
		return nil, errs.Newf(errs.CodeInvalidArgument, "negative reference count:%d", refCount)
	}
	if _, ok := r.sets[name]; ok {
		return nil, errs.Newf(errs.CodeDuplicateName, "set:%s already exists", name)
	}
	if len(r.sets) >= r.c.maxSets {
		return nil, errs.Newf(errs.CodeCapacityExceeded, "set count reach limit:%d", r.c.maxSets)
	}
	s := newSet(name, refCount, r.c.maxMembersPerSet)
	r.sets[name] = s
	r.order = append(r.order, name)
	return s, nil
}

func (r *Registry) FindSet(name string) (SetInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return SetInfo{}, err
	}
	return s.info(), nil
}

func (r *Registry) lookupLocked(name string) (*set, error) {
	if r.closed {
		return nil, errs.ErrClosed
	}
	s, ok := r.sets[name]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "set:%s not found", name)
	}
	return s, nil
}

// DeleteSet removes one set, a set still referenced is refused with CodeInUse.
func (r *Registry) DeleteSet(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return err
	}
	if s.refCount > 0 {
		return errs.Newf(errs.CodeInUse, "set:%s still has %d references", name, s.refCount)
	}
	r.removeLocked(name)
	return nil
}

// DeleteSetsMatching deletes every unreferenced set whose name matches the
// shell glob pattern. Referenced matches are reported as skipped.
func (r *Registry) DeleteSetsMatching(pattern string) (*DeleteResult, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInvalidArgument, fmt.Sprintf("bad pattern:%q", pattern), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errs.ErrClosed
	}
	rs := &DeleteResult{}
	for _, name := range append([]string(nil), r.order...) {
		if !g.Match(name) {
			continue
		}
		if r.sets[name].refCount > 0 {
			rs.Skipped = append(rs.Skipped, name)
			continue
		}
		r.removeLocked(name)
		rs.Deleted = append(rs.Deleted, name)
	}
	return rs, nil
}

func (r *Registry) removeLocked(name string) {
	delete(r.sets, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Acquire records one more rule reference on the set.
func (r *Registry) Acquire(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return 0, err
	}
	s.refCount++
	return s.refCount, nil
}

// Release drops one rule reference, it never goes below zero.
func (r *Registry) Release(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return 0, err
	}
	if s.refCount == 0 {
		return 0, errs.Newf(errs.CodeInvalidArgument, "set:%s has no reference to release", name)
	}
	s.refCount--
	return s.refCount, nil
}

func (r *Registry) AddNet(name string, addr uint32, prefix int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return err
	}
	return s.store.add(model.NewMember(addr, prefix))
}

func (r *Registry) AddIP(name string, addr uint32) error {
	return r.AddNet(name, addr, model.MaxPrefix)
}

// AddNetString parses "a.b.c.d" or "a.b.c.d/p" and adds it.
func (r *Registry) AddNetString(name string, data string) error {
	m, err := model.ParseMember(data)
	if err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "parse member failed", err)
	}
	return r.AddNet(name, m.Addr, m.Prefix)
}

// FindNet returns the stored (normalized) address of the matching member.
func (r *Registry) FindNet(name string, addr uint32, prefix int) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return 0, err
	}
	want := model.NewMember(addr, prefix)
	m, ok := s.store.find(want)
	if !ok {
		return 0, errs.Newf(errs.CodeNotFound, "member:%s not found in set:%s", want.String(), name)
	}
	return m.Addr, nil
}

func (r *Registry) FindIP(name string, addr uint32) (uint32, error) {
	return r.FindNet(name, addr, model.MaxPrefix)
}

// Flush removes every member, the set and its reference count stay.
func (r *Registry) Flush(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(name)
	if err != nil {
		return err
	}
	s.store.flush()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Snapshot returns a copy of every set in insertion order.
func (r *Registry) Snapshot() ([]SetInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errs.ErrClosed
	}
	return r.snapshotLocked(), nil
}

func (r *Registry) snapshotLocked() []SetInfo {
	rs := make([]SetInfo, 0, len(r.order))
	for _, name := range r.order {
		rs = append(rs, r.sets[name].info())
	}
	return rs
}

// Load replaces the whole content with infos. Nothing changes unless every
// entry is valid.
func (r *Registry) Load(infos []SetInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errs.ErrClosed
	}
	staging := &Registry{c: r.c, sets: make(map[string]*set, len(infos))}
	for _, info := range infos {
		s, err := staging.addSetLocked(info.Name, info.RefCount)
		if err != nil {
			return err
		}
		for _, m := range info.Members {
			if err := s.store.add(m); err != nil {
				return fmt.Errorf("load set:%s failed, err:%w", info.Name, err)
			}
		}
	}
	r.sets = staging.sets
	r.order = staging.order
	return nil
}

// Exclusive runs fn with the write lock held for its whole duration.
func (r *Registry) Exclusive(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errs.ErrClosed
	}
	return fn(&Tx{r: r})
}

// Shared runs fn with the read lock held.
func (r *Registry) Shared(fn func(sets []SetInfo) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errs.ErrClosed
	}
	return fn(r.snapshotLocked())
}

// Dump writes a human readable listing of every set.
func (r *Registry) Dump(w io.Writer) error {
	return r.Shared(func(sets []SetInfo) error {
		for _, s := range sets {
			if _, err := fmt.Fprintf(w, "set:%s ref_count:%d members:%d\n", s.Name, s.RefCount, len(s.Members)); err != nil {
				return err
			}
			for _, m := range s.Members {
				if _, err := fmt.Fprintf(w, "\t%s\n", m.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Close drops every set, calling it again is a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.sets = nil
	r.order = nil
	r.closed = true
	return nil
}
