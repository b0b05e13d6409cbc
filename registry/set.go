package registry

import (
	"ip-setkeeper/errs"
	"ip-setkeeper/model"
)

// SetInfo is a copy of one set, safe to keep after the registry lock is released.
type SetInfo struct {
	Name     string
	RefCount int
	Members  []model.Member
}

// Contains reports whether the normalized m is a member.
func (s SetInfo) Contains(m model.Member) bool {
	m = m.Normalize()
	for _, item := range s.Members {
		if item == m {
			return true
		}
	}
	return false
}

// memberStore is the bounded, insertion ordered member list of a set.
type memberStore struct {
	members []model.Member
	index   map[model.Member]struct{}
	limit   int
}

func newMemberStore(limit int) *memberStore {
	return &memberStore{
		index: make(map[model.Member]struct{}),
		limit: limit,
	}
}

func (s *memberStore) add(m model.Member) error {
	if !m.Valid() {
		return errs.Newf(errs.CodeInvalidArgument, "invalid prefix length:%d", m.Prefix)
	}
	m = m.Normalize()
	if _, ok := s.index[m]; ok {
		return errs.Newf(errs.CodeDuplicateMember, "member:%s already exists", m.String())
	}
	if len(s.members) >= s.limit {
		return errs.Newf(errs.CodeCapacityExceeded, "member count reach limit:%d", s.limit)
	}
	s.members = append(s.members, m)
	s.index[m] = struct{}{}
	return nil
}

func (s *memberStore) find(m model.Member) (model.Member, bool) {
	m = m.Normalize()
	_, ok := s.index[m]
	return m, ok
}

func (s *memberStore) flush() {
	s.members = nil
	s.index = make(map[model.Member]struct{})
}

func (s *memberStore) len() int {
	return len(s.members)
}

func (s *memberStore) list() []model.Member {
	rs := make([]model.Member, len(s.members))
	copy(rs, s.members)
	return rs
}

type set struct {
	name     string
	refCount int
	store    *memberStore
}

func newSet(name string, refCount int, limit int) *set {
	return &set{
		name:     name,
		refCount: refCount,
		store:    newMemberStore(limit),
	}
}

func (s *set) info() SetInfo {
	return SetInfo{
		Name:     s.name,
		RefCount: s.refCount,
		Members:  s.store.list(),
	}
}

// replace swaps the member list, leaving the old list on failure.
func (s *set) replace(members []model.Member) error {
	store := newMemberStore(s.store.limit)
	for _, m := range members {
		if err := store.add(m); err != nil {
			if errs.Has(err, errs.CodeDuplicateMember) {
				continue
			}
			return err
		}
	}
	s.store = store
	return nil
}
