package registry

import (
	"ip-setkeeper/errs"
	"ip-setkeeper/model"
)

// Tx gives lock free access to the registry inside Exclusive.
type Tx struct {
	r *Registry
}

func (tx *Tx) Sets() []SetInfo {
	return tx.r.snapshotLocked()
}

func (tx *Tx) Lookup(name string) (SetInfo, bool) {
	s, ok := tx.r.sets[name]
	if !ok {
		return SetInfo{}, false
	}
	return s.info(), true
}

func (tx *Tx) AddSet(name string, refCount int) error {
	_, err := tx.r.addSetLocked(name, refCount)
	return err
}

// ReplaceMembers swaps the members of a set. Duplicates in members are
// folded, overflowing the set capacity fails and keeps the old members.
func (tx *Tx) ReplaceMembers(name string, members []model.Member) error {
	s, err := tx.r.lookupLocked(name)
	if err != nil {
		return err
	}
	return s.replace(members)
}

func (tx *Tx) Flush(name string) error {
	s, err := tx.r.lookupLocked(name)
	if err != nil {
		return err
	}
	s.store.flush()
	return nil
}

// RemoveSet drops an unreferenced set.
func (tx *Tx) RemoveSet(name string) error {
	s, err := tx.r.lookupLocked(name)
	if err != nil {
		return err
	}
	if s.refCount > 0 {
		return errs.Newf(errs.CodeInUse, "set:%s still has %d references", name, s.refCount)
	}
	tx.r.removeLocked(name)
	return nil
}
