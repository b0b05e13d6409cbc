package api

import (
	"net/http"
	"strconv"

	"ip-setkeeper/dao"
	"ip-setkeeper/model"
	"ip-setkeeper/registry"

	"github.com/go-chi/chi/v5"
)

const (
	defaultDeployLimit = 20
	maxDeployLimit     = 200
)

type handler struct {
	svc       Service
	deployDao dao.IDeployDao
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Registry().Snapshot(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.svc.Registry().Snapshot()
	if err != nil {
		writeErr(w, err)
		return
	}
	rs := make([]SetView, 0, len(sets))
	for _, s := range sets {
		rs = append(rs, newSetView(s))
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *handler) GetSet(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Registry().FindSet(chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSetView(s))
}

// CreateSet adds a set with its members in one step, a bad member list
// leaves the registry untouched.
func (h *handler) CreateSet(w http.ResponseWriter, r *http.Request) {
	req := &CreateSetRequest{}
	if err := decodeBody(r, req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	members := make([]model.Member, 0, len(req.Members))
	for _, item := range req.Members {
		m, err := model.ParseMember(item)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		members = append(members, m)
	}
	var info registry.SetInfo
	err := h.svc.Registry().Exclusive(func(tx *registry.Tx) error {
		if err := tx.AddSet(req.Name, 0); err != nil {
			return err
		}
		if err := tx.ReplaceMembers(req.Name, members); err != nil {
			_ = tx.RemoveSet(req.Name)
			return err
		}
		info, _ = tx.Lookup(req.Name)
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSetView(info))
}

func (h *handler) DeleteSet(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Registry().DeleteSet(chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteSets removes the unreferenced sets matching the glob in "pattern".
func (h *handler) DeleteSets(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if len(pattern) == 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "pattern required")
		return
	}
	rs, err := h.svc.Registry().DeleteSetsMatching(pattern)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteSetsView{
		Deleted: append([]string{}, rs.Deleted...),
		Skipped: append([]string{}, rs.Skipped...),
	})
}

func (h *handler) AddMember(w http.ResponseWriter, r *http.Request) {
	req := &AddMemberRequest{}
	if err := decodeBody(r, req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	m, err := model.ParseMember(req.Member)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	reg := h.svc.Registry()
	if m.Prefix == model.MaxPrefix {
		err = reg.AddIP(name, m.Addr)
	} else {
		err = reg.AddNet(name, m.Addr, m.Prefix)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ChangeView{Set: name, Member: m.Normalize().String()})
}

// FlushSet empties a set, its references stay.
func (h *handler) FlushSet(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Registry().Flush(chi.URLParam(r, "name")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// Lookup finds the member equal to "addr" after normalization, a bare
// address is looked up as a host.
func (h *handler) Lookup(w http.ResponseWriter, r *http.Request) {
	m, err := model.ParseMember(r.URL.Query().Get("addr"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	name := chi.URLParam(r, "name")
	reg := h.svc.Registry()
	var addr uint32
	if m.Prefix == model.MaxPrefix {
		addr, err = reg.FindIP(name, m.Addr)
	} else {
		addr, err = reg.FindNet(name, m.Addr, m.Prefix)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LookupView{Set: name, Match: model.NewMember(addr, m.Prefix).String()})
}

// Deploy answers 200 with the report even when some commands failed, the
// failures are part of the body.
func (h *handler) Deploy(w http.ResponseWriter, r *http.Request) {
	rp, err := h.svc.DeployNow(r.Context())
	if rp == nil || (err != nil && len(rp.Failures) == 0) {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeployView(rp))
}

func (h *handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SaveNow(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *handler) ListDeploys(w http.ResponseWriter, r *http.Request) {
	if h.deployDao == nil {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "deploy journal disabled")
		return
	}
	q := r.URL.Query()
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid offset")
		return
	}
	limit, err := queryInt(q.Get("limit"), defaultDeployLimit)
	if err != nil || limit <= 0 || limit > maxDeployLimit {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid limit")
		return
	}
	cond := &model.ListDeployCondition{OnlyFailed: q.Get("only_failed") == "true"}
	rs, err := h.deployDao.ListDeploy(r.Context(), cond, offset, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func queryInt(v string, def int64) (int64, error) {
	if len(v) == 0 {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
