package api

import (
	"ip-setkeeper/reconcile"
	"ip-setkeeper/registry"
)

type SetView struct {
	Name     string   `json:"name"`
	RefCount int      `json:"ref_count"`
	Members  []string `json:"members"`
}

func newSetView(s registry.SetInfo) SetView {
	v := SetView{Name: s.Name, RefCount: s.RefCount, Members: make([]string, 0, len(s.Members))}
	for _, m := range s.Members {
		v.Members = append(v.Members, m.String())
	}
	return v
}

type ChangeView struct {
	Set    string `json:"set"`
	Member string `json:"member"`
}

type FailureView struct {
	Op     string `json:"op"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

type DeployView struct {
	Sets       int           `json:"sets"`
	Created    []string      `json:"created"`
	Added      []ChangeView  `json:"added"`
	Deleted    []ChangeView  `json:"deleted"`
	Destroyed  []string      `json:"destroyed"`
	Failures   []FailureView `json:"failures"`
	DurationMs int64         `json:"duration_ms"`
}

func changeViews(cs []reconcile.Change) []ChangeView {
	rs := make([]ChangeView, 0, len(cs))
	for _, c := range cs {
		rs = append(rs, ChangeView{Set: c.Set, Member: c.Member.String()})
	}
	return rs
}

func newDeployView(rp *reconcile.Report) DeployView {
	v := DeployView{
		Sets:       rp.Sets,
		Created:    append([]string{}, rp.Created...),
		Added:      changeViews(rp.Added),
		Deleted:    changeViews(rp.Deleted),
		Destroyed:  append([]string{}, rp.Destroyed...),
		Failures:   make([]FailureView, 0, len(rp.Failures)),
		DurationMs: rp.Duration.Milliseconds(),
	}
	for _, f := range rp.Failures {
		v.Failures = append(v.Failures, FailureView{Op: string(f.Op), Target: f.Target(), Error: f.Cause.Error()})
	}
	return v
}
