package model

// DeployTab is one row of the deploy journal.
type DeployTab struct {
	ID        uint64 `json:"id"`
	CTime     uint64 `json:"ctime"`
	Sets      int64  `json:"sets"`
	Created   int64  `json:"created"`
	Added     int64  `json:"added"`
	Deleted   int64  `json:"deleted"`
	Destroyed int64  `json:"destroyed"`
	Failures  int64  `json:"failures"`
	Detail    string `json:"detail"`
}

type ListDeployCondition struct {
	CtimeBetween []uint64
	OnlyFailed   bool
}

// SnapshotTab stores one persisted registry blob keyed by its path.
type SnapshotTab struct {
	ID    uint64 `json:"id"`
	Path  string `json:"path"`
	MTime uint64 `json:"mtime"`
	Data  []byte `json:"data"`
}
