package dao

import (
	"context"
	"fmt"
	"time"

	"ip-setkeeper/db"
	"ip-setkeeper/model"

	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/dbkit"
)

// ISnapshotDao keeps persisted registry blobs keyed by their path.
type ISnapshotDao interface {
	GetSnapshot(ctx context.Context, path string) (*model.SnapshotTab, bool, error)
	PutSnapshot(ctx context.Context, path string, data []byte) error
}

type snapshotDaoImpl struct {
	dbc func(ctx context.Context) database.IDatabase
}

func NewSnapshotDao() (ISnapshotDao, error) {
	impl := &snapshotDaoImpl{
		dbc: db.GetClient,
	}
	if err := impl.init(); err != nil {
		return nil, err
	}
	return impl, nil
}

func (d *snapshotDaoImpl) table() string {
	return "ipset_snapshot_tab"
}

func (d *snapshotDaoImpl) init() error {
	sql := `
CREATE TABLE IF NOT EXISTS ipset_snapshot_tab (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    mtime INTEGER NOT NULL,
    data BLOB NOT NULL
);
`
	if _, err := d.dbc(context.Background()).ExecContext(context.Background(), sql); err != nil {
		return fmt.Errorf("create snapshot table failed, err:%w", err)
	}
	return nil
}

func (d *snapshotDaoImpl) GetSnapshot(ctx context.Context, path string) (*model.SnapshotTab, bool, error) {
	where := map[string]interface{}{
		"path":   path,
		"_limit": []uint{0, 1},
	}
	rs := make([]*model.SnapshotTab, 0, 1)
	if err := dbkit.SimpleQuery(ctx, d.dbc(ctx), d.table(), where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, false, err
	}
	if len(rs) == 0 {
		return nil, false, nil
	}
	return rs[0], true, nil
}

// PutSnapshot replaces the blob of path in a single statement.
func (d *snapshotDaoImpl) PutSnapshot(ctx context.Context, path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	sql := fmt.Sprintf(`insert into %s(path, mtime, data) values(?, ?, ?)
on conflict(path) do update set mtime = excluded.mtime, data = excluded.data`, d.table())
	if _, err := d.dbc(ctx).ExecContext(ctx, sql, path, time.Now().UnixMilli(), data); err != nil {
		return err
	}
	return nil
}
