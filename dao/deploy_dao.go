package dao

import (
	"context"
	"fmt"
	"time"

	"ip-setkeeper/db"
	"ip-setkeeper/model"

	"github.com/didi/gendry/builder"
	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/dbkit"
)

type IDeployDao interface {
	AddDeploy(ctx context.Context, item *model.DeployTab) error
	ListDeploy(ctx context.Context, cond *model.ListDeployCondition, offset, limit int64) ([]*model.DeployTab, error)
	PruneDeploy(ctx context.Context, before uint64) (int64, error)
}

type deployDaoImpl struct {
	dbc func(ctx context.Context) database.IDatabase
}

func NewDeployDao() (IDeployDao, error) {
	impl := &deployDaoImpl{
		dbc: db.GetClient,
	}
	if err := impl.init(); err != nil {
		return nil, err
	}
	return impl, nil
}

func (d *deployDaoImpl) getClient(ctx context.Context) database.IDatabase {
	return d.dbc(ctx)
}

func (d *deployDaoImpl) init() error {
	initItems := []struct {
		name string
		sql  string
	}{
		{
			name: "create table",
			sql: `
CREATE TABLE IF NOT EXISTS ipset_deploy_tab (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ctime INTEGER NOT NULL,
    sets INTEGER NOT NULL,
    created INTEGER NOT NULL,
    added INTEGER NOT NULL,
    deleted INTEGER NOT NULL,
    destroyed INTEGER NOT NULL,
    failures INTEGER NOT NULL,
    detail TEXT NOT NULL
);
`,
		},
		{
			name: "add_ctime_index",
			sql:  "CREATE INDEX IF NOT EXISTS idx_deploy_ctime ON ipset_deploy_tab(ctime);",
		},
	}
	for _, item := range initItems {
		if _, err := d.getClient(context.Background()).
			ExecContext(context.Background(), item.sql); err != nil {

			return fmt.Errorf("exec sql failed, job:%s, err:%w", item.name, err)
		}
	}
	return nil
}

func (d *deployDaoImpl) table() string {
	return "ipset_deploy_tab"
}

func (d *deployDaoImpl) AddDeploy(ctx context.Context, item *model.DeployTab) error {
	if item.CTime == 0 {
		item.CTime = uint64(time.Now().UnixMilli())
	}
	data := []map[string]interface{}{
		{
			"ctime":     item.CTime,
			"sets":      item.Sets,
			"created":   item.Created,
			"added":     item.Added,
			"deleted":   item.Deleted,
			"destroyed": item.Destroyed,
			"failures":  item.Failures,
			"detail":    item.Detail,
		},
	}
	sql, args, err := builder.BuildInsert(d.table(), data)
	if err != nil {
		return fmt.Errorf("build insert failed, err:%w", err)
	}
	rs, err := d.getClient(ctx).ExecContext(ctx, sql, args...)
	if err != nil {
		return err
	}
	id, err := rs.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = uint64(id)
	return nil
}

func (d *deployDaoImpl) ListDeploy(ctx context.Context,
	cond *model.ListDeployCondition, offset, limit int64) ([]*model.DeployTab, error) {
	if cond.CtimeBetween != nil && len(cond.CtimeBetween) != 2 {
		return nil, fmt.Errorf("ctime_between should has 2 elements, get:%d", len(cond.CtimeBetween))
	}
	where := map[string]interface{}{
		"_orderby": "id desc",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	if cond.CtimeBetween != nil {
		where["ctime >="] = cond.CtimeBetween[0]
		where["ctime <"] = cond.CtimeBetween[1]
	}
	if cond.OnlyFailed {
		where["failures >"] = 0
	}
	rs := make([]*model.DeployTab, 0, limit)
	if err := dbkit.SimpleQuery(ctx, d.getClient(ctx), d.table(), where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, err
	}
	return rs, nil
}

// PruneDeploy removes journal rows older than before (unix milli).
func (d *deployDaoImpl) PruneDeploy(ctx context.Context, before uint64) (int64, error) {
	where := map[string]interface{}{
		"ctime <": before,
	}
	sql, args, err := builder.BuildDelete(d.table(), where)
	if err != nil {
		return 0, fmt.Errorf("build delete failed, err:%w", err)
	}
	rs, err := d.getClient(ctx).ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return rs.RowsAffected()
}
