package dao

import (
	"context"
	"os"
	"testing"

	"ip-setkeeper/db"
	"ip-setkeeper/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) {
	path := "/tmp/ipset_journal_test_" + uuid.NewString() + ".db"
	t.Cleanup(func() { _ = os.Remove(path) })
	require.NoError(t, db.InitDB(path))
}

func TestDeployDao(t *testing.T) {
	setupDB(t)
	d, err := NewDeployDao()
	require.NoError(t, err)
	ctx := context.Background()
	{ //写入3次部署记录
		for i, ts := range []uint64{1000, 2000, 3000} {
			item := &model.DeployTab{CTime: ts, Sets: 2, Added: int64(i), Failures: int64(i % 2), Detail: "test"}
			err := d.AddDeploy(ctx, item)
			assert.NoError(t, err)
			assert.NotZero(t, item.ID)
		}
	}
	{ //全列表, 新的在前
		rs, err := d.ListDeploy(ctx, &model.ListDeployCondition{}, 0, 10)
		assert.NoError(t, err)
		require.Len(t, rs, 3)
		assert.Equal(t, uint64(3000), rs[0].CTime)
		assert.Equal(t, int64(2), rs[0].Added)
		assert.Equal(t, "test", rs[0].Detail)
	}
	{ //仅失败
		rs, err := d.ListDeploy(ctx, &model.ListDeployCondition{OnlyFailed: true}, 0, 10)
		assert.NoError(t, err)
		require.Len(t, rs, 1)
		assert.Equal(t, uint64(2000), rs[0].CTime)
	}
	{ //时间区间
		rs, err := d.ListDeploy(ctx, &model.ListDeployCondition{CtimeBetween: []uint64{1500, 3000}}, 0, 10)
		assert.NoError(t, err)
		assert.Len(t, rs, 1)
		_, err = d.ListDeploy(ctx, &model.ListDeployCondition{CtimeBetween: []uint64{1}}, 0, 10)
		assert.Error(t, err)
	}
	{ //清理
		cnt, err := d.PruneDeploy(ctx, 2500)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), cnt)
		rs, err := d.ListDeploy(ctx, &model.ListDeployCondition{}, 0, 10)
		assert.NoError(t, err)
		assert.Len(t, rs, 1)
	}
}

func TestSnapshotDao(t *testing.T) {
	setupDB(t)
	d, err := NewSnapshotDao()
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := d.GetSnapshot(ctx, "/var/lib/a")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, d.PutSnapshot(ctx, "/var/lib/a", []byte("web 0 0\n")))
	assert.NoError(t, d.PutSnapshot(ctx, "/var/lib/a", []byte("web 1 0\n")))
	assert.NoError(t, d.PutSnapshot(ctx, "/var/lib/b", nil))

	item, ok, err := d.GetSnapshot(ctx, "/var/lib/a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "web 1 0\n", string(item.Data))

	item, ok, err = d.GetSnapshot(ctx, "/var/lib/b")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, item.Data)
}
