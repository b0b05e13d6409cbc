package persist

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ip-setkeeper/dao"
	"ip-setkeeper/db"
	"ip-setkeeper/errs"
	"ip-setkeeper/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *registry.Registry {
	reg, err := registry.New(registry.WithPersistencePath("/tmp/ipsets.snapshot"))
	require.NoError(t, err)
	return reg
}

func TestEncode(t *testing.T) {
	reg := newRegistry(t)
	_, err := reg.AddSet("web-tier", registry.WithRefCount(2))
	require.NoError(t, err)
	require.NoError(t, reg.AddNetString("web-tier", "10.0.0.0/24"))
	require.NoError(t, reg.AddNetString("web-tier", "10.0.1.5"))
	_, err = reg.AddSet("empty")
	require.NoError(t, err)

	sets, err := reg.Snapshot()
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	require.NoError(t, Encode(buf, sets))
	assert.Equal(t, "web-tier 2 2\n10.0.0.0/24\n10.0.1.5/32\nempty 0 0\n", buf.String())
}

func TestDecode(t *testing.T) {
	sets, err := Decode([]byte("a 1 1\n10.0.0.0/8\nb 0 0\n"))
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "a", sets[0].Name)
	assert.Equal(t, 1, sets[0].RefCount)
	assert.Equal(t, "10.0.0.0/8", sets[0].Members[0].String())
	assert.Empty(t, sets[1].Members)

	sets, err = Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestDecodeCorrupt(t *testing.T) {
	cases := map[string]string{
		"negative ref":  "web-tier -1 0\n",
		"bad ref":       "web-tier x 0\n",
		"bad count":     "web-tier 0 -2\n",
		"missing field": "web-tier 0\n",
		"extra field":   "web-tier 0 0 0\n",
		"double space":  "web-tier  0 0\n",
		"short members": "web-tier 0 2\n10.0.0.1/32\n",
		"no prefix":     "web-tier 0 1\n10.0.0.1\n",
		"bad addr":      "web-tier 0 1\n10.0.0.256/32\n",
		"bad prefix":    "web-tier 0 1\n10.0.0.0/33\n",
		"host bits":     "web-tier 0 1\n10.0.0.1/24\n",
		"dup member":    "web-tier 0 2\n10.0.0.1/32\n10.0.0.1/32\n",
		"dup set":       "a 0 0\na 0 0\n",
		"blank line":    "a 0 0\n\n",
		"trailing data": "a 0 0\n10.0.0.1/32\n",
		"crlf":          "a 0 0\r\n",
		"only newline":  "\n",
		"padded member": "a 0 1\n 10.0.0.1/32\n",
		"plus ref":      "web-tier +1 0\n",
		"padded count":  "web-tier 0 01\n10.0.0.1/32\n",
		"name too long": string(bytes.Repeat([]byte("n"), registry.MaxSetNameLen+1)) + " 0 0\n",
	}
	for name, raw := range cases {
		_, err := Decode([]byte(raw))
		assert.Truef(t, errors.Is(err, errs.ErrCorruptPersistence), "case:%s, err:%v", name, err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "ipsets.snapshot")
	mgr := NewManager(NewFileStore(path))

	src := newRegistry(t)
	_, err := src.AddSet("web-tier", registry.WithRefCount(2))
	require.NoError(t, err)
	require.NoError(t, src.AddNetString("web-tier", "10.0.0.0/24"))
	require.NoError(t, src.AddNetString("web-tier", "10.0.1.5"))
	_, err = src.AddSet("db-tier")
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, src))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	dst := newRegistry(t)
	require.NoError(t, mgr.Restore(ctx, dst))
	want, _ := src.Snapshot()
	get, _ := dst.Snapshot()
	assert.Equal(t, want, get)
}

func TestRestoreCorruptKeepsRegistry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ipsets.snapshot")
	require.NoError(t, os.WriteFile(path, []byte("web-tier -1 0\n"), 0644))

	reg := newRegistry(t)
	_, err := reg.AddSet("keep")
	require.NoError(t, err)
	err = NewManager(NewFileStore(path)).Restore(ctx, reg)
	assert.True(t, errors.Is(err, errs.ErrCorruptPersistence))
	assert.Equal(t, []string{"keep"}, reg.Names())
}

func TestRestoreMissing(t *testing.T) {
	reg := newRegistry(t)
	err := NewManager(NewFileStore(filepath.Join(t.TempDir(), "none"))).Restore(context.Background(), reg)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, 0, reg.Len())
}

func TestSaveEmptyRegistry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ipsets.snapshot")
	mgr := NewManager(NewFileStore(path))
	require.NoError(t, mgr.Save(ctx, newRegistry(t)))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	reg := newRegistry(t)
	_, err = reg.AddSet("gone")
	require.NoError(t, err)
	require.NoError(t, mgr.Restore(ctx, reg))
	assert.Equal(t, 0, reg.Len())
}

func TestDBStoreRoundTrip(t *testing.T) {
	dbPath := "/tmp/ipset_snapshot_test_" + uuid.NewString() + ".db"
	t.Cleanup(func() { _ = os.Remove(dbPath) })
	require.NoError(t, db.InitDB(dbPath))
	d, err := dao.NewSnapshotDao()
	require.NoError(t, err)

	ctx := context.Background()
	store := NewDBStore("/var/lib/ip-setkeeper/ipsets.snapshot", d)
	_, err = store.ReadAll(ctx)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	src := newRegistry(t)
	_, err = src.AddSet("a", registry.WithRefCount(1))
	require.NoError(t, err)
	require.NoError(t, src.AddNetString("a", "192.168.1.0/24"))
	mgr := NewManager(store)
	require.NoError(t, mgr.Save(ctx, src))

	dst := newRegistry(t)
	require.NoError(t, mgr.Restore(ctx, dst))
	info, err := dst.FindSet("a")
	require.NoError(t, err)
	assert.Equal(t, 1, info.RefCount)
	assert.Equal(t, "192.168.1.0/24", info.Members[0].String())
}

func TestSaveWithRefOffsets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ipsets.snapshot")
	mgr := NewManager(NewFileStore(path))
	reg := newRegistry(t)
	_, err := reg.AddSet("block", registry.WithRefCount(2))
	require.NoError(t, err)
	_, err = reg.AddSet("other", registry.WithRefCount(1))
	require.NoError(t, err)
	require.NoError(t, mgr.Save(ctx, reg, WithRefOffsets(map[string]int{"block": 1, "other": 3})))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "block 1 0\nother 0 0\n", string(raw))
	//内存中的引用计数不受影响
	info, err := reg.FindSet("block")
	require.NoError(t, err)
	assert.Equal(t, 2, info.RefCount)
}
