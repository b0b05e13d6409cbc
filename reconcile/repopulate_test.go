package reconcile

import (
	"context"
	"errors"
	"testing"

	"ip-setkeeper/errs"
	"ip-setkeeper/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepopulate(t *testing.T) {
	reg, err := registry.New(registry.WithPersistencePath("/tmp/ipsets.snapshot"))
	require.NoError(t, err)
	_, err = reg.AddSet("sg-web", registry.WithRefCount(2))
	require.NoError(t, err)
	require.NoError(t, reg.AddNetString("sg-web", "10.9.9.9"))
	_, err = reg.AddSet("sg-gone")
	require.NoError(t, err)
	_, err = reg.AddSet("sg-gone-ref", registry.WithRefCount(1))
	require.NoError(t, err)
	require.NoError(t, reg.AddNetString("sg-gone-ref", "10.1.1.1"))

	be := newFakeBackend()
	be.seed("sg-web", "10.0.0.0/24", "10.0.1.5")
	be.seed("sg-new", "192.168.0.0/16")
	be.seed("docker-set", "172.17.0.0/16")

	rp, err := New(be, WithManagedPrefix("sg-")).Repopulate(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"sg-web"}, rp.Updated)
	assert.Equal(t, []string{"sg-new"}, rp.Imported)
	assert.Equal(t, []string{"sg-gone"}, rp.Dropped)
	assert.Equal(t, []string{"sg-gone-ref"}, rp.Vanished)
	assert.Empty(t, be.mutations())

	sets, err := reg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"sg-gone-ref", "sg-new", "sg-web"}, sortedNames(sets))

	web, err := reg.FindSet("sg-web")
	require.NoError(t, err)
	assert.Equal(t, 2, web.RefCount)
	assert.Len(t, web.Members, 2)
	_, err = reg.FindIP("sg-web", 0x0a090909)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	gone, err := reg.FindSet("sg-gone-ref")
	require.NoError(t, err)
	assert.Equal(t, 1, gone.RefCount)
	assert.Empty(t, gone.Members)

	imported, err := reg.FindSet("sg-new")
	require.NoError(t, err)
	assert.Equal(t, 0, imported.RefCount)
	assert.Equal(t, "192.168.0.0/16", imported.Members[0].String())
}

func TestRepopulateListFailure(t *testing.T) {
	reg, err := registry.New(registry.WithPersistencePath("/tmp/ipsets.snapshot"))
	require.NoError(t, err)
	_, err = reg.AddSet("a")
	require.NoError(t, err)
	require.NoError(t, reg.AddNetString("a", "1.1.1.1"))
	_, err = reg.AddSet("b")
	require.NoError(t, err)

	be := newFakeBackend()
	be.seed("a", "2.2.2.2")
	be.seed("b", "3.3.3.3")
	be.fail["list a"] = errors.New("timeout")

	rp, err := New(be).Repopulate(context.Background(), reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBackendCommand))
	assert.Len(t, rp.Failures, 1)
	assert.Equal(t, []string{"b"}, rp.Updated)

	a, err := reg.FindSet("a")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1/32", a.Members[0].String())

	be.fail["list-sets"] = errors.New("no ipset")
	rp, err = New(be).Repopulate(context.Background(), reg)
	require.Error(t, err)
	assert.Len(t, rp.Failures, 1)
	assert.Equal(t, 2, reg.Len())
}

func TestRepopulateCapacity(t *testing.T) {
	reg, err := registry.New(registry.WithPersistencePath("/tmp/ipsets.snapshot"), registry.WithMaxMembersPerSet(1), registry.WithMaxSets(1))
	require.NoError(t, err)
	_, err = reg.AddSet("a")
	require.NoError(t, err)
	require.NoError(t, reg.AddNetString("a", "1.1.1.1"))

	be := newFakeBackend()
	be.seed("a", "2.2.2.2", "3.3.3.3")
	be.seed("b", "4.4.4.4")

	rp, err := New(be).Repopulate(context.Background(), reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCapacityExceeded))
	assert.Len(t, rp.Failures, 2)
	assert.Empty(t, rp.Imported)

	a, err := reg.FindSet("a")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1/32", a.Members[0].String())
	assert.Equal(t, 1, reg.Len())
}
