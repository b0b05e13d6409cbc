package binder

import (
	"context"
	"errors"
	"testing"

	"ip-setkeeper/errs"
	"ip-setkeeper/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIPTables struct {
	mock.Mock
}

func (m *mockIPTables) ChainExists(table, chain string) (bool, error) {
	args := m.Called(table, chain)
	return args.Bool(0), args.Error(1)
}

func (m *mockIPTables) NewChain(table, chain string) error {
	return m.Called(table, chain).Error(0)
}

func (m *mockIPTables) AppendUnique(table, chain string, rulespec ...string) error {
	return m.Called(table, chain, rulespec).Error(0)
}

func (m *mockIPTables) InsertUnique(table, chain string, pos int, rulespec ...string) error {
	return m.Called(table, chain, pos, rulespec).Error(0)
}

func (m *mockIPTables) DeleteIfExists(table, chain string, rulespec ...string) error {
	return m.Called(table, chain, rulespec).Error(0)
}

func (m *mockIPTables) ClearAndDeleteChain(table, chain string) error {
	return m.Called(table, chain).Error(0)
}

func newTestRegistry(t *testing.T) *registry.Registry {
	reg, err := registry.New(registry.WithPersistencePath("/tmp/ipsets.snapshot"))
	require.NoError(t, err)
	_, err = reg.AddSet("web-tier")
	require.NoError(t, err)
	return reg
}

func TestBindUnbind(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	ipt := &mockIPTables{}
	b := Binding{Set: "web-tier", Hook: "INPUT", Dir: DirSrc, Target: "DROP"}
	rule := []string{"-m", "set", "--match-set", "web-tier", "src", "-j", "DROP"}

	ipt.On("ChainExists", "filter", "ip-setkeeper-chain").Return(false, nil).Once()
	ipt.On("NewChain", "filter", "ip-setkeeper-chain").Return(nil).Once()
	ipt.On("InsertUnique", "filter", "INPUT", 1, []string{"-j", "ip-setkeeper-chain"}).Return(nil).Once()
	ipt.On("AppendUnique", "filter", "ip-setkeeper-chain", rule).Return(nil).Once()

	bd := newBinder(ipt, reg)
	require.NoError(t, bd.Bind(ctx, b))
	//重复绑定不会重复加引用
	require.NoError(t, bd.Bind(ctx, b))
	info, err := reg.FindSet("web-tier")
	require.NoError(t, err)
	assert.Equal(t, 1, info.RefCount)
	assert.Equal(t, []Binding{b}, bd.Bindings())

	//被引用的集合不能删除
	assert.True(t, errors.Is(reg.DeleteSet("web-tier"), errs.ErrInUse))

	ipt.On("DeleteIfExists", "filter", "ip-setkeeper-chain", rule).Return(nil).Once()
	require.NoError(t, bd.Unbind(ctx, b))
	info, err = reg.FindSet("web-tier")
	require.NoError(t, err)
	assert.Equal(t, 0, info.RefCount)
	assert.Empty(t, bd.Bindings())
	assert.Error(t, bd.Unbind(ctx, b))
	ipt.AssertExpectations(t)
}

func TestBindFailureReleases(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	ipt := &mockIPTables{}
	ipt.On("ChainExists", "filter", "ip-setkeeper-chain").Return(true, nil)
	ipt.On("InsertUnique", "filter", "FORWARD", 1, []string{"-j", "ip-setkeeper-chain"}).Return(nil)
	ipt.On("AppendUnique", "filter", "ip-setkeeper-chain", mock.Anything).Return(errors.New("permission denied"))

	bd := newBinder(ipt, reg)
	err := bd.Bind(ctx, Binding{Set: "web-tier", Hook: "FORWARD", Dir: DirDst, Target: "ACCEPT"})
	assert.Error(t, err)
	info, err := reg.FindSet("web-tier")
	require.NoError(t, err)
	assert.Equal(t, 0, info.RefCount)
	assert.Empty(t, bd.Bindings())
}

func TestBindInvalid(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	bd := newBinder(&mockIPTables{}, reg)
	assert.Error(t, bd.Bind(ctx, Binding{Set: "web-tier", Hook: "INPUT", Dir: "both", Target: "DROP"}))
	assert.Error(t, bd.Bind(ctx, Binding{Set: "web-tier", Dir: DirSrc, Target: "DROP"}))
	err := bd.Bind(ctx, Binding{Set: "missing", Hook: "INPUT", Dir: DirSrc, Target: "DROP"})
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	ipt := &mockIPTables{}
	ipt.On("ChainExists", "mangle", "keeper").Return(true, nil)
	ipt.On("InsertUnique", "mangle", "PREROUTING", 1, []string{"-j", "keeper"}).Return(nil)
	ipt.On("AppendUnique", "mangle", "keeper", mock.Anything).Return(nil)
	ipt.On("DeleteIfExists", "mangle", "keeper", mock.Anything).Return(nil)
	ipt.On("DeleteIfExists", "mangle", "PREROUTING", []string{"-j", "keeper"}).Return(errors.New("rule does not exist"))
	ipt.On("ClearAndDeleteChain", "mangle", "keeper").Return(nil).Once()

	bd := newBinder(ipt, reg, WithTable("mangle"), WithChain("keeper"))
	require.NoError(t, bd.Bind(ctx, Binding{Set: "web-tier", Hook: "PREROUTING", Dir: DirSrc, Target: "RETURN"}))
	require.NoError(t, bd.Destroy(ctx))
	assert.Empty(t, bd.Bindings())
	require.NoError(t, reg.DeleteSet("web-tier"))
	ipt.AssertExpectations(t)
}
