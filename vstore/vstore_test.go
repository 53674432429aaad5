package vstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vatkit/liveslots/vref"
)

// fakeSyscall is a minimal in-memory vstore.Syscall stand-in: these tests
// exercise Store's own namespacing logic, not a real kernel connection, so
// a shared map keyed by the already-namespaced string is all it needs.
type fakeSyscall struct {
	data map[string][]byte
}

func newFakeSyscall() *fakeSyscall {
	return &fakeSyscall{data: make(map[string][]byte)}
}

func (f *fakeSyscall) VatstoreGet(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeSyscall) VatstoreSet(ctx context.Context, key string, value []byte) error {
	f.data[key] = value
	return nil
}

func (f *fakeSyscall) VatstoreDelete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func TestStoreNamespacesKeys(t *testing.T) {
	ctx := context.Background()
	sys := newFakeSyscall()
	a := NewStore("vat1.", sys)
	b := NewStore("vat2.", sys)

	require.NoError(t, a.Set(ctx, "x", []byte("1")))
	require.NoError(t, b.Set(ctx, "x", []byte("2")))

	av, ok, err := a.Get(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), av)

	bv, ok, err := b.Get(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), bv)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore("p.", newFakeSyscall())
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreGetMissingKey(t *testing.T) {
	s := NewStore("p.", newFakeSyscall())
	_, ok, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreForwardsThroughSyscallNotLocalState(t *testing.T) {
	ctx := context.Background()
	sys := newFakeSyscall()
	s := NewStore("p.", sys)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	assert.Equal(t, []byte("v"), sys.data["p.k"])
}

func TestMemoryMaterialize(t *testing.T) {
	m := NewMemory()
	v := vref.New(vref.Object, vref.Vat, vref.Virtual, 1)
	m.Put(v, "payload", 2)

	rep, err := m.Materialize(v)
	require.NoError(t, err)
	assert.Equal(t, v, rep.Vref)
	assert.Equal(t, "payload", rep.Data)
	assert.Equal(t, 2, m.RefcountOf(v))
}

func TestMemoryMaterializeUnknown(t *testing.T) {
	m := NewMemory()
	v := vref.New(vref.Object, vref.Vat, vref.Virtual, 99)
	_, err := m.Materialize(v)
	assert.Error(t, err)
}

func TestMemoryReleaseDecrementsRefcountNotBelowZero(t *testing.T) {
	m := NewMemory()
	v := vref.New(vref.Object, vref.Vat, vref.Virtual, 1)
	m.Put(v, "x", 1)

	m.Release(v)
	assert.Equal(t, 0, m.RefcountOf(v))
	m.Release(v)
	assert.Equal(t, 0, m.RefcountOf(v))
}

func TestMemoryHasMoreWorkAlwaysFalse(t *testing.T) {
	m := NewMemory()
	assert.False(t, m.HasMoreWork())
}
