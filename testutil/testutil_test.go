package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/vref"
)

func TestSyscallRecordsSendsInOrder(t *testing.T) {
	s := NewSyscall()
	ctx := context.Background()
	t1 := vref.New(vref.Object, vref.Kernel, vref.Ordinary, 5)
	t2 := vref.New(vref.Promise, vref.Vat, vref.Ordinary, 5)

	require.NoError(t, s.Send(ctx, t1, "foo", capdata.Capdata{}, t2))
	require.NoError(t, s.Send(ctx, t2, "bar", capdata.Capdata{}, vref.Vref{}))

	require.Len(t, s.Sends, 2)
	assert.Equal(t, "foo", s.Sends[0].Method)
	assert.Equal(t, "bar", s.Sends[1].Method)
}

func TestSyscallVatstoreRoundTrip(t *testing.T) {
	s := NewSyscall()
	ctx := context.Background()
	require.NoError(t, s.VatstoreSet(ctx, "k", []byte("v")))
	v, ok, err := s.VatstoreGet(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.VatstoreDelete(ctx, "k"))
	_, ok, err = s.VatstoreGet(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestToolsWaitUntilQuiescentImmediate(t *testing.T) {
	tl := &Tools{}
	assert.NoError(t, tl.WaitUntilQuiescent(context.Background()))
}
