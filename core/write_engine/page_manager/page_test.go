package pagemanager

import (
	"container/list"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPage_PinAndReset(t *testing.T) {
	p := NewPage(7, 64)
	require.Equal(t, PageID(7), p.GetPageID())
	require.Len(t, p.GetData(), 64)

	p.Pin()
	p.Pin()
	p.Unpin()
	require.Equal(t, uint32(1), p.GetPinCount())
	p.Unpin()
	p.Unpin()
	require.Zero(t, p.GetPinCount(), "unpin stops at zero")

	p.SetDirty(true)
	p.SetLruElement(list.New().PushBack(p))
	copy(p.GetData(), "edge")

	p.Reset()
	require.Equal(t, InvalidPageID, p.GetPageID())
	require.False(t, p.IsDirty())
	require.Nil(t, p.GetLruElement())
	require.Equal(t, make([]byte, 64), p.GetData())
}

func TestPageID_String(t *testing.T) {
	require.Equal(t, "invalid", InvalidPageID.String())
	require.Equal(t, "42", PageID(42).String())
}
