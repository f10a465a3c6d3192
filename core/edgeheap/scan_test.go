package edgeheap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, env *testEnv, s *Scan) map[EID]*Edge {
	t.Helper()
	out := make(map[EID]*Edge)
	for {
		eid, e, ok, err := s.Next(context.Background())
		require.NoError(t, err)
		env.requireNoPins(t)
		if !ok {
			return out
		}
		require.NotContains(t, out, eid, "edge %s returned twice", eid)
		out[eid] = e
	}
}

func TestScan_VisitsEveryEdge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	f := env.open(t, "edges")

	want := make(map[EID]*Edge)
	for i := uint64(0); i < 120; i++ {
		e := sizedEdge(i, 40+int(i%5)*30)
		eid, err := f.InsertEdge(ctx, e)
		require.NoError(t, err)
		want[eid] = e
	}
	require.Greater(t, len(directory(t, f)), 1)

	s := f.OpenScan()
	require.Equal(t, want, drain(t, env, s))

	// Exhausted scans stay exhausted until reset.
	_, _, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	s.Reset()
	require.Equal(t, want, drain(t, env, s))
}

func TestScan_SkipsDeletedEdges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	f := env.open(t, "edges")

	want := make(map[EID]*Edge)
	var eids []EID
	for i := uint64(0); i < 30; i++ {
		e := sizedEdge(i, 150)
		eid, err := f.InsertEdge(ctx, e)
		require.NoError(t, err)
		want[eid] = e
		eids = append(eids, eid)
	}
	for i, eid := range eids {
		if i%3 == 0 {
			continue
		}
		deleted, err := f.DeleteEdge(ctx, eid)
		require.NoError(t, err)
		require.True(t, deleted)
		delete(want, eid)
	}

	require.Equal(t, want, drain(t, env, f.OpenScan()))
}

func TestScan_EmptyFileAndClose(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	f := env.open(t, "edges")

	require.Empty(t, drain(t, env, f.OpenScan()))

	_, err := f.InsertEdge(ctx, testEdge(1, 2, "x", 1))
	require.NoError(t, err)

	s := f.OpenScan()
	s.Close()
	_, _, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	s.Reset()
	require.Len(t, drain(t, env, s), 1)
}

func TestScan_DeleteWhileScanning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	f := env.open(t, "edges")

	// One edge per data page across three directory pages, so deleting what
	// the scan returns frees data pages and unlinks the middle directory page.
	want := make(map[EID]*Edge)
	for i := uint64(0); i < 2*entriesPerDirPage+1; i++ {
		e := pageFillingEdge(i)
		eid, err := f.InsertEdge(ctx, e)
		require.NoError(t, err)
		want[eid] = e
	}
	require.Len(t, directory(t, f), 3)

	got := make(map[EID]*Edge)
	s := f.OpenScan()
	for {
		eid, e, ok, err := s.Next(ctx)
		require.NoError(t, err)
		env.requireNoPins(t)
		if !ok {
			break
		}
		require.NotContains(t, got, eid, "edge %s returned twice", eid)
		got[eid] = e

		deleted, err := f.DeleteEdge(ctx, eid)
		require.NoError(t, err)
		require.True(t, deleted)
	}
	require.Equal(t, want, got)

	n, err := f.EdgeCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	pages := directory(t, f)
	require.Len(t, pages, 1)
	require.Empty(t, pages[0].entries)
}

func TestScan_ForeignPageNotRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 0)
	f := env.open(t, "edges")
	other := env.open(t, "other")

	var eids []EID
	for i := uint64(0); i < 2; i++ {
		eid, err := f.InsertEdge(ctx, pageFillingEdge(i))
		require.NoError(t, err)
		eids = append(eids, eid)
	}

	s := f.OpenScan()
	eid, _, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, eids[0], eid)

	// The freed page goes to the other file before the scan moves on.
	deleted, err := f.DeleteEdge(ctx, eid)
	require.NoError(t, err)
	require.True(t, deleted)
	for i := uint64(0); i < 2; i++ {
		foreign, err := other.InsertEdge(ctx, sizedEdge(90+i, 40))
		require.NoError(t, err)
		require.Equal(t, eid.PageID, foreign.PageID, "free list hands the page back")
	}

	eid, _, ok, err = s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, eids[1], eid)

	_, _, ok, err = s.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	env.requireNoPins(t)
}
