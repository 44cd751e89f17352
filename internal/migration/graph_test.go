package migration

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// chainGraph builds a graph of n linked migrations whose scripts all exist.
func chainGraph(t *testing.T, n int) *Graph {
	t.Helper()

	files := fstest.MapFS{}
	graph := NewGraph("test", files)
	for i := 1; i <= n; i++ {
		node, err := graph.Append(fmt.Sprintf("step%d", i))
		require.NoError(t, err)
		files[node.UpFile] = &fstest.MapFile{Data: []byte("-- up\n")}
		files[node.DownFile] = &fstest.MapFile{Data: []byte("-- down\n")}
	}
	return graph
}

func TestAppendLinksChain(t *testing.T) {
	t.Parallel()

	graph := NewGraph("test", fstest.MapFS{})

	first, err := graph.Append("create_users")
	require.NoError(t, err)
	require.Equal(t, uint32(1), first.ID)
	require.Nil(t, first.PrevID)
	require.Equal(t, "1_create_users_up.sql", first.UpFile)
	require.Equal(t, "1_create_users_down.sql", first.DownFile)
	require.NotNil(t, graph.StartID)
	require.Equal(t, uint32(1), *graph.StartID)

	second, err := graph.Append("add_email")
	require.NoError(t, err)
	require.Equal(t, uint32(2), second.ID)
	require.Equal(t, uint32(1), *second.PrevID)
	require.Equal(t, uint32(2), graph.Counter)
	require.Equal(t, uint32(1), *graph.StartID, "start id is set once")

	stored, ok := graph.Lookup(1)
	require.True(t, ok)
	require.NotNil(t, stored.NextID)
	require.Equal(t, uint32(2), *stored.NextID)

	initial, ok := graph.Lookup(InitialID)
	require.True(t, ok)
	require.Equal(t, uint32(1), *initial.NextID)
}

func TestResolvePathSameEndpoint(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 3)
	for _, id := range []uint32{0, 1, 2, 3} {
		steps, err := graph.ResolvePath(id, id)
		require.NoError(t, err)
		require.Empty(t, steps)
	}
}

func TestResolvePathForwardAndBackwardMirror(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 3)

	forward, err := graph.ResolvePath(0, 3)
	require.NoError(t, err)
	wantForward := []Step{
		{ID: 1, File: "1_step1_up.sql"},
		{ID: 2, File: "2_step2_up.sql"},
		{ID: 3, File: "3_step3_up.sql"},
	}
	if diff := cmp.Diff(wantForward, forward); diff != "" {
		t.Fatalf("forward path mismatch (-want +got):\n%s", diff)
	}

	backward, err := graph.ResolvePath(3, 0)
	require.NoError(t, err)
	wantBackward := []Step{
		{ID: 3, File: "3_step3_down.sql"},
		{ID: 2, File: "2_step2_down.sql"},
		{ID: 1, File: "1_step1_down.sql"},
	}
	if diff := cmp.Diff(wantBackward, backward); diff != "" {
		t.Fatalf("backward path mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvePathPartialRanges(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 4)

	tests := []struct {
		name     string
		from, to uint32
		want     []Step
	}{
		{"forward from middle", 1, 3, []Step{{2, "2_step2_up.sql"}, {3, "3_step3_up.sql"}}},
		{"single step forward", 3, 4, []Step{{4, "4_step4_up.sql"}}},
		{"backward to middle", 4, 2, []Step{{4, "4_step4_down.sql"}, {3, "3_step3_down.sql"}}},
		{"single step backward", 1, 0, []Step{{1, "1_step1_down.sql"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := graph.ResolvePath(tt.from, tt.to)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolvePathUnknownEndpoint(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 2)

	_, err := graph.ResolvePath(9, 1)
	require.ErrorIs(t, err, ErrUnknownMigration)
	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	require.Equal(t, "from", pathErr.Endpoint)
	require.Equal(t, PathRequest{From: 9, To: 1}, pathErr.Request)

	_, err = graph.ResolvePath(0, 5)
	require.ErrorIs(t, err, ErrUnknownMigration)
	require.True(t, errors.As(err, &pathErr))
	require.Equal(t, "to", pathErr.Endpoint)
	require.Contains(t, err.Error(), "to migration 5")
}

func TestResolvePathDanglingNext(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 3)
	// node 2 now points at a node the manifest does not contain
	graph.Migrations[graph.index[2]].NextID = idPtr(42)

	_, err := graph.ResolvePath(0, 3)
	require.ErrorIs(t, err, ErrPathInvalid)

	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	require.NotNil(t, pathErr.Node)
	require.Equal(t, uint32(2), pathErr.Node.ID)
	require.Equal(t, PathRequest{From: 0, To: 3}, pathErr.Request)
}

func TestResolvePathMissingPrev(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 3)
	graph.Migrations[graph.index[3]].PrevID = nil

	_, err := graph.ResolvePath(3, 1)
	require.ErrorIs(t, err, ErrPathInvalid)

	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	require.Equal(t, uint32(3), pathErr.Node.ID)
}

func TestResolvePathCircularChain(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 3)
	// 1 -> 2 -> 1 -> ...; node 3 is still known, so the endpoint check passes
	graph.Migrations[graph.index[2]].NextID = idPtr(1)

	_, err := graph.ResolvePath(0, 3)
	require.ErrorIs(t, err, ErrCircularMigration)

	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	require.Equal(t, uint32(1), pathErr.Node.ID)
	require.Equal(t, PathRequest{From: 0, To: 3}, pathErr.Request)
}

func TestResolvePathCircularBackward(t *testing.T) {
	t.Parallel()

	graph := chainGraph(t, 3)
	graph.Migrations[graph.index[2]].PrevID = idPtr(3)

	_, err := graph.ResolvePath(3, 0)
	require.ErrorIs(t, err, ErrCircularMigration)
}

func TestResolvePathMissingScript(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{}
	graph := NewGraph("test", files)
	for i := 1; i <= 3; i++ {
		node, err := graph.Append(fmt.Sprintf("step%d", i))
		require.NoError(t, err)
		files[node.UpFile] = &fstest.MapFile{}
		if i != 2 {
			files[node.DownFile] = &fstest.MapFile{}
		}
	}

	_, err := graph.ResolvePath(0, 3)
	require.ErrorIs(t, err, ErrMigrationFileMissing)

	var fsErr *FileSystemError
	require.True(t, errors.As(err, &fsErr))
	require.Equal(t, uint32(2), fsErr.Node.ID)
	require.Equal(t, "2_step2_down.sql", fsErr.Path)

	// the broken node is never visited when moving within 0..1
	steps, err := graph.ResolvePath(0, 1)
	require.NoError(t, err)
	require.Len(t, steps, 1)
}

func TestReindexRejectsDuplicates(t *testing.T) {
	t.Parallel()

	graph := &Graph{Migrations: []Node{{ID: 1}, {ID: 1}}}
	require.ErrorIs(t, graph.reindex(), ErrDuplicateMigration)

	graph = &Graph{Migrations: []Node{{ID: 0}}}
	require.ErrorIs(t, graph.reindex(), ErrDuplicateMigration)
}

func TestAppendRejectsStaleCounter(t *testing.T) {
	t.Parallel()

	t.Run("next id already taken", func(t *testing.T) {
		graph := chainGraph(t, 3)
		graph.Counter = 1

		_, err := graph.Append("dup")
		require.ErrorIs(t, err, ErrDuplicateMigration)
		require.Len(t, graph.Migrations, 3)
		require.Equal(t, uint32(1), graph.Counter)
		require.NoError(t, graph.reindex())

		first, _ := graph.Lookup(1)
		require.Equal(t, uint32(2), *first.NextID)
	})

	t.Run("tail already has a successor", func(t *testing.T) {
		graph := chainGraph(t, 1)
		graph.Migrations[0].NextID = idPtr(5)

		_, err := graph.Append("orphan")
		require.ErrorIs(t, err, ErrPathInvalid)
		require.Len(t, graph.Migrations, 1)
		require.Equal(t, uint32(5), *graph.Migrations[0].NextID)
		require.Equal(t, uint32(1), graph.Counter)
	})
}
