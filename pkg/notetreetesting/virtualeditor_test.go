package notetreetesting

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/notetree"
)

func newScenarioServer(t *testing.T) *httptest.Server {
	t.Helper()
	app, err := notetree.New(&notetree.Config{Backend: notetree.BackendMemory, MediaDir: t.TempDir()})
	require.NoError(t, err)
	server := httptest.NewServer(app.Router())
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})
	return server
}

func TestVirtualEditorScenario(t *testing.T) {
	server := newScenarioServer(t)

	editor := NewVirtualEditor(1, server.URL)
	require.NoError(t, editor.RunScenario(context.Background()))
}

func TestVirtualEditorsCommitIndependently(t *testing.T) {
	server := newScenarioServer(t)
	ctx := context.Background()

	first := NewVirtualEditor(1, server.URL)
	second := NewVirtualEditor(2, server.URL)

	_, err := first.StagePage("alpha")
	require.NoError(t, err)
	_, err = second.StagePage("beta")
	require.NoError(t, err)

	// One editor committing does not drain the other's session.
	_, err = first.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, first.Session.Dirty())
	assert.True(t, second.Session.Dirty())

	_, err = second.Commit(ctx)
	require.NoError(t, err)

	pages, err := first.Client.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}
