package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/textstorm/internal/app"
	"github.com/dshills/textstorm/internal/config"
	"github.com/dshills/textstorm/internal/snippet"
	"github.com/dshills/textstorm/internal/store"
)

func memoryRuntime(t *testing.T) *app.Runtime {
	t.Helper()
	s := config.Defaults()
	s.Store.Driver = config.DriverMemory
	rt, err := app.New(context.Background(), app.Options{Settings: config.NewStaticManager(s)})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestSnippetCommands(t *testing.T) {
	ctx := context.Background()
	rt := memoryRuntime(t)
	var out bytes.Buffer

	require.NoError(t, snippetCmd(ctx, rt.Store(), []string{"add", "-mode", "word-both", "-tags", "greet, mail", "brb", "be", "right", "back"}, &out))
	assert.Contains(t, out.String(), "added brb")

	set, err := rt.Store().Snippets(ctx)
	require.NoError(t, err)
	s := set.ByTrigger("brb")
	require.NotNil(t, s)
	assert.Equal(t, "be right back", s.Expansion)
	assert.Equal(t, snippet.ModeWordBoth, s.TriggerMode)
	assert.Equal(t, []string{"greet", "mail"}, s.Tags)

	out.Reset()
	require.NoError(t, snippetCmd(ctx, rt.Store(), []string{"list"}, &out))
	assert.Contains(t, out.String(), "TRIGGER")
	assert.Contains(t, out.String(), "be right back")

	out.Reset()
	require.NoError(t, snippetCmd(ctx, rt.Store(), []string{"rm", "brb"}, &out))
	set, err = rt.Store().Snippets(ctx)
	require.NoError(t, err)
	assert.Empty(t, set)

	err = snippetCmd(ctx, rt.Store(), []string{"rm", "brb"}, &out)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, snippetCmd(ctx, rt.Store(), nil, &out), errUsage)
	assert.ErrorIs(t, snippetCmd(ctx, rt.Store(), []string{"add", "only"}, &out), errUsage)
	assert.ErrorIs(t, snippetCmd(ctx, rt.Store(), []string{"frob"}, &out), errUsage)

	assert.Error(t, snippetCmd(ctx, rt.Store(), []string{"add", "-mode", "sideways", "x", "y"}, &out))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	rt := memoryRuntime(t)
	require.NoError(t, rt.Store().Put(ctx, snippet.New("omw", "on my way")))

	var out bytes.Buffer
	require.NoError(t, check(ctx, rt, []string{"I'm", "omw"}, &out))
	assert.Equal(t, "I'm on my way\n", out.String())

	out.Reset()
	require.NoError(t, check(ctx, rt, []string{"nothing"}, &out))
	assert.Equal(t, "nothing\n", out.String())

	assert.ErrorIs(t, check(ctx, rt, nil, &out), errUsage)
}

func TestApplyOverrides(t *testing.T) {
	s := config.Defaults()
	s.Store.Driver = config.DriverFile
	applyOverrides(s, options{LogLevel: "debug", DBPath: "/tmp/x.db", MetricsAddr: ":9300"})
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, config.DriverSQLite, s.Store.Driver)
	assert.Equal(t, "/tmp/x.db", s.Store.Path)
	assert.Equal(t, ":9300", s.Metrics.Addr)

	before := *s
	applyOverrides(s, options{})
	assert.Equal(t, before.Store, s.Store)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "line…", preview("line\nmore", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}
