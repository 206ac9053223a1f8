package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/mediasync/internal/client"
	"github.com/mmcdole/mediasync/internal/domain"
	"github.com/mmcdole/mediasync/internal/store"
	"github.com/mmcdole/mediasync/internal/transport/transporttest"
)

func newTestCommand(t *testing.T, tr *transporttest.Transport) (*command, *bytes.Buffer) {
	t.Helper()
	c := client.NewWithDeps(store.NewMemoryStore(), tr, nil)
	t.Cleanup(func() { c.Close() })

	out := &bytes.Buffer{}
	return &command{
		client:       c,
		in:           strings.NewReader("secret\n"),
		out:          out,
		readPassword: readPassword,
	}, out
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"artist=Coltrane", "year=1957"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"artist": "Coltrane", "year": 1957}, fields)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseFields([]string{"id=7"})
	assert.Error(t, err)

	fields, err = parseFields(nil)
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestReadPasswordFromPipe(t *testing.T) {
	out := &bytes.Buffer{}
	pw, err := readPassword("Password: ", strings.NewReader("hunter2\r\n"), out)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
	assert.Equal(t, "Password: ", out.String())
}

func TestStatusLoggedOut(t *testing.T) {
	cmd, out := newTestCommand(t, transporttest.New())
	require.NoError(t, cmd.dispatch(context.Background(), []string{"status"}))
	assert.Equal(t, "Not logged in\n", out.String())
}

func TestListRequiresLogin(t *testing.T) {
	cmd, _ := newTestCommand(t, transporttest.New())
	err := cmd.dispatch(context.Background(), []string{"list"})
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindNotLoggedIn, kind)
}

func TestUnknownCommand(t *testing.T) {
	cmd, _ := newTestCommand(t, transporttest.New())
	err := cmd.dispatch(context.Background(), []string{"frobnicate"})
	assert.ErrorContains(t, err, "frobnicate")
}

func TestUsageErrors(t *testing.T) {
	cmd, _ := newTestCommand(t, transporttest.New())
	for _, args := range [][]string{
		{"login"},
		{"register", "a", "b"},
		{"add"},
		{"rename", "x"},
		{"delete"},
		{"watch"},
	} {
		assert.ErrorIs(t, cmd.dispatch(context.Background(), args), errUsage, "%v", args)
	}
}

func TestRunSetupFlowRejectsEmptyInput(t *testing.T) {
	out := &bytes.Buffer{}
	err := runSetupFlow(nil, strings.NewReader(""), out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Welcome to mediasync!")
}

func TestCommandScenario(t *testing.T) {
	tr := transporttest.New()
	tr.Handle("POST", "/login", func(req domain.Request) ([]byte, error) {
		return []byte(`{"auth_token":"tok"}`), nil
	})
	tr.Reply("GET", "/user/alice/media", []map[string]any{
		{"id": "1", "name": "Blue Train", "artist": "John Coltrane"},
		{"id": "2", "name": "Kind of Blue"},
	})
	tr.Reply("PUT", "/user/alice/media", map[string]any{"id": "1", "name": "Blue Train (Remaster)"})
	tr.Reply("DELETE", "/user/alice/media", map[string]any{})

	cmd, out := newTestCommand(t, tr)
	ctx := context.Background()

	require.NoError(t, cmd.dispatch(ctx, []string{"login", "alice"}))
	assert.Contains(t, out.String(), "Logged in as alice")

	out.Reset()
	require.NoError(t, cmd.dispatch(ctx, []string{"list", "blue", "train"}))
	assert.Contains(t, out.String(), "1\tBlue Train\tJohn Coltrane")

	out.Reset()
	require.NoError(t, cmd.dispatch(ctx, []string{"rename", "blue train", "Blue Train (Remaster)"}))
	assert.Contains(t, out.String(), "Updated 1\tBlue Train (Remaster)")

	out.Reset()
	require.NoError(t, cmd.dispatch(ctx, []string{"delete", "kind of blue"}))
	assert.Equal(t, "✓ Deleted Kind of Blue\n", out.String())
	assert.Equal(t, 1, tr.Count("DELETE", "/user/alice/media"))
}
