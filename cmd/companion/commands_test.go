package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/catalogue"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/config"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/devserver"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/state"
)

// newDemoBackend serves the demo backend and points the CLI at it, with
// state kept in a throwaway sqlite file.
func newDemoBackend(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := state.OpenDB("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	srv, err := devserver.New(db, config.DevServerConfig{JWTSecret: "test-secret"}, nil, catalogue.Default(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.SeedUser(context.Background(), "Demo Traveller", "demo@example.com", "demo1234"))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	t.Setenv("BACKEND_BASE_URL", ts.URL+"/api")
	t.Setenv("STATE_DRIVER", "sqlite")
	t.Setenv("STATE_DSN", filepath.Join(t.TempDir(), "state.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLI()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(context.Background(), append([]string{"companion"}, args...))
	return out.String(), err
}

func TestHistoryDelete(t *testing.T) {
	newDemoBackend(t)

	_, err := runCLI(t, "login", "--email", "demo@example.com", "--password", "demo1234")
	require.NoError(t, err)
	out, err := runCLI(t, "ask", "Tell me about Auli")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(out))

	out, err = runCLI(t, "history")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	out, err = runCLI(t, "history", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id+" (2 messages).")

	out, err = runCLI(t, "history", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "No saved conversation "+id)

	out, err = runCLI(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved conversations.")

	_, err = runCLI(t, "history", "delete")
	require.Error(t, err)
}

func TestEphemeralStateForgetsLogin(t *testing.T) {
	newDemoBackend(t)

	_, err := runCLI(t, "--ephemeral", "login", "--email", "demo@example.com", "--password", "demo1234")
	require.NoError(t, err)

	out, err := runCLI(t, "--ephemeral", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")

	out, err = runCLI(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}
