package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/aishu/internal/server/handlers"
)

// run выполняет команду CLI с хранилищем во временном каталоге
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", "", "--storage-path", dbPath}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestFlagsCommands(t *testing.T) {
	for _, driver := range []string{"sqlite", "bolt"} {
		t.Run(driver, func(t *testing.T) {
			t.Setenv("AISHU_STORAGE_DRIVER", driver)
			dbPath := filepath.Join(t.TempDir(), "flags.db")

			out, err := run(t, dbPath, "flags", "set", "beta_widget", "--enabled", "--rollout", "25", "--description", "new widget")
			require.NoError(t, err)
			assert.Contains(t, out, "beta_widget: enabled=true rollout=25% environment=all")

			out, err = run(t, dbPath, "flags", "set", "beta_widget", "--env", "staging")
			require.NoError(t, err)
			assert.Contains(t, out, "rollout=25% environment=staging")

			_, err = run(t, dbPath, "flags", "set", "beta_widget", "--rollout", "150")
			assert.Error(t, err)

			out, err = run(t, dbPath, "flags", "list")
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(out), "\n")
			require.Len(t, lines, 2)
			assert.Contains(t, lines[1], "beta_widget")
			assert.Contains(t, lines[1], "cli")
			assert.Contains(t, lines[1], "new widget")

			out, err = run(t, dbPath, "flags", "override", "beta_widget", "user-1", "true")
			require.NoError(t, err)
			assert.Contains(t, out, "override for user-1 set to true")

			_, err = run(t, dbPath, "flags", "override", "missing_flag", "user-1", "true")
			assert.Error(t, err)

			_, err = run(t, dbPath, "flags", "override", "beta_widget", "user-1", "maybe")
			assert.Error(t, err)

			_, err = run(t, dbPath, "flags", "unoverride", "beta_widget", "user-1")
			require.NoError(t, err)

			_, err = run(t, dbPath, "flags", "unoverride", "beta_widget", "user-1")
			assert.Error(t, err)
		})
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("AISHU_JWT_SECRET", "cli-test-secret")

	out, err := run(t, filepath.Join(t.TempDir(), "unused.db"), "token", "admin-1", "--role", "admin")
	require.NoError(t, err)

	claims, err := handlers.ValidateAccessToken(handlers.JWTConfig{Secret: []byte("cli-test-secret")}, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestRemoteCommands(t *testing.T) {
	var lastAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/api/v1/features":
			_, _ = w.Write([]byte(`{"flags":{"zeta":false,"alpha":true}}`))
		case "/api/v1/csrf":
			_, _ = w.Write([]byte(`{"csrf_token":"t","expires_in":3600}`))
		case "/api/v1/admin/flags/alpha":
			_, _ = w.Write([]byte(`{"name":"alpha","enabled":true,"rollout_percentage":40,"environment":"all"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dbPath := filepath.Join(t.TempDir(), "unused.db")

	out, err := run(t, dbPath, "remote", "features", "--url", server.URL)
	require.NoError(t, err)
	assert.Equal(t, "alpha\ttrue\nzeta\tfalse\n", out)

	out, err = run(t, dbPath, "remote", "set", "alpha", "--url", server.URL, "--token", "tok", "--enabled", "--rollout", "40")
	require.NoError(t, err)
	assert.Equal(t, "alpha: enabled=true rollout=40% environment=all\n", out)
	assert.Equal(t, "Bearer tok", lastAuth)
}
