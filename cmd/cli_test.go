package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionPrintsBuildVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestConfigInitWritesDefaultsOnce(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, filepath.Join(home, ".spin-accounts", "config.toml"))

	data, err := os.ReadFile(filepath.Join(home, ".spin-accounts", "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "spin_schedule")

	_, _, err = executeCLI(t, home, "config", "init")
	require.ErrorContains(t, err, "already exists")

	_, _, err = executeCLI(t, home, "config", "init", "--force")
	require.NoError(t, err)
}

func TestInvalidConfigSurfacesOnRun(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, "[cache]\nbackend = \"memcached\"\n")

	_, _, err := executeCLI(t, home)
	require.ErrorContains(t, err, `unsupported cache.backend "memcached"`)
}

func TestAccountImportListDisableRemove(t *testing.T) {
	home := t.TempDir()
	credential := filepath.Join(t.TempDir(), "alice.bin")
	require.NoError(t, os.WriteFile(credential, []byte("session-bytes"), 0o600))

	stdout, _, err := executeCLI(t, home, "account", "import", "alice", "--file", credential)
	require.NoError(t, err)
	assert.Equal(t, "imported alice\n", stdout)

	stored, err := os.ReadFile(filepath.Join(home, ".spin-accounts", "sessions", "alice.session"))
	require.NoError(t, err)
	assert.Equal(t, "session-bytes", string(stored))

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "accounts: 1")
	assert.Contains(t, stdout, "alice unauthenticated")

	_, _, err = executeCLI(t, home, "account", "disable", "alice")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, home, "account", "list", "--json")
	require.NoError(t, err)
	var listed []accountJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &listed))
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Disabled)

	_, _, err = executeCLI(t, home, "account", "remove", "alice")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, ".spin-accounts", "sessions", "alice.session"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAccountImportRequiresFile(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "account", "import", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "file" not set`)
}

func TestBalanceJSONSortedAndRecorded(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(map[string]int64{"alice": 40, "carol": 350})
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	writeBackendConfig(t, home, server.URL)
	writeCredentials(t, home, "alice", "carol")

	stdout, _, err := executeCLI(t, home, "balance", "--json")
	require.NoError(t, err)

	run := decodeRun(t, stdout)
	assert.Equal(t, "balance", run.Workflow)
	assert.Equal(t, 2, run.Succeeded)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "carol", run.Results[0].Account)
	assert.Equal(t, int64(350), *run.Results[0].StarsBalance)
	assert.Equal(t, "alice", run.Results[1].Account)

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "carol authenticated 350⭐")

	stdout, _, err = executeCLI(t, home, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "runs: 1")
	assert.Contains(t, stdout, "Balance 2/2 ok")
}

func TestValidateReportsInvalidSession(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(map[string]int64{"alice": 10})
	backend.unauthorized["bob"] = true
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	writeBackendConfig(t, home, server.URL)
	writeCredentials(t, home, "alice", "bob")

	stdout, _, err := executeCLI(t, home, "validate", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Validate run")
	assert.Contains(t, stdout, "accounts: 2  ok: 1  failed: 1")

	stdout, _, err = executeCLI(t, home, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice authenticated")
	assert.Contains(t, stdout, "bob invalid")
}

func TestValidateQuickCountsSessions(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(map[string]int64{"alice": 10})
	backend.unauthorized["bob"] = true
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	writeBackendConfig(t, home, server.URL)
	writeCredentials(t, home, "alice", "bob")

	stdout, _, err := executeCLI(t, home, "validate", "--quick")
	require.NoError(t, err)
	assert.Equal(t, "valid: 1  invalid: 1\n", stdout)

	stdout, _, err = executeCLI(t, home, "validate", "--quick", "--json")
	require.NoError(t, err)
	var counts quickValidation
	require.NoError(t, json.Unmarshal([]byte(stdout), &counts))
	assert.Equal(t, quickValidation{Valid: 1, Invalid: 1}, counts)

	_, _, err = executeCLI(t, home, "validate", "--quick", "--account", "alice")
	require.Error(t, err)
}

func TestBalanceSortByStars(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(map[string]int64{"alice": 40, "bob": 900, "carol": 350})
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	writeBackendConfig(t, home, server.URL)
	writeCredentials(t, home, "alice", "bob", "carol")

	stdout, _, err := executeCLI(t, home, "balance", "--json", "--sort", "stars")
	require.NoError(t, err)

	run := decodeRun(t, stdout)
	require.Len(t, run.Results, 3)
	assert.Equal(t, "bob", run.Results[0].Account)
	assert.Equal(t, "carol", run.Results[1].Account)
	assert.Equal(t, "alice", run.Results[2].Account)

	_, _, err = executeCLI(t, home, "balance", "--sort", "value")
	require.ErrorContains(t, err, `unsupported sort "value"`)
}

func TestSpinSelectionAndExport(t *testing.T) {
	home := t.TempDir()
	backend := newFakeBackend(map[string]int64{"alice": 10, "bob": 10, "carol": 10})
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	writeBackendConfig(t, home, server.URL)
	writeCredentials(t, home, "alice", "bob", "carol")
	exportPath := filepath.Join(t.TempDir(), "spin.json")

	stdout, _, err := executeCLI(t, home, "spin", "--exclude", "bob", "--json", "--export", exportPath)
	require.NoError(t, err)

	run := decodeRun(t, stdout)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "alice", run.Results[0].Account)
	assert.Equal(t, "carol", run.Results[1].Account)
	assert.Equal(t, "Plush Pepe", run.Results[0].Prize)
	assert.Equal(t, 2, run.HighValue)
	assert.Equal(t, 2, backend.spinCount())

	exported, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Equal(t, stdout, string(exported))
}

func TestSpinRejectsConflictingSelection(t *testing.T) {
	home := t.TempDir()
	_, _, err := executeCLI(t, home, "spin", "--account", "alice", "--exclude", "alice")
	require.ErrorContains(t, err, "both included and excluded")
}

func TestPaidSpinRejectsUnknownType(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "paid-spin", "--type", "X9")
	require.ErrorContains(t, err, `unsupported spin type "X9"`)
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".spin-accounts")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))
}

func writeBackendConfig(t *testing.T, home, serverURL string) {
	t.Helper()
	writeConfig(t, home, fmt.Sprintf(`[remote]
graphql_url = "%s/graphql"
app_url = "https://app.example/"
bot_ref = ""

[gateway]
base_url = "%s"

[governor]
min_interval = "0s"

[reward]
exchange_on_balance_check = false
`, serverURL, serverURL))
}

func writeCredentials(t *testing.T, home string, names ...string) {
	t.Helper()
	dir := filepath.Join(home, ".spin-accounts", "sessions")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".session"), []byte("blob-"+name), 0o600))
	}
}

type decodedRun struct {
	Workflow  string `json:"workflow"`
	Succeeded int    `json:"succeeded"`
	HighValue int    `json:"high_value"`
	Results   []struct {
		Account      string `json:"account"`
		Success      bool   `json:"success"`
		Prize        string `json:"prize"`
		StarsBalance *int64 `json:"stars_balance"`
	} `json:"results"`
}

func decodeRun(t *testing.T, stdout string) decodedRun {
	t.Helper()
	var run decodedRun
	require.NoError(t, json.Unmarshal([]byte(stdout), &run), stdout)
	return run
}

// fakeBackend serves both the session gateway and the GraphQL endpoint.
type fakeBackend struct {
	mu           sync.Mutex
	stars        map[string]int64
	unauthorized map[string]bool
	spins        int
}

func newFakeBackend(stars map[string]int64) *fakeBackend {
	return &fakeBackend{stars: stars, unauthorized: map[string]bool{}}
}

func (b *fakeBackend) spinCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spins
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/graphql" {
		b.serveGraphQL(w, r)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "v1" || parts[1] != "sessions" {
		http.NotFound(w, r)
		return
	}
	name, action := parts[2], parts[3]

	w.Header().Set("Content-Type", "application/json")
	switch action {
	case "connect", "disconnect", "start", "join":
		_, _ = w.Write([]byte(`{}`))
	case "authorized":
		b.mu.Lock()
		authorized := !b.unauthorized[name]
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]bool{"authorized": authorized})
	case "webview":
		initData := url.QueryEscape("user=" + name + "&hash=abc")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"return_url": "https://app.example/#tgWebAppData=" + initData + "&tgWebAppVersion=7.0",
		})
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var batch []struct {
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil || len(batch) != 1 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	op := batch[0]

	var data any
	switch op.OperationName {
	case "authTelegramInitData":
		initData, _ := op.Variables["initData"].(string)
		values, _ := url.ParseQuery(initData)
		data = map[string]any{"authTelegramInitData": map[string]any{"token": "tok-" + values.Get("user"), "success": true}}
	case "me":
		b.mu.Lock()
		stars := b.stars[accountFromToken(r)]
		b.mu.Unlock()
		data = map[string]any{"me": map[string]any{"id": "1", "starsBalance": stars, "balance": 3, "nextFreeSpin": nil}}
	case "getRouletteInventory":
		data = map[string]any{"getRouletteInventory": map[string]any{"success": true, "prizes": []any{}, "nextCursor": nil, "hasNextPage": false}}
	case "startRouletteSpin":
		b.mu.Lock()
		b.spins++
		b.mu.Unlock()
		data = map[string]any{"startRouletteSpin": map[string]any{
			"success": true,
			"prize":   map[string]any{"id": "9", "name": "Plush Pepe", "exchangePrice": 500, "isClaimable": true, "isExchangeable": true},
		}}
	default:
		data = nil
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]map[string]any{{"data": data}})
}

func accountFromToken(r *http.Request) string {
	return strings.TrimPrefix(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), "tok-")
}
