package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithStreams(&stdout, &stderr, strings.NewReader(stdin))
	code := runner.Run(args)
	return code, stdout.String(), stderr.String()
}

func isolateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir+"/config")
	t.Setenv("XDG_DATA_HOME", dir+"/data")
	t.Setenv("CUSTODY_WALLET_PASSWORD", "")
}

func TestVersionCommand(t *testing.T) {
	isolateHome(t)
	code, stdout, _ := runCLI(t, "", "version")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "0.3") {
		t.Fatalf("unexpected version output: %s", stdout)
	}
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	isolateHome(t)
	code, _, stderr := runCLI(t, "", "no-such-command")
	if code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
	var env map[string]any
	if err := json.Unmarshal([]byte(stderr), &env); err != nil {
		t.Fatalf("stderr is not an envelope: %v\n%s", err, stderr)
	}
	if env["success"] != false {
		t.Fatalf("expected success=false envelope: %s", stderr)
	}
}

func TestWalletListEmpty(t *testing.T) {
	isolateHome(t)
	code, stdout, stderr := runCLI(t, "", "wallet", "list")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	var env map[string]any
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("stdout is not an envelope: %v\n%s", err, stdout)
	}
	if env["success"] != true {
		t.Fatalf("expected success envelope: %s", stdout)
	}
}

func TestOpsListEmpty(t *testing.T) {
	isolateHome(t)
	code, stdout, stderr := runCLI(t, "", "ops", "list")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stdout, `"success": true`) {
		t.Fatalf("unexpected output: %s", stdout)
	}
}

func TestSchemaCommand(t *testing.T) {
	isolateHome(t)
	for _, path := range []string{"", "wallet", "ops await", "transfer"} {
		code, stdout, stderr := runCLI(t, "", "schema", path, "--results-only")
		if code != 0 {
			t.Fatalf("schema %q failed with %d: %s", path, code, stderr)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
			t.Fatalf("schema %q output is not JSON: %v\n%s", path, err, stdout)
		}
		want := strings.TrimSpace("custody " + path)
		if got, _ := doc["path"].(string); got != want {
			t.Fatalf("schema %q: expected path %q, got %q", path, want, got)
		}
	}
}

func TestOpsStatusUnknownToken(t *testing.T) {
	isolateHome(t)
	code, _, stderr := runCLI(t, "", "ops", "status", "missing-token")
	if code != 18 {
		t.Fatalf("expected not-found exit 18, got %d (stderr: %s)", code, stderr)
	}
}

func TestTransferDeclinedAtPrompt(t *testing.T) {
	isolateHome(t)

	var submits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/accounts/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":   "active",
				"balance":  "1000000000000",
				"deployed": true,
			})
		case r.URL.Path == "/v1/emulate":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "fee_units": "1200000"})
		case r.URL.Path == "/v1/messages":
			atomic.AddInt32(&submits, 1)
			_ = json.NewEncoder(w).Encode(map[string]any{"query_id": "q-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	t.Setenv("CUSTODY_AGGREGATOR_URL", srv.URL)

	code, _, stderr := runCLI(t, "", "wallet", "create", "--label", "hot", "--password", "pw-123456")
	if code != 0 {
		t.Fatalf("wallet create failed with %d: %s", code, stderr)
	}

	// Declining the prompt must abort with a safety gate error and never
	// reach the submission endpoint.
	code, _, stderr = runCLI(t, "n\n",
		"transfer",
		"--wallet", "hot",
		"--password", "pw-123456",
		"--to", "0x52908400098527886E0F7030069857D2E4169EE7",
		"--amount", "500",
	)
	if code != 16 {
		t.Fatalf("expected safety gate exit 16, got %d (stderr: %s)", code, stderr)
	}
	if atomic.LoadInt32(&submits) != 0 {
		t.Fatalf("declined transfer must not be submitted, got %d submissions", submits)
	}
}

func TestTransferAutoConfirmSubmits(t *testing.T) {
	isolateHome(t)

	var submits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/accounts/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":   "active",
				"balance":  "1000000000000",
				"deployed": true,
			})
		case r.URL.Path == "/v1/emulate":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "fee_units": "1200000"})
		case r.URL.Path == "/v1/messages":
			atomic.AddInt32(&submits, 1)
			_ = json.NewEncoder(w).Encode(map[string]any{"query_id": "q-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	t.Setenv("CUSTODY_AGGREGATOR_URL", srv.URL)

	code, _, stderr := runCLI(t, "", "wallet", "create", "--label", "hot", "--password", "pw-123456")
	if code != 0 {
		t.Fatalf("wallet create failed with %d: %s", code, stderr)
	}

	code, stdout, stderr := runCLI(t, "",
		"transfer",
		"--wallet", "hot",
		"--password", "pw-123456",
		"--to", "0x52908400098527886E0F7030069857D2E4169EE7",
		"--amount", "500",
		"--yes",
	)
	if code != 0 {
		t.Fatalf("transfer failed with %d: %s", code, stderr)
	}
	if atomic.LoadInt32(&submits) != 1 {
		t.Fatalf("expected one submission, got %d", submits)
	}
	if !strings.Contains(stdout, `"query_id": "q-1"`) {
		t.Fatalf("expected tracked operation in output: %s", stdout)
	}
	if !strings.Contains(stdout, `"status": "broadcast"`) {
		t.Fatalf("expected broadcast status in output: %s", stdout)
	}
}
