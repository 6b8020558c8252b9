package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// envSnapshot saves and clears the env vars Load falls back to, restoring
// them on cleanup, the way the teacher's config_test.go isolates BD_/BEADS_.
func envSnapshot(t *testing.T) {
	t.Helper()
	keys := []string{"JIRA_API_TOKEN", "REDMINE_API_KEY", "SHAREPOINT_CLIENT_SECRET", "JIRA2REDMINE_DATABASE_DSN"}
	saved := make(map[string]string, len(keys))
	for _, k := range keys {
		saved[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range saved {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jira2redmine.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	envSnapshot(t)
	path := writeTestConfig(t, `
jira:
  base_url: https://example.atlassian.net
  email: bot@example.com
database:
  dsn: mysql://root@localhost/migration
`)

	_, cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redmine.ExtendedAPIPrefix != "/extended_api" {
		t.Fatalf("expected default extended API prefix, got %q", cfg.Redmine.ExtendedAPIPrefix)
	}
	if cfg.SharePoint.OffloadThresholdBytes != 20*1024*1024 {
		t.Fatalf("expected default offload threshold, got %d", cfg.SharePoint.OffloadThresholdBytes)
	}
	if cfg.Attachment.PullConcurrency != 4 {
		t.Fatalf("expected default pull concurrency 4, got %d", cfg.Attachment.PullConcurrency)
	}
	if cfg.Jira.BaseURL != "https://example.atlassian.net" {
		t.Fatalf("expected jira base url from file, got %q", cfg.Jira.BaseURL)
	}
}

func TestLoadEnvVarOverridesEmptyFileValue(t *testing.T) {
	envSnapshot(t)
	path := writeTestConfig(t, `
jira:
  base_url: https://example.atlassian.net
`)
	os.Setenv("JIRA_API_TOKEN", "env-token")
	defer os.Unsetenv("JIRA_API_TOKEN")

	_, cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jira.APIToken != "env-token" {
		t.Fatalf("expected env var fallback, got %q", cfg.Jira.APIToken)
	}
}

func TestLoadFileValueWinsOverEnvVar(t *testing.T) {
	envSnapshot(t)
	path := writeTestConfig(t, `
jira:
  api_token: file-token
`)
	os.Setenv("JIRA_API_TOKEN", "env-token")
	defer os.Unsetenv("JIRA_API_TOKEN")

	_, cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jira.APIToken != "file-token" {
		t.Fatalf("expected file value to win, got %q", cfg.Jira.APIToken)
	}
}

func TestSharePointEnabledRequiresCoreFields(t *testing.T) {
	sp := SharePoint{}
	if sp.Enabled() {
		t.Fatal("expected empty SharePoint config to be disabled")
	}
	sp = SharePoint{TenantID: "t", ClientID: "c", ClientSecret: "s", DriveID: "d"}
	if !sp.Enabled() {
		t.Fatal("expected fully-configured SharePoint to be enabled")
	}
}

func TestWatchPicksUpFileChanges(t *testing.T) {
	envSnapshot(t)
	path := writeTestConfig(t, `
defaults:
  project_id: 1
`)

	loader, cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.ProjectID != 1 {
		t.Fatalf("expected project_id 1, got %d", cfg.Defaults.ProjectID)
	}

	changed := make(chan Config, 1)
	stop := make(chan struct{})
	defer close(stop)
	if err := loader.Watch(stop, func(c Config) { changed <- c }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("defaults:\n  project_id: 42\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case c := <-changed:
		if c.Defaults.ProjectID != 42 {
			t.Fatalf("expected project_id 42 after reload, got %d", c.Defaults.ProjectID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestIsDynamicKey(t *testing.T) {
	if !IsDynamicKey("sharepoint.offload_threshold_bytes") {
		t.Fatal("expected offload_threshold_bytes to be dynamic")
	}
	if IsDynamicKey(strings.ToUpper("jira.base_url")) {
		t.Fatal("jira.base_url should not be a dynamic key")
	}
}
