package config

import (
	"os"
	"path/filepath"
	"testing"
)

func minimalConfigYAML() string {
	return "persona:\n  name: bot\n  systemPrompt: hi\nllm:\n  provider: direct-api\n  model: test-model\n"
}

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte(minimalConfigYAML()), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(minimalConfigYAML()), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(minimalConfigYAML()+"  apiKey: ${AGENTHOST_TEST_KEY}\n"), 0600)
	os.Setenv("AGENTHOST_TEST_KEY", "secret123")
	defer os.Unsetenv("AGENTHOST_TEST_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.APIKey != "secret123" {
		t.Errorf("apiKey = %q, want %q", cfg.LLM.APIKey, "secret123")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(minimalConfigYAML()), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Verification.MaxRetries != 3 {
		t.Errorf("verification.maxRetries = %d, want 3", cfg.Verification.MaxRetries)
	}
	if cfg.History.MaxSegmentSizeBytes != 524288 {
		t.Errorf("history.maxSegmentSizeBytes = %d, want 524288", cfg.History.MaxSegmentSizeBytes)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("web.port = %d, want 3000", cfg.Web.Port)
	}
}

func TestLoad_RejectsUnknownChannelType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(minimalConfigYAML()+"channels:\n  main:\n    type: carrier-pigeon\n    enabled: true\n"), 0600)

	if _, err := Load(path); err == nil {
		t.Fatal("Load with unknown channel type should error")
	}
}

func TestLoad_MissingPersonaNameIsConfigError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  provider: direct-api\n"), 0600)

	if _, err := Load(path); err == nil {
		t.Fatal("Load without persona.name should error")
	}
}
