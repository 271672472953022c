package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_HasRequiredDefaultProfile(t *testing.T) {
	set := Defaults()
	p := set.Default()
	if p.Name != DefaultProfileName {
		t.Fatalf("Default().Name = %q, want %q", p.Name, DefaultProfileName)
	}
	if got := p.GetBudget("N_challenge", -1); got != 2 {
		t.Errorf("GetBudget(N_challenge) = %d, want 2", got)
	}
	if got := p.GetTimebox("S1_timeout_ms", -1); got != 30000 {
		t.Errorf("GetTimebox(S1_timeout_ms) = %d, want 30000", got)
	}
	if got := p.GetPolicy("payment_timeout_policy", ""); got != "abort" {
		t.Errorf("GetPolicy(payment_timeout_policy) = %q, want abort", got)
	}
}

func TestProfile_Getters_FallBackToDefault(t *testing.T) {
	p := Profile{}
	if got := p.GetBudget("missing", 42); got != 42 {
		t.Errorf("GetBudget fallback = %d, want 42", got)
	}
	if got := p.GetTimebox("missing", 99); got != 99 {
		t.Errorf("GetTimebox fallback = %d, want 99", got)
	}
	if got := p.GetPolicy("missing", "x"); got != "x" {
		t.Errorf("GetPolicy fallback = %q, want x", got)
	}
}

func TestLoad_ParsesValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	yamlBody := `
default:
  N_challenge: 5
  S1_timeout_ms: 1000
  payment_timeout_policy: retry
aggressive:
  N_challenge: 1
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := set.Default()
	if got := def.GetBudget("N_challenge", -1); got != 5 {
		t.Errorf("default.N_challenge = %d, want 5", got)
	}
	if got := def.GetTimebox("S1_timeout_ms", -1); got != 1000 {
		t.Errorf("default.S1_timeout_ms = %d, want 1000", got)
	}
	if got := def.GetPolicy("payment_timeout_policy", ""); got != "retry" {
		t.Errorf("default.payment_timeout_policy = %q, want retry", got)
	}

	aggr, ok := set.Get("aggressive")
	if !ok {
		t.Fatal("expected an aggressive profile to be loaded")
	}
	if got := aggr.GetBudget("N_challenge", -1); got != 1 {
		t.Errorf("aggressive.N_challenge = %d, want 1", got)
	}

	names := set.Names()
	if len(names) != 2 {
		t.Errorf("Names() = %v, want 2 entries", names)
	}
}

func TestLoad_MissingDefaultProfileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	if err := os.WriteFile(path, []byte("aggressive:\n  N_challenge: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to fail without a default profile")
	}
}

func TestLoad_NonIntegerBudgetFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	body := "default:\n  N_challenge: \"not a number\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to fail on a non-integer budget value")
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/path/policies.yaml"); err == nil {
		t.Fatal("expected Load to fail for a missing file")
	}
}
