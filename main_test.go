package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSplitAndTrim_Empty(t *testing.T) {
	result := splitAndTrim("")
	if len(result) != 0 {
		t.Errorf("expected empty slice, got %v", result)
	}
}

func TestSplitAndTrim_Single(t *testing.T) {
	result := splitAndTrim("Linux/UNIX")
	if len(result) != 1 || result[0] != "Linux/UNIX" {
		t.Errorf("expected [Linux/UNIX], got %v", result)
	}
}

func TestSplitAndTrim_Multiple(t *testing.T) {
	result := splitAndTrim("us-east-1,us-west-2,eu-west-1")
	if len(result) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(result))
	}
	expected := []string{"us-east-1", "us-west-2", "eu-west-1"}
	for i, v := range expected {
		if result[i] != v {
			t.Errorf("element %d: expected %q, got %q", i, v, result[i])
		}
	}
}

func TestSplitAndTrim_Whitespace(t *testing.T) {
	result := splitAndTrim(" spot , on_demand ")
	if len(result) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(result))
	}
	if result[0] != "spot" || result[1] != "on_demand" {
		t.Errorf("expected [spot on_demand], got %v", result)
	}
}

func TestCompileRegexes_Valid(t *testing.T) {
	regexes, err := compileRegexes([]string{"m5\\..*", "c5\\..*"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regexes) != 2 {
		t.Errorf("expected 2 regexes, got %d", len(regexes))
	}
}

func TestCompileRegexes_Invalid(t *testing.T) {
	_, err := compileRegexes([]string{"[invalid"})
	if err == nil {
		t.Error("expected error for invalid regex, got nil")
	}
}

func TestCompileRegexes_Empty(t *testing.T) {
	regexes, err := compileRegexes([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regexes) != 0 {
		t.Errorf("expected 0 regexes, got %d", len(regexes))
	}
}

func TestValidateProductDesc(t *testing.T) {
	valid := []struct{ name, desc string }{
		{"Linux/UNIX", "Linux/UNIX"},
		{"Linux/UNIX VPC", "Linux/UNIX (Amazon VPC)"},
		{"SUSE Linux", "SUSE Linux"},
		{"SUSE Linux VPC", "SUSE Linux (Amazon VPC)"},
		{"Windows", "Windows"},
		{"Windows VPC", "Windows (Amazon VPC)"},
	}
	for _, tt := range valid {
		t.Run("valid/"+tt.name, func(t *testing.T) {
			if err := validateProductDesc([]string{tt.desc}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	invalid := []string{"InvalidOS", "ubuntu", "Red Hat", ""}
	for _, desc := range invalid {
		t.Run("invalid/"+desc, func(t *testing.T) {
			if err := validateProductDesc([]string{desc}); err == nil {
				t.Errorf("expected error for %q, got nil", desc)
			}
		})
	}

	err := validateProductDesc([]string{"Linux/UNIX", "linux/unix"})
	if err == nil {
		t.Fatal("expected error for lowercase description, got nil")
	}
	want := "product description 'linux/unix' is not recognized. Available product descriptions: Linux/UNIX, SUSE Linux, Windows, Linux/UNIX (Amazon VPC), SUSE Linux (Amazon VPC), Windows (Amazon VPC)"
	if err.Error() != want {
		t.Errorf("unexpected error message:\n got: %s\nwant: %s", err, want)
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	if err := setupLogging("debug", "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %s", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("expected JSON formatter, got %T", log.StandardLogger().Formatter)
	}

	if err := setupLogging("not-a-level", "text"); err != nil {
		t.Errorf("a bad level should fall back, got %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected the level to stay debug, got %s", log.GetLevel())
	}

	if err := setupLogging("info", "xml"); err == nil {
		t.Error("expected error for unknown log format, got nil")
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("PRICE_INDEX_TEST_ENV", "")
	if got := envOr("PRICE_INDEX_TEST_ENV", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	t.Setenv("PRICE_INDEX_TEST_ENV", "postgres://localhost/prices")
	if got := envOr("PRICE_INDEX_TEST_ENV", "fallback"); got != "postgres://localhost/prices" {
		t.Errorf("expected env value, got %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "estimate", "migrate"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected %s command, got %v (err=%v)", name, cmd, err)
		}
	}
}
