package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Simplici0/quotewizard/internal/pricing"
	"github.com/Simplici0/quotewizard/internal/tenantconfig"
)

const (
	exampleConfig  = "../../examples/acme.yaml"
	exampleAnswers = "../../examples/answers.json"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "quotectl" {
		t.Errorf("expected Use to be 'quotectl', got %q", cmd.Use)
	}
	for _, name := range []string{"calculate", "validate", "export", "version"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "quotectl dev") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestCalculateJSON(t *testing.T) {
	out, err := execute(t, "calculate", "--config", exampleConfig, "--answers", exampleAnswers)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	var quote pricing.QuoteData
	if err := json.Unmarshal([]byte(out), &quote); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if quote.TotalMonthlyFees != 500 || quote.TotalOneTimeFees != 300 || quote.TotalAnnual != 6300 {
		t.Errorf("unexpected totals: monthly=%v one-time=%v annual=%v",
			quote.TotalMonthlyFees, quote.TotalOneTimeFees, quote.TotalAnnual)
	}
	if len(quote.Services) != 2 {
		t.Errorf("expected 2 services, got %d", len(quote.Services))
	}
}

func TestCalculateText(t *testing.T) {
	out, err := execute(t, "calculate", "-c", exampleConfig, "-a", exampleAnswers, "--format", "text")
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	for _, want := range []string{"Prepared for: Ana Diaz (Diaz Design)", "Bookkeeping", "$500.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCalculateBareAnswers(t *testing.T) {
	answers := filepath.Join(t.TempDir(), "answers.json")
	if err := os.WriteFile(answers, []byte(`{"services":["individual-tax"]}`), 0o644); err != nil {
		t.Fatalf("write answers: %v", err)
	}
	out, err := execute(t, "calculate", "-c", exampleConfig, "-a", answers)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	var quote pricing.QuoteData
	if err := json.Unmarshal([]byte(out), &quote); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if quote.TotalOneTimeFees != 300 || quote.TotalMonthlyFees != 0 {
		t.Errorf("unexpected totals: %+v", quote)
	}
}

func TestCalculateRejectsUnknownFormat(t *testing.T) {
	if _, err := execute(t, "calculate", "-c", exampleConfig, "-a", exampleAnswers, "-f", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestCalculateRequiresFlags(t *testing.T) {
	if _, err := execute(t, "calculate", "--config", exampleConfig); err == nil {
		t.Fatal("expected error when --answers is missing")
	}
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", "--config", exampleConfig)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "2 services, 2 pricing rules, 1 form fields") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	body := "pricing:\n  - serviceId: bookkeeping\n    billingFrequency: Monthly\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := execute(t, "validate", "--config", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "invalid:") {
		t.Errorf("expected problems in output, got %q", out)
	}
}

func TestExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/Services") {
			_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{"Service ID":"bookkeeping","Title":"Bookkeeping","Display Order":1}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()
	t.Setenv("AIRTABLE_API_KEY", "key-test")

	path := filepath.Join(t.TempDir(), "acme.yaml")
	out, err := execute(t, "export", "--base", "appACME", "--out", path, "--api-url", srv.URL)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "1 services") {
		t.Errorf("unexpected output %q", out)
	}
	doc, problems, err := tenantconfig.LoadDocument(path)
	if err != nil {
		t.Fatalf("load exported document: %v", err)
	}
	if len(problems) != 0 || len(doc.Services) != 1 || doc.Services[0].ServiceID != "bookkeeping" {
		t.Errorf("unexpected document: %+v problems=%v", doc, problems)
	}
}

func TestExportRequiresAPIKey(t *testing.T) {
	t.Setenv("AIRTABLE_API_KEY", "")
	path := filepath.Join(t.TempDir(), "acme.yaml")
	if _, err := execute(t, "export", "--base", "appACME", "--out", path); err == nil {
		t.Fatal("expected error without an API key")
	}
}
