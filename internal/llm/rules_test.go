package llm

import (
	"errors"
	"testing"
)

func TestMatcher_TotalPatients(t *testing.T) {
	m := NewMatcher()
	for _, q := range []string{
		"How many patients are enrolled in total?",
		"count all patients please",
		"Berapa banyak pasien yang terdaftar?",
		"jumlah pasien saat ini",
	} {
		intent, err := m.Match(q)
		if err != nil {
			t.Fatalf("Match(%q) failed: %v", q, err)
		}
		if intent.Kind != KindTotalPatients {
			t.Errorf("Match(%q) = %s, want TOTAL_PATIENTS", q, intent.Kind)
		}
	}
}

func TestMatcher_CountByTrial(t *testing.T) {
	m := NewMatcher()
	cases := map[string]string{
		"How many patients in trial Onco-7?":           "Onco-7",
		"count patients for trial Alpha":               "Alpha",
		"berapa pasien di uji klinis Beta-2?":          "Beta-2",
		`how many patients are in trial "Gamma Study"`: "Gamma Study",
	}
	for q, want := range cases {
		intent, err := m.Match(q)
		if err != nil {
			t.Fatalf("Match(%q) failed: %v", q, err)
		}
		if intent.Kind != KindCountPatientsByTrial {
			t.Fatalf("Match(%q) = %s, want COUNT_PATIENTS_BY_TRIAL", q, intent.Kind)
		}
		if intent.Args["trial_name"] != want {
			t.Errorf("Match(%q) trial_name = %v, want %q", q, intent.Args["trial_name"], want)
		}
	}
}

func TestMatcher_FileByName(t *testing.T) {
	m := NewMatcher()
	intent, err := m.Match("show me the file named protocol.json")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if intent.Kind != KindGetFileByName {
		t.Fatalf("Expected GET_FILE_BY_NAME, got %s", intent.Kind)
	}
	if intent.Args["filename"] != "protocol.json" {
		t.Errorf("Expected filename=protocol.json, got %v", intent.Args)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher()
	_, err := m.Match("what is the average temperature on mars")
	if !errors.Is(err, ErrNoRuleMatch) {
		t.Fatalf("Expected ErrNoRuleMatch, got %v", err)
	}
}

func TestMatcher_BlankIsUnsupported(t *testing.T) {
	m := NewMatcher()
	intent, err := m.Match("   ")
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if intent.Kind != KindUnsupported {
		t.Errorf("Expected UNSUPPORTED for blank input, got %s", intent.Kind)
	}
}
