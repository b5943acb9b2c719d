package idempotency

import (
	"testing"
	"time"
)

func TestGenerateKey_Deterministic(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 12, 0, time.UTC)

	a := GenerateKey("Patient/123", []string{"Warfarin 5mg", "Aspirin 81mg"}, ts)
	b := GenerateKey("Patient/123", []string{"Warfarin 5mg", "Aspirin 81mg"}, ts)

	if a != b {
		t.Fatalf("same inputs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 key, got %q", a)
	}
}

func TestGenerateKey_MedicationOrderIrrelevant(t *testing.T) {
	ts := time.Now()

	a := GenerateKey("Patient/123", []string{"Warfarin 5mg", "Aspirin 81mg"}, ts)
	b := GenerateKey("Patient/123", []string{"aspirin 81mg", "WARFARIN 5mg"}, ts)

	if a != b {
		t.Fatal("medication ordering and casing should not change the key")
	}
}

func TestGenerateKey_MinuteWindow(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 30, 5, 0, time.UTC)
	sameMinute := base.Add(40 * time.Second)
	nextMinute := base.Add(90 * time.Second)

	meds := []string{"Metformin 500mg"}

	if GenerateKey("Patient/9", meds, base) != GenerateKey("Patient/9", meds, sameMinute) {
		t.Fatal("submissions within the same minute should share a key")
	}
	if GenerateKey("Patient/9", meds, base) == GenerateKey("Patient/9", meds, nextMinute) {
		t.Fatal("submissions in different minutes should differ")
	}
}

func TestGenerateKey_DistinguishesPatients(t *testing.T) {
	ts := time.Now()
	meds := []string{"Lisinopril 10mg"}

	if GenerateKey("Patient/1", meds, ts) == GenerateKey("Patient/2", meds, ts) {
		t.Fatal("different patients must produce different keys")
	}
}
