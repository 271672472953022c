package flow

import (
	"encoding/json"
	"testing"
)

func TestDefenseTier_StringAndRankOrdering(t *testing.T) {
	if T0.String() != "T0" || T3.String() != "T3" {
		t.Errorf("String() mismatch: T0=%q T3=%q", T0.String(), T3.String())
	}
	if !(T0.Rank() < T1.Rank() && T1.Rank() < T2.Rank() && T2.Rank() < T3.Rank()) {
		t.Error("expected Rank() to be strictly increasing T0 < T1 < T2 < T3")
	}
}

func TestParseDefenseTier_RoundTripsCanonicalForms(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want DefenseTier
	}{
		{"T0", T0}, {"T1", T1}, {"T2", T2}, {"T3", T3},
	} {
		got, ok := ParseDefenseTier(tc.s)
		if !ok || got != tc.want {
			t.Errorf("ParseDefenseTier(%q) = (%v, %v), want (%v, true)", tc.s, got, ok, tc.want)
		}
	}
}

func TestParseDefenseTier_RejectsUnknown(t *testing.T) {
	if _, ok := ParseDefenseTier("T9"); ok {
		t.Error("expected ParseDefenseTier(T9) to fail")
	}
}

func TestDefenseTier_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(T2)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"T2"` {
		t.Errorf("Marshal(T2) = %s, want \"T2\"", data)
	}

	var got DefenseTier
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != T2 {
		t.Errorf("round-tripped tier = %v, want T2", got)
	}
}

func TestDefenseTier_UnmarshalJSON_RejectsInvalidString(t *testing.T) {
	var got DefenseTier
	if err := json.Unmarshal([]byte(`"NOT_A_TIER"`), &got); err == nil {
		t.Error("expected UnmarshalJSON to reject an invalid tier string")
	}
}
