package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestKind_TextForm(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{Success, "success"},
		{Mismatch, "mismatch"},
		{Error, "error"},
		{Kind(9), "kind(9)"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Fatalf("Kind(%d).String()=%q want %q", int(c.k), got, c.want)
		}
	}

	var k Kind
	if err := k.UnmarshalText([]byte("mismatch")); err != nil || k != Mismatch {
		t.Fatalf("UnmarshalText mismatch: k=%v err=%v", k, err)
	}
	if err := k.UnmarshalText([]byte("stale")); err == nil {
		t.Fatalf("want error for unknown kind")
	}
}

func TestOutcome_JSONShape(t *testing.T) {
	o := Outcome{
		Target:    TargetID("10.0.0.1:11211"),
		Kind:      Success,
		Latency:   1500 * time.Microsecond,
		Round:     3,
		CheckedAt: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"kind":"success"`, `"latency_ns":1500000`, `"round":3`} {
		if !strings.Contains(s, want) {
			t.Fatalf("want %s in %s", want, s)
		}
	}
	if strings.Contains(s, "detail") {
		t.Fatalf("detail should be omitted on success: %s", s)
	}
	if !o.OK() {
		t.Fatalf("success outcome should be OK")
	}
}
