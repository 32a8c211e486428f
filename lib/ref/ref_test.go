// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	original := New(0xabc, 42)
	parsed, err := Parse(original.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", original.String(), err)
	}
	if parsed != original {
		t.Errorf("Parse(%q) = %v, want %v", original.String(), parsed, original)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "abc"},
		{"bad replica", "xyz.1"},
		{"bad sequence", "abc.one"},
		{"zero sequence", "abc.0"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse(test.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", test.input)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	a := New(1, 5)
	b := New(1, 6)
	c := New(2, 1)

	if !a.Less(b) || !b.Less(c) || !a.Less(c) {
		t.Errorf("expected %v < %v < %v", a, b, c)
	}
	if a.Compare(a) != 0 {
		t.Errorf("Compare of equal refs = %d, want 0", a.Compare(a))
	}
	if c.Compare(a) != 1 {
		t.Errorf("Compare(%v, %v) = %d, want 1", c, a, c.Compare(a))
	}
}

func TestJSONCodec(t *testing.T) {
	type wrapper struct {
		Target Ref `json:"target"`
		Empty  Ref `json:"empty"`
	}
	input := wrapper{Target: New(7, 3)}

	data, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var output wrapper
	if err := json.Unmarshal(data, &output); err != nil {
		t.Fatalf("Unmarshal(%s): %v", data, err)
	}
	if output != input {
		t.Errorf("round trip = %+v, want %+v", output, input)
	}
	if !output.Empty.IsZero() {
		t.Errorf("empty ref decoded as %v", output.Empty)
	}
}

func TestGenerator(t *testing.T) {
	generator := NewGenerator(9, 0)
	first := generator.Next()
	if first != New(9, 1) {
		t.Errorf("first ref = %v, want %v", first, New(9, 1))
	}

	generator.Observe(New(9, 10))
	generator.Observe(New(3, 99))
	if next := generator.Next(); next != New(9, 11) {
		t.Errorf("ref after Observe = %v, want %v", next, New(9, 11))
	}
}

func TestNewReplicaIDNonZero(t *testing.T) {
	seen := make(map[ReplicaID]bool)
	for range 64 {
		id := NewReplicaID()
		if id == 0 {
			t.Fatal("NewReplicaID returned zero")
		}
		if seen[id] {
			t.Fatalf("NewReplicaID repeated %v", id)
		}
		seen[id] = true
	}
}

func TestIDParsing(t *testing.T) {
	if _, err := ParseDocumentID("0"); err == nil {
		t.Error("ParseDocumentID(\"0\") succeeded, want error")
	}
	documentID, err := ParseDocumentID("17")
	if err != nil || documentID != 17 {
		t.Errorf("ParseDocumentID(\"17\") = %v, %v", documentID, err)
	}
	sessionID, err := ParseSessionID(SessionID(0xbeef).String())
	if err != nil || sessionID != 0xbeef {
		t.Errorf("ParseSessionID round trip = %v, %v", sessionID, err)
	}
	userID, err := ParseUserID("3")
	if err != nil || userID != 3 {
		t.Errorf("ParseUserID(\"3\") = %v, %v", userID, err)
	}
}
