package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAttributes_DecodeMixedTypes(t *testing.T) {
	raw := `{
		"gemarkung_AX_Gemarkung_Schluess": "6123",
		"flurnummer": 4,
		"flurstuecksnummer_AX_Flurstueck": "12",
		"flurstuecksnummer_AX_Flurstue_1": "",
		"amtlicheFlaeche": 12345.0,
		"OBJECTID": 99,
		"lagebeztxt": "Am Berg"
	}`
	var a Attributes
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Gemarkung != Int(6123) || a.Flur != Int(4) || a.Flurstueck != Int(12) || a.ObjectID != Int(99) {
		t.Fatalf("unexpected ints: %+v", a)
	}
	if a.Nenner.Valid || a.HasNenner() {
		t.Fatalf("empty denominator must be absent: %+v", a.Nenner)
	}
	if a.AmtlicheFlaeche != Float(12345) {
		t.Fatalf("area=%+v", a.AmtlicheFlaeche)
	}
	if string(a.Extra["lagebeztxt"]) != `"Am Berg"` {
		t.Fatalf("extra not kept: %v", a.Extra)
	}
}

func TestAttributes_RejectsNonNumeric(t *testing.T) {
	for _, raw := range []string{
		`{"flurnummer":"vier"}`,
		`{"flurnummer":4.5}`,
		`{"flurnummer":true}`,
		`{"amtlicheFlaeche":[1]}`,
	} {
		var a Attributes
		if err := json.Unmarshal([]byte(raw), &a); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestAttributes_MarshalKeepsExtraAndNulls(t *testing.T) {
	a := Attributes{
		Flur:  Int(5),
		Extra: map[string]json.RawMessage{"Shape__Area": json.RawMessage(`42.5`)},
	}
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"flurnummer":5`, `"flurstuecksnummer_AX_Flurstue_1":null`, `"Shape__Area":42.5`} {
		if !strings.Contains(s, want) {
			t.Fatalf("%s missing %s", s, want)
		}
	}
}

func TestQueryKey_StringAndValidate(t *testing.T) {
	n := 3
	k := QueryKey{Gemarkung: 6123, Flur: 4, Flurstueck: 12, Nenner: &n}
	if got := k.String(); got != "6123-4-12/3" {
		t.Fatalf("String()=%q", got)
	}
	if err := k.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := (QueryKey{Gemarkung: 0, Flurstueck: 1}).Validate(); err == nil {
		t.Fatal("expected error for zero gemarkung")
	}
	neg := -1
	if err := (QueryKey{Gemarkung: 1, Flurstueck: 1, Nenner: &neg}).Validate(); err == nil {
		t.Fatal("expected error for negative nenner")
	}
}
