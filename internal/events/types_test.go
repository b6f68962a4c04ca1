package events

import (
	"testing"
	"time"
)

func TestRecordCSVRoundTrip(t *testing.T) {
	ts := time.Date(2025, 4, 2, 13, 4, 5, 123_000_000, time.Local)
	rec := Record{Timestamp: ts, ClientID: "SIMMAC0001_ab12cd", Kind: ResponseSent, Detail: `{"questionId":"q1","optionId":"a"}`}
	row := rec.CSV()
	if row[0] != "2025-04-02 13:04:05.123" {
		t.Fatalf("timestamp = %q", row[0])
	}
	got, err := ParseCSV(row)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if !got.Timestamp.Equal(ts) || got.ClientID != rec.ClientID || got.Kind != rec.Kind || got.Detail != rec.Detail {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, rec)
	}
}

func TestParseCSVRejects(t *testing.T) {
	cases := map[string][]string{
		"short":      {"2025-04-02 13:04:05.123", "c1", "Connected"},
		"bad time":   {"yesterday", "c1", "Connected", ""},
		"bad kind":   {"2025-04-02 13:04:05.123", "c1", "Exploded", ""},
		"header row": CSVHeader,
	}
	for name, row := range cases {
		if _, err := ParseCSV(row); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		if !k.Valid() {
			t.Fatalf("%s should be valid", k)
		}
	}
	if Kind("Sent join request").Valid() {
		t.Fatalf("unexpected valid kind")
	}
}
