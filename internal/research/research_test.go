package research

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStubRoundTrip(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	doc, err := Stub{Now: now}.Fetch(context.Background(), "https://springfield.gov", "Springfield")
	if err != nil {
		t.Fatal(err)
	}
	if doc.CommunityName != "Springfield" || doc.FetchedAt != "2025-06-01T09:00:00Z" {
		t.Fatalf("doc header: %+v", doc)
	}
	if len(doc.Permits) == 0 || len(doc.Departments) == 0 {
		t.Fatal("stub document must be populated")
	}

	enc, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if back.CommunityName != doc.CommunityName || len(back.Permits) != len(doc.Permits) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestRender(t *testing.T) {
	doc, _ := Stub{}.Fetch(context.Background(), "https://springfield.gov", "Springfield")
	text := Render(doc)
	if !strings.Contains(text, "Community research for Springfield") {
		t.Fatalf("missing header: %q", text)
	}
	for _, want := range []string{"Permits:", "Departments:", "Fee schedules:", "Building Permit"} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered text missing %q", want)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not json"); err == nil {
		t.Fatal("expected decode error")
	}
}
