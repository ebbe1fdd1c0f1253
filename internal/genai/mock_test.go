package genai

import (
	"context"
	"testing"
	"time"

	"permitline/internal/builder"
)

func TestMockPayloadBuilds(t *testing.T) {
	text, err := Mock{}.Generate(context.Background(), "ignored")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := builder.ExtractJSON(text)
	if err != nil {
		t.Fatal(err)
	}
	p, err := builder.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	cfg := builder.Build(p, time.Now().UTC())

	if got := len(cfg.RecordTypes); got != 5 {
		t.Fatalf("record types = %d, want 5", got)
	}
	if got := len(cfg.Departments); got != 4 {
		t.Fatalf("departments = %d, want 4", got)
	}
	if got := len(cfg.UserRoles); got != 7 {
		t.Fatalf("user roles = %d, want 7", got)
	}

	// Every record type in the canned payload names a real department.
	for _, rt := range cfg.RecordTypes {
		if rt.DepartmentID == "" {
			t.Fatalf("record type %s not linked to a department", rt.Name)
		}
	}
	for _, role := range cfg.UserRoles {
		if len(role.DepartmentIDs) == 0 {
			t.Fatalf("role %s not linked to any department", role.Name)
		}
	}
}
