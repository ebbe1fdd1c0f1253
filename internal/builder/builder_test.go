package builder

import (
	"testing"
	"time"
)

var buildTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBuildLinksDepartments(t *testing.T) {
	p := Payload{
		Departments: []DepartmentInput{
			{Name: "Building", Description: "Building and safety"},
			{Name: "Planning", Description: "Planning and zoning"},
		},
		RecordTypes: []RecordTypeInput{
			{Name: "Building Permit", Department: "Building", Category: "permit"},
			{Name: "Sign Permit", Department: "Planning", Category: "permit"},
			{Name: "Food Truck License", Department: "Health", Category: "license"},
		},
		UserRoles: []UserRoleInput{
			{Name: "Inspector", Departments: []string{"Building", "Nonexistent"}},
		},
	}
	cfg := Build(p, buildTime)

	byName := map[string]string{}
	for _, d := range cfg.Departments {
		byName[d.Name] = d.ID
	}
	for _, rt := range cfg.RecordTypes {
		switch rt.Name {
		case "Building Permit":
			if rt.DepartmentID != byName["Building"] {
				t.Fatalf("Building Permit linked to %q, want Building dept", rt.DepartmentID)
			}
		case "Sign Permit":
			if rt.DepartmentID != byName["Planning"] {
				t.Fatalf("Sign Permit linked to %q, want Planning dept", rt.DepartmentID)
			}
		case "Food Truck License":
			if rt.DepartmentID != "" {
				t.Fatalf("unmatched department name must leave link absent, got %q", rt.DepartmentID)
			}
		}
	}

	// Every linked record type appears in its department's inverse list
	// exactly once.
	for _, rt := range cfg.RecordTypes {
		if rt.DepartmentID == "" {
			continue
		}
		count := 0
		for _, d := range cfg.Departments {
			if d.ID != rt.DepartmentID {
				continue
			}
			for _, id := range d.RecordTypeIDs {
				if id == rt.ID {
					count++
				}
			}
		}
		if count != 1 {
			t.Fatalf("record type %s appears %d times in inverse list, want 1", rt.Name, count)
		}
	}

	role := cfg.UserRoles[0]
	if len(role.DepartmentIDs) != 1 || role.DepartmentIDs[0] != byName["Building"] {
		t.Fatalf("role departments = %v, want single Building id", role.DepartmentIDs)
	}
}

func TestBuildEmptyDepartmentNameNeverLinks(t *testing.T) {
	p := Payload{
		Departments: []DepartmentInput{
			{Name: "", Description: "unnamed"},
			{Name: "Building"},
		},
		RecordTypes: []RecordTypeInput{
			{Name: "Building Permit", Department: "", Category: "permit"},
		},
		UserRoles: []UserRoleInput{
			{Name: "Clerk", Departments: []string{""}},
		},
	}
	cfg := Build(p, buildTime)

	if len(cfg.Departments) != 2 {
		t.Fatalf("unnamed department must still become an entity, got %d", len(cfg.Departments))
	}
	if got := cfg.RecordTypes[0].DepartmentID; got != "" {
		t.Fatalf("absent department name must leave link absent, got %q", got)
	}
	for _, d := range cfg.Departments {
		if len(d.RecordTypeIDs) != 0 {
			t.Fatalf("department %q gained inverse link %v", d.Name, d.RecordTypeIDs)
		}
	}
	if got := cfg.UserRoles[0].DepartmentIDs; len(got) != 0 {
		t.Fatalf("empty name in role departments must not resolve, got %v", got)
	}
}

func TestBuildSparsePayload(t *testing.T) {
	cfg := Build(Payload{}, buildTime)
	if cfg.RecordTypes == nil || cfg.Departments == nil || cfg.UserRoles == nil {
		t.Fatal("lists must never be nil")
	}
	if cfg.Summary == "" {
		t.Fatal("missing summary must take the default")
	}
	if cfg.GeneratedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("generated_at = %q", cfg.GeneratedAt)
	}

	// Record types with no nested arrays still come out complete.
	cfg = Build(Payload{RecordTypes: []RecordTypeInput{{Name: "Bare Permit"}}}, buildTime)
	rt := cfg.RecordTypes[0]
	if rt.ID == "" {
		t.Fatal("record type must get a fresh id")
	}
	if rt.FormFields == nil || rt.WorkflowSteps == nil || rt.Fees == nil || rt.RequiredDocuments == nil {
		t.Fatal("nested lists must be empty, not nil")
	}
}

func TestBuildDefaults(t *testing.T) {
	p := Payload{
		RecordTypes: []RecordTypeInput{{
			Name: "Demo Permit",
			WorkflowSteps: []WorkflowStepInput{
				{Name: "Intake", StatusTo: "submitted"},
				{Name: "Review", StatusTo: "in_review"},
			},
			Fees: []FeeInput{{Name: "Refund", Amount: -25}},
			FormFields: []FormFieldInput{
				{Name: "Work Type", FieldType: "select", Options: []string{"new", "repair"}},
				{Name: "Email", FieldType: "email", Options: []string{"stray"}},
			},
		}},
	}
	rt := Build(p, buildTime).RecordTypes[0]
	if rt.WorkflowSteps[0].Order != 1 || rt.WorkflowSteps[1].Order != 2 {
		t.Fatalf("missing order must default to position, got %d/%d",
			rt.WorkflowSteps[0].Order, rt.WorkflowSteps[1].Order)
	}
	if rt.WorkflowSteps[0].StatusFrom != nil {
		t.Fatal("absent status_from must stay nil (entry step)")
	}
	if rt.Fees[0].Amount != 0 {
		t.Fatalf("negative amount must clamp to 0, got %v", rt.Fees[0].Amount)
	}
	if len(rt.FormFields[0].Options) != 2 {
		t.Fatalf("select field options dropped: %v", rt.FormFields[0].Options)
	}
	if rt.FormFields[1].Options != nil {
		t.Fatalf("options on non-select field must be discarded, got %v", rt.FormFields[1].Options)
	}
}

func TestBuildLenientEnums(t *testing.T) {
	p := Payload{
		RecordTypes: []RecordTypeInput{{
			Name:     "Odd Case",
			Category: "franchise_agreement",
			FormFields: []FormFieldInput{
				{Name: "Sketch", FieldType: "signature_pad"},
			},
		}},
	}
	rt := Build(p, buildTime).RecordTypes[0]
	if string(rt.Category) != "franchise_agreement" {
		t.Fatalf("unknown category must be stored verbatim, got %q", rt.Category)
	}
	if rt.Category.Known() {
		t.Fatal("unknown category must not report Known")
	}
	if string(rt.FormFields[0].FieldType) != "signature_pad" {
		t.Fatalf("unknown field type must be stored verbatim, got %q", rt.FormFields[0].FieldType)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"bare object", `{"summary":"ok"}`, true},
		{"fenced", "Here you go:\n```json\n{\"summary\":\"ok\"}\n```\nDone.", true},
		{"fence no language", "```\n{\"summary\":\"ok\"}\n```", true},
		{"leading prose", "Sure! {\"summary\":\"ok\"} hope that helps", true},
		{"no object", "I could not produce a configuration.", false},
		{"broken json", "```json\n{\"summary\": \n```", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := ExtractJSON(tc.in)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, err := Parse(raw); err != nil {
					t.Fatalf("parse extracted: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected extraction failure")
			}
			if !IsMalformed(err) {
				t.Fatalf("expected MalformedPayloadError, got %T", err)
			}
		})
	}
}

func TestParseRejectsWrongShape(t *testing.T) {
	if _, err := Parse([]byte(`["not","a","mapping"]`)); !IsMalformed(err) {
		t.Fatalf("array payload: got %v", err)
	}
	if _, err := Parse([]byte(`{"record_types": "oops"}`)); !IsMalformed(err) {
		t.Fatalf("wrong-typed key: got %v", err)
	}
	// Absent keys are fine.
	if _, err := Parse([]byte(`{}`)); err != nil {
		t.Fatalf("empty mapping must parse: %v", err)
	}
}
