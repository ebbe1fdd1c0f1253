// Package research gathers public permitting information for a
// community. Only the stub source is implemented; real crawling is a
// future concern behind the same interface.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is the structured result of researching one community.
type Document struct {
	CommunityName string  `json:"community_name"`
	SourceURL     string  `json:"source_url"`
	FetchedAt     string  `json:"fetched_at"`
	Permits       []Entry `json:"permits"`
	Departments   []Entry `json:"departments"`
	FeeSchedules  []Entry `json:"fee_schedules"`
	Ordinances    []Entry `json:"ordinances"`
	Processes     []Entry `json:"processes"`
	Documents     []Entry `json:"required_documents"`
}

// Entry is one researched item with a short description.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Source produces a research document for a community website.
type Source interface {
	Fetch(ctx context.Context, communityURL, communityName string) (Document, error)
}

// Encode serializes a document for storage on the project.
func Encode(d Document) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode research: %w", err)
	}
	return string(b), nil
}

// Decode restores a document stored by Encode.
func Decode(s string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Document{}, fmt.Errorf("decode research: %w", err)
	}
	return d, nil
}

// Render flattens the document into plain text for the generation prompt.
func Render(d Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Community research for %s (%s)\n", d.CommunityName, d.SourceURL)
	section := func(title string, entries []Entry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, e := range entries {
			fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
		}
	}
	section("Permits", d.Permits)
	section("Departments", d.Departments)
	section("Fee schedules", d.FeeSchedules)
	section("Ordinances", d.Ordinances)
	section("Processes", d.Processes)
	section("Required documents", d.Documents)
	return b.String()
}

// Stub returns a fixed document templated with the community name.
type Stub struct {
	Now func() time.Time
}

func (s Stub) Fetch(ctx context.Context, communityURL, communityName string) (Document, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	name := communityName
	if name == "" {
		name = "the community"
	}
	return Document{
		CommunityName: name,
		SourceURL:     communityURL,
		FetchedAt:     now().UTC().Format(time.RFC3339),
		Permits: []Entry{
			{Name: "Building Permit", Description: "Required for construction, additions and structural changes."},
			{Name: "Business License", Description: "Annual license for commercial operation within " + name + "."},
			{Name: "Sign Permit", Description: "Required before installing or replacing signage."},
		},
		Departments: []Entry{
			{Name: "Building Department", Description: "Plan review, permit issuance and inspections."},
			{Name: "Planning and Zoning", Description: "Land use, zoning verification and signage review."},
			{Name: "Code Enforcement", Description: "Complaint response and municipal code compliance."},
		},
		FeeSchedules: []Entry{
			{Name: "Building Permit Fees", Description: "Valuation-based schedule with a minimum permit fee."},
			{Name: "Business License Fees", Description: "Flat annual fee with category surcharges."},
		},
		Ordinances: []Entry{
			{Name: "Zoning Ordinance", Description: "Districts, permitted uses and development standards."},
			{Name: "Property Maintenance Code", Description: "Minimum standards for structures and premises."},
		},
		Processes: []Entry{
			{Name: "Permit Application", Description: "Submit application and plans, pay review fee, await plan review."},
			{Name: "Inspections", Description: "Schedule required inspections after permit issuance."},
		},
		Documents: []Entry{
			{Name: "Site Plan", Description: "Drawn to scale showing property lines and structures."},
			{Name: "Construction Drawings", Description: "Stamped plans for structural work."},
		},
	}, nil
}
