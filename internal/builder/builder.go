// Package builder turns a generated payload into a well-formed
// Configuration. The payload contract is the one produced by the
// text-generation collaborator (or the canned mock): entity lists keyed
// record_types / departments / user_roles, with cross-references expressed
// as human-readable names rather than ids.
package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitline/internal/domain"
)

const defaultSummary = "Configuration generated from uploaded municipal records."

// MalformedPayloadError is returned when generation output cannot be read
// as the expected payload shape. The builder never fabricates entities from
// unreadable input.
type MalformedPayloadError struct {
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return "malformed configuration payload: " + e.Reason
}

// IsMalformed reports whether err is a MalformedPayloadError.
func IsMalformed(err error) bool {
	var m *MalformedPayloadError
	return errors.As(err, &m)
}

// Payload is the generation contract. Nested arrays may be absent; the
// builder supplies empty lists. Enum-valued fields are carried verbatim,
// known or not.
type Payload struct {
	Summary     string            `json:"summary"`
	RecordTypes []RecordTypeInput `json:"record_types"`
	Departments []DepartmentInput `json:"departments"`
	UserRoles   []UserRoleInput   `json:"user_roles"`
}

type RecordTypeInput struct {
	Name              string                  `json:"name"`
	Description       string                  `json:"description"`
	Department        string                  `json:"department"`
	Category          string                  `json:"category"`
	FormFields        []FormFieldInput        `json:"form_fields"`
	WorkflowSteps     []WorkflowStepInput     `json:"workflow_steps"`
	Fees              []FeeInput              `json:"fees"`
	RequiredDocuments []RequiredDocumentInput `json:"required_documents"`
}

type DepartmentInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UserRoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	Departments []string `json:"departments"`
}

type FormFieldInput struct {
	Name        string           `json:"name"`
	FieldType   string           `json:"field_type"`
	Required    bool             `json:"required"`
	Description string           `json:"description"`
	Options     []string         `json:"options"`
	Conditions  []ConditionInput `json:"conditions"`
}

type WorkflowStepInput struct {
	Name         string           `json:"name"`
	Order        *int             `json:"order"`
	AssignedRole string           `json:"assigned_role"`
	StatusFrom   *string          `json:"status_from"`
	StatusTo     string           `json:"status_to"`
	Actions      []string         `json:"actions"`
	Conditions   []ConditionInput `json:"conditions"`
}

type FeeInput struct {
	Name        string           `json:"name"`
	Amount      float64          `json:"amount"`
	FeeType     string           `json:"fee_type"`
	WhenApplied string           `json:"when_applied"`
	Formula     string           `json:"formula"`
	Conditions  []ConditionInput `json:"conditions"`
}

type RequiredDocumentInput struct {
	Name        string           `json:"name"`
	Required    bool             `json:"required"`
	Description string           `json:"description"`
	Stage       string           `json:"stage"`
	Conditions  []ConditionInput `json:"conditions"`
}

type ConditionInput struct {
	SourceField string `json:"source_field"`
	Operator    string `json:"operator"`
	Value       any    `json:"value"`
	Description string `json:"description"`
}

// ExtractJSON locates the JSON object inside generation output, tolerating
// markdown fencing and surrounding prose.
func ExtractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			trimmed = strings.TrimSpace(rest[:end])
		} else {
			trimmed = strings.TrimSpace(rest)
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return nil, &MalformedPayloadError{Reason: "no JSON object found in generation output"}
	}
	candidate := []byte(trimmed[start : end+1])
	if !json.Valid(candidate) {
		return nil, &MalformedPayloadError{Reason: "extracted object is not valid JSON"}
	}
	return candidate, nil
}

// Parse decodes raw bytes into the payload shape. A wrong-typed top-level
// or nested key fails with MalformedPayloadError naming the offender.
func Parse(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "payload root"
			}
			return Payload{}, &MalformedPayloadError{Reason: fmt.Sprintf("%s: expected %s, got %s", field, typeErr.Type, typeErr.Value)}
		}
		return Payload{}, &MalformedPayloadError{Reason: err.Error()}
	}
	return p, nil
}

// Build assembles a Configuration from the payload, resolving name-keyed
// cross references to fresh ids. Resolution happens exactly once, here:
// a department name with no match leaves the reference absent rather than
// failing. The output is always structurally complete; sparse input yields
// empty lists and documented defaults, never nil slices.
func Build(p Payload, now time.Time) domain.Configuration {
	cfg := domain.Configuration{
		RecordTypes: []domain.RecordType{},
		Departments: []domain.Department{},
		UserRoles:   []domain.UserRole{},
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Summary:     p.Summary,
	}
	if cfg.Summary == "" {
		cfg.Summary = defaultSummary
	}

	// Departments first: they anchor the name->id resolution pass.
	// Duplicate names stay separate entities; the map keeps the first.
	deptIDByName := map[string]string{}
	for _, d := range p.Departments {
		dept := domain.Department{
			ID:            domain.NewID(),
			Name:          d.Name,
			Description:   d.Description,
			RecordTypeIDs: []string{},
		}
		if _, seen := deptIDByName[d.Name]; d.Name != "" && !seen {
			deptIDByName[d.Name] = dept.ID
		}
		cfg.Departments = append(cfg.Departments, dept)
	}

	for _, r := range p.UserRoles {
		role := domain.UserRole{
			ID:            domain.NewID(),
			Name:          r.Name,
			Description:   r.Description,
			Permissions:   nonNil(r.Permissions),
			DepartmentIDs: []string{},
		}
		for _, name := range r.Departments {
			if id, ok := deptIDByName[name]; ok {
				role.DepartmentIDs = append(role.DepartmentIDs, id)
			}
		}
		cfg.UserRoles = append(cfg.UserRoles, role)
	}

	for _, rt := range p.RecordTypes {
		rec := domain.RecordType{
			ID:                domain.NewID(),
			Name:              rt.Name,
			Description:       rt.Description,
			DepartmentID:      deptIDByName[rt.Department],
			Category:          domain.Category(rt.Category),
			FormFields:        buildFormFields(rt.FormFields),
			WorkflowSteps:     buildWorkflowSteps(rt.WorkflowSteps),
			Fees:              buildFees(rt.Fees),
			RequiredDocuments: buildDocuments(rt.RequiredDocuments),
		}
		cfg.RecordTypes = append(cfg.RecordTypes, rec)
		if rec.DepartmentID != "" {
			for i := range cfg.Departments {
				if cfg.Departments[i].ID == rec.DepartmentID {
					cfg.Departments[i].RecordTypeIDs = append(cfg.Departments[i].RecordTypeIDs, rec.ID)
					break
				}
			}
		}
	}
	return cfg
}

func buildFormFields(in []FormFieldInput) []domain.FormField {
	out := make([]domain.FormField, 0, len(in))
	for _, f := range in {
		ft := domain.FieldType(f.FieldType)
		field := domain.FormField{
			ID:          domain.NewID(),
			Name:        f.Name,
			FieldType:   ft,
			Required:    f.Required,
			Description: f.Description,
			Conditions:  buildConditions(f.Conditions),
		}
		if ft.HasOptions() {
			field.Options = nonNil(f.Options)
		}
		out = append(out, field)
	}
	return out
}

func buildWorkflowSteps(in []WorkflowStepInput) []domain.WorkflowStep {
	out := make([]domain.WorkflowStep, 0, len(in))
	for i, s := range in {
		step := domain.WorkflowStep{
			ID:           domain.NewID(),
			Name:         s.Name,
			Order:        i + 1,
			AssignedRole: s.AssignedRole,
			StatusFrom:   s.StatusFrom,
			StatusTo:     s.StatusTo,
			Actions:      nonNil(s.Actions),
			Conditions:   buildConditions(s.Conditions),
		}
		if s.Order != nil {
			step.Order = *s.Order
		}
		out = append(out, step)
	}
	return out
}

func buildFees(in []FeeInput) []domain.Fee {
	out := make([]domain.Fee, 0, len(in))
	for _, f := range in {
		amount := f.Amount
		if amount < 0 {
			amount = 0
		}
		out = append(out, domain.Fee{
			ID:          domain.NewID(),
			Name:        f.Name,
			Amount:      amount,
			FeeType:     domain.FeeType(f.FeeType),
			WhenApplied: domain.WhenApplied(f.WhenApplied),
			Formula:     f.Formula,
			Conditions:  buildConditions(f.Conditions),
		})
	}
	return out
}

func buildDocuments(in []RequiredDocumentInput) []domain.RequiredDocument {
	out := make([]domain.RequiredDocument, 0, len(in))
	for _, d := range in {
		out = append(out, domain.RequiredDocument{
			ID:          domain.NewID(),
			Name:        d.Name,
			Required:    d.Required,
			Description: d.Description,
			Stage:       domain.DocumentStage(d.Stage),
			Conditions:  buildConditions(d.Conditions),
		})
	}
	return out
}

func buildConditions(in []ConditionInput) []domain.Condition {
	out := make([]domain.Condition, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Condition{
			ID:          domain.NewID(),
			SourceField: c.SourceField,
			Operator:    domain.Operator(c.Operator),
			Value:       c.Value,
			Description: c.Description,
		})
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
