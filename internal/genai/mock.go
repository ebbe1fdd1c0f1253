package genai

import "context"

// Mock stands in when no API credential is configured. It returns the
// same payload for every prompt so the pipeline stays testable offline.
type Mock struct{}

func (Mock) Generate(ctx context.Context, prompt string) (string, error) {
	return mockPayload, nil
}

const mockPayload = `{
  "summary": "Baseline permitting configuration covering building, planning, fire prevention and code enforcement workflows.",
  "departments": [
    {"name": "Building", "description": "Reviews construction plans and issues building, electrical, plumbing and mechanical permits."},
    {"name": "Planning and Zoning", "description": "Administers zoning compliance, land use approvals and signage."},
    {"name": "Fire Prevention", "description": "Conducts fire and life-safety plan review and field inspections."},
    {"name": "Code Enforcement", "description": "Investigates complaints and enforces municipal property codes."}
  ],
  "record_types": [
    {
      "name": "Building Permit",
      "description": "Permit for new construction, additions and structural alterations.",
      "department": "Building",
      "category": "permit",
      "form_fields": [
        {"name": "Project Address", "field_type": "text", "required": true},
        {"name": "Work Type", "field_type": "select", "required": true, "options": ["New Construction", "Addition", "Alteration", "Demolition"]},
        {"name": "Estimated Valuation", "field_type": "currency", "required": true},
        {"name": "Contractor License Number", "field_type": "text", "required": false,
         "conditions": [{"source_field": "Work Type", "operator": "not_equals", "value": "Demolition", "description": "Demolition-only jobs may be owner performed."}]}
      ],
      "workflow_steps": [
        {"name": "Application Intake", "assigned_role": "Permit Technician", "status_to": "submitted"},
        {"name": "Plan Review", "assigned_role": "Plan Reviewer", "status_from": "submitted", "status_to": "in_review", "actions": ["approve", "request_revisions"]},
        {"name": "Fire Review", "assigned_role": "Fire Inspector", "status_from": "in_review", "status_to": "fire_review",
         "conditions": [{"source_field": "Work Type", "operator": "equals", "value": "New Construction"}]},
        {"name": "Issuance", "assigned_role": "Permit Technician", "status_from": "fire_review", "status_to": "issued"},
        {"name": "Final Inspection", "assigned_role": "Building Inspector", "status_from": "issued", "status_to": "closed"}
      ],
      "fees": [
        {"name": "Plan Review Fee", "amount": 150, "fee_type": "flat", "when_applied": "at_submission"},
        {"name": "Permit Fee", "amount": 0, "fee_type": "formula", "when_applied": "at_issuance", "formula": "max(75, valuation * 0.012)"}
      ],
      "required_documents": [
        {"name": "Site Plan", "required": true, "stage": "at_submission"},
        {"name": "Construction Drawings", "required": true, "stage": "at_submission"},
        {"name": "Energy Compliance Report", "required": false, "stage": "before_issuance",
         "conditions": [{"source_field": "Work Type", "operator": "equals", "value": "New Construction"}]}
      ]
    },
    {
      "name": "Electrical Permit",
      "description": "Permit for electrical service and wiring work.",
      "department": "Building",
      "category": "permit",
      "form_fields": [
        {"name": "Project Address", "field_type": "text", "required": true},
        {"name": "Service Amperage", "field_type": "number", "required": true}
      ],
      "workflow_steps": [
        {"name": "Application Intake", "assigned_role": "Permit Technician", "status_to": "submitted"},
        {"name": "Issuance", "assigned_role": "Permit Technician", "status_from": "submitted", "status_to": "issued"},
        {"name": "Rough Inspection", "assigned_role": "Building Inspector", "status_from": "issued", "status_to": "inspections"},
        {"name": "Final Inspection", "assigned_role": "Building Inspector", "status_from": "inspections", "status_to": "closed"}
      ],
      "fees": [
        {"name": "Permit Fee", "amount": 85, "fee_type": "flat", "when_applied": "at_issuance"}
      ],
      "required_documents": [
        {"name": "Load Calculation", "required": false, "stage": "at_submission",
         "conditions": [{"source_field": "Service Amperage", "operator": "greater_than", "value": 200}]}
      ]
    },
    {
      "name": "Business License",
      "description": "Annual operating license for businesses within city limits.",
      "department": "Planning and Zoning",
      "category": "license",
      "form_fields": [
        {"name": "Business Name", "field_type": "text", "required": true},
        {"name": "Business Address", "field_type": "text", "required": true},
        {"name": "Business Category", "field_type": "select", "required": true, "options": ["Retail", "Restaurant", "Office", "Home Occupation"]},
        {"name": "Seating Capacity", "field_type": "number", "required": false,
         "conditions": [{"source_field": "Business Category", "operator": "equals", "value": "Restaurant"}]}
      ],
      "workflow_steps": [
        {"name": "Application Intake", "assigned_role": "Permit Technician", "status_to": "submitted"},
        {"name": "Zoning Verification", "assigned_role": "Plan Reviewer", "status_from": "submitted", "status_to": "in_review"},
        {"name": "Fire Occupancy Review", "assigned_role": "Fire Inspector", "status_from": "in_review", "status_to": "fire_review",
         "conditions": [{"source_field": "Business Category", "operator": "equals", "value": "Restaurant"}]},
        {"name": "License Issuance", "assigned_role": "Finance Clerk", "status_from": "fire_review", "status_to": "issued"}
      ],
      "fees": [
        {"name": "License Fee", "amount": 120, "fee_type": "annual", "when_applied": "at_issuance"},
        {"name": "Zoning Review Fee", "amount": 35, "fee_type": "flat", "when_applied": "at_submission"}
      ],
      "required_documents": [
        {"name": "State Registration Certificate", "required": true, "stage": "at_submission"}
      ]
    },
    {
      "name": "Sign Permit",
      "description": "Permit for new or modified signage.",
      "department": "Planning and Zoning",
      "category": "permit",
      "form_fields": [
        {"name": "Sign Type", "field_type": "select", "required": true, "options": ["Wall", "Monument", "Pole", "Temporary"]},
        {"name": "Sign Area", "field_type": "number", "required": true},
        {"name": "Illuminated", "field_type": "checkbox", "required": false, "options": ["Yes"]}
      ],
      "workflow_steps": [
        {"name": "Application Intake", "assigned_role": "Permit Technician", "status_to": "submitted"},
        {"name": "Design Review", "assigned_role": "Plan Reviewer", "status_from": "submitted", "status_to": "in_review"},
        {"name": "Issuance", "assigned_role": "Permit Technician", "status_from": "in_review", "status_to": "issued"}
      ],
      "fees": [
        {"name": "Permit Fee", "amount": 60, "fee_type": "flat", "when_applied": "at_issuance"}
      ],
      "required_documents": [
        {"name": "Sign Elevation Drawing", "required": true, "stage": "at_submission"}
      ]
    },
    {
      "name": "Code Violation Case",
      "description": "Enforcement case opened from a complaint or inspection finding.",
      "department": "Code Enforcement",
      "category": "enforcement",
      "form_fields": [
        {"name": "Property Address", "field_type": "text", "required": true},
        {"name": "Violation Type", "field_type": "select", "required": true, "options": ["Property Maintenance", "Zoning", "Noise", "Illegal Construction"]},
        {"name": "Complaint Description", "field_type": "textarea", "required": false}
      ],
      "workflow_steps": [
        {"name": "Case Opened", "assigned_role": "Code Enforcement Officer", "status_to": "open"},
        {"name": "Initial Inspection", "assigned_role": "Code Enforcement Officer", "status_from": "open", "status_to": "inspected"},
        {"name": "Notice of Violation", "assigned_role": "Code Enforcement Officer", "status_from": "inspected", "status_to": "noticed"},
        {"name": "Compliance Verification", "assigned_role": "Code Enforcement Officer", "status_from": "noticed", "status_to": "closed"}
      ],
      "fees": [
        {"name": "Reinspection Fee", "amount": 50, "fee_type": "per_occurrence", "when_applied": "on_reinspection"}
      ],
      "required_documents": []
    }
  ],
  "user_roles": [
    {"name": "Administrator", "description": "Full configuration and user management access.", "permissions": ["admin", "configure", "manage_users"], "departments": ["Building", "Planning and Zoning", "Fire Prevention", "Code Enforcement"]},
    {"name": "Permit Technician", "description": "Front-counter intake and issuance.", "permissions": ["create_record", "edit_record", "issue_permit"], "departments": ["Building", "Planning and Zoning"]},
    {"name": "Plan Reviewer", "description": "Reviews plans for code and zoning compliance.", "permissions": ["review_record", "request_revisions"], "departments": ["Building", "Planning and Zoning"]},
    {"name": "Building Inspector", "description": "Performs field inspections on issued permits.", "permissions": ["schedule_inspection", "record_inspection"], "departments": ["Building"]},
    {"name": "Fire Inspector", "description": "Fire and life-safety review and inspection.", "permissions": ["review_record", "record_inspection"], "departments": ["Fire Prevention"]},
    {"name": "Code Enforcement Officer", "description": "Opens and works enforcement cases.", "permissions": ["create_record", "edit_record", "issue_notice"], "departments": ["Code Enforcement"]},
    {"name": "Finance Clerk", "description": "Collects fees and issues licenses.", "permissions": ["collect_payment", "issue_permit"], "departments": ["Planning and Zoning"]}
  ]
}`
