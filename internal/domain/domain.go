package domain

// Project is the top-level aggregate. Its Configuration is stored
// separately and attached on read.
type Project struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	CustomerName      string         `json:"customer_name"`
	ProductType       string         `json:"product_type"`
	Status            string         `json:"status" enum:"setup,uploading,analyzing,configured,deployed,error"`
	AnalysisProgress  int            `json:"analysis_progress"`
	AnalysisStage     string         `json:"analysis_stage,omitempty"`
	CommunityURL      string         `json:"community_url,omitempty"`
	CommunityName     string         `json:"community_name,omitempty"`
	CommunityResearch string         `json:"community_research,omitempty"`
	Files             []UploadedFile `json:"files"`
	CreatedAt         string         `json:"created_at" format:"date-time"`
	UpdatedAt         string         `json:"updated_at" format:"date-time"`
}

// Project status values. Transitions are side effects of operations,
// not guarded: any operation may run from any state.
const (
	StatusSetup      = "setup"
	StatusUploading  = "uploading"
	StatusAnalyzing  = "analyzing"
	StatusConfigured = "configured"
	StatusDeployed   = "deployed"
	StatusError      = "error"
)

// UploadedFile records one ingested CSV. The list on Project is append-only.
type UploadedFile struct {
	Filename   string   `json:"filename"`
	SizeBytes  int64    `json:"size_bytes"`
	RowCount   int      `json:"row_count"`
	Columns    []string `json:"columns"`
	UploadedAt string   `json:"uploaded_at" format:"date-time"`
}

// Configuration is the generated artifact for one project. It exists in
// full or not at all; the builder never produces a partial one.
type Configuration struct {
	RecordTypes []RecordType `json:"record_types"`
	Departments []Department `json:"departments"`
	UserRoles   []UserRole   `json:"user_roles"`
	GeneratedAt string       `json:"generated_at" format:"date-time"`
	Summary     string       `json:"summary"`
}

// RecordType is one kind of permit, license or case. DepartmentID is a
// weak reference into the same Configuration's Departments; empty means
// unlinked.
type RecordType struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	DepartmentID      string             `json:"department_id,omitempty"`
	Category          Category           `json:"category"`
	FormFields        []FormField        `json:"form_fields"`
	WorkflowSteps     []WorkflowStep     `json:"workflow_steps"`
	Fees              []Fee              `json:"fees"`
	RequiredDocuments []RequiredDocument `json:"required_documents"`
}

// Department owns record types by id. RecordTypeIDs is materialized by the
// builder and is not maintained by later record-type add/delete.
type Department struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	RecordTypeIDs []string `json:"record_type_ids"`
}

type UserRole struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Permissions   []string `json:"permissions"`
	DepartmentIDs []string `json:"department_ids"`
}

type FormField struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	FieldType   FieldType   `json:"field_type"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
	Options     []string    `json:"options,omitempty"`
	Conditions  []Condition `json:"conditions"`
}

// WorkflowStep orders review/approval stages. A nil StatusFrom marks an
// entry step. AssignedRole is a free-text role name, not a foreign key.
type WorkflowStep struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Order        int         `json:"order"`
	AssignedRole string      `json:"assigned_role,omitempty"`
	StatusFrom   *string     `json:"status_from,omitempty"`
	StatusTo     string      `json:"status_to"`
	Actions      []string    `json:"actions"`
	Conditions   []Condition `json:"conditions"`
}

// Fee carries an optional free-text Formula (e.g. "project_value * 0.01")
// that is stored opaquely for downstream evaluation.
type Fee struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Amount      float64     `json:"amount"`
	FeeType     FeeType     `json:"fee_type"`
	WhenApplied WhenApplied `json:"when_applied"`
	Formula     string      `json:"formula,omitempty"`
	Conditions  []Condition `json:"conditions"`
}

type RequiredDocument struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Required    bool          `json:"required"`
	Description string        `json:"description,omitempty"`
	Stage       DocumentStage `json:"stage"`
	Conditions  []Condition   `json:"conditions"`
}

// Condition gates its owning entity on another field's value. Conditions
// are owned exclusively by their parent list and never shared.
type Condition struct {
	ID          string   `json:"id"`
	SourceField string   `json:"source_field"`
	Operator    Operator `json:"operator"`
	Value       any      `json:"value,omitempty"`
	Description string   `json:"description,omitempty"`
}
