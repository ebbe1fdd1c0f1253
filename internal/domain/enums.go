package domain

// Enumerated fields are open string types: generated payloads may carry
// values outside the known set, and those are stored verbatim rather than
// rejected. Known reports whether the value is one the product understands;
// consumers that need a closed set can branch on it.

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldDate     FieldType = "date"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldTextarea FieldType = "textarea"
	FieldFile     FieldType = "file"
	FieldCheckbox FieldType = "checkbox"
	FieldAddress  FieldType = "address"
)

func (t FieldType) Known() bool {
	switch t {
	case FieldText, FieldEmail, FieldPhone, FieldDate, FieldNumber,
		FieldSelect, FieldTextarea, FieldFile, FieldCheckbox, FieldAddress:
		return true
	}
	return false
}

// HasOptions reports whether the field type carries an options list.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldCheckbox
}

type Category string

const (
	CategoryPermit          Category = "permit"
	CategoryLicense         Category = "license"
	CategoryCodeEnforcement Category = "code_enforcement"
	CategoryInspection      Category = "inspection"
)

func (c Category) Known() bool {
	switch c {
	case CategoryPermit, CategoryLicense, CategoryCodeEnforcement, CategoryInspection:
		return true
	}
	return false
}

type FeeType string

const (
	FeeApplication FeeType = "application"
	FeeProcessing  FeeType = "processing"
	FeePermit      FeeType = "permit"
	FeeInspection  FeeType = "inspection"
	FeeAnnual      FeeType = "annual"
)

func (f FeeType) Known() bool {
	switch f {
	case FeeApplication, FeeProcessing, FeePermit, FeeInspection, FeeAnnual:
		return true
	}
	return false
}

type WhenApplied string

const (
	AppliedUpfront        WhenApplied = "upfront"
	AppliedUponApproval   WhenApplied = "upon_approval"
	AppliedUponInspection WhenApplied = "upon_inspection"
	AppliedAnnual         WhenApplied = "annual"
)

func (w WhenApplied) Known() bool {
	switch w {
	case AppliedUpfront, AppliedUponApproval, AppliedUponInspection, AppliedAnnual:
		return true
	}
	return false
}

type DocumentStage string

const (
	StageApplication DocumentStage = "application"
	StageReview      DocumentStage = "review"
	StageApproval    DocumentStage = "approval"
	StageInspection  DocumentStage = "inspection"
)

func (s DocumentStage) Known() bool {
	switch s {
	case StageApplication, StageReview, StageApproval, StageInspection:
		return true
	}
	return false
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

func (o Operator) Known() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan,
		OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}
