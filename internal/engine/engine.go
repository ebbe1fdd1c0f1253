package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"permitline/internal/builder"
	"permitline/internal/config"
	"permitline/internal/domain"
	"permitline/internal/events"
	"permitline/internal/genai"
	"permitline/internal/profile"
	"permitline/internal/repo"
	"permitline/internal/research"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	GenAI    genai.Client
	Research research.Source
	Log      *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, gen genai.Client, log *slog.Logger) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		GenAI:    gen,
		Research: research.Stub{},
		Log:      log,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) record(ctx context.Context, evtType, projectID, entityKind, entityID string, payload events.Payload) {
	if err := e.Events.Append(ctx, evtType, projectID, entityKind, entityID, payload); err != nil {
		e.Log.Error("append event", "type", evtType, "project_id", projectID, "err", err)
	}
}

func (e Engine) CreateProject(ctx context.Context, name, customerName, productType, communityURL string) (domain.Project, error) {
	now := e.stamp()
	p := domain.Project{
		ID:           domain.NewID(),
		Name:         name,
		CustomerName: customerName,
		ProductType:  productType,
		Status:       domain.StatusSetup,
		CommunityURL: communityURL,
		Files:        []domain.UploadedFile{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	e.record(ctx, events.TypeProjectCreated, p.ID, "project", p.ID, events.Payload{"name": p.Name})
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, id string, upd repo.ProjectUpdate) (domain.Project, error) {
	if err := e.Repo.UpdateProject(ctx, id, upd); err != nil {
		return domain.Project{}, err
	}
	e.record(ctx, events.TypeProjectUpdated, id, "project", id, nil)
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) DeleteProject(ctx context.Context, id string) error {
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	e.record(ctx, events.TypeProjectDeleted, id, "project", id, nil)
	return nil
}

// Upload is one file in an upload batch.
type Upload struct {
	Filename string
	Size     int64
	Data     io.Reader
}

// UploadFiles parses and records each file in order. The batch is not
// atomic: the first unparseable file aborts the rest, files already
// recorded stay recorded.
func (e Engine) UploadFiles(ctx context.Context, projectID string, uploads []Upload) ([]domain.UploadedFile, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	var recorded []domain.UploadedFile
	for _, u := range uploads {
		sum, err := profile.Summarize(u.Filename, u.Data)
		if err != nil {
			return recorded, &builder.MalformedPayloadError{Reason: err.Error()}
		}
		f := domain.UploadedFile{
			Filename:   u.Filename,
			SizeBytes:  u.Size,
			RowCount:   sum.TotalRows,
			Columns:    sum.ColumnNames(),
			UploadedAt: e.stamp(),
		}
		if err := e.Repo.AddUploadedFile(ctx, projectID, f, sum.PromptText()); err != nil {
			return recorded, err
		}
		recorded = append(recorded, f)
		e.record(ctx, events.TypeFileUploaded, projectID, "file", f.Filename,
			events.Payload{"rows": f.RowCount, "columns": len(f.Columns)})
	}
	status := domain.StatusUploading
	if err := e.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{Status: &status}); err != nil {
		return recorded, err
	}
	return recorded, nil
}

// StartResearch fetches public permitting information for the project's
// community and stores the serialized document on the project.
func (e Engine) StartResearch(ctx context.Context, projectID, communityURL, communityName string) (research.Document, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return research.Document{}, err
	}
	if communityURL == "" {
		communityURL = p.CommunityURL
	}
	if communityName == "" {
		communityName = p.CommunityName
	}
	doc, err := e.Research.Fetch(ctx, communityURL, communityName)
	if err != nil {
		e.Log.Warn("research fetch failed, using stub data", "project_id", projectID, "err", err)
		doc, _ = research.Stub{Now: e.Now}.Fetch(ctx, communityURL, communityName)
	}
	enc, err := research.Encode(doc)
	if err != nil {
		return research.Document{}, err
	}
	upd := repo.ProjectUpdate{CommunityResearch: &enc}
	if communityURL != "" {
		upd.CommunityURL = &communityURL
	}
	if communityName != "" {
		upd.CommunityName = &communityName
	}
	if err := e.Repo.UpdateProject(ctx, projectID, upd); err != nil {
		return research.Document{}, err
	}
	e.record(ctx, events.TypeResearchFetched, projectID, "research", "",
		events.Payload{"community": doc.CommunityName})
	return doc, nil
}

// GetResearch returns the stored research document, NotFound when none
// has been fetched.
func (e Engine) GetResearch(ctx context.Context, projectID string) (research.Document, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return research.Document{}, err
	}
	if p.CommunityResearch == "" {
		return research.Document{}, repo.ErrNotFound
	}
	return research.Decode(p.CommunityResearch)
}

func (e Engine) checkpoint(ctx context.Context, projectID string, progress int, stage string) error {
	status := domain.StatusAnalyzing
	err := e.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{
		Status:           &status,
		AnalysisProgress: &progress,
		AnalysisStage:    &stage,
	})
	if err != nil {
		return err
	}
	e.record(ctx, events.TypeAnalysisProgress, projectID, "analysis", "",
		events.Payload{"progress": progress, "stage": stage})
	return nil
}

func (e Engine) failAnalysis(ctx context.Context, projectID string, cause error) {
	status := domain.StatusError
	msg := cause.Error()
	if err := e.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{Status: &status, AnalysisStage: &msg}); err != nil {
		e.Log.Error("mark analysis failed", "project_id", projectID, "err", err)
	}
	e.record(ctx, events.TypeAnalysisFailed, projectID, "analysis", "", events.Payload{"error": msg})
}

// RunAnalysis drives the full generation pipeline for a project and
// blocks until it finishes. Progress is written at fixed checkpoints so
// pollers see movement.
func (e Engine) RunAnalysis(ctx context.Context, projectID string) (domain.Configuration, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Configuration{}, err
	}
	e.record(ctx, events.TypeAnalysisStarted, projectID, "analysis", "", nil)

	if err := e.checkpoint(ctx, projectID, 10, "Profiling uploaded data"); err != nil {
		return domain.Configuration{}, err
	}
	summaries, err := e.Repo.FileSummaries(ctx, projectID)
	if err != nil {
		e.failAnalysis(ctx, projectID, err)
		return domain.Configuration{}, err
	}

	if err := e.checkpoint(ctx, projectID, 30, "Composing analysis prompt"); err != nil {
		return domain.Configuration{}, err
	}
	prompt := e.buildPrompt(p, summaries)

	if err := e.checkpoint(ctx, projectID, 50, "Generating configuration"); err != nil {
		return domain.Configuration{}, err
	}
	text, err := e.GenAI.Generate(ctx, prompt)
	if err != nil {
		e.failAnalysis(ctx, projectID, err)
		return domain.Configuration{}, err
	}

	if err := e.checkpoint(ctx, projectID, 60, "Normalizing entities"); err != nil {
		return domain.Configuration{}, err
	}
	raw, err := builder.ExtractJSON(text)
	if err != nil {
		e.failAnalysis(ctx, projectID, err)
		return domain.Configuration{}, err
	}
	payload, err := builder.Parse(raw)
	if err != nil {
		e.failAnalysis(ctx, projectID, err)
		return domain.Configuration{}, err
	}
	cfg := builder.Build(payload, e.now())

	if err := e.Repo.SaveConfiguration(ctx, projectID, cfg); err != nil {
		e.failAnalysis(ctx, projectID, err)
		return domain.Configuration{}, err
	}
	status := domain.StatusConfigured
	progress := 100
	stage := "Configuration ready"
	if err := e.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{
		Status:           &status,
		AnalysisProgress: &progress,
		AnalysisStage:    &stage,
	}); err != nil {
		return domain.Configuration{}, err
	}
	e.record(ctx, events.TypeAnalysisDone, projectID, "configuration", "", events.Payload{
		"record_types": len(cfg.RecordTypes),
		"departments":  len(cfg.Departments),
		"user_roles":   len(cfg.UserRoles),
	})
	return cfg, nil
}

func (e Engine) buildPrompt(p domain.Project, summaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Municipality: %s\n", p.Name)
	if p.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", p.CustomerName)
	}
	if p.ProductType != "" {
		fmt.Fprintf(&b, "Product: %s\n", p.ProductType)
	}
	if len(summaries) > 0 {
		b.WriteString("\nUploaded data summaries:\n")
		for _, s := range summaries {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	if p.CommunityResearch != "" {
		if doc, err := research.Decode(p.CommunityResearch); err == nil {
			b.WriteString("\n")
			b.WriteString(research.Render(doc))
		}
	}
	b.WriteString("\nGenerate the permitting configuration for this municipality.")
	return b.String()
}

// DeployResult is the placeholder acknowledgment for a deploy request.
type DeployResult struct {
	Deployed    bool   `json:"deployed"`
	Message     string `json:"message"`
	RecordTypes int    `json:"record_types"`
	Departments int    `json:"departments"`
	UserRoles   int    `json:"user_roles"`
}

// Deploy acknowledges a deploy request without performing one.
func (e Engine) Deploy(ctx context.Context, projectID string) (DeployResult, error) {
	cfg, err := e.Repo.GetConfiguration(ctx, projectID)
	if err != nil {
		return DeployResult{}, err
	}
	status := domain.StatusDeployed
	if err := e.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{Status: &status}); err != nil {
		return DeployResult{}, err
	}
	e.record(ctx, events.TypeDeployRequested, projectID, "configuration", "", nil)
	return DeployResult{
		Deployed:    false,
		Message:     "deployment is not implemented; configuration validated and counted",
		RecordTypes: len(cfg.RecordTypes),
		Departments: len(cfg.Departments),
		UserRoles:   len(cfg.UserRoles),
	}, nil
}

// Nested entity mutations. These delegate to the store and record an
// audit event on success.

func (e Engine) UpdateRecordType(ctx context.Context, projectID, rtID string, patch map[string]json.RawMessage) (domain.RecordType, error) {
	rt, err := e.Repo.UpdateRecordType(ctx, projectID, rtID, patch)
	if err != nil {
		return domain.RecordType{}, err
	}
	e.record(ctx, events.TypeEntityUpdated, projectID, "record_type", rtID, nil)
	return rt, nil
}

func (e Engine) AddRecordType(ctx context.Context, projectID string, rt domain.RecordType) (domain.RecordType, error) {
	rt.ID = domain.NewID()
	if rt.FormFields == nil {
		rt.FormFields = []domain.FormField{}
	}
	if rt.WorkflowSteps == nil {
		rt.WorkflowSteps = []domain.WorkflowStep{}
	}
	if rt.Fees == nil {
		rt.Fees = []domain.Fee{}
	}
	if rt.RequiredDocuments == nil {
		rt.RequiredDocuments = []domain.RequiredDocument{}
	}
	if err := e.Repo.AddRecordType(ctx, projectID, rt); err != nil {
		return domain.RecordType{}, err
	}
	e.record(ctx, events.TypeEntityAdded, projectID, "record_type", rt.ID, events.Payload{"name": rt.Name})
	return rt, nil
}

func (e Engine) DeleteRecordType(ctx context.Context, projectID, rtID string) error {
	if err := e.Repo.DeleteRecordType(ctx, projectID, rtID); err != nil {
		return err
	}
	e.record(ctx, events.TypeEntityDeleted, projectID, "record_type", rtID, nil)
	return nil
}

func (e Engine) UpdateDepartment(ctx context.Context, projectID, deptID string, patch map[string]json.RawMessage) (domain.Department, error) {
	dept, err := e.Repo.UpdateDepartment(ctx, projectID, deptID, patch)
	if err != nil {
		return domain.Department{}, err
	}
	e.record(ctx, events.TypeEntityUpdated, projectID, "department", deptID, nil)
	return dept, nil
}

func (e Engine) UpdateUserRole(ctx context.Context, projectID, roleID string, patch map[string]json.RawMessage) (domain.UserRole, error) {
	role, err := e.Repo.UpdateUserRole(ctx, projectID, roleID, patch)
	if err != nil {
		return domain.UserRole{}, err
	}
	e.record(ctx, events.TypeEntityUpdated, projectID, "user_role", roleID, nil)
	return role, nil
}

// IsNotFound reports whether err is the store's uniform not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
