package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitline/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

// ErrInvalidPatch marks a patch whose field values cannot be applied to
// the target entity.
var ErrInvalidPatch = errors.New("invalid patch")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,customer_name,product_type,status,analysis_progress,analysis_stage,community_url,community_name,community_research,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.CustomerName), nullable(p.ProductType), p.Status, p.AnalysisProgress,
		nullable(p.AnalysisStage), nullable(p.CommunityURL), nullable(p.CommunityName), nullable(p.CommunityResearch),
		p.CreatedAt, p.UpdatedAt)
	return err
}

const projectColumns = `id,name,COALESCE(customer_name,''),COALESCE(product_type,''),status,analysis_progress,COALESCE(analysis_stage,''),COALESCE(community_url,''),COALESCE(community_name,''),COALESCE(community_research,''),created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	err := scan(&p.ID, &p.Name, &p.CustomerName, &p.ProductType, &p.Status, &p.AnalysisProgress,
		&p.AnalysisStage, &p.CommunityURL, &p.CommunityName, &p.CommunityResearch, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return p, err
	}
	p.Files, err = r.listFiles(ctx, id)
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate carries the fields update_project may change. Nil
// pointers leave the stored value alone.
type ProjectUpdate struct {
	Name              *string
	CustomerName      *string
	ProductType       *string
	Status            *string
	AnalysisProgress  *int
	AnalysisStage     *string
	CommunityURL      *string
	CommunityName     *string
	CommunityResearch *string
}

func (r Repo) UpdateProject(ctx context.Context, id string, upd ProjectUpdate) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.CustomerName != nil {
		set("customer_name", nullable(*upd.CustomerName))
	}
	if upd.ProductType != nil {
		set("product_type", nullable(*upd.ProductType))
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.AnalysisProgress != nil {
		set("analysis_progress", *upd.AnalysisProgress)
	}
	if upd.AnalysisStage != nil {
		set("analysis_stage", nullable(*upd.AnalysisStage))
	}
	if upd.CommunityURL != nil {
		set("community_url", nullable(*upd.CommunityURL))
	}
	if upd.CommunityName != nil {
		set("community_name", nullable(*upd.CommunityName))
	}
	if upd.CommunityResearch != nil {
		set("community_research", nullable(*upd.CommunityResearch))
	}
	set("updated_at", r.now())
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AddUploadedFile(ctx context.Context, projectID string, f domain.UploadedFile, summaryText string) error {
	colsJSON, err := json.Marshal(f.Columns)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO uploaded_files(project_id,filename,size_bytes,row_count,columns_json,summary_text,uploaded_at)
SELECT id,?,?,?,?,?,? FROM projects WHERE id=?`,
		f.Filename, f.SizeBytes, f.RowCount, string(colsJSON), nullable(summaryText), f.UploadedAt, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listFiles(ctx context.Context, projectID string) ([]domain.UploadedFile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT filename,size_bytes,row_count,columns_json,uploaded_at FROM uploaded_files WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	files := []domain.UploadedFile{}
	for rows.Next() {
		var f domain.UploadedFile
		var colsJSON string
		if err := rows.Scan(&f.Filename, &f.SizeBytes, &f.RowCount, &colsJSON, &f.UploadedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(colsJSON), &f.Columns); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileSummaries returns the stored prompt-ready text of every uploaded
// file, in upload order.
func (r Repo) FileSummaries(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT COALESCE(summary_text,'') FROM uploaded_files WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s != "" {
			res = append(res, s)
		}
	}
	return res, rows.Err()
}

func (r Repo) SaveConfiguration(ctx context.Context, projectID string, cfg domain.Configuration) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := r.now()
	res, err := r.DB.ExecContext(ctx, `INSERT INTO configurations(project_id,config_json,created_at,updated_at)
SELECT id,?,?,? FROM projects WHERE id=?
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		string(payload), now, now, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetConfiguration(ctx context.Context, projectID string) (domain.Configuration, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM configurations WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Configuration{}, ErrNotFound
	}
	if err != nil {
		return domain.Configuration{}, err
	}
	var cfg domain.Configuration
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return domain.Configuration{}, err
	}
	return cfg, nil
}

// mutateConfig runs fn against the stored configuration inside a
// transaction, so concurrent patches to the same project serialize on
// the row rather than racing on the shared lists.
func (r Repo) mutateConfig(ctx context.Context, projectID string, fn func(cfg *domain.Configuration) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx, `SELECT config_json FROM configurations WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var cfg domain.Configuration
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	out, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := r.now()
	if _, err := tx.ExecContext(ctx, `UPDATE configurations SET config_json=?, updated_at=? WHERE project_id=?`, string(out), now, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at=? WHERE id=?`, now, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// patchInto shallow-merges the given top-level fields over the entity's
// JSON form. The id field is never overwritten; list fields present in
// the patch replace the stored list wholesale. A field set to JSON null
// leaves the stored value unchanged: patches update fields, they cannot
// clear them.
func patchInto[T any](entity *T, patch map[string]json.RawMessage) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for k, v := range patch {
		if k == "id" || string(v) == "null" {
			continue
		}
		m[k] = v
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(merged, entity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return nil
}

func (r Repo) UpdateRecordType(ctx context.Context, projectID, rtID string, patch map[string]json.RawMessage) (domain.RecordType, error) {
	var updated domain.RecordType
	err := r.mutateConfig(ctx, projectID, func(cfg *domain.Configuration) error {
		for i := range cfg.RecordTypes {
			if cfg.RecordTypes[i].ID != rtID {
				continue
			}
			if err := patchInto(&cfg.RecordTypes[i], patch); err != nil {
				return err
			}
			updated = cfg.RecordTypes[i]
			return nil
		}
		return ErrNotFound
	})
	return updated, err
}

func (r Repo) AddRecordType(ctx context.Context, projectID string, rt domain.RecordType) error {
	return r.mutateConfig(ctx, projectID, func(cfg *domain.Configuration) error {
		cfg.RecordTypes = append(cfg.RecordTypes, rt)
		return nil
	})
}

func (r Repo) DeleteRecordType(ctx context.Context, projectID, rtID string) error {
	return r.mutateConfig(ctx, projectID, func(cfg *domain.Configuration) error {
		for i := range cfg.RecordTypes {
			if cfg.RecordTypes[i].ID == rtID {
				cfg.RecordTypes = append(cfg.RecordTypes[:i], cfg.RecordTypes[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

func (r Repo) UpdateDepartment(ctx context.Context, projectID, deptID string, patch map[string]json.RawMessage) (domain.Department, error) {
	var updated domain.Department
	err := r.mutateConfig(ctx, projectID, func(cfg *domain.Configuration) error {
		for i := range cfg.Departments {
			if cfg.Departments[i].ID != deptID {
				continue
			}
			if err := patchInto(&cfg.Departments[i], patch); err != nil {
				return err
			}
			updated = cfg.Departments[i]
			return nil
		}
		return ErrNotFound
	})
	return updated, err
}

func (r Repo) UpdateUserRole(ctx context.Context, projectID, roleID string, patch map[string]json.RawMessage) (domain.UserRole, error) {
	var updated domain.UserRole
	err := r.mutateConfig(ctx, projectID, func(cfg *domain.Configuration) error {
		for i := range cfg.UserRoles {
			if cfg.UserRoles[i].ID != roleID {
				continue
			}
			if err := patchInto(&cfg.UserRoles[i], patch); err != nil {
				return err
			}
			updated = cfg.UserRoles[i]
			return nil
		}
		return ErrNotFound
	})
	return updated, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
