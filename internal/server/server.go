package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"permitline/internal/builder"
	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/events"
	"permitline/internal/genai"
	"permitline/internal/repo"
	"permitline/internal/research"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// Server is the assembled HTTP API plus its background webhook worker.
type Server struct {
	http.Handler
	dispatcher *webhookDispatcher
}

// Close stops background webhook delivery. The handler stays usable.
func (s *Server) Close() {
	if s.dispatcher != nil {
		s.dispatcher.stop()
	}
}

// New returns the Permitline API server.
func New(cfg Config) (*Server, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Permitline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerUpload(router, basePath, cfg.Engine)
	registerResearch(group, cfg.Engine)
	registerAnalysis(group, cfg.Engine)
	registerConfiguration(group, cfg.Engine)
	registerDeploy(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return &Server{
		Handler:    router,
		dispatcher: startWebhookDispatcher(cfg.Engine),
	}, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if builder.IsMalformed(err) || errors.Is(err, repo.ErrInvalidPatch) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	var upstream *genai.UpstreamError
	if errors.As(err, &upstream) {
		return newAPIError(http.StatusBadGateway, "upstream_failed", err.Error(), map[string]any{"service": upstream.Service})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "upstream_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	json.NewEncoder(w).Encode(map[string]apiErrorBody{"error": {Code: code, Message: message}})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Permitline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := e.CreateProject(ctx, input.Body.Name, input.Body.CustomerName, input.Body.ProductType, input.Body.CommunityURL)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.UpdateProject(ctx, input.ProjectID, input.Body.toUpdate())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body DeletedResponse `json:"body"`
	}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeletedResponse `json:"body"`
		}{Body: DeletedResponse{Deleted: true}}, nil
	})
}

const maxUploadBytes = 64 << 20

// registerUpload handles the multipart CSV upload directly on the
// router; the rest of the surface goes through Huma.
func registerUpload(r chi.Router, basePath string, e engine.Engine) {
	r.Post(path.Join(basePath, "/projects/{project_id}/files"), func(w http.ResponseWriter, req *http.Request) {
		projectID := chi.URLParam(req, "project_id")
		if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
			writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
			return
		}
		defer req.MultipartForm.RemoveAll()

		var uploads []engine.Upload
		var open []io.Closer
		defer func() {
			for _, c := range open {
				c.Close()
			}
		}()
		for _, headers := range req.MultipartForm.File {
			for _, fh := range headers {
				f, err := fh.Open()
				if err != nil {
					writeAPIError(w, http.StatusBadRequest, "bad_request", "open part "+fh.Filename+": "+err.Error())
					return
				}
				open = append(open, f)
				uploads = append(uploads, engine.Upload{Filename: fh.Filename, Size: fh.Size, Data: f})
			}
		}
		if len(uploads) == 0 {
			writeAPIError(w, http.StatusBadRequest, "bad_request", "no files in request")
			return
		}

		recorded, err := e.UploadFiles(req.Context(), projectID, uploads)
		if err != nil {
			status := http.StatusInternalServerError
			code := "internal_error"
			switch {
			case errors.Is(err, repo.ErrNotFound):
				status, code = http.StatusNotFound, "not_found"
			case builder.IsMalformed(err):
				status, code = http.StatusUnprocessableEntity, "validation_failed"
			}
			writeAPIError(w, status, code, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(UploadResponse{Files: recorded})
	})
}

func registerResearch(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "start-research",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/research",
		Summary:     "Fetch community research",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      ResearchRequest `json:"body"`
	}) (*struct {
		Body research.Document `json:"body"`
	}, error) {
		doc, err := e.StartResearch(ctx, input.ProjectID, input.Body.CommunityURL, input.Body.CommunityName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body research.Document `json:"body"`
		}{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-research",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/research",
		Summary:     "Get stored research",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body research.Document `json:"body"`
	}, error) {
		doc, err := e.GetResearch(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body research.Document `json:"body"`
		}{Body: doc}, nil
	})
}

func registerAnalysis(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-analysis",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/analyze",
		Summary:       "Start configuration analysis",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body AnalysisStatusResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		go func() {
			if _, err := e.RunAnalysis(context.Background(), p.ID); err != nil {
				e.Log.Error("analysis failed", "project_id", p.ID, "err", err)
			}
		}()
		return &struct {
			Body AnalysisStatusResponse `json:"body"`
		}{Body: AnalysisStatusResponse{Status: domain.StatusAnalyzing, Progress: 0, Stage: "Analysis started"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analysis-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/analysis",
		Summary:     "Poll analysis status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body AnalysisStatusResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisStatusResponse `json:"body"`
		}{Body: AnalysisStatusResponse{Status: p.Status, Progress: p.AnalysisProgress, Stage: p.AnalysisStage}}, nil
	})
}

func registerConfiguration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-configuration",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/configuration",
		Summary:     "Get generated configuration",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Configuration `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetConfiguration(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Configuration `json:"body"`
		}{Body: cfg}, nil
	})

	// Partial updates take the raw body so only the supplied fields are
	// merged; a typed struct would overwrite absent fields with zeros.
	huma.Register(api, huma.Operation{
		OperationID:      "update-record-type",
		Method:           http.MethodPut,
		Path:             "/projects/{project_id}/record-types/{record_type_id}",
		Summary:          "Update record type fields",
		Errors:           []int{http.StatusNotFound, http.StatusUnprocessableEntity},
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		RecordTypeID string `path:"record_type_id"`
		RawBody      []byte `contentType:"application/json"`
	}) (*struct {
		Body domain.RecordType `json:"body"`
	}, error) {
		patch, aerr := parsePatch(input.RawBody)
		if aerr != nil {
			return nil, aerr
		}
		rt, err := e.UpdateRecordType(ctx, input.ProjectID, input.RecordTypeID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RecordType `json:"body"`
		}{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "add-record-type",
		Method:           http.MethodPost,
		Path:             "/projects/{project_id}/record-types",
		Summary:          "Add record type",
		DefaultStatus:    http.StatusCreated,
		Errors:           []int{http.StatusBadRequest, http.StatusNotFound},
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      domain.RecordType `json:"body"`
	}) (*struct {
		Body domain.RecordType `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		rt, err := e.AddRecordType(ctx, input.ProjectID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RecordType `json:"body"`
		}{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-record-type",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/record-types/{record_type_id}",
		Summary:     "Delete record type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		RecordTypeID string `path:"record_type_id"`
	}) (*struct {
		Body DeletedResponse `json:"body"`
	}, error) {
		if err := e.DeleteRecordType(ctx, input.ProjectID, input.RecordTypeID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeletedResponse `json:"body"`
		}{Body: DeletedResponse{Deleted: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "update-department",
		Method:           http.MethodPut,
		Path:             "/projects/{project_id}/departments/{department_id}",
		Summary:          "Update department fields",
		Errors:           []int{http.StatusNotFound, http.StatusUnprocessableEntity},
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		DepartmentID string `path:"department_id"`
		RawBody      []byte `contentType:"application/json"`
	}) (*struct {
		Body domain.Department `json:"body"`
	}, error) {
		patch, aerr := parsePatch(input.RawBody)
		if aerr != nil {
			return nil, aerr
		}
		dept, err := e.UpdateDepartment(ctx, input.ProjectID, input.DepartmentID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Department `json:"body"`
		}{Body: dept}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "update-user-role",
		Method:           http.MethodPut,
		Path:             "/projects/{project_id}/roles/{role_id}",
		Summary:          "Update user role fields",
		Errors:           []int{http.StatusNotFound, http.StatusUnprocessableEntity},
		SkipValidateBody: true,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RoleID    string `path:"role_id"`
		RawBody   []byte `contentType:"application/json"`
	}) (*struct {
		Body domain.UserRole `json:"body"`
	}, error) {
		patch, aerr := parsePatch(input.RawBody)
		if aerr != nil {
			return nil, aerr
		}
		role, err := e.UpdateUserRole(ctx, input.ProjectID, input.RoleID, patch)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserRole `json:"body"`
		}{Body: role}, nil
	})
}

func parsePatch(raw []byte) (map[string]json.RawMessage, huma.StatusError) {
	if len(raw) == 0 {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "body must be a JSON object", nil)
	}
	return patch, nil
}

func registerDeploy(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "deploy",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/deploy",
		Summary:     "Request deployment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body engine.DeployResult `json:"body"`
	}, error) {
		res, err := e.Deploy(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DeployResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List project events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     string `query:"limit"`
	}) (*struct {
		Body []events.Event `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		limit := 0
		if input.Limit != "" {
			n, err := strconv.Atoi(input.Limit)
			if err != nil || n < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "limit must be a non-negative integer", nil)
			}
			limit = n
		}
		items, err := e.Events.List(ctx, input.ProjectID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []events.Event{}
		}
		return &struct {
			Body []events.Event `json:"body"`
		}{Body: items}, nil
	})
}
