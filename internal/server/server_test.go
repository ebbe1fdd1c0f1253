package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"testing"
	"time"

	"permitline/internal/config"
	"permitline/internal/db"
	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/genai"
	"permitline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, config.Default(), genai.Mock{}, log)
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			handler.Close()
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProject(t *testing.T, srv *testServer, name, customer string) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":          name,
		"customer_name": customer,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func TestProjectLifecycleAndUpload(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Test", "Cust")
	if p.Status != "setup" {
		t.Fatalf("new project status = %q", p.Status)
	}

	// Multipart upload of one CSV with columns A,B and three rows.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "export.csv")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(part, "A,B\n1,x\n2,y\n3,z\n")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d %s", res.StatusCode, string(data))
	}
	var upload UploadResponse
	if err := json.Unmarshal(data, &upload); err != nil {
		t.Fatalf("unmarshal upload: %v", err)
	}
	if len(upload.Files) != 1 || upload.Files[0].RowCount != 3 {
		t.Fatalf("upload response: %+v", upload)
	}
	if cols := upload.Files[0].Columns; len(cols) != 2 || cols[0] != "A" || cols[1] != "B" {
		t.Fatalf("columns: %v", cols)
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d %s", getRes.StatusCode, string(getBody))
	}
	var fetched domain.Project
	_ = json.Unmarshal(getBody, &fetched)
	if fetched.Status != "uploading" || len(fetched.Files) != 1 {
		t.Fatalf("project after upload: %+v", fetched)
	}
}

func TestAnalyzeProducesMockConfiguration(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Springfield", "City of Springfield")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/analyze", nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("analyze: %d %s", res.StatusCode, string(data))
	}

	deadline := time.Now().Add(10 * time.Second)
	var status AnalysisStatusResponse
	for {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/analysis", nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("poll analysis: %d %s", res.StatusCode, string(data))
		}
		_ = json.Unmarshal(data, &status)
		if status.Status == "configured" || status.Status == "error" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("analysis did not finish: %+v", status)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status.Status != "configured" || status.Progress != 100 {
		t.Fatalf("final status: %+v", status)
	}

	cfgRes, cfgBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/configuration", nil)
	if cfgRes.StatusCode != http.StatusOK {
		t.Fatalf("get configuration: %d %s", cfgRes.StatusCode, string(cfgBody))
	}
	var cfg domain.Configuration
	if err := json.Unmarshal(cfgBody, &cfg); err != nil {
		t.Fatalf("unmarshal configuration: %v", err)
	}
	if len(cfg.RecordTypes) != 5 || len(cfg.Departments) != 4 || len(cfg.UserRoles) != 7 {
		t.Fatalf("configuration counts: %d/%d/%d", len(cfg.RecordTypes), len(cfg.Departments), len(cfg.UserRoles))
	}
}

func analyzeSync(t *testing.T, srv *testServer, projectID string) domain.Configuration {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/analyze", nil)
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("analyze: %d %s", res.StatusCode, string(data))
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/analysis", nil)
		var status AnalysisStatusResponse
		_ = json.Unmarshal(data, &status)
		if status.Status == "configured" {
			break
		}
		if status.Status == "error" || time.Now().After(deadline) {
			t.Fatalf("analysis failed: %+v", status)
		}
		time.Sleep(50 * time.Millisecond)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/configuration", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get configuration: %d %s", res.StatusCode, string(data))
	}
	var cfg domain.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal configuration: %v", err)
	}
	return cfg
}

func TestRecordTypeMutations(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Test", "")
	cfg := analyzeSync(t, srv, p.ID)

	rt := cfg.RecordTypes[0]
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+p.ID+"/record-types/"+rt.ID, map[string]any{
		"name": "Renamed Permit",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update record type: %d %s", res.StatusCode, string(data))
	}
	var updated domain.RecordType
	_ = json.Unmarshal(data, &updated)
	if updated.Name != "Renamed Permit" || updated.ID != rt.ID {
		t.Fatalf("updated = %+v", updated)
	}
	if len(updated.FormFields) != len(rt.FormFields) {
		t.Fatalf("untouched form fields changed: %d != %d", len(updated.FormFields), len(rt.FormFields))
	}

	// New record type referencing an existing department by id: present
	// in the list, but the department back-reference stays stale.
	deptID := cfg.Departments[0].ID
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/record-types", map[string]any{
		"name":          "Fence Permit",
		"department_id": deptID,
		"category":      "permit",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add record type: %d %s", res.StatusCode, string(data))
	}
	var added domain.RecordType
	_ = json.Unmarshal(data, &added)
	if added.ID == "" || added.DepartmentID != deptID {
		t.Fatalf("added = %+v", added)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/configuration", nil)
	var after domain.Configuration
	_ = json.Unmarshal(data, &after)
	if len(after.RecordTypes) != len(cfg.RecordTypes)+1 {
		t.Fatalf("record types after add: %d", len(after.RecordTypes))
	}
	for _, d := range after.Departments {
		for _, id := range d.RecordTypeIDs {
			if id == added.ID {
				t.Fatal("add must not establish the department back-reference")
			}
		}
	}

	// Deleting an absent id is a 404 and leaves the list unchanged.
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+p.ID+"/record-types/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+p.ID+"/record-types/"+added.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/configuration", nil)
	_ = json.Unmarshal(data, &after)
	if len(after.RecordTypes) != len(cfg.RecordTypes) {
		t.Fatalf("record types after delete: %d", len(after.RecordTypes))
	}

	// Wrong-typed patch field → 422.
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+p.ID+"/record-types/"+rt.ID, map[string]any{
		"form_fields": "not a list",
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad patch: %d %s", res.StatusCode, string(data))
	}
}

func TestDepartmentAndRoleMutations(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Test", "")
	cfg := analyzeSync(t, srv, p.ID)

	dept := cfg.Departments[0]
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+p.ID+"/departments/"+dept.ID, map[string]any{
		"description": "Updated description",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update department: %d %s", res.StatusCode, string(data))
	}
	var updatedDept domain.Department
	_ = json.Unmarshal(data, &updatedDept)
	if updatedDept.Description != "Updated description" || updatedDept.Name != dept.Name {
		t.Fatalf("department = %+v", updatedDept)
	}

	role := cfg.UserRoles[0]
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+p.ID+"/roles/"+role.ID, map[string]any{
		"permissions": []string{"admin"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update role: %d %s", res.StatusCode, string(data))
	}
	var updatedRole domain.UserRole
	_ = json.Unmarshal(data, &updatedRole)
	if len(updatedRole.Permissions) != 1 || updatedRole.Permissions[0] != "admin" {
		t.Fatalf("role = %+v", updatedRole)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+p.ID+"/departments/missing", map[string]any{"name": "x"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("update missing department: %d %s", res.StatusCode, string(data))
	}
}

func TestDeployAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Test", "")
	analyzeSync(t, srv, p.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/deploy", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deploy: %d %s", res.StatusCode, string(data))
	}
	var ack engine.DeployResult
	_ = json.Unmarshal(data, &ack)
	if ack.Deployed || ack.RecordTypes != 5 {
		t.Fatalf("deploy ack: %+v", ack)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/events?limit=100", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var evts []map[string]any
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts) == 0 {
		t.Fatal("no events returned")
	}
	if evts[0]["type"] != "project.created" {
		t.Fatalf("first event: %v", evts[0])
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v %s", err, string(data))
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("envelope = %+v", envelope)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": ""})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty name: %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}
