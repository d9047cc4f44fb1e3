package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/engine"
	"github.com/maiphh/ocr/internal/results"
	"github.com/maiphh/ocr/internal/schema"
)

type schemaResponse struct {
	Schema *schema.Schema `json:"schema"`
}

type fieldPayload struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Nullable    *bool  `json:"nullable"`
	Description string `json:"description"`
	Format      string `json:"format"`
}

type applySchemaPayload struct {
	Schema json.RawMessage `json:"schema"`
}

type splitNextPayload struct {
	JobID  string `json:"jobId"`
	Append bool   `json:"append"`
}

type updateResultsPayload struct {
	Table []results.TableRow `json:"table"`
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, schemaResponse{Schema: s.engine.Schema()})
}

func (s *Server) handleResetSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, schemaResponse{Schema: s.engine.ResetSchema()})
}

func (s *Server) handleSetSchema(w http.ResponseWriter, r *http.Request) {
	var payload applySchemaPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, common.InvalidInputf("invalid request body: %v", err))
		return
	}
	if len(payload.Schema) == 0 {
		s.writeError(w, common.InvalidInputf("schema must be a JSON object"))
		return
	}
	applied, err := s.engine.ApplySchema(payload.Schema)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schemaResponse{Schema: applied})
}

func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	var payload fieldPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, common.InvalidInputf("invalid request body: %v", err))
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		s.writeError(w, common.InvalidInputf("field name cannot be empty"))
		return
	}
	nullable := true
	if payload.Nullable != nil {
		nullable = *payload.Nullable
	}
	updated, err := s.engine.AddField(name, schema.FieldSpec{
		Type:        schema.FieldType(payload.Type),
		Required:    payload.Required,
		Nullable:    nullable,
		Format:      payload.Format,
		Description: payload.Description,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schemaResponse{Schema: updated})
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	updated, err := s.engine.DeleteField(mux.Vars(r)["field"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schemaResponse{Schema: updated})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, common.InvalidInputf("parse multipart form: %v", err))
		return
	}
	appendMode := parseBool(r.FormValue("append"))
	ocrEngine := formValueOr(r, "ocr_engine", "easyocr")
	langs := ParseLanguages(formValueOr(r, "ocr_languages", "en,vi"))

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, common.InvalidInputf("no files uploaded"))
		return
	}

	files := make([]engine.BatchFile, 0, len(headers))
	for _, fh := range headers {
		name := fh.Filename
		if name == "" {
			name = "document.pdf"
		}
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			s.writeError(w, common.InvalidInputf("file %q is not a PDF document", name))
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			s.writeError(w, common.WrapError(err, "read upload"))
			return
		}
		if len(data) == 0 {
			s.writeError(w, common.InvalidInputf("file %q is empty", name))
			return
		}
		files = append(files, engine.BatchFile{Name: name, Data: data})
	}

	result, err := s.engine.ProcessBatch(r.Context(), sessionID(r), files, ocrEngine, langs, appendMode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSplitInit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, common.InvalidInputf("parse multipart form: %v", err))
		return
	}
	ocrEngine := formValueOr(r, "ocr_engine", "easyocr")
	langs := ParseLanguages(formValueOr(r, "ocr_languages", "en,vi"))

	file, fh, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, common.InvalidInputf("missing file upload: %v", err))
		return
	}
	defer func() {
		_ = file.Close()
	}()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, common.WrapError(err, "read upload"))
		return
	}
	name := fh.Filename
	if name == "" {
		name = "document.pdf"
	}

	info, err := s.engine.CreateSplitJob(r.Context(), sessionID(r), name, data, ocrEngine, langs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSplitNext(w http.ResponseWriter, r *http.Request) {
	var payload splitNextPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, common.InvalidInputf("invalid request body: %v", err))
		return
	}
	if payload.JobID == "" {
		s.writeError(w, common.InvalidInputf("jobId is required"))
		return
	}
	result, err := s.engine.SplitNext(r.Context(), payload.JobID, payload.Append)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.engine.Results()
	if !ok || len(payload.Documents) == 0 {
		s.writeError(w, common.NotFoundf("no results available"))
		return
	}
	data, err := s.export.CSV(payload.Documents, s.engine.SchemaFields())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAttachment(w, data, "ocr_results.csv", "text/csv; charset=utf-8")
}

func (s *Server) handleDownloadJSON(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.engine.Results()
	if !ok {
		s.writeError(w, common.NotFoundf("no results available"))
		return
	}
	data, err := s.export.JSON(payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAttachment(w, data, "ocr_results.json", "application/json")
}

func (s *Server) handleDownloadXLSX(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.engine.Results()
	if !ok || len(payload.Documents) == 0 {
		s.writeError(w, common.NotFoundf("no results available"))
		return
	}
	data, err := s.export.XLSX(payload.Documents, s.engine.SchemaFields())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeAttachment(w, data, "ocr_results.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func (s *Server) handleUpdateResults(w http.ResponseWriter, r *http.Request) {
	var payload updateResultsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, common.InvalidInputf("invalid request body: %v", err))
		return
	}
	table, err := s.engine.UpdateResults(payload.Table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"table": table})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	asset, err := s.engine.PreviewAsset(token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		s.writeError(w, common.NotFoundf("preview %q not found", token))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+asset.FileName+`"`)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("server.response_write_failed", "error", err)
	}
}

func (s *Server) handleSessionCleanup(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		sid = payload.SessionID
	}
	s.writeJSON(w, http.StatusOK, s.engine.CleanupSession(sid))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ParseLanguages splits a comma-separated language list, dropping blanks.
// Empty input falls back to the default pair.
func ParseLanguages(raw string) []string {
	var langs []string
	for _, part := range strings.Split(raw, ",") {
		if lang := strings.TrimSpace(part); lang != "" {
			langs = append(langs, lang)
		}
	}
	if len(langs) == 0 {
		return []string{"en", "vi"}
	}
	return langs
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func formValueOr(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return fallback
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return io.ReadAll(f)
}
