package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/krce-idcs/qpgen/internal/compose"
	"github.com/krce-idcs/qpgen/internal/extract"
	"github.com/krce-idcs/qpgen/internal/qp"
	"github.com/krce-idcs/qpgen/internal/storage"
)

// readUpload pulls the multipart "file" field into memory, bounded by max.
func readUpload(w http.ResponseWriter, r *http.Request, max int64) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, max)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file required", http.StatusBadRequest)
		return nil, "", false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	return data, hdr.Filename, true
}

// archiveUpload keeps a copy of the raw upload for later audits.
// Archival failure never fails the request.
func archiveUpload(bs storage.BlobStore, name string, data []byte) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	key := storage.NewKey("uploads", ext)
	if _, err := bs.Put(key, bytes.NewReader(data)); err != nil {
		log.Printf("store upload %s: %v", key, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// POST /api/upload-questions-excel/ (multipart: file=bank.xlsx)
func UploadExcelHandler(bs storage.BlobStore, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, name, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}
		archiveUpload(bs, name, data)
		records, warn, err := extract.Workbook(data)
		if err != nil {
			var missing *extract.MissingColumnError
			if errors.As(err, &missing) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":   missing.Error(),
					"column":  missing.Column,
					"sheet":   missing.Sheet,
					"headers": missing.Found,
				})
				return
			}
			http.Error(w, "parse workbook: "+err.Error(), http.StatusBadRequest)
			return
		}
		if warn != nil {
			writeJSON(w, http.StatusOK, warn)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"questions": records,
			"count":     len(records),
		})
	}
}

// POST /api/template/upload (multipart: file=template.txt|.csv|.docx)
func UploadTemplateHandler(bs storage.BlobStore, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, name, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}
		archiveUpload(bs, name, data)
		ext := strings.ToLower(filepath.Ext(name))
		lines, err := extract.Lines(data, ext)
		if err != nil {
			var unsupported *extract.ErrUnsupportedType
			if errors.As(err, &unsupported) {
				http.Error(w, unsupported.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "parse template: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lines": lines, "count": len(lines)})
	}
}

// POST /api/template/scan-docx (multipart: file=paper.docx)
func ScanDocxHandler(bs storage.BlobStore, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, name, ok := readUpload(w, r, maxBytes)
		if !ok {
			return
		}
		archiveUpload(bs, name, data)
		records, diag, err := extract.Document(data)
		if err != nil {
			http.Error(w, "parse document: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"questions":   records,
			"diagnostics": diag,
		})
	}
}

// POST /api/template/generate-docx (form: questions=JSON plus header fields)
func GenerateDocxHandler(composer *compose.Composer, bs storage.BlobStore, defaultInstitution string, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad form: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		rawQuestions := r.FormValue("questions")
		if rawQuestions == "" {
			http.Error(w, "questions required", http.StatusBadRequest)
			return
		}
		questions := qp.Normalize(rawQuestions)

		m := compose.Metadata{
			Institution: firstOf(r.FormValue("institution"), defaultInstitution),
			Dept:        r.FormValue("department"),
			CourseCode:  r.FormValue("course_code"),
			CourseName:  r.FormValue("course_name"),
			QPCode:      r.FormValue("qp_code"),
			ExamTitle:   r.FormValue("exam_title"),
			Regulation:  r.FormValue("regulation"),
			Semester:    r.FormValue("semester"),
			Banner:      r.FormValue("banner"),
		}

		doc, err := composer.Compose(r.Context(), questions, m)
		if err != nil {
			http.Error(w, "compose: "+err.Error(), http.StatusInternalServerError)
			return
		}

		key := storage.NewKey("papers", ".docx")
		if _, err := bs.Put(key, bytes.NewReader(doc)); err != nil {
			// Serving the document matters more than archiving it.
			log.Printf("store paper %s: %v", key, err)
		} else {
			w.Header().Set("X-Paper-Key", key)
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", `attachment; filename="question_paper.docx"`)
		_, _ = w.Write(doc)
	}
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
