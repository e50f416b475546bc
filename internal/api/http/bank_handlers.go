package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/krce-idcs/qpgen/internal/bank"
)

// POST /api/templates
func CreateTemplateHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t bank.Template
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if t.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		id, err := store.CreateTemplate(r.Context(), t)
		if err != nil {
			http.Error(w, "create template: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	}
}

// POST /api/templates/update
func UpdateTemplateHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t bank.Template
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if t.ID == 0 {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := store.UpdateTemplate(r.Context(), t); err != nil {
			if errors.Is(err, bank.ErrNotFound) {
				http.Error(w, "template not found", http.StatusNotFound)
				return
			}
			http.Error(w, "update template: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": t.ID})
	}
}

// GET /api/templates
func ListTemplatesHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListTemplates(r.Context())
		if err != nil {
			http.Error(w, "list templates: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /api/question-bank-titles
func CreateTitleHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if in.Title == "" {
			http.Error(w, "title required", http.StatusBadRequest)
			return
		}
		t, err := store.CreateTitle(r.Context(), in.Title)
		if err != nil {
			http.Error(w, "create title: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// GET /api/question-bank-titles
func ListTitlesHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListTitles(r.Context())
		if err != nil {
			http.Error(w, "list titles: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /api/question-bank/bulk
func BulkInsertHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			TitleID   int64           `json:"title_id"`
			Title     string          `json:"title"`
			Status    string          `json:"status"`
			Questions []bank.Question `json:"questions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(in.Questions) == 0 {
			http.Error(w, "questions required", http.StatusBadRequest)
			return
		}
		if in.TitleID == 0 && in.Title != "" {
			t, err := store.CreateTitle(r.Context(), in.Title)
			if err != nil {
				http.Error(w, "create title: "+err.Error(), http.StatusInternalServerError)
				return
			}
			in.TitleID = t.ID
		}
		if in.TitleID == 0 {
			http.Error(w, "title_id or title required", http.StatusBadRequest)
			return
		}
		if in.Status == "" {
			in.Status = "pending"
		}
		n, err := store.BulkInsert(r.Context(), in.TitleID, in.Status, in.Questions)
		if err != nil {
			http.Error(w, "bulk insert: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"inserted": n, "title_id": in.TitleID})
	}
}

// GET /api/question-bank?status=…&title_id=…
func ListQuestionsHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f bank.Filter
		f.Status = r.URL.Query().Get("status")
		if v := r.URL.Query().Get("title_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(w, "bad title_id", http.StatusBadRequest)
				return
			}
			f.TitleID = id
		}
		out, err := store.ListQuestions(r.Context(), f)
		if err != nil {
			http.Error(w, "list questions: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /api/question-bank/update-status
func UpdateStatusHandler(store *bank.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			IDs    []int64 `json:"ids"`
			Status string  `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if in.Status == "" {
			http.Error(w, "status required", http.StatusBadRequest)
			return
		}
		n, err := store.UpdateStatus(r.Context(), in.IDs, in.Status)
		if err != nil {
			http.Error(w, "update status: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": n})
	}
}

// POST /api/admin/seed-question-bank
//
// The secret check accepts a bcrypt hash when configured, otherwise a
// plain compare for local development.
func SeedHandler(store *bank.SQLStore, secretHash, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Secret  string `json:"secret"`
			TitleID int64  `json:"title_id"`
			Count   int    `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !secretOK(secretHash, secret, in.Secret) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if in.Count <= 0 {
			in.Count = 10
		}
		if in.TitleID == 0 {
			t, err := store.CreateTitle(r.Context(), "Seeded Bank")
			if err != nil {
				http.Error(w, "create title: "+err.Error(), http.StatusInternalServerError)
				return
			}
			in.TitleID = t.ID
		}
		ids, err := store.Seed(r.Context(), in.TitleID, in.Count)
		if err != nil {
			http.Error(w, "seed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"inserted": len(ids), "ids": ids, "title_id": in.TitleID})
	}
}

func secretOK(hash, plain, got string) bool {
	if got == "" {
		return false
	}
	if hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(got)) == nil
	}
	return plain != "" && plain == got
}
