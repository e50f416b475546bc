package bank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("not found")

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) CreateTemplate(ctx context.Context, t Template) (int64, error) {
	if s.driver == "postgres" {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO templates (name,description,total_marks,instructions,sections)
			 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			t.Name, t.Description, t.TotalMarks, t.Instructions, string(t.Sections)).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (name,description,total_marks,instructions,sections)
		 VALUES ($1,$2,$3,$4,$5)`,
		t.Name, t.Description, t.TotalMarks, t.Instructions, string(t.Sections))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLStore) UpdateTemplate(ctx context.Context, t Template) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name=$1, description=$2, total_marks=$3, instructions=$4, sections=$5 WHERE id=$6`,
		t.Name, t.Description, t.TotalMarks, t.Instructions, string(t.Sections), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,name,description,total_marks,instructions,sections FROM templates ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Template{}
	for rows.Next() {
		var t Template
		var desc, instr, sections sql.NullString
		var marks sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Name, &desc, &marks, &instr, &sections); err != nil {
			return nil, err
		}
		t.Description = desc.String
		t.Instructions = instr.String
		t.TotalMarks = int(marks.Int64)
		if sections.String != "" {
			t.Sections = json.RawMessage(sections.String)
		} else {
			t.Sections = json.RawMessage("[]")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTitle inserts or returns the existing title; titles are unique.
func (s *SQLStore) CreateTitle(ctx context.Context, title string) (Title, error) {
	if s.driver == "postgres" {
		_, _ = s.db.ExecContext(ctx,
			`INSERT INTO question_bank_titles (title) VALUES ($1) ON CONFLICT (title) DO NOTHING`, title)
	} else {
		_, _ = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO question_bank_titles (title) VALUES ($1)`, title)
	}
	var t Title
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title FROM question_bank_titles WHERE title=$1`, title).Scan(&t.ID, &t.Title)
	return t, err
}

func (s *SQLStore) ListTitles(ctx context.Context) ([]Title, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title FROM question_bank_titles ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Title{}
	for rows.Next() {
		var t Title
		if err := rows.Scan(&t.ID, &t.Title); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// BulkInsert stores questions under a title with the given status.
// Defaults mirror ingestion: btl 2, marks 1, type objective.
func (s *SQLStore) BulkInsert(ctx context.Context, titleID int64, status string, qs []Question) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, q := range qs {
		if q.Type == "" {
			q.Type = "objective"
		}
		if q.BTL == 0 {
			q.BTL = 2
		}
		if q.Marks == 0 {
			q.Marks = 1
		}
		var opts any
		if len(q.Options) > 0 {
			opts = string(q.Options)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_bank
			 (question_text,type,options,correct_answer,answer_text,btl,marks,status,chapter,course_outcomes,title_id)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			q.QuestionText, q.Type, opts, q.CorrectAnswer, q.AnswerText,
			q.BTL, q.Marks, status, q.Chapter, q.CourseOutcome, titleID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(qs), nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, f Filter) ([]Question, error) {
	base := `SELECT id,question_text,type,options,correct_answer,answer_text,btl,marks,status,chapter,course_outcomes,title_id
		 FROM question_bank WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		base += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if f.TitleID != 0 {
		args = append(args, f.TitleID)
		base += fmt.Sprintf(" AND title_id=$%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var q Question
		var opts, answer, chapter, co sql.NullString
		var correct sql.NullString
		var btl, marks, titleID sql.NullInt64
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.Type, &opts, &correct, &answer,
			&btl, &marks, &q.Status, &chapter, &co, &titleID); err != nil {
			return nil, err
		}
		if opts.Valid && opts.String != "" {
			q.Options = json.RawMessage(opts.String)
		}
		if correct.Valid {
			q.CorrectAnswer = &correct.String
		}
		q.AnswerText = answer.String
		q.BTL = int(btl.Int64)
		q.Marks = int(marks.Int64)
		if chapter.Valid && chapter.String != "" {
			q.Chapter = &chapter.String
		}
		if co.Valid && co.String != "" {
			q.CourseOutcome = &co.String
		}
		q.TitleID = titleID.Int64
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status on every id; returns how many changed.
func (s *SQLStore) UpdateStatus(ctx context.Context, ids []int64, status string) (int, error) {
	if len(ids) == 0 {
		return 0, errors.New("no valid ids")
	}
	ph := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE question_bank SET status=$1 WHERE id IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Seed inserts count pending sample questions for a title. Guarded by
// the admin secret at the handler layer; testing/local use only.
func (s *SQLStore) Seed(ctx context.Context, titleID int64, count int) ([]int64, error) {
	var ids []int64
	for i := 0; i < count; i++ {
		text := fmt.Sprintf("SEED: title %d sample %d", titleID, i+1)
		if s.driver == "postgres" {
			var id int64
			if err := s.db.QueryRowContext(ctx,
				`INSERT INTO question_bank (question_text,type,btl,marks,status,title_id)
				 VALUES ($1,'objective',2,1,'pending',$2) RETURNING id`, text, titleID).Scan(&id); err != nil {
				return ids, err
			}
			ids = append(ids, id)
			continue
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO question_bank (question_text,type,btl,marks,status,title_id)
			 VALUES ($1,'objective',2,1,'pending',$2)`, text, titleID)
		if err != nil {
			return ids, err
		}
		id, _ := res.LastInsertId()
		ids = append(ids, id)
	}
	return ids, nil
}
