// Package bank persists templates, question-bank titles and the
// question bank itself.
package bank

import "encoding/json"

type Template struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	TotalMarks   int             `json:"total_marks"`
	Instructions string          `json:"instructions"`
	Sections     json.RawMessage `json:"sections"`
}

type Title struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Question is a stored bank entry. Options are JSON-encoded in the row,
// matching the loose shape the review frontend posts.
type Question struct {
	ID            int64           `json:"id"`
	QuestionText  string          `json:"question_text"`
	Type          string          `json:"type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer *string         `json:"correct_answer,omitempty"`
	AnswerText    string          `json:"answer_text,omitempty"`
	BTL           int             `json:"btl"`
	Marks         int             `json:"marks"`
	Status        string          `json:"status"`
	Chapter       *string         `json:"chapter,omitempty"`
	CourseOutcome *string         `json:"course_outcomes,omitempty"`
	TitleID       int64           `json:"title_id"`
}

// Filter narrows ListQuestions.
type Filter struct {
	Status  string
	TitleID int64
}
