package models

import (
	"math/rand"
	"strings"
	"time"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeText           QuestionType = "text"
)

type InterfaceType string

const (
	InterfaceTypeStandard InterfaceType = "standard"
	InterfaceTypeSurvey   InterfaceType = "survey"
	InterfaceTypeTimed    InterfaceType = "timed"
)

// Question stores its correct answer either as the option text or, for
// older tests, as an index into Options.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	CorrectIndex  *int         `json:"correct_index,omitempty"`
	Points        int          `json:"points"`
}

// CanonicalCorrect resolves the correct answer to option text when the test
// stored it as an index.
func (q Question) CanonicalCorrect() string {
	if q.CorrectIndex != nil && *q.CorrectIndex >= 0 && *q.CorrectIndex < len(q.Options) {
		return q.Options[*q.CorrectIndex]
	}
	return q.CorrectAnswer
}

type Test struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	Title         string        `json:"title"`
	Duration      int           `json:"duration_minutes"`
	Description   string        `json:"description"`
	Questions     []Question    `json:"questions"`
	InterfaceType InterfaceType `json:"interface_type,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CreatorEmail  string        `json:"creator_email,omitempty"`
}

// TotalPoints sums the point value of every question.
func (t Test) TotalPoints() int {
	total := 0
	for _, q := range t.Questions {
		total += q.Points
	}
	return total
}

type StudentAnswer struct {
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
}

// Submission is the graded, final record of a test attempt, upserted by
// (TestCode, StudentName).
type Submission struct {
	TestCode          string          `json:"test_code"`
	StudentName       string          `json:"student_name"`
	Answers           []StudentAnswer `json:"answers"`
	SubmittedAt       time.Time       `json:"submitted_at"`
	TotalScore        int             `json:"total_score"`
	TotalPoints       int             `json:"total_points"`
	Percentage        int             `json:"percentage"`
	TerminationReason string          `json:"termination_reason,omitempty"`
}

const testCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateTestCode produces a 6-character uppercase code for a new test.
func GenerateTestCode() string {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteByte(testCodeAlphabet[rand.Intn(len(testCodeAlphabet))])
	}
	return b.String()
}
