package session

import (
	"math"
	"strings"
	"time"

	"github.com/san-kum/examguard/server/models"
)

// Grade scores a student's answers against the test. Survey tests record
// answers without scoring. Multiple-choice answers compare against the
// canonical correct option; text answers compare case-insensitively after
// trimming.
func Grade(test *models.Test, answers map[string]string, submittedAt time.Time) *models.Submission {
	submission := &models.Submission{
		TestCode:    test.Code,
		SubmittedAt: submittedAt,
	}

	graded := test.InterfaceType != models.InterfaceTypeSurvey

	for _, question := range test.Questions {
		answer := models.StudentAnswer{
			QuestionID: question.ID,
			Answer:     answers[question.ID],
		}

		if graded && isCorrectAnswer(question, answer.Answer) {
			answer.IsCorrect = true
			answer.PointsEarned = question.Points
			submission.TotalScore += question.Points
		}

		submission.Answers = append(submission.Answers, answer)
	}

	if graded {
		submission.TotalPoints = test.TotalPoints()
		if submission.TotalPoints > 0 {
			submission.Percentage = int(math.Round(
				100 * float64(submission.TotalScore) / float64(submission.TotalPoints)))
		}
	}

	return submission
}

func isCorrectAnswer(question models.Question, answer string) bool {
	if answer == "" {
		return false
	}

	correct := question.CanonicalCorrect()
	if correct == "" {
		return false
	}

	if question.Type == models.QuestionTypeMultipleChoice {
		return answer == correct
	}

	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(correct))
}
