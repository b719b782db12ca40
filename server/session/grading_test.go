package session

import (
	"testing"
	"time"

	"github.com/san-kum/examguard/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradingTest() *models.Test {
	idx := 1
	return &models.Test{
		Code:          "MATH01",
		InterfaceType: models.InterfaceTypeStandard,
		Questions: []models.Question{
			{ID: "q1", Type: models.QuestionTypeMultipleChoice,
				Options: []string{"red", "blue"}, CorrectIndex: &idx, Points: 2},
			{ID: "q2", Type: models.QuestionTypeText, CorrectAnswer: "Paris", Points: 3},
			{ID: "q3", Type: models.QuestionTypeMultipleChoice,
				Options: []string{"yes", "no"}, CorrectAnswer: "yes", Points: 1},
		},
	}
}

func TestGradeAllCorrect(t *testing.T) {
	submission := Grade(gradingTest(), map[string]string{
		"q1": "blue",
		"q2": "paris",
		"q3": "yes",
	}, time.Now())

	assert.Equal(t, 6, submission.TotalScore)
	assert.Equal(t, 6, submission.TotalPoints)
	assert.Equal(t, 100, submission.Percentage)
	for _, answer := range submission.Answers {
		assert.True(t, answer.IsCorrect, answer.QuestionID)
	}
}

func TestGradeCorrectIndexResolvesOptionText(t *testing.T) {
	submission := Grade(gradingTest(), map[string]string{"q1": "blue"}, time.Now())

	require.Len(t, submission.Answers, 3)
	assert.True(t, submission.Answers[0].IsCorrect)
	assert.Equal(t, 2, submission.Answers[0].PointsEarned)
}

func TestGradePartialAndWrong(t *testing.T) {
	submission := Grade(gradingTest(), map[string]string{
		"q1": "red",
		"q2": "London",
	}, time.Now())

	assert.Equal(t, 0, submission.TotalScore)
	assert.Equal(t, 0, submission.Percentage)
	assert.Len(t, submission.Answers, 3, "unanswered questions still appear")
	assert.Empty(t, submission.Answers[2].Answer)
}

func TestGradeTextComparisonIsLenient(t *testing.T) {
	submission := Grade(gradingTest(), map[string]string{"q2": "  PARIS  "}, time.Now())
	assert.True(t, submission.Answers[1].IsCorrect)
}

func TestGradeMultipleChoiceIsExact(t *testing.T) {
	submission := Grade(gradingTest(), map[string]string{"q1": "Blue"}, time.Now())
	assert.False(t, submission.Answers[0].IsCorrect,
		"choice answers must match the option text exactly")
}

func TestGradeSurveySkipsScoring(t *testing.T) {
	test := gradingTest()
	test.InterfaceType = models.InterfaceTypeSurvey

	submission := Grade(test, map[string]string{"q1": "blue", "q2": "Paris"}, time.Now())

	assert.Equal(t, 0, submission.TotalScore)
	assert.Equal(t, 0, submission.TotalPoints)
	assert.Equal(t, "blue", submission.Answers[0].Answer)
}

func TestGradeRoundsPercentage(t *testing.T) {
	test := &models.Test{
		Code:          "R1",
		InterfaceType: models.InterfaceTypeStandard,
		Questions: []models.Question{
			{ID: "q1", Type: models.QuestionTypeText, CorrectAnswer: "a", Points: 1},
			{ID: "q2", Type: models.QuestionTypeText, CorrectAnswer: "b", Points: 1},
			{ID: "q3", Type: models.QuestionTypeText, CorrectAnswer: "c", Points: 1},
		},
	}

	submission := Grade(test, map[string]string{"q1": "a"}, time.Now())
	assert.Equal(t, 33, submission.Percentage)
}
