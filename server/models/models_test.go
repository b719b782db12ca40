package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalCorrect(t *testing.T) {
	idx := 1
	tests := []struct {
		name     string
		question Question
		want     string
	}{
		{
			name:     "index resolves to option text",
			question: Question{Options: []string{"red", "blue"}, CorrectIndex: &idx},
			want:     "blue",
		},
		{
			name:     "answer text wins when no index",
			question: Question{Options: []string{"red", "blue"}, CorrectAnswer: "red"},
			want:     "red",
		},
		{
			name: "out of range index falls back to text",
			question: func() Question {
				bad := 5
				return Question{Options: []string{"red"}, CorrectIndex: &bad, CorrectAnswer: "red"}
			}(),
			want: "red",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.question.CanonicalCorrect())
		})
	}
}

func TestTotalPoints(t *testing.T) {
	test := Test{Questions: []Question{{Points: 2}, {Points: 3}}}
	assert.Equal(t, 5, test.TotalPoints())
	assert.Equal(t, 0, Test{}.TotalPoints())
}

func TestGenerateTestCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := GenerateTestCode()
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, testCodeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes should vary")
}
