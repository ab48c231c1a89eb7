package app

import (
	"context"
	"math"

	"cybershield-progress/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, threatID string) (domain.Quiz, error)
}

// ValidateAnswers rejects an answer sheet with a blank question or an option index the
// question does not have. Nothing is recorded for a rejected sheet.
func ValidateAnswers(quiz domain.Quiz, selected []int) error {
	for i, q := range quiz.Questions {
		if i >= len(selected) || selected[i] == domain.Unanswered {
			return &domain.UnansweredError{Question: i}
		}
		if selected[i] < 0 || (len(q.Options) > 0 && selected[i] >= len(q.Options)) {
			return domain.ErrInvalidOption
		}
	}
	return nil
}

// ScoreQuiz counts the selected options that match each question's correct index.
// Unanswered or missing positions count as wrong.
func ScoreQuiz(quiz domain.Quiz, selected []int) domain.QuizResult {
	result := domain.QuizResult{
		ThreatID: quiz.ThreatID,
		Total:    len(quiz.Questions),
		Correct:  make([]bool, len(quiz.Questions)),
	}
	for i, q := range quiz.Questions {
		if i < len(selected) && selected[i] == q.CorrectAnswer {
			result.Correct[i] = true
			result.Score++
		}
	}
	if result.Total > 0 {
		result.Percentage = int(math.Round(float64(result.Score) / float64(result.Total) * 100))
	}
	result.Passed = result.Percentage >= domain.PassPercentage
	return result
}
