package app_test

import (
	"errors"
	"testing"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
)

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:       "quiz-1",
		ThreatID: "phishing",
		Questions: []domain.Question{
			{Prompt: "q1", Options: []string{"a", "b", "c"}, CorrectAnswer: 1},
			{Prompt: "q2", Options: []string{"a", "b"}, CorrectAnswer: 0},
		},
	}
}

func TestValidateAnswers(t *testing.T) {
	quiz := twoQuestionQuiz()

	if err := app.ValidateAnswers(quiz, []int{1, 0}); err != nil {
		t.Fatalf("expected valid sheet, got %v", err)
	}
	if err := app.ValidateAnswers(quiz, []int{1}); !errors.Is(err, domain.ErrUnanswered) {
		t.Fatalf("expected short sheet to be unanswered, got %v", err)
	}
	if err := app.ValidateAnswers(quiz, []int{domain.Unanswered, 0}); !errors.Is(err, domain.ErrUnanswered) {
		t.Fatalf("expected blank to be unanswered, got %v", err)
	}
	if err := app.ValidateAnswers(quiz, []int{1, 5}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
}

func TestScoreQuiz(t *testing.T) {
	result := app.ScoreQuiz(twoQuestionQuiz(), []int{1, 1})
	if result.Score != 1 || result.Total != 2 || result.Percentage != 50 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Passed {
		t.Fatalf("expected 50%% to fail")
	}
	if !result.Correct[0] || result.Correct[1] {
		t.Fatalf("unexpected per-question marks %v", result.Correct)
	}

	full := app.ScoreQuiz(twoQuestionQuiz(), []int{1, 0})
	if full.Score != 2 || !full.Passed {
		t.Fatalf("expected full marks to pass, got %+v", full)
	}
}
