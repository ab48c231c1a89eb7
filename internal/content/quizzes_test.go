package content

import "testing"

func TestBundledQuizzesAreWellFormed(t *testing.T) {
	quizzes := Quizzes()
	if len(quizzes) == 0 {
		t.Fatalf("expected bundled quizzes")
	}
	for threatID, quiz := range quizzes {
		if quiz.ThreatID != threatID || quiz.ID == "" {
			t.Fatalf("quiz %q has mismatched ids: %+v", threatID, quiz)
		}
		for i, question := range quiz.Questions {
			if question.CorrectAnswer < 0 || question.CorrectAnswer >= len(question.Options) {
				t.Fatalf("quiz %q question %d correct answer %d out of range", threatID, i, question.CorrectAnswer)
			}
		}
	}
	if n := len(quizzes["phishing"].Questions); n != 10 {
		t.Fatalf("expected 10 phishing questions, got %d", n)
	}
}
