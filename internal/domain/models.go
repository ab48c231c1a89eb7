package domain

import "time"

// Unanswered marks a question with no selected option in a recorded answer sheet.
const Unanswered = -1

// PassPercentage is the quiz score percentage at or above which a quiz counts as passed.
const PassPercentage = 60

// Identity is who a learner session acts for. The zero value is a guest.
type Identity struct {
	LearnerID string `json:"learnerId,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Guest reports whether the identity is unauthenticated.
func (i Identity) Guest() bool {
	return i.LearnerID == ""
}

// ModuleProgress is the scroll-completion record for one (learner, module) pair.
type ModuleProgress struct {
	ID                 string    `json:"id"`
	LearnerID          string    `json:"learnerId,omitempty"`
	ModuleID           string    `json:"moduleId"`
	ProgressPercentage int       `json:"progressPercentage"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// QuizProgress is the best-score record for one (learner, threat) pair.
type QuizProgress struct {
	LearnerID   string     `json:"learnerId,omitempty"`
	ThreatID    string     `json:"threatId"`
	LastScore   int        `json:"lastScore"`
	BestScore   int        `json:"bestScore"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Merge folds another observation of the same quiz into q: best score is maxed,
// completion is sticky and the most recent last score wins.
func (q QuizProgress) Merge(other QuizProgress) QuizProgress {
	merged := q
	if other.BestScore > merged.BestScore {
		merged.BestScore = other.BestScore
	}
	if other.UpdatedAt.After(merged.UpdatedAt) {
		merged.LastScore = other.LastScore
		merged.UpdatedAt = other.UpdatedAt
	}
	if other.Completed && !merged.Completed {
		merged.Completed = true
		merged.CompletedAt = other.CompletedAt
	}
	if merged.ThreatID == "" {
		merged.ThreatID = other.ThreatID
	}
	return merged
}

// PendingTransfer is a guest quiz result buffered while the guest signs up or signs in.
type PendingTransfer struct {
	ThreatID        string    `json:"threatId"`
	Score           int       `json:"score"`
	SelectedAnswers []int     `json:"selectedAnswers"`
	Completed       bool      `json:"completed"`
	SavedAt         time.Time `json:"savedAt"`
}

// Snapshot is everything one progress tier knows about a learner.
type Snapshot struct {
	Modules map[string]int          `json:"modules"`
	Quizzes map[string]QuizProgress `json:"quizzes"`
}

// Empty reports whether the snapshot carries no progress at all.
func (s Snapshot) Empty() bool {
	return len(s.Modules) == 0 && len(s.Quizzes) == 0
}

// LeaderboardEntry is one learner's aggregate standing.
type LeaderboardEntry struct {
	LearnerID           string `json:"learnerId"`
	DisplayName         string `json:"displayName"`
	AvatarURL           string `json:"avatarUrl,omitempty"`
	TotalModuleProgress int    `json:"totalModuleProgress"`
	TotalQuizScore      int    `json:"totalQuizScore"`
	ModulesCompleted    int    `json:"modulesCompleted"`
	QuizzesCompleted    int    `json:"quizzesCompleted"`
	TotalScore          int    `json:"totalScore"`
	Rank                int    `json:"rank"` // 1-based, 0 when unranked
}

// Leaderboard is the ranked top of the board plus the caller's own standing when it
// falls outside the top.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	Self      *LeaderboardEntry  `json:"self,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Question is a multiple-choice question with exactly one correct option index.
type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Quiz is the question set attached to one threat module.
type Quiz struct {
	ID        string     `json:"id"`
	ThreatID  string     `json:"threatId"`
	Questions []Question `json:"questions"`
}

// QuizResult summarizes one finished attempt.
type QuizResult struct {
	ThreatID   string `json:"threatId"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Passed     bool   `json:"passed"`
	BestScore  int    `json:"bestScore"`
	Correct    []bool `json:"correct"`
	Saved      bool   `json:"saved"`
	SaveErr    error  `json:"-"`
}

// QuizRestore is what a quiz view needs to show a replayed pending result.
type QuizRestore struct {
	ThreatID        string `json:"threatId"`
	SelectedAnswers []int  `json:"selectedAnswers"`
	Score           int    `json:"score"`
	ShowResults     bool   `json:"showResults"`
}

// Account is a registered learner as held by the auth backend.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthSession is the result of a successful sign-up or sign-in.
type AuthSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"identity"`
}
