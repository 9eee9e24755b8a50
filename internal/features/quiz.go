package features

import "fmt"

// PracticeQuizID is the feature whose results can be played as a quiz
const PracticeQuizID = "practice-quiz"

// QuizQuestion is one multiple-choice question of a generated quiz
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// QuestionsFromOutput converts a conformed practice-quiz output into questions
func QuestionsFromOutput(output any) ([]QuizQuestion, error) {
	items, ok := output.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: quiz output must be a list of questions", ErrInvalidInput)
	}

	questions := make([]QuizQuestion, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: question %d is not an object", ErrInvalidInput, i)
		}
		q := QuizQuestion{}
		q.Question, _ = obj["question"].(string)
		q.CorrectAnswer, _ = obj["correctAnswer"].(string)
		opts, _ := obj["options"].([]any)
		for _, o := range opts {
			if s, ok := o.(string); ok {
				q.Options = append(q.Options, s)
			}
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// QuizSession walks a quiz one question at a time.
// The first answer to a question is final.
type QuizSession struct {
	questions []QuizQuestion
	index     int
	selected  string
	answered  bool
	score     int
	finished  bool
}

// NewQuizSession starts a session at the first question
func NewQuizSession(questions []QuizQuestion) *QuizSession {
	return &QuizSession{
		questions: questions,
		finished:  len(questions) == 0,
	}
}

// Current returns the question being asked
func (s *QuizSession) Current() (QuizQuestion, bool) {
	if s.finished || s.index >= len(s.questions) {
		return QuizQuestion{}, false
	}
	return s.questions[s.index], true
}

// Answer selects an option for the current question. It reports whether the
// answer was accepted; repeated answers to the same question are ignored.
func (s *QuizSession) Answer(option string) bool {
	if s.finished || s.answered {
		return false
	}
	s.selected = option
	s.answered = true
	if option == s.questions[s.index].CorrectAnswer {
		s.score++
	}
	return true
}

// Next moves to the following question, or finishes after the last one
func (s *QuizSession) Next() {
	if s.finished {
		return
	}
	if s.index < len(s.questions)-1 {
		s.index++
		s.selected = ""
		s.answered = false
		return
	}
	s.finished = true
}

func (s *QuizSession) Index() int { return s.index }
func (s *QuizSession) Selected() string { return s.selected }
func (s *QuizSession) Score() int { return s.score }
func (s *QuizSession) Finished() bool { return s.finished }
func (s *QuizSession) Total() int { return len(s.questions) }

// QuestionResult is the outcome of one replayed question
type QuestionResult struct {
	Index         int    `json:"index"`
	Selected      string `json:"selected,omitempty"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
}

// QuizResult is the outcome of a replayed quiz
type QuizResult struct {
	Score    int              `json:"score"`
	Total    int              `json:"total"`
	Finished bool             `json:"finished"`
	Results  []QuestionResult `json:"results"`
}

// ScoreQuiz replays answers through a session. answers[i] is the option chosen
// for question i; an empty string skips the question.
func ScoreQuiz(questions []QuizQuestion, answers []string) QuizResult {
	s := NewQuizSession(questions)
	result := QuizResult{Total: len(questions), Results: make([]QuestionResult, 0, len(questions))}

	for i := range questions {
		var selected string
		if i < len(answers) && answers[i] != "" {
			selected = answers[i]
			s.Answer(selected)
		}
		result.Results = append(result.Results, QuestionResult{
			Index:         i,
			Selected:      selected,
			CorrectAnswer: questions[i].CorrectAnswer,
			Correct:       selected != "" && selected == questions[i].CorrectAnswer,
		})
		s.Next()
	}

	result.Score = s.Score()
	result.Finished = s.Finished()
	return result
}
