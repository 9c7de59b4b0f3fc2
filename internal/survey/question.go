package survey

import (
	"errors"
	"fmt"
)

// QuestionType tags the question union. Exactly one set of kind-specific
// fields is meaningful per tag; Validate enforces the shape.
type QuestionType string

const (
	QuestionOpen           QuestionType = "open"
	QuestionLink           QuestionType = "link"
	QuestionRating         QuestionType = "rating"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

// Question is one entry in a survey's ordered question list.
type Question struct {
	Type        QuestionType `json:"type" enum:"open,link,rating,single_choice,multiple_choice"`
	Question    string       `json:"question"`
	Description string       `json:"description,omitempty"`
	Optional    bool         `json:"optional,omitempty"`
	ButtonText  string       `json:"button_text,omitempty"`

	// link questions
	Link string `json:"link,omitempty"`

	// rating questions
	Display         string `json:"display,omitempty" enum:"number,emoji"`
	Scale           int    `json:"scale,omitempty"`
	LowerBoundLabel string `json:"lower_bound_label,omitempty"`
	UpperBoundLabel string `json:"upper_bound_label,omitempty"`

	// choice questions
	Choices       []string `json:"choices,omitempty"`
	HasOpenChoice bool     `json:"has_open_choice,omitempty"`
	Shuffle       bool     `json:"shuffle,omitempty"`
}

var ratingScales = map[int]bool{3: true, 5: true, 7: true, 10: true}

// Validate checks the kind-specific shape of the question.
func (q Question) Validate() error {
	switch q.Type {
	case QuestionOpen:
		return nil
	case QuestionLink:
		if q.Link == "" {
			return errors.New("link questions require a link")
		}
		return nil
	case QuestionRating:
		if !ratingScales[q.Scale] {
			return fmt.Errorf("rating scale must be 3, 5, 7 or 10, got %d", q.Scale)
		}
		if q.Display == QuestionDisplayEmoji && q.Scale != 3 && q.Scale != 5 {
			return fmt.Errorf("emoji ratings support scales 3 and 5, got %d", q.Scale)
		}
		return nil
	case QuestionSingleChoice, QuestionMultipleChoice:
		if len(q.Choices) == 0 {
			return errors.New("choice questions require at least one choice")
		}
		for i, c := range q.Choices {
			if c == "" {
				return fmt.Errorf("choice %d is empty", i+1)
			}
		}
		return nil
	case "":
		return errors.New("question type is required")
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
}

const (
	QuestionDisplayNumber = "number"
	QuestionDisplayEmoji  = "emoji"

	defaultRatingScale = 5
)

func cloneQuestions(in []Question) []Question {
	if in == nil {
		return nil
	}
	out := make([]Question, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Choices != nil {
			choices := make([]string, len(out[i].Choices))
			copy(choices, out[i].Choices)
			out[i].Choices = choices
		}
	}
	return out
}
