package receipt

import (
	"encoding/json"
	"strings"
)

// MinConfidence is the lowest extraction confidence that can pass without review
const MinConfidence = 0.70

// Hold reasons
const (
	HoldReasonLowConfidence   = "Low confidence extraction"
	HoldReasonInvalidTotal    = "Invalid total amount"
	HoldReasonMissingFields   = "Missing required fields"
	HoldReasonTaxExceedsTotal = "Tax exceeds total"
	HoldReasonUnsupportedKind = "Unsupported document kind"
)

// Outcome is the evaluator verdict
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeHold Outcome = "HOLD"
)

// Question asks a reviewer to confirm or supply one field
type Question struct {
	Field  string `json:"field"`
	Prompt string `json:"prompt"`
}

// Decision is the result of evaluating an extraction
type Decision struct {
	Outcome   Outcome    `json:"outcome"`
	Reason    string     `json:"reason,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

// IsHold returns true if the document must be reviewed before posting
func (d Decision) IsHold() bool {
	return d.Outcome == OutcomeHold
}

// QuestionsJSON encodes the questions for transport
func (d Decision) QuestionsJSON() string {
	if len(d.Questions) == 0 {
		return "[]"
	}
	b, err := json.Marshal(d.Questions)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func pass() Decision {
	return Decision{Outcome: OutcomePass}
}

func hold(reason string, questions ...Question) Decision {
	return Decision{Outcome: OutcomeHold, Reason: reason, Questions: questions}
}

// Evaluate decides whether an extraction is trustworthy enough to post.
// Rules are checked in order and the first match wins.
func Evaluate(doc NormalizedDocument, confidence float64) Decision {
	if confidence < MinConfidence {
		return hold(HoldReasonLowConfidence, lowConfidenceQuestions(doc)...)
	}

	fields, ok := doc.ReceiptFields()
	if !ok {
		return hold(HoldReasonUnsupportedKind, Question{Field: "kind", Prompt: "Is this document a purchase receipt?"})
	}

	if fields.Total == nil || !fields.Total.IsPositive() {
		return hold(HoldReasonInvalidTotal, Question{Field: "total", Prompt: "What is the receipt total including tax?"})
	}

	var missing []Question
	if fields.Date == nil {
		missing = append(missing, Question{Field: "date", Prompt: "What date is on the receipt?"})
	}
	if strings.TrimSpace(fields.Vendor) == "" {
		missing = append(missing, Question{Field: "vendor", Prompt: "Who is the vendor on the receipt?"})
	}
	if len(missing) > 0 {
		return hold(HoldReasonMissingFields, missing...)
	}

	if fields.Tax != nil && fields.Tax.GreaterThan(*fields.Total) {
		return hold(HoldReasonTaxExceedsTotal,
			Question{Field: "tax", Prompt: "What is the GST/HST amount on the receipt?"},
			Question{Field: "total", Prompt: "What is the receipt total including tax?"},
		)
	}

	return pass()
}

func lowConfidenceQuestions(doc NormalizedDocument) []Question {
	questions := []Question{{Field: "document", Prompt: "Please confirm the extracted receipt details."}}
	fields, ok := doc.ReceiptFields()
	if !ok {
		return questions
	}
	if fields.Date == nil {
		questions = append(questions, Question{Field: "date", Prompt: "What date is on the receipt?"})
	}
	if strings.TrimSpace(fields.Vendor) == "" {
		questions = append(questions, Question{Field: "vendor", Prompt: "Who is the vendor on the receipt?"})
	}
	if fields.Total == nil {
		questions = append(questions, Question{Field: "total", Prompt: "What is the receipt total including tax?"})
	}
	if fields.Tax == nil {
		questions = append(questions, Question{Field: "tax", Prompt: "What is the GST/HST amount on the receipt?"})
	}
	return questions
}
