// Package proof classifies proof submissions and matches reward keys in
// free-form text. Everything here is pure.
package proof

import (
	"strings"

	"github.com/spec-kit/access-ticket-bot/internal/domain"
)

// DefaultFirstStagePhrase is the literal every first-stage proof must contain.
const DefaultFirstStagePhrase = "RASH TECH"

// Outcome is the gate's classification of a submission.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejectedKeyword
	OutcomeRejectedAttachment
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejectedKeyword:
		return "rejected_keyword"
	case OutcomeRejectedAttachment:
		return "rejected_attachment"
	default:
		return "unknown"
	}
}

// Submission is the input to Verify.
type Submission struct {
	Text          string
	HasAttachment bool
	RewardKey     string
	TwoStage      bool
	State         domain.TicketState
}

// Result is the output of Verify. Stage is set when accepted; Required names
// the missing phrases when the keyword check failed.
type Result struct {
	Outcome  Outcome
	Stage    domain.ProofStage
	Required []string
}

// Accepted reports whether the submission passed.
func (r Result) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}

// Gate holds the configured first-stage phrase.
type Gate struct {
	firstStage string
}

// NewGate returns a gate requiring phrase for first-stage proofs. An empty
// phrase falls back to DefaultFirstStagePhrase.
func NewGate(phrase string) Gate {
	phrase = strings.ToUpper(strings.TrimSpace(phrase))
	if phrase == "" {
		phrase = DefaultFirstStagePhrase
	}
	return Gate{firstStage: phrase}
}

// FirstStagePhrase returns the normalized first-stage phrase.
func (g Gate) FirstStagePhrase() string {
	return g.firstStage
}

// SecondStagePhrase returns "<KEY> KEY" for a reward key.
func SecondStagePhrase(rewardKey string) string {
	return strings.ToUpper(strings.TrimSpace(rewardKey)) + " KEY"
}

// Verify classifies a submission. Matching is substring containment on the
// upper-cased text.
//
// The attachment check runs first. A two-stage key in
// AwaitingSecondStepProof whose text carries "<KEY> KEY" is accepted as the
// final stage. Otherwise the first-stage phrase routes to operator review.
func (g Gate) Verify(s Submission) Result {
	if !s.HasAttachment {
		return Result{Outcome: OutcomeRejectedAttachment}
	}

	text := strings.ToUpper(s.Text)
	second := SecondStagePhrase(s.RewardKey)

	if s.TwoStage && s.State == domain.TicketStateAwaitingSecondStepProof && strings.Contains(text, second) {
		return Result{Outcome: OutcomeAccepted, Stage: domain.ProofStageSecond}
	}
	if strings.Contains(text, g.firstStage) {
		return Result{Outcome: OutcomeAccepted, Stage: domain.ProofStageFirst}
	}

	required := []string{g.firstStage}
	if s.TwoStage {
		if s.State == domain.TicketStateAwaitingSecondStepProof {
			required = []string{second}
		} else {
			required = append(required, second)
		}
	}
	return Result{Outcome: OutcomeRejectedKeyword, Required: required}
}
