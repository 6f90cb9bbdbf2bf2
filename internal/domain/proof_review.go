package domain

import "time"

// ProofStage distinguishes the initial proof from the final proof of a
// two-stage reward.
type ProofStage int

const (
	ProofStageFirst  ProofStage = 1
	ProofStageSecond ProofStage = 2
)

func (s ProofStage) String() string {
	if s == ProofStageSecond {
		return "SECOND"
	}
	return "FIRST"
}

// ProofDecision is an operator's verdict on a review.
type ProofDecision string

const (
	ProofDecisionPending  ProofDecision = "PENDING"
	ProofDecisionApproved ProofDecision = "APPROVED"
	ProofDecisionDenied   ProofDecision = "DENIED"
)

// ProofReview is a first-stage proof queued for an operator.
type ProofReview struct {
	ID            string
	TicketID      string
	UserID        string
	RewardKey     string
	Stage         ProofStage
	SubmittedText string
	AttachmentURL string
	SubmittedAt   time.Time

	// PromptChannelID and PromptMessageID locate the operator prompt so its
	// buttons can be disabled after the decision.
	PromptChannelID string
	PromptMessageID string

	Decision    ProofDecision
	DecidedByID string
	DecidedAt   *time.Time
}

// Decided reports whether the one-shot decision has been taken.
func (r *ProofReview) Decided() bool {
	return r.Decision == ProofDecisionApproved || r.Decision == ProofDecisionDenied
}

// Decide records the first decision and returns true. Later calls leave the
// review untouched and return false.
func (r *ProofReview) Decide(approve bool, operatorID string, at time.Time) bool {
	if r.Decided() {
		return false
	}
	r.Decision = ProofDecisionDenied
	if approve {
		r.Decision = ProofDecisionApproved
	}
	r.DecidedByID = operatorID
	r.DecidedAt = &at
	return true
}
