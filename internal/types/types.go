// Package types provides common type definitions for the stele indexer.
package types

import "fmt"

// SecondsPerDay is the width of a snapshot bucket
const SecondsPerDay = 86400

// ProposalStatus represents the lifecycle state of a governance proposal
type ProposalStatus string

const (
	// ProposalPending represents a proposal whose voting window has not opened yet
	ProposalPending ProposalStatus = "PENDING"
	// ProposalActive represents a proposal whose voting window is open
	ProposalActive ProposalStatus = "ACTIVE"
	// ProposalQueued represents a proposal queued in the timelock
	ProposalQueued ProposalStatus = "QUEUED"
	// ProposalExecuted represents an executed proposal
	ProposalExecuted ProposalStatus = "EXECUTED"
	// ProposalCanceled represents a canceled proposal
	ProposalCanceled ProposalStatus = "CANCELED"
)

// IsTerminal reports whether no further transitions are allowed
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalExecuted || s == ProposalCanceled
}

// CanTransitionTo reports whether moving from s to next keeps the status monotonic.
// PENDING|ACTIVE -> QUEUED -> EXECUTED, and CANCELED from any non-terminal state.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case ProposalCanceled:
		return true
	case ProposalQueued:
		return s == ProposalPending || s == ProposalActive
	case ProposalExecuted:
		return s == ProposalQueued
	default:
		return false
	}
}

// InitialProposalStatus returns PENDING when voting starts after creation, ACTIVE otherwise
func InitialProposalStatus(voteStart, createdAt uint64) ProposalStatus {
	if createdAt < voteStart {
		return ProposalPending
	}
	return ProposalActive
}

// ChallengeType is the fixed set of challenge lengths offered by the stele contract
type ChallengeType uint8

const (
	OneWeek ChallengeType = iota
	OneMonth
	ThreeMonths
	SixMonths
	OneYear
)

// AllChallengeTypes lists every known challenge type in contract order
var AllChallengeTypes = []ChallengeType{OneWeek, OneMonth, ThreeMonths, SixMonths, OneYear}

// Valid reports whether t is one of the known challenge types
func (t ChallengeType) Valid() bool {
	return t <= OneYear
}

// Duration returns the challenge length in seconds, 0 for unknown types
func (t ChallengeType) Duration() uint64 {
	switch t {
	case OneWeek:
		return 7 * SecondsPerDay
	case OneMonth:
		return 30 * SecondsPerDay
	case ThreeMonths:
		return 90 * SecondsPerDay
	case SixMonths:
		return 180 * SecondsPerDay
	case OneYear:
		return 365 * SecondsPerDay
	default:
		return 0
	}
}

func (t ChallengeType) String() string {
	switch t {
	case OneWeek:
		return "one_week"
	case OneMonth:
		return "one_month"
	case ThreeMonths:
		return "three_month"
	case SixMonths:
		return "six_month"
	case OneYear:
		return "one_year"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// VoteSupport is the governor's support code carried by vote events
type VoteSupport uint8

const (
	SupportAgainst VoteSupport = 0
	SupportFor     VoteSupport = 1
	SupportAbstain VoteSupport = 2
)

func (s VoteSupport) String() string {
	switch s {
	case SupportAgainst:
		return "against"
	case SupportFor:
		return "for"
	case SupportAbstain:
		return "abstain"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// EntityKind names the aggregates that receive daily snapshots
type EntityKind string

const (
	KindStele     EntityKind = "stele"
	KindChallenge EntityKind = "challenge"
	KindInvestor  EntityKind = "investor"
)

// DayBucket returns the snapshot bucket for a block timestamp
func DayBucket(timestamp uint64) uint64 {
	return timestamp / SecondsPerDay
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
