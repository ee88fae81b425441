// Package models provides the aggregate entities maintained by the stele indexer.
package models

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/stele-indexer/internal/types"
)

var hundred = decimal.NewFromInt(100)

// GovernanceConfig is the governor's mutable configuration, keyed by contract address
type GovernanceConfig struct {
	ID                   string          `json:"id"`
	VotingDelay          decimal.Decimal `json:"votingDelay"`
	VotingPeriod         decimal.Decimal `json:"votingPeriod"`
	ProposalThreshold    decimal.Decimal `json:"proposalThreshold"`
	QuorumNumerator      decimal.Decimal `json:"quorumNumerator"`
	Timelock             string          `json:"timelock"`
	LastUpdatedBlock     uint64          `json:"lastUpdatedBlock"`
	LastUpdatedTimestamp uint64          `json:"lastUpdatedTimestamp"`
}

// NewGovernanceConfig returns a zero-valued config for the governor at address
func NewGovernanceConfig(address common.Address) *GovernanceConfig {
	return &GovernanceConfig{
		ID:                address.Hex(),
		VotingDelay:       decimal.Zero,
		VotingPeriod:      decimal.Zero,
		ProposalThreshold: decimal.Zero,
		QuorumNumerator:   decimal.Zero,
		Timelock:          common.Address{}.Hex(),
	}
}

// Touch stamps the block that last changed the config
func (g *GovernanceConfig) Touch(block, timestamp uint64) {
	g.LastUpdatedBlock = block
	g.LastUpdatedTimestamp = timestamp
}

// Proposal is a governance proposal keyed by its decimal proposal id
type Proposal struct {
	ID               string               `json:"id"`
	Proposer         string               `json:"proposer"`
	Targets          []string             `json:"targets"`
	Values           []decimal.Decimal    `json:"values"`
	Signatures       []string             `json:"signatures"`
	Calldatas        []string             `json:"calldatas"`
	VoteStart        uint64               `json:"voteStart"`
	VoteEnd          uint64               `json:"voteEnd"`
	Description      string               `json:"description"`
	Status           types.ProposalStatus `json:"status"`
	CreatedAt        uint64               `json:"createdAt"`
	CreatedAtBlock   uint64               `json:"createdAtBlock"`
	QueuedAt         *uint64              `json:"queuedAt,omitempty"`
	ExecutedAt       *uint64              `json:"executedAt,omitempty"`
	CanceledAt       *uint64              `json:"canceledAt,omitempty"`
	ETA              *uint64              `json:"eta,omitempty"`
	VoteResult       string               `json:"voteResult,omitempty"`
	LastUpdatedBlock uint64               `json:"lastUpdatedBlock"`
}

// Advance moves the proposal to next if the lifecycle allows it.
// It returns false and leaves the proposal untouched otherwise.
func (p *Proposal) Advance(next types.ProposalStatus, timestamp uint64) bool {
	if !p.Status.CanTransitionTo(next) {
		return false
	}
	p.Status = next
	ts := timestamp
	switch next {
	case types.ProposalQueued:
		p.QueuedAt = &ts
	case types.ProposalExecuted:
		p.ExecutedAt = &ts
	case types.ProposalCanceled:
		p.CanceledAt = &ts
	}
	return true
}

// VoteResult holds the running tallies of a proposal, keyed like the proposal
type VoteResult struct {
	ID                   string          `json:"id"`
	ForVotes             decimal.Decimal `json:"forVotes"`
	AgainstVotes         decimal.Decimal `json:"againstVotes"`
	AbstainVotes         decimal.Decimal `json:"abstainVotes"`
	TotalVotes           decimal.Decimal `json:"totalVotes"`
	ForPercentage        decimal.Decimal `json:"forPercentage"`
	AgainstPercentage    decimal.Decimal `json:"againstPercentage"`
	AbstainPercentage    decimal.Decimal `json:"abstainPercentage"`
	VoterCount           uint64          `json:"voterCount"`
	IsFinalized          bool            `json:"isFinalized"`
	LastUpdatedBlock     uint64          `json:"lastUpdatedBlock"`
	LastUpdatedTimestamp uint64          `json:"lastUpdatedTimestamp"`
}

// NewVoteResult returns an empty tally for proposalID
func NewVoteResult(proposalID string) *VoteResult {
	return &VoteResult{
		ID:                proposalID,
		ForVotes:          decimal.Zero,
		AgainstVotes:      decimal.Zero,
		AbstainVotes:      decimal.Zero,
		TotalVotes:        decimal.Zero,
		ForPercentage:     decimal.Zero,
		AgainstPercentage: decimal.Zero,
		AbstainPercentage: decimal.Zero,
	}
}

// ApplyVote adds weight to the bucket selected by support and counts the cast.
// Unknown support codes leave the tallies alone but still count as a cast.
// It reports whether a tally bucket matched.
func (v *VoteResult) ApplyVote(support types.VoteSupport, weight decimal.Decimal) bool {
	matched := true
	switch support {
	case types.SupportAgainst:
		v.AgainstVotes = v.AgainstVotes.Add(weight)
	case types.SupportFor:
		v.ForVotes = v.ForVotes.Add(weight)
	case types.SupportAbstain:
		v.AbstainVotes = v.AbstainVotes.Add(weight)
	default:
		matched = false
	}
	v.VoterCount++
	v.Recompute()
	return matched
}

// Recompute derives the total and the three percentages from the tallies
func (v *VoteResult) Recompute() {
	v.TotalVotes = v.ForVotes.Add(v.AgainstVotes).Add(v.AbstainVotes)
	if !v.TotalVotes.IsPositive() {
		v.ForPercentage = decimal.Zero
		v.AgainstPercentage = decimal.Zero
		v.AbstainPercentage = decimal.Zero
		return
	}
	v.ForPercentage = percentOf(v.ForVotes, v.TotalVotes)
	v.AgainstPercentage = percentOf(v.AgainstVotes, v.TotalVotes)
	v.AbstainPercentage = percentOf(v.AbstainVotes, v.TotalVotes)
}

func percentOf(part, total decimal.Decimal) decimal.Decimal {
	return part.Mul(hundred).DivRound(total, 18)
}

// Finalize marks the tally closed. Calling it again is harmless.
func (v *VoteResult) Finalize() {
	v.IsFinalized = true
}

// Touch stamps the block that last changed the tally
func (v *VoteResult) Touch(block, timestamp uint64) {
	v.LastUpdatedBlock = block
	v.LastUpdatedTimestamp = timestamp
}

// Vote is a single cast, keyed by proposal id and voter
type Vote struct {
	ID              string            `json:"id"`
	ProposalID      string            `json:"proposalId"`
	Voter           string            `json:"voter"`
	Support         types.VoteSupport `json:"support"`
	Weight          decimal.Decimal   `json:"weight"`
	Reason          string            `json:"reason"`
	Params          string            `json:"params,omitempty"`
	BlockNumber     uint64            `json:"blockNumber"`
	BlockTimestamp  uint64            `json:"blockTimestamp"`
	TransactionHash string            `json:"transactionHash"`
}

// ProposalKey renders a proposal id as its entity key
func ProposalKey(id *big.Int) string {
	if id == nil {
		return "0"
	}
	return id.String()
}

// VoteID returns the key of voter's cast on proposalID
func VoteID(proposalID string, voter common.Address) string {
	return proposalID + "-" + strings.ToLower(voter.Hex())
}

// DecimalFromBig converts an on-chain integer to a decimal, nil as zero
func DecimalFromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

// DecimalsFromBig converts a slice of on-chain integers
func DecimalsFromBig(vs []*big.Int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = DecimalFromBig(v)
	}
	return out
}
