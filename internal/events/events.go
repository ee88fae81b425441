// Package events defines the typed contract events consumed by the engine
// and decodes them from raw logs.
package events

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Meta carries the delivery coordinates every event shares
type Meta struct {
	Contract       common.Address `json:"-"`
	BlockNumber    uint64         `json:"-"`
	BlockTimestamp uint64         `json:"-"`
	TxHash         common.Hash    `json:"-"`
	LogIndex       uint           `json:"-"`
}

// EventMeta exposes the coordinates through the Event interface
func (m *Meta) EventMeta() *Meta { return m }

// Key is the raw event key: the transaction hash followed by the
// four little-endian bytes of the log index, hex encoded.
func (m *Meta) Key() string {
	buf := make([]byte, common.HashLength+4)
	copy(buf, m.TxHash.Bytes())
	binary.LittleEndian.PutUint32(buf[common.HashLength:], uint32(int32(m.LogIndex)))
	return hexutil.Encode(buf)
}

// Event is one decoded contract event
type Event interface {
	EventMeta() *Meta
	EventName() string
}

// Meta is embedded last in every event: abi copies single-argument
// events into the first struct field.

// Governor events

type ProposalCreated struct {
	ProposalID  *big.Int         `abi:"proposalId" json:"proposalId"`
	Proposer    common.Address   `abi:"proposer" json:"proposer"`
	Targets     []common.Address `abi:"targets" json:"targets"`
	Values      []*big.Int       `abi:"values" json:"values"`
	Signatures  []string         `abi:"signatures" json:"signatures"`
	Calldatas   [][]byte         `abi:"calldatas" json:"calldatas"`
	VoteStart   *big.Int         `abi:"voteStart" json:"voteStart"`
	VoteEnd     *big.Int         `abi:"voteEnd" json:"voteEnd"`
	Description string           `abi:"description" json:"description"`
	Meta
}

func (*ProposalCreated) EventName() string { return "ProposalCreated" }

type ProposalCanceled struct {
	ProposalID *big.Int `abi:"proposalId" json:"proposalId"`
	Meta
}

func (*ProposalCanceled) EventName() string { return "ProposalCanceled" }

type ProposalExecuted struct {
	ProposalID *big.Int `abi:"proposalId" json:"proposalId"`
	Meta
}

func (*ProposalExecuted) EventName() string { return "ProposalExecuted" }

type ProposalQueued struct {
	ProposalID *big.Int `abi:"proposalId" json:"proposalId"`
	Eta        *big.Int `abi:"eta" json:"eta"`
	Meta
}

func (*ProposalQueued) EventName() string { return "ProposalQueued" }

type VoteCast struct {
	Voter      common.Address `json:"voter"`
	ProposalID *big.Int       `abi:"proposalId" json:"proposalId"`
	Support    uint8          `abi:"support" json:"support"`
	Weight     *big.Int       `abi:"weight" json:"weight"`
	Reason     string         `abi:"reason" json:"reason"`
	Meta
}

func (*VoteCast) EventName() string { return "VoteCast" }

type VoteCastWithParams struct {
	Voter      common.Address `json:"voter"`
	ProposalID *big.Int       `abi:"proposalId" json:"proposalId"`
	Support    uint8          `abi:"support" json:"support"`
	Weight     *big.Int       `abi:"weight" json:"weight"`
	Reason     string         `abi:"reason" json:"reason"`
	Params     []byte         `abi:"params" json:"params"`
	Meta
}

func (*VoteCastWithParams) EventName() string { return "VoteCastWithParams" }

type ProposalThresholdSet struct {
	OldProposalThreshold *big.Int `abi:"oldProposalThreshold" json:"oldProposalThreshold"`
	NewProposalThreshold *big.Int `abi:"newProposalThreshold" json:"newProposalThreshold"`
	Meta
}

func (*ProposalThresholdSet) EventName() string { return "ProposalThresholdSet" }

type QuorumNumeratorUpdated struct {
	OldQuorumNumerator *big.Int `abi:"oldQuorumNumerator" json:"oldQuorumNumerator"`
	NewQuorumNumerator *big.Int `abi:"newQuorumNumerator" json:"newQuorumNumerator"`
	Meta
}

func (*QuorumNumeratorUpdated) EventName() string { return "QuorumNumeratorUpdated" }

type VotingDelaySet struct {
	OldVotingDelay *big.Int `abi:"oldVotingDelay" json:"oldVotingDelay"`
	NewVotingDelay *big.Int `abi:"newVotingDelay" json:"newVotingDelay"`
	Meta
}

func (*VotingDelaySet) EventName() string { return "VotingDelaySet" }

type VotingPeriodSet struct {
	OldVotingPeriod *big.Int `abi:"oldVotingPeriod" json:"oldVotingPeriod"`
	NewVotingPeriod *big.Int `abi:"newVotingPeriod" json:"newVotingPeriod"`
	Meta
}

func (*VotingPeriodSet) EventName() string { return "VotingPeriodSet" }

type TimelockChange struct {
	OldTimelock common.Address `abi:"oldTimelock" json:"oldTimelock"`
	NewTimelock common.Address `abi:"newTimelock" json:"newTimelock"`
	Meta
}

func (*TimelockChange) EventName() string { return "TimelockChange" }

// Stele events

type SteleCreated struct {
	Owner       common.Address `abi:"owner" json:"owner"`
	USDToken    common.Address `abi:"usdToken" json:"usdToken"`
	MaxAssets   *big.Int       `abi:"maxAssets" json:"maxAssets"`
	SeedMoney   *big.Int       `abi:"seedMoney" json:"seedMoney"`
	EntryFee    *big.Int       `abi:"entryFee" json:"entryFee"`
	RewardRatio []*big.Int     `abi:"rewardRatio" json:"rewardRatio"`
	Meta
}

func (*SteleCreated) EventName() string { return "SteleCreated" }

type AddToken struct {
	TokenAddress common.Address `abi:"tokenAddress" json:"tokenAddress"`
	Meta
}

func (*AddToken) EventName() string { return "AddToken" }

type RemoveToken struct {
	TokenAddress common.Address `abi:"tokenAddress" json:"tokenAddress"`
	Meta
}

func (*RemoveToken) EventName() string { return "RemoveToken" }

type RewardRatio struct {
	NewRewardRatio []*big.Int `abi:"newRewardRatio" json:"newRewardRatio"`
	Meta
}

func (*RewardRatio) EventName() string { return "RewardRatio" }

type SeedMoney struct {
	NewSeedMoney *big.Int `abi:"newSeedMoney" json:"newSeedMoney"`
	Meta
}

func (*SeedMoney) EventName() string { return "SeedMoney" }

type EntryFee struct {
	NewEntryFee *big.Int `abi:"newEntryFee" json:"newEntryFee"`
	Meta
}

func (*EntryFee) EventName() string { return "EntryFee" }

type MaxAssets struct {
	NewMaxAssets *big.Int `abi:"newMaxAssets" json:"newMaxAssets"`
	Meta
}

func (*MaxAssets) EventName() string { return "MaxAssets" }

type OwnershipTransferred struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
	Meta
}

func (*OwnershipTransferred) EventName() string { return "OwnershipTransferred" }

type Create struct {
	ChallengeID   *big.Int `abi:"challengeId" json:"challengeId"`
	ChallengeType uint8    `abi:"challengeType" json:"challengeType"`
	SeedMoney     *big.Int `abi:"seedMoney" json:"seedMoney"`
	EntryFee      *big.Int `abi:"entryFee" json:"entryFee"`
	Meta
}

func (*Create) EventName() string { return "Create" }

type Join struct {
	ChallengeID *big.Int       `abi:"challengeId" json:"challengeId"`
	User        common.Address `abi:"user" json:"user"`
	SeedMoney   *big.Int       `abi:"seedMoney" json:"seedMoney"`
	Meta
}

func (*Join) EventName() string { return "Join" }

type Swap struct {
	ChallengeID *big.Int       `abi:"challengeId" json:"challengeId"`
	User        common.Address `abi:"user" json:"user"`
	FromAsset   common.Address `abi:"fromAsset" json:"fromAsset"`
	ToAsset     common.Address `abi:"toAsset" json:"toAsset"`
	FromAmount  *big.Int       `abi:"fromAmount" json:"fromAmount"`
	ToAmount    *big.Int       `abi:"toAmount" json:"toAmount"`
	Meta
}

func (*Swap) EventName() string { return "Swap" }

type Register struct {
	ChallengeID *big.Int       `abi:"challengeId" json:"challengeId"`
	User        common.Address `abi:"user" json:"user"`
	Performance *big.Int       `abi:"performance" json:"performance"`
	Meta
}

func (*Register) EventName() string { return "Register" }

type Reward struct {
	ChallengeID  *big.Int       `abi:"challengeId" json:"challengeId"`
	User         common.Address `abi:"user" json:"user"`
	RewardAmount *big.Int       `abi:"rewardAmount" json:"rewardAmount"`
	Meta
}

func (*Reward) EventName() string { return "Reward" }
