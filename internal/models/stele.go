package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/stele-indexer/internal/types"
)

// Stele is the challenge contract's configuration singleton, keyed by contract address
type Stele struct {
	ID               string            `json:"id"`
	Owner            string            `json:"owner"`
	USDToken         string            `json:"usdToken"`
	RewardRatio      []decimal.Decimal `json:"rewardRatio"`
	SeedMoney        decimal.Decimal   `json:"seedMoney"`
	EntryFee         decimal.Decimal   `json:"entryFee"`
	MaxAssets        decimal.Decimal   `json:"maxAssets"`
	ChallengeCounter uint64            `json:"challengeCounter"`
	InvestorCounter  uint64            `json:"investorCounter"`
	TotalRewardUSD   decimal.Decimal   `json:"totalRewardUSD"`
}

// Challenge is one trading challenge, keyed by its decimal challenge id
type Challenge struct {
	ID              string              `json:"id"`
	ChallengeType   types.ChallengeType `json:"challengeType"`
	StartTime       uint64              `json:"startTime"`
	EndTime         uint64              `json:"endTime"`
	InvestorCounter uint64              `json:"investorCounter"`
	SeedMoney       decimal.Decimal     `json:"seedMoney"`
	EntryFee        decimal.Decimal     `json:"entryFee"`
	RewardAmountUSD decimal.Decimal     `json:"rewardAmountUSD"`
	IsActive        bool                `json:"isActive"`
	TopUsers        []string            `json:"topUsers"`
	Score           []decimal.Decimal   `json:"score"`
}

// NewChallenge allocates a challenge starting at startTime.
// The end time is derived from the type, so unknown types end when they start.
func NewChallenge(id string, challengeType types.ChallengeType, startTime uint64, seedMoney, entryFee decimal.Decimal) *Challenge {
	return &Challenge{
		ID:              id,
		ChallengeType:   challengeType,
		StartTime:       startTime,
		EndTime:         startTime + challengeType.Duration(),
		SeedMoney:       seedMoney,
		EntryFee:        entryFee,
		RewardAmountUSD: decimal.Zero,
		IsActive:        true,
		TopUsers:        []string{},
		Score:           []decimal.Decimal{},
	}
}

// ActiveSlot tracks the current or most recent challenge of one type
type ActiveSlot struct {
	ChallengeID     string          `json:"challengeId"`
	StartTime       uint64          `json:"startTime"`
	InvestorCounter uint64          `json:"investorCounter"`
	RewardAmountUSD decimal.Decimal `json:"rewardAmountUSD"`
	IsCompleted     bool            `json:"isCompleted"`
}

// ActiveChallenges holds exactly one slot per challenge type
type ActiveChallenges struct {
	ID    string                              `json:"id"`
	Slots map[types.ChallengeType]*ActiveSlot `json:"slots"`
}

// NewActiveChallenges returns the initial state: every slot empty and completed
func NewActiveChallenges(id string) *ActiveChallenges {
	ac := &ActiveChallenges{ID: id, Slots: make(map[types.ChallengeType]*ActiveSlot, len(types.AllChallengeTypes))}
	for _, t := range types.AllChallengeTypes {
		ac.Slots[t] = &ActiveSlot{ChallengeID: "0", RewardAmountUSD: decimal.Zero, IsCompleted: true}
	}
	return ac
}

// Slot returns the slot for t, nil for unknown types
func (a *ActiveChallenges) Slot(t types.ChallengeType) *ActiveSlot {
	if !t.Valid() {
		return nil
	}
	slot, ok := a.Slots[t]
	if !ok {
		slot = &ActiveSlot{ChallengeID: "0", RewardAmountUSD: decimal.Zero, IsCompleted: true}
		a.Slots[t] = slot
	}
	return slot
}

// Reset overwrites the slot for t with a freshly created challenge
func (a *ActiveChallenges) Reset(t types.ChallengeType, challengeID string, startTime uint64) bool {
	slot := a.Slot(t)
	if slot == nil {
		return false
	}
	*slot = ActiveSlot{ChallengeID: challengeID, StartTime: startTime, RewardAmountUSD: decimal.Zero}
	return true
}

// RecordJoin counts a new investor in the slot for t and grows its reward pool
func (a *ActiveChallenges) RecordJoin(t types.ChallengeType, entryFee decimal.Decimal) bool {
	slot := a.Slot(t)
	if slot == nil {
		return false
	}
	slot.InvestorCounter++
	slot.RewardAmountUSD = slot.RewardAmountUSD.Add(entryFee)
	return true
}

// Complete marks the slot for t as finished
func (a *ActiveChallenges) Complete(t types.ChallengeType) bool {
	slot := a.Slot(t)
	if slot == nil {
		return false
	}
	slot.IsCompleted = true
	return true
}

// Investor is one participant of a challenge
type Investor struct {
	ID                 string            `json:"id"`
	ChallengeID        string            `json:"challengeId"`
	Investor           string            `json:"investor"`
	CreatedAtTimestamp uint64            `json:"createdAtTimestamp"`
	UpdatedAtTimestamp uint64            `json:"updatedAtTimestamp"`
	SeedMoneyUSD       decimal.Decimal   `json:"seedMoneyUSD"`
	CurrentUSD         decimal.Decimal   `json:"currentUSD"`
	Tokens             []string          `json:"tokens"`
	TokensAmount       []decimal.Decimal `json:"tokensAmount"`
	ProfitUSD          decimal.Decimal   `json:"profitUSD"`
	ProfitRatio        decimal.Decimal   `json:"profitRatio"`
}

// InvestorID returns the key of user's participation in challengeID
func InvestorID(challengeID string, user common.Address) string {
	return challengeID + "-" + strings.ToUpper(user.Hex())
}

// Revalue sets the current valuation and recomputes the profit fields.
// The ratio is zero when there is no seed money to divide by.
func (i *Investor) Revalue(currentUSD decimal.Decimal) {
	i.CurrentUSD = currentUSD
	i.ProfitUSD = currentUSD.Sub(i.SeedMoneyUSD)
	if i.SeedMoneyUSD.IsZero() {
		i.ProfitRatio = decimal.Zero
		return
	}
	i.ProfitRatio = i.ProfitUSD.DivRound(i.SeedMoneyUSD, 18)
}

// Token is an asset the challenge contract knows about, keyed by address
type Token struct {
	ID               string `json:"id"`
	Symbol           string `json:"symbol"`
	Decimals         uint8  `json:"decimals"`
	IsInvestable     bool   `json:"isInvestable"`
	UpdatedTimestamp uint64 `json:"updatedTimestamp"`
}
