package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SteleSnapshot is the stele singleton as first observed on a given day
type SteleSnapshot struct {
	ID               string            `json:"id"`
	Date             uint64            `json:"date"`
	Owner            string            `json:"owner"`
	RewardRatio      []decimal.Decimal `json:"rewardRatio"`
	SeedMoney        decimal.Decimal   `json:"seedMoney"`
	EntryFee         decimal.Decimal   `json:"entryFee"`
	MaxAssets        decimal.Decimal   `json:"maxAssets"`
	ChallengeCounter uint64            `json:"challengeCounter"`
	InvestorCounter  uint64            `json:"investorCounter"`
	TotalRewardUSD   decimal.Decimal   `json:"totalRewardUSD"`
}

// NewSteleSnapshot copies s into the bucket for day
func NewSteleSnapshot(s *Stele, day uint64) *SteleSnapshot {
	return &SteleSnapshot{
		ID:               fmt.Sprintf("%d", day),
		Date:             day,
		Owner:            s.Owner,
		RewardRatio:      append([]decimal.Decimal(nil), s.RewardRatio...),
		SeedMoney:        s.SeedMoney,
		EntryFee:         s.EntryFee,
		MaxAssets:        s.MaxAssets,
		ChallengeCounter: s.ChallengeCounter,
		InvestorCounter:  s.InvestorCounter,
		TotalRewardUSD:   s.TotalRewardUSD,
	}
}

// ChallengeSnapshot is a challenge as first observed on a given day
type ChallengeSnapshot struct {
	ID              string            `json:"id"`
	ChallengeID     string            `json:"challengeId"`
	Date            uint64            `json:"date"`
	Timestamp       uint64            `json:"timestamp"`
	InvestorCount   uint64            `json:"investorCount"`
	RewardAmountUSD decimal.Decimal   `json:"rewardAmountUSD"`
	IsActive        bool              `json:"isActive"`
	TopUsers        []string          `json:"topUsers"`
	Score           []decimal.Decimal `json:"score"`
}

// NewChallengeSnapshot copies c into the bucket for day
func NewChallengeSnapshot(c *Challenge, day, timestamp uint64) *ChallengeSnapshot {
	return &ChallengeSnapshot{
		ID:              SnapshotKey(c.ID, day),
		ChallengeID:     c.ID,
		Date:            day,
		Timestamp:       timestamp,
		InvestorCount:   c.InvestorCounter,
		RewardAmountUSD: c.RewardAmountUSD,
		IsActive:        c.IsActive,
		TopUsers:        append([]string(nil), c.TopUsers...),
		Score:           append([]decimal.Decimal(nil), c.Score...),
	}
}

// InvestorSnapshot is an investor as first observed on a given day
type InvestorSnapshot struct {
	ID           string            `json:"id"`
	InvestorID   string            `json:"investorId"`
	ChallengeID  string            `json:"challengeId"`
	Investor     string            `json:"investor"`
	Date         uint64            `json:"date"`
	Timestamp    uint64            `json:"timestamp"`
	SeedMoneyUSD decimal.Decimal   `json:"seedMoneyUSD"`
	CurrentUSD   decimal.Decimal   `json:"currentUSD"`
	Tokens       []string          `json:"tokens"`
	TokensAmount []decimal.Decimal `json:"tokensAmount"`
	ProfitUSD    decimal.Decimal   `json:"profitUSD"`
	ProfitRatio  decimal.Decimal   `json:"profitRatio"`
}

// NewInvestorSnapshot copies i into the bucket for day
func NewInvestorSnapshot(i *Investor, day, timestamp uint64) *InvestorSnapshot {
	return &InvestorSnapshot{
		ID:           SnapshotKey(i.ID, day),
		InvestorID:   i.ID,
		ChallengeID:  i.ChallengeID,
		Investor:     i.Investor,
		Date:         day,
		Timestamp:    timestamp,
		SeedMoneyUSD: i.SeedMoneyUSD,
		CurrentUSD:   i.CurrentUSD,
		Tokens:       append([]string(nil), i.Tokens...),
		TokensAmount: append([]decimal.Decimal(nil), i.TokensAmount...),
		ProfitUSD:    i.ProfitUSD,
		ProfitRatio:  i.ProfitRatio,
	}
}

// SnapshotKey joins an entity key with its day bucket
func SnapshotKey(entityKey string, day uint64) string {
	return fmt.Sprintf("%s-%d", entityKey, day)
}
