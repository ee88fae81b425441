package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/stele-indexer/internal/adapter"
	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/pricing"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

// unknownSymbol stands in for tokens whose symbol() reverts
const unknownSymbol = "UNKNOWN"

func (e *Engine) onSteleCreated(ctx context.Context, ac *aggregationContext, ev *events.SteleCreated) error {
	st := &models.Stele{
		ID:             ac.steleID,
		Owner:          ev.Owner.Hex(),
		USDToken:       ev.USDToken.Hex(),
		RewardRatio:    models.DecimalsFromBig(ev.RewardRatio),
		SeedMoney:      models.DecimalFromBig(ev.SeedMoney),
		EntryFee:       models.DecimalFromBig(ev.EntryFee),
		MaxAssets:      models.DecimalFromBig(ev.MaxAssets),
		TotalRewardUSD: decimal.Zero,
	}

	prev, exists, err := ac.Stele(ctx)
	if err != nil {
		return err
	}
	if exists {
		logging.FromContext(ctx).Warn("Stele already created, replacing its configuration")
		st.ChallengeCounter = prev.ChallengeCounter
		st.InvestorCounter = prev.InvestorCounter
		st.TotalRewardUSD = prev.TotalRewardUSD
	}
	ac.setStele(st)

	if _, ok, err := ac.ActiveChallenges(ctx); err != nil {
		return err
	} else if !ok {
		ac.setActiveChallenges(models.NewActiveChallenges(ac.steleID))
	}

	return e.snapshot(ctx, ac, types.KindStele, ac.steleID, ev.BlockTimestamp)
}

func (e *Engine) onSteleSetting(ctx context.Context, ac *aggregationContext, ev events.Event) error {
	st, ok, err := ac.Stele(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "stele", ac.steleID)
	}

	switch ev := ev.(type) {
	case *events.RewardRatio:
		st.RewardRatio = models.DecimalsFromBig(ev.NewRewardRatio)
	case *events.SeedMoney:
		st.SeedMoney = models.DecimalFromBig(ev.NewSeedMoney)
	case *events.EntryFee:
		st.EntryFee = models.DecimalFromBig(ev.NewEntryFee)
	case *events.MaxAssets:
		st.MaxAssets = models.DecimalFromBig(ev.NewMaxAssets)
	case *events.OwnershipTransferred:
		st.Owner = ev.NewOwner.Hex()
	}
	ac.markStele()

	return e.snapshot(ctx, ac, types.KindStele, ac.steleID, ev.EventMeta().BlockTimestamp)
}

// onAddToken admits a token once its decimals are known, or re-enables a known one
func (e *Engine) onAddToken(ctx context.Context, ac *aggregationContext, ev *events.AddToken) error {
	id := ev.TokenAddress.Hex()
	tok, ok, err := ac.tx.LoadToken(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		dec, err := e.decimalsOf(ctx, ev.TokenAddress)
		if err != nil {
			return err
		}
		symbol, err := e.reader.Symbol(ctx, ev.TokenAddress)
		if err != nil {
			if err := e.tolerate(ctx, readFailure("symbol", ev.TokenAddress, err)); err != nil {
				return err
			}
			symbol = unknownSymbol
		}
		tok = &models.Token{ID: id, Symbol: symbol, Decimals: dec}
	}

	tok.IsInvestable = true
	tok.UpdatedTimestamp = ev.BlockTimestamp
	if err := ac.tx.SaveToken(ctx, tok); err != nil {
		return err
	}
	ac.touch(storage.KindToken, id)
	return nil
}

func (e *Engine) onRemoveToken(ctx context.Context, ac *aggregationContext, ev *events.RemoveToken) error {
	id := ev.TokenAddress.Hex()
	tok, ok, err := ac.tx.LoadToken(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "token", id)
	}
	tok.IsInvestable = false
	tok.UpdatedTimestamp = ev.BlockTimestamp
	if err := ac.tx.SaveToken(ctx, tok); err != nil {
		return err
	}
	ac.touch(storage.KindToken, id)
	return nil
}

func (e *Engine) onCreate(ctx context.Context, ac *aggregationContext, ev *events.Create) error {
	id := ev.ChallengeID.String()
	ct := types.ChallengeType(ev.ChallengeType)

	if _, exists, err := ac.tx.LoadChallenge(ctx, id); err != nil {
		return err
	} else if exists {
		logging.FromContext(ctx).WithField("challenge", id).Warn("Challenge already created, keeping first observation")
		return nil
	}
	if !ct.Valid() {
		if err := e.tolerate(ctx, apperrors.NewUnknownEnumerationError("challenge type", ev.ChallengeType)); err != nil {
			return err
		}
	}

	st, ok, err := ac.Stele(ctx)
	if err != nil {
		return err
	}
	if ok {
		st.ChallengeCounter++
		ac.markStele()
		if err := e.snapshot(ctx, ac, types.KindStele, ac.steleID, ev.BlockTimestamp); err != nil {
			return err
		}
	} else if err := e.tolerate(ctx, apperrors.NewMissingParentError(ev.EventName(), "stele", ac.steleID)); err != nil {
		return err
	}

	c := models.NewChallenge(id, ct, ev.BlockTimestamp, models.DecimalFromBig(ev.SeedMoney), models.DecimalFromBig(ev.EntryFee))
	if err := ac.tx.SaveChallenge(ctx, c); err != nil {
		return err
	}
	ac.touch(storage.KindChallenge, id)
	if err := e.snapshot(ctx, ac, types.KindChallenge, id, ev.BlockTimestamp); err != nil {
		return err
	}

	active, ok, err := ac.ActiveChallenges(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "active challenges", ac.steleID)
	}
	if active.Reset(ct, id, ev.BlockTimestamp) {
		ac.markActive()
	}
	return nil
}

func (e *Engine) onJoin(ctx context.Context, ac *aggregationContext, ev *events.Join) error {
	challengeID := ev.ChallengeID.String()
	ts := ev.BlockTimestamp

	st, steleOK, err := ac.Stele(ctx)
	if err != nil {
		return err
	}
	if steleOK {
		st.InvestorCounter++
		ac.markStele()
		if err := e.snapshot(ctx, ac, types.KindStele, ac.steleID, ts); err != nil {
			return err
		}
	} else if err := e.tolerate(ctx, apperrors.NewMissingParentError(ev.EventName(), "stele", ac.steleID)); err != nil {
		return err
	}

	c, ok, err := ac.tx.LoadChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "challenge", challengeID)
	}
	c.InvestorCounter++
	c.RewardAmountUSD = c.RewardAmountUSD.Add(c.EntryFee)
	if err := ac.tx.SaveChallenge(ctx, c); err != nil {
		return err
	}
	ac.touch(storage.KindChallenge, challengeID)
	if err := e.snapshot(ctx, ac, types.KindChallenge, challengeID, ts); err != nil {
		return err
	}

	seed := models.DecimalFromBig(ev.SeedMoney)
	inv := &models.Investor{
		ID:                 models.InvestorID(challengeID, ev.User),
		ChallengeID:        challengeID,
		Investor:           ev.User.Hex(),
		CreatedAtTimestamp: ts,
		UpdatedAtTimestamp: ts,
		SeedMoneyUSD:       seed,
		Tokens:             []string{},
		TokensAmount:       []decimal.Decimal{},
	}
	if steleOK {
		usd := common.HexToAddress(st.USDToken)
		amount := decimal.Zero
		dec, err := e.decimalsOf(ctx, usd)
		if err != nil {
			if err := e.tolerate(ctx, err); err != nil {
				return err
			}
		} else {
			amount = seed.Shift(int32(dec))
		}
		inv.Tokens = []string{usd.Hex()}
		inv.TokensAmount = []decimal.Decimal{amount}
	}
	inv.Revalue(decimal.Zero)
	if err := ac.tx.SaveInvestor(ctx, inv); err != nil {
		return err
	}
	ac.touch(storage.KindInvestor, inv.ID)
	if err := e.snapshot(ctx, ac, types.KindInvestor, inv.ID, ts); err != nil {
		return err
	}

	active, ok, err := ac.ActiveChallenges(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "active challenges", ac.steleID)
	}
	if !active.RecordJoin(c.ChallengeType, c.EntryFee) {
		return apperrors.NewUnknownEnumerationError("challenge type", uint8(c.ChallengeType))
	}
	ac.markActive()
	return nil
}

func (e *Engine) onSwap(ctx context.Context, ac *aggregationContext, ev *events.Swap) error {
	challengeID := ev.ChallengeID.String()
	id := models.InvestorID(challengeID, ev.User)

	inv, ok, err := ac.tx.LoadInvestor(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "investor", id)
	}

	portfolio, err := e.reader.UserPortfolio(ctx, ev.ChallengeID, ev.User)
	if err != nil {
		return readFailure("getUserPortfolio", e.stele, err)
	}

	tokens, amounts, value, err := e.valuePortfolio(ctx, portfolio)
	if err != nil {
		return err
	}
	inv.Tokens = tokens
	inv.TokensAmount = amounts
	inv.UpdatedAtTimestamp = ev.BlockTimestamp
	inv.Revalue(value)
	if err := ac.tx.SaveInvestor(ctx, inv); err != nil {
		return err
	}
	ac.touch(storage.KindInvestor, id)
	return e.snapshot(ctx, ac, types.KindInvestor, id, ev.BlockTimestamp)
}

// valuePortfolio normalizes each holding by its decimals and sums the USD
// value of the holdings that have a price. Unpriced or undecimaled tokens
// contribute zero.
func (e *Engine) valuePortfolio(ctx context.Context, p *adapter.Portfolio) ([]string, []decimal.Decimal, decimal.Decimal, error) {
	logger := logging.FromContext(ctx)
	n := len(p.Tokens)
	if len(p.Amounts) < n {
		n = len(p.Amounts)
	}

	tokens := make([]string, 0, n)
	amounts := make([]decimal.Decimal, 0, n)
	total := decimal.Zero
	var ethUSD *decimal.Decimal

	for i := 0; i < n; i++ {
		token := p.Tokens[i]
		tokens = append(tokens, token.Hex())

		dec, err := e.decimalsOf(ctx, token)
		if err != nil {
			if err := e.tolerate(ctx, err); err != nil {
				return nil, nil, decimal.Zero, err
			}
			amounts = append(amounts, decimal.Zero)
			continue
		}
		amount := pricing.NormalizeAmount(p.Amounts[i], dec)
		amounts = append(amounts, amount)
		if amount.IsZero() {
			continue
		}

		priceETH, ok := e.prices.TokenPriceInETH(ctx, token)
		if !ok {
			logger.WithField("token", token.Hex()).Warn("No price for token, excluding it from valuation")
			continue
		}
		if ethUSD == nil {
			v := e.prices.ETHPriceInUSD(ctx)
			ethUSD = &v
		}
		total = total.Add(amount.Mul(priceETH).Mul(*ethUSD))
	}
	return tokens, amounts, total, nil
}

// onReward closes the paid challenge's slot. The reward amount stays in the
// raw event log only.
func (e *Engine) onReward(ctx context.Context, ac *aggregationContext, ev *events.Reward) error {
	challengeID := ev.ChallengeID.String()
	c, ok, err := ac.tx.LoadChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "challenge", challengeID)
	}

	active, ok, err := ac.ActiveChallenges(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "active challenges", ac.steleID)
	}
	if !active.Complete(c.ChallengeType) {
		return apperrors.NewUnknownEnumerationError("challenge type", uint8(c.ChallengeType))
	}
	ac.markActive()
	return nil
}
