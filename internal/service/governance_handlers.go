package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/events"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

func (e *Engine) onProposalCreated(ctx context.Context, ac *aggregationContext, ev *events.ProposalCreated) error {
	id := models.ProposalKey(ev.ProposalID)

	p, exists, err := ac.tx.LoadProposal(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		logging.FromContext(ctx).WithField("proposal", id).Info("Proposal already recorded, keeping first observation")
	} else {
		voteStart := toUint64(ev.VoteStart)
		p = &models.Proposal{
			ID:             id,
			Proposer:       ev.Proposer.Hex(),
			Targets:        make([]string, len(ev.Targets)),
			Values:         models.DecimalsFromBig(ev.Values),
			Signatures:     append([]string{}, ev.Signatures...),
			Calldatas:      make([]string, len(ev.Calldatas)),
			VoteStart:      voteStart,
			VoteEnd:        toUint64(ev.VoteEnd),
			Description:    ev.Description,
			Status:         types.InitialProposalStatus(voteStart, ev.BlockTimestamp),
			CreatedAt:      ev.BlockTimestamp,
			CreatedAtBlock: ev.BlockNumber,
		}
		for i, t := range ev.Targets {
			p.Targets[i] = t.Hex()
		}
		for i, c := range ev.Calldatas {
			p.Calldatas[i] = hexutil.Encode(c)
		}
	}

	_, hasResult, err := ac.tx.LoadVoteResult(ctx, id)
	if err != nil {
		return err
	}
	if !hasResult {
		vr := models.NewVoteResult(id)
		vr.Touch(ev.BlockNumber, ev.BlockTimestamp)
		if err := ac.tx.SaveVoteResult(ctx, vr); err != nil {
			return err
		}
		ac.touch(storage.KindVoteResult, id)
	}

	p.VoteResult = id
	p.LastUpdatedBlock = ev.BlockNumber
	if err := ac.tx.SaveProposal(ctx, p); err != nil {
		return err
	}
	ac.touch(storage.KindProposal, id)
	return nil
}

// castVote records the cast and adds it to the proposal's tallies.
// A repeated (proposal, voter) key keeps the first Vote record.
func (e *Engine) castVote(ctx context.Context, ac *aggregationContext, meta *events.Meta, voter common.Address,
	proposalID *big.Int, support uint8, weight *big.Int, reason string, params []byte) error {
	id := models.ProposalKey(proposalID)
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"proposal": id,
		"voter":    voter.Hex(),
	})

	vote := &models.Vote{
		ID:              models.VoteID(id, voter),
		ProposalID:      id,
		Voter:           voter.Hex(),
		Support:         types.VoteSupport(support),
		Weight:          models.DecimalFromBig(weight),
		Reason:          reason,
		BlockNumber:     meta.BlockNumber,
		BlockTimestamp:  meta.BlockTimestamp,
		TransactionHash: meta.TxHash.Hex(),
	}
	if params != nil {
		vote.Params = hexutil.Encode(params)
	}
	created, err := ac.tx.CreateVote(ctx, vote)
	if err != nil {
		return err
	}
	if created {
		ac.touch(storage.KindVote, vote.ID)
	} else {
		logger.Warn("Vote already recorded for voter, keeping first record")
	}

	vr, ok, err := ac.tx.LoadVoteResult(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError("VoteCast", "proposal", id)
	}
	if !vr.ApplyVote(vote.Support, vote.Weight) {
		if err := e.tolerate(ctx, apperrors.NewUnknownEnumerationError("vote support", support)); err != nil {
			return err
		}
	}
	vr.Touch(meta.BlockNumber, meta.BlockTimestamp)
	if err := ac.tx.SaveVoteResult(ctx, vr); err != nil {
		return err
	}
	ac.touch(storage.KindVoteResult, id)

	p, ok, err := ac.tx.LoadProposal(ctx, id)
	if err != nil || !ok {
		return err
	}
	p.VoteResult = vr.ID
	p.LastUpdatedBlock = meta.BlockNumber
	if err := ac.tx.SaveProposal(ctx, p); err != nil {
		return err
	}
	ac.touch(storage.KindProposal, id)
	return nil
}

func (e *Engine) onProposalQueued(ctx context.Context, ac *aggregationContext, ev *events.ProposalQueued) error {
	id := models.ProposalKey(ev.ProposalID)
	p, ok, err := ac.tx.LoadProposal(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "proposal", id)
	}

	from := p.Status
	if !p.Advance(types.ProposalQueued, ev.BlockTimestamp) {
		logRefusedTransition(ctx, id, from, types.ProposalQueued)
		return nil
	}
	eta := toUint64(ev.Eta)
	p.ETA = &eta
	p.LastUpdatedBlock = ev.BlockNumber
	if err := ac.tx.SaveProposal(ctx, p); err != nil {
		return err
	}
	ac.touch(storage.KindProposal, id)
	return nil
}

// closeProposal handles execution and cancellation. The tally is finalized
// even when the status transition is refused.
func (e *Engine) closeProposal(ctx context.Context, ac *aggregationContext, ev events.Event, proposalID *big.Int, status types.ProposalStatus) error {
	id := models.ProposalKey(proposalID)
	meta := ev.EventMeta()

	vr, hasResult, err := ac.tx.LoadVoteResult(ctx, id)
	if err != nil {
		return err
	}
	if hasResult {
		vr.Finalize()
		vr.Touch(meta.BlockNumber, meta.BlockTimestamp)
		if err := ac.tx.SaveVoteResult(ctx, vr); err != nil {
			return err
		}
		ac.touch(storage.KindVoteResult, id)
	}

	p, ok, err := ac.tx.LoadProposal(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewMissingParentError(ev.EventName(), "proposal", id)
	}
	from := p.Status
	if !p.Advance(status, meta.BlockTimestamp) {
		logRefusedTransition(ctx, id, from, status)
		return nil
	}
	p.LastUpdatedBlock = meta.BlockNumber
	if err := ac.tx.SaveProposal(ctx, p); err != nil {
		return err
	}
	ac.touch(storage.KindProposal, id)
	return nil
}

func logRefusedTransition(ctx context.Context, id string, from, to types.ProposalStatus) {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"proposal": id,
		"from":     string(from),
		"to":       string(to),
	}).Warn("Ignoring proposal status transition")
}

func (e *Engine) onGovernanceSetting(ctx context.Context, ac *aggregationContext, ev events.Event) error {
	g, err := ac.Governance(ctx)
	if err != nil {
		return err
	}

	switch ev := ev.(type) {
	case *events.ProposalThresholdSet:
		g.ProposalThreshold = models.DecimalFromBig(ev.NewProposalThreshold)
	case *events.QuorumNumeratorUpdated:
		g.QuorumNumerator = models.DecimalFromBig(ev.NewQuorumNumerator)
	case *events.VotingDelaySet:
		g.VotingDelay = models.DecimalFromBig(ev.NewVotingDelay)
	case *events.VotingPeriodSet:
		g.VotingPeriod = models.DecimalFromBig(ev.NewVotingPeriod)
	case *events.TimelockChange:
		g.Timelock = ev.NewTimelock.Hex()
	}

	meta := ev.EventMeta()
	g.Touch(meta.BlockNumber, meta.BlockTimestamp)
	ac.markGovernance()
	return nil
}
