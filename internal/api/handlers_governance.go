package api

import (
	"net/http"

	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/models"
)

// ProposalView is a proposal with its tally
type ProposalView struct {
	Proposal *models.Proposal   `json:"proposal"`
	Tally    *models.VoteResult `json:"tally,omitempty"`
}

func (s *Server) handleGetGovernance(w http.ResponseWriter, r *http.Request) {
	id := s.config.Governor.Hex()
	g, ok, err := s.store.LoadGovernanceConfig(r.Context(), id)
	found(w, g, ok, err, "governance config", id)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathBigInt(r, "id")
	if err != nil {
		respondCategorized(w, err)
		return
	}

	p, ok, err := s.store.LoadProposal(ctx, id)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if !ok {
		respondCategorized(w, apperrors.NewNotFoundError("proposal", id))
		return
	}

	view := &ProposalView{Proposal: p}
	vr, ok, err := s.store.LoadVoteResult(ctx, id)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if ok {
		view.Tally = vr
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathBigInt(r, "id")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	voter, err := pathAddress(r, "voter")
	if err != nil {
		respondCategorized(w, err)
		return
	}

	key := models.VoteID(id, voter)
	v, ok, err := s.store.LoadVote(r.Context(), key)
	found(w, v, ok, err, "vote", key)
}
