package api

import (
	"fmt"
	"net/http"

	"github.com/stele-indexer/internal/models"
)

func (s *Server) handleGetStele(w http.ResponseWriter, r *http.Request) {
	id := s.config.Stele.Hex()
	st, ok, err := s.store.LoadStele(r.Context(), id)
	found(w, st, ok, err, "stele", id)
}

func (s *Server) handleGetSteleSnapshot(w http.ResponseWriter, r *http.Request) {
	day, err := pathUint(r, "day")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	id := fmt.Sprintf("%d", day)
	snap, ok, err := s.store.LoadSteleSnapshot(r.Context(), id)
	found(w, snap, ok, err, "stele snapshot", id)
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathBigInt(r, "id")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	c, ok, err := s.store.LoadChallenge(r.Context(), id)
	found(w, c, ok, err, "challenge", id)
}

func (s *Server) handleGetChallengeSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathBigInt(r, "id")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	day, err := pathUint(r, "day")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	key := models.SnapshotKey(id, day)
	snap, ok, err := s.store.LoadChallengeSnapshot(r.Context(), key)
	found(w, snap, ok, err, "challenge snapshot", key)
}

func (s *Server) handleGetActiveChallenges(w http.ResponseWriter, r *http.Request) {
	id := s.config.Stele.Hex()
	a, ok, err := s.store.LoadActiveChallenges(r.Context(), id)
	found(w, a, ok, err, "active challenges", id)
}

func (s *Server) handleGetInvestor(w http.ResponseWriter, r *http.Request) {
	key, err := investorKey(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	inv, ok, err := s.store.LoadInvestor(r.Context(), key)
	found(w, inv, ok, err, "investor", key)
}

func (s *Server) handleGetInvestorSnapshot(w http.ResponseWriter, r *http.Request) {
	key, err := investorKey(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	day, err := pathUint(r, "day")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	snapKey := models.SnapshotKey(key, day)
	snap, ok, err := s.store.LoadInvestorSnapshot(r.Context(), snapKey)
	found(w, snap, ok, err, "investor snapshot", snapKey)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		respondCategorized(w, err)
		return
	}
	id := addr.Hex()
	tok, ok, err := s.store.LoadToken(r.Context(), id)
	found(w, tok, ok, err, "token", id)
}

func investorKey(r *http.Request) (string, error) {
	challengeID, err := pathBigInt(r, "challengeId")
	if err != nil {
		return "", err
	}
	user, err := pathAddress(r, "address")
	if err != nil {
		return "", err
	}
	return models.InvestorID(challengeID, user), nil
}
