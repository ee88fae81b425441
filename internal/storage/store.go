package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/types"
)

// Kind names an aggregate entity table
type Kind string

const (
	KindGovernanceConfig Kind = "governance_config"
	KindProposal         Kind = "proposal"
	KindVoteResult       Kind = "vote_result"
	KindVote             Kind = "vote"
	KindStele            Kind = "stele"
	KindChallenge        Kind = "challenge"
	KindActiveChallenges Kind = "active_challenges"
	KindInvestor         Kind = "investor"
	KindToken            Kind = "token"
	KindAppliedEvent     Kind = "applied_event"
)

// ErrTxDone is returned when a transaction-bound backend is used after commit or rollback
var ErrTxDone = errors.New("transaction already finished")

// Backend stores JSON bodies by kind and key. Entities are last-writer-wins,
// snapshots are write-once per key.
type Backend interface {
	Get(ctx context.Context, kind Kind, id string) ([]byte, bool, error)
	Put(ctx context.Context, kind Kind, id string, body []byte) error
	// PutIfAbsent writes only when the key is new and reports whether it did
	PutIfAbsent(ctx context.Context, kind Kind, id string, body []byte) (bool, error)

	GetSnapshot(ctx context.Context, kind types.EntityKind, id string) ([]byte, bool, error)
	// CreateSnapshot writes only when the key is new and reports whether it did
	CreateSnapshot(ctx context.Context, kind types.EntityKind, id string, bucket uint64, body []byte) (bool, error)

	LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error)
	SaveCheckpoint(ctx context.Context, name string, block uint64) error

	// RunInTx runs fn against a backend whose writes commit together when fn
	// returns nil and are discarded otherwise. Nested calls join the outer one.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error
}

// Store is the typed entity store over a Backend. Loads return an explicit
// presence flag instead of a nil entity.
type Store struct {
	backend Backend
}

// NewStore wraps backend
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// RunInTx runs fn with a store whose writes are atomic
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return s.backend.RunInTx(ctx, func(ctx context.Context, tx Backend) error {
		return fn(ctx, &Store{backend: tx})
	})
}

func load[T any](ctx context.Context, b Backend, kind Kind, id string) (*T, bool, error) {
	body, ok, err := b.Get(ctx, kind, id)
	if err != nil || !ok {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return &v, true, nil
}

func save(ctx context.Context, b Backend, kind Kind, id string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return b.Put(ctx, kind, id, body)
}

func loadSnapshot[T any](ctx context.Context, b Backend, kind types.EntityKind, id string) (*T, bool, error) {
	body, ok, err := b.GetSnapshot(ctx, kind, id)
	if err != nil || !ok {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false, fmt.Errorf("decode %s snapshot %s: %w", kind, id, err)
	}
	return &v, true, nil
}

func createSnapshot(ctx context.Context, b Backend, kind types.EntityKind, id string, bucket uint64, v interface{}) (bool, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s snapshot %s: %w", kind, id, err)
	}
	return b.CreateSnapshot(ctx, kind, id, bucket, body)
}

func (s *Store) LoadGovernanceConfig(ctx context.Context, id string) (*models.GovernanceConfig, bool, error) {
	return load[models.GovernanceConfig](ctx, s.backend, KindGovernanceConfig, id)
}

func (s *Store) SaveGovernanceConfig(ctx context.Context, g *models.GovernanceConfig) error {
	return save(ctx, s.backend, KindGovernanceConfig, g.ID, g)
}

func (s *Store) LoadProposal(ctx context.Context, id string) (*models.Proposal, bool, error) {
	return load[models.Proposal](ctx, s.backend, KindProposal, id)
}

func (s *Store) SaveProposal(ctx context.Context, p *models.Proposal) error {
	return save(ctx, s.backend, KindProposal, p.ID, p)
}

func (s *Store) LoadVoteResult(ctx context.Context, id string) (*models.VoteResult, bool, error) {
	return load[models.VoteResult](ctx, s.backend, KindVoteResult, id)
}

func (s *Store) SaveVoteResult(ctx context.Context, v *models.VoteResult) error {
	return save(ctx, s.backend, KindVoteResult, v.ID, v)
}

func (s *Store) LoadVote(ctx context.Context, id string) (*models.Vote, bool, error) {
	return load[models.Vote](ctx, s.backend, KindVote, id)
}

// CreateVote writes v unless a vote with the same key exists
func (s *Store) CreateVote(ctx context.Context, v *models.Vote) (bool, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode vote %s: %w", v.ID, err)
	}
	return s.backend.PutIfAbsent(ctx, KindVote, v.ID, body)
}

func (s *Store) LoadStele(ctx context.Context, id string) (*models.Stele, bool, error) {
	return load[models.Stele](ctx, s.backend, KindStele, id)
}

func (s *Store) SaveStele(ctx context.Context, st *models.Stele) error {
	return save(ctx, s.backend, KindStele, st.ID, st)
}

func (s *Store) LoadChallenge(ctx context.Context, id string) (*models.Challenge, bool, error) {
	return load[models.Challenge](ctx, s.backend, KindChallenge, id)
}

func (s *Store) SaveChallenge(ctx context.Context, c *models.Challenge) error {
	return save(ctx, s.backend, KindChallenge, c.ID, c)
}

func (s *Store) LoadActiveChallenges(ctx context.Context, id string) (*models.ActiveChallenges, bool, error) {
	return load[models.ActiveChallenges](ctx, s.backend, KindActiveChallenges, id)
}

func (s *Store) SaveActiveChallenges(ctx context.Context, a *models.ActiveChallenges) error {
	return save(ctx, s.backend, KindActiveChallenges, a.ID, a)
}

func (s *Store) LoadInvestor(ctx context.Context, id string) (*models.Investor, bool, error) {
	return load[models.Investor](ctx, s.backend, KindInvestor, id)
}

func (s *Store) SaveInvestor(ctx context.Context, i *models.Investor) error {
	return save(ctx, s.backend, KindInvestor, i.ID, i)
}

func (s *Store) LoadToken(ctx context.Context, id string) (*models.Token, bool, error) {
	return load[models.Token](ctx, s.backend, KindToken, id)
}

func (s *Store) SaveToken(ctx context.Context, t *models.Token) error {
	return save(ctx, s.backend, KindToken, t.ID, t)
}

// MarkEventApplied records that the event under key committed. It reports
// false when the event had already been applied.
func (s *Store) MarkEventApplied(ctx context.Context, a *models.AppliedEvent) (bool, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("encode applied event %s: %w", a.Key, err)
	}
	return s.backend.PutIfAbsent(ctx, KindAppliedEvent, a.Key, body)
}

// EventApplied reports whether the event under key has committed
func (s *Store) EventApplied(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.backend.Get(ctx, KindAppliedEvent, key)
	return ok, err
}

// Snapshots

func (s *Store) LoadSteleSnapshot(ctx context.Context, id string) (*models.SteleSnapshot, bool, error) {
	return loadSnapshot[models.SteleSnapshot](ctx, s.backend, types.KindStele, id)
}

func (s *Store) CreateSteleSnapshot(ctx context.Context, snap *models.SteleSnapshot) (bool, error) {
	return createSnapshot(ctx, s.backend, types.KindStele, snap.ID, snap.Date, snap)
}

func (s *Store) LoadChallengeSnapshot(ctx context.Context, id string) (*models.ChallengeSnapshot, bool, error) {
	return loadSnapshot[models.ChallengeSnapshot](ctx, s.backend, types.KindChallenge, id)
}

func (s *Store) CreateChallengeSnapshot(ctx context.Context, snap *models.ChallengeSnapshot) (bool, error) {
	return createSnapshot(ctx, s.backend, types.KindChallenge, snap.ID, snap.Date, snap)
}

func (s *Store) LoadInvestorSnapshot(ctx context.Context, id string) (*models.InvestorSnapshot, bool, error) {
	return loadSnapshot[models.InvestorSnapshot](ctx, s.backend, types.KindInvestor, id)
}

func (s *Store) CreateInvestorSnapshot(ctx context.Context, snap *models.InvestorSnapshot) (bool, error) {
	return createSnapshot(ctx, s.backend, types.KindInvestor, snap.ID, snap.Date, snap)
}

// SnapshotExists reports whether a snapshot of kind is stored under id
func (s *Store) SnapshotExists(ctx context.Context, kind types.EntityKind, id string) (bool, error) {
	_, ok, err := s.backend.GetSnapshot(ctx, kind, id)
	return ok, err
}

// Checkpoints

func (s *Store) LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error) {
	return s.backend.LoadCheckpoint(ctx, name)
}

func (s *Store) SaveCheckpoint(ctx context.Context, name string, block uint64) error {
	return s.backend.SaveCheckpoint(ctx, name, block)
}
