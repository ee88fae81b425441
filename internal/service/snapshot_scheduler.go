package service

import (
	"context"
	"fmt"

	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/storage"
	"github.com/stele-indexer/internal/types"
)

// SnapshotScheduler writes the first-of-day copy of a mutated aggregate.
// A (kind, key, day) bucket is written at most once; later mutations on the
// same day leave the stored snapshot untouched.
type SnapshotScheduler struct{}

// NewSnapshotScheduler creates a scheduler
func NewSnapshotScheduler() *SnapshotScheduler {
	return &SnapshotScheduler{}
}

// OnMutation snapshots the current state of the entity identified by kind
// and key into the bucket of timestamp. It reports whether a new snapshot
// was written. The entity must already be saved in tx.
func (s *SnapshotScheduler) OnMutation(ctx context.Context, tx *storage.Store, kind types.EntityKind, key string, timestamp uint64) (bool, error) {
	day := types.DayBucket(timestamp)

	switch kind {
	case types.KindStele:
		id := fmt.Sprintf("%d", day)
		if exists, err := tx.SnapshotExists(ctx, kind, id); err != nil || exists {
			return false, err
		}
		st, ok, err := tx.LoadStele(ctx, key)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, apperrors.NewMissingParentError("snapshot", string(kind), key)
		}
		return tx.CreateSteleSnapshot(ctx, models.NewSteleSnapshot(st, day))

	case types.KindChallenge:
		if exists, err := tx.SnapshotExists(ctx, kind, models.SnapshotKey(key, day)); err != nil || exists {
			return false, err
		}
		c, ok, err := tx.LoadChallenge(ctx, key)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, apperrors.NewMissingParentError("snapshot", string(kind), key)
		}
		return tx.CreateChallengeSnapshot(ctx, models.NewChallengeSnapshot(c, day, timestamp))

	case types.KindInvestor:
		if exists, err := tx.SnapshotExists(ctx, kind, models.SnapshotKey(key, day)); err != nil || exists {
			return false, err
		}
		inv, ok, err := tx.LoadInvestor(ctx, key)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, apperrors.NewMissingParentError("snapshot", string(kind), key)
		}
		return tx.CreateInvestorSnapshot(ctx, models.NewInvestorSnapshot(inv, day, timestamp))

	default:
		return false, apperrors.NewUnknownEnumerationError("entity kind", kind)
	}
}
