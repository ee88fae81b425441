package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stele-indexer/internal/models"
	"github.com/stele-indexer/internal/storage"
)

// touched names an aggregate changed while handling one event
type touched struct {
	kind storage.Kind
	id   string
}

// aggregationContext carries the singletons a handler may read or change.
// They are loaded on first use within the event's transaction and written
// back by flush, so handlers never re-read what they already hold.
type aggregationContext struct {
	tx *storage.Store

	governorAddr common.Address
	steleID      string

	governance      *models.GovernanceConfig
	governanceDirty bool

	stele       *models.Stele
	steleLoaded bool
	steleDirty  bool

	active       *models.ActiveChallenges
	activeLoaded bool
	activeDirty  bool

	changed []touched
}

func newAggregationContext(tx *storage.Store, governor common.Address, stele common.Address) *aggregationContext {
	return &aggregationContext{
		tx:           tx,
		governorAddr: governor,
		steleID:      stele.Hex(),
	}
}

// Governance returns the governor config, creating it on first observation
func (a *aggregationContext) Governance(ctx context.Context) (*models.GovernanceConfig, error) {
	if a.governance != nil {
		return a.governance, nil
	}
	g, ok, err := a.tx.LoadGovernanceConfig(ctx, a.governorAddr.Hex())
	if err != nil {
		return nil, err
	}
	if !ok {
		g = models.NewGovernanceConfig(a.governorAddr)
	}
	a.governance = g
	return g, nil
}

func (a *aggregationContext) markGovernance() {
	a.governanceDirty = true
	a.touch(storage.KindGovernanceConfig, a.governorAddr.Hex())
}

// Stele returns the stele singleton and whether it exists yet
func (a *aggregationContext) Stele(ctx context.Context) (*models.Stele, bool, error) {
	if !a.steleLoaded {
		st, _, err := a.tx.LoadStele(ctx, a.steleID)
		if err != nil {
			return nil, false, err
		}
		a.stele = st
		a.steleLoaded = true
	}
	return a.stele, a.stele != nil, nil
}

func (a *aggregationContext) setStele(st *models.Stele) {
	a.stele = st
	a.steleLoaded = true
	a.markStele()
}

func (a *aggregationContext) markStele() {
	a.steleDirty = true
	a.touch(storage.KindStele, a.steleID)
}

// ActiveChallenges returns the active-challenge slots and whether they exist yet
func (a *aggregationContext) ActiveChallenges(ctx context.Context) (*models.ActiveChallenges, bool, error) {
	if !a.activeLoaded {
		ac, _, err := a.tx.LoadActiveChallenges(ctx, a.steleID)
		if err != nil {
			return nil, false, err
		}
		a.active = ac
		a.activeLoaded = true
	}
	return a.active, a.active != nil, nil
}

func (a *aggregationContext) setActiveChallenges(ac *models.ActiveChallenges) {
	a.active = ac
	a.activeLoaded = true
	a.markActive()
}

func (a *aggregationContext) markActive() {
	a.activeDirty = true
	a.touch(storage.KindActiveChallenges, a.steleID)
}

func (a *aggregationContext) touch(kind storage.Kind, id string) {
	for _, t := range a.changed {
		if t.kind == kind && t.id == id {
			return
		}
	}
	a.changed = append(a.changed, touched{kind: kind, id: id})
}

// flush writes back the dirty singletons
func (a *aggregationContext) flush(ctx context.Context) error {
	if a.governanceDirty {
		if err := a.tx.SaveGovernanceConfig(ctx, a.governance); err != nil {
			return err
		}
		a.governanceDirty = false
	}
	if a.steleDirty {
		if err := a.tx.SaveStele(ctx, a.stele); err != nil {
			return err
		}
		a.steleDirty = false
	}
	if a.activeDirty {
		if err := a.tx.SaveActiveChallenges(ctx, a.active); err != nil {
			return err
		}
		a.activeDirty = false
	}
	return nil
}
