package kintone

import (
	"context"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
)

// SyncResult counts records pushed by SyncStore.
type SyncResult struct {
	Defects int
	Repairs int
}

// SyncStore pushes every defect (optionally limited to one lot) and every
// repair in store, then saves the returned kintone record IDs locally.
func SyncStore(ctx context.Context, c *Client, store *datastore.Store, lot string) (SyncResult, error) {
	var (
		defects []entities.Defect
		err     error
	)
	if lot != "" {
		defects, err = store.Defects().ByLot(lot)
	} else {
		defects, err = store.Defects().All()
	}
	if err != nil {
		return SyncResult{}, err
	}

	repairs, err := store.Repairs().All()
	if err != nil {
		return SyncResult{}, err
	}
	if lot != "" {
		repairs = repairsFor(defects, repairs)
	}

	if err := c.PushDefects(ctx, defects); err != nil {
		return SyncResult{}, err
	}
	if err := store.Defects().UpsertBatch(defects); err != nil {
		return SyncResult{}, err
	}

	if err := c.PushRepairs(ctx, repairs); err != nil {
		return SyncResult{Defects: len(defects)}, err
	}
	if err := store.Repairs().UpsertBatch(repairs); err != nil {
		return SyncResult{Defects: len(defects)}, err
	}

	return SyncResult{Defects: len(defects), Repairs: len(repairs)}, nil
}

func repairsFor(defects []entities.Defect, repairs []entities.Repair) []entities.Repair {
	ids := make(map[string]struct{}, len(defects))
	for i := range defects {
		ids[defects[i].ID] = struct{}{}
	}
	out := repairs[:0:0]
	for _, r := range repairs {
		if _, ok := ids[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}
