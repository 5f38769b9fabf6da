package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
)

// HealthCheck reports the build and whether the store is still open.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	status, code := "healthy", http.StatusOK
	if c.Store.IsClosed() {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	return ctx.JSON(code, map[string]any{
		"status":     status,
		"version":    c.Build.Version,
		"build_date": c.Build.BuildDate,
		"engine":     string(c.Store.Engine()),
		"uptime":     time.Since(c.startTime).Round(time.Second).String(),
	})
}

// DefectList is the body of GET /defects.
type DefectList struct {
	Lot     string            `json:"lot,omitempty"`
	Count   int               `json:"count"`
	Defects []entities.Defect `json:"defects"`
}

// ListDefects returns all defects, or those of ?lot=.
func (c *Controller) ListDefects(ctx echo.Context) error {
	lot := ctx.QueryParam("lot")
	defects, err := c.defects(lot)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list defects", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, DefectList{Lot: lot, Count: len(defects), Defects: defects})
}

// GetDefect returns one defect by identity.
func (c *Controller) GetDefect(ctx echo.Context) error {
	id := ctx.Param("id")
	d, err := c.Store.Defects().Get(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get defect", http.StatusInternalServerError)
	}
	if d == nil {
		return c.HandleError(ctx, nil, "Defect not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, d)
}

// GetRepair returns the repair record paired with a defect.
func (c *Controller) GetRepair(ctx echo.Context) error {
	id := ctx.Param("id")
	r, err := c.Store.Repairs().Get(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get repair", http.StatusInternalServerError)
	}
	if r == nil {
		return c.HandleError(ctx, nil, "Repair not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, r)
}

// RepairList is the body of GET /repairs.
type RepairList struct {
	Lot     string            `json:"lot,omitempty"`
	Count   int               `json:"count"`
	Repairs []entities.Repair `json:"repairs"`
}

// ListRepairs returns all repairs, or those whose defect belongs to ?lot=.
func (c *Controller) ListRepairs(ctx echo.Context) error {
	lot := ctx.QueryParam("lot")
	repairs, err := c.Store.Repairs().All()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list repairs", http.StatusInternalServerError)
	}

	if lot != "" {
		defects, err := c.Store.Defects().ByLot(lot)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to list repairs", http.StatusInternalServerError)
		}
		ids := make(map[string]struct{}, len(defects))
		for i := range defects {
			ids[defects[i].ID] = struct{}{}
		}
		filtered := repairs[:0]
		for _, r := range repairs {
			if _, ok := ids[r.ID]; ok {
				filtered = append(filtered, r)
			}
		}
		repairs = filtered
	}

	if repairs == nil {
		repairs = []entities.Repair{}
	}
	return ctx.JSON(http.StatusOK, RepairList{Lot: lot, Count: len(repairs), Repairs: repairs})
}

func (c *Controller) defects(lot string) ([]entities.Defect, error) {
	var (
		defects []entities.Defect
		err     error
	)
	if lot != "" {
		defects, err = c.Store.Defects().ByLot(lot)
	} else {
		defects, err = c.Store.Defects().All()
	}
	if defects == nil && err == nil {
		defects = []entities.Defect{}
	}
	return defects, err
}
