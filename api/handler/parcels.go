package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/api/middleware"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// ParcelLister is the pagination-aware listing query the store backs.
type ParcelLister interface {
	ListParcelsForUser(ctx context.Context, userID int64, offset, limit int) (rows []ParcelRow, total int, err error)
}

// ParcelRow mirrors the joined row store.ListParcelsForUser returns,
// decoupled from the store package so this handler doesn't import it.
type ParcelRow struct {
	models.UserParcelLink
	Parcel       models.Parcel
	LatestStatus string
}

// ListParcels returns a handler for GET /parcels?offset=&limit=.
func ListParcels(lister ParcelLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)

		offset, _ := strconv.Atoi(c.Query("offset"))
		limit, _ := strconv.Atoi(c.Query("limit"))

		rows, total, err := lister.ListParcelsForUser(c.Request.Context(), rc.User.ID, offset, limit)
		if err != nil {
			respondAuthError(c, errs.DatabaseError(err))
			return
		}

		items := make([]models.ParcelListItem, 0, len(rows))
		for _, r := range rows {
			items = append(items, models.ParcelListItem{
				Slug:         r.Parcel.Slug,
				CarrierID:    r.Parcel.CarrierID,
				TrackingCode: r.Parcel.TrackingCode,
				Name:         r.Name,
				Archived:     r.Archived,
				Created:      r.Parcel.Created,
				Retrieved:    r.Parcel.LastUpdated,
				LatestStatus: r.LatestStatus,
			})
		}

		c.JSON(http.StatusOK, models.ParcelListResponse{
			Parcels: items,
			Total:   total,
			Offset:  offset,
			Limit:   limit,
		})
	}
}
