package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openparcel/openparcel/api/middleware"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
	"github.com/openparcel/openparcel/store"
)

// LinkRepository is the store slice the save/archive handlers need.
type LinkRepository interface {
	GetParcelBySlug(ctx context.Context, slug string) (*models.Parcel, bool, error)
	GetParcelByCarrierAndCode(ctx context.Context, carrierID, trackingCode string) (*models.Parcel, bool, error)
	SaveLink(ctx context.Context, link *models.UserParcelLink) error
	DeleteLink(ctx context.Context, userID, parcelID int64) error
	SetArchived(ctx context.Context, userID, parcelID int64, archived bool) error
}

// resolveParcelBySlug and resolveParcelByCarrierCode back the two shapes
// spec §6 allows for /save: `/save/<parcel_slug>` and
// `/save/<carrier_id>/<code>`. /archive takes only a slug and looks the
// parcel up in SetArchived itself.
func resolveParcelBySlug(repo LinkRepository) func(*gin.Context) (*models.Parcel, bool) {
	return func(c *gin.Context) (*models.Parcel, bool) {
		p, found, err := repo.GetParcelBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondAuthError(c, errs.DatabaseError(err))
			return nil, false
		}
		if !found {
			respondAuthError(c, errs.NotFound("no such parcel"))
			return nil, false
		}
		return p, true
	}
}

func resolveParcelByCarrierCode(repo LinkRepository) func(*gin.Context) (*models.Parcel, bool) {
	return func(c *gin.Context) (*models.Parcel, bool) {
		p, found, err := repo.GetParcelByCarrierAndCode(c.Request.Context(), c.Param("carrier"), c.Param("code"))
		if err != nil {
			respondAuthError(c, errs.DatabaseError(err))
			return nil, false
		}
		if !found {
			respondAuthError(c, errs.NotFound("no such parcel"))
			return nil, false
		}
		return p, true
	}
}

// SaveLink returns a handler for POST /save/:slug: attach the parcel to
// the authenticated user's list, optionally naming it.
func SaveLink(repo LinkRepository) gin.HandlerFunc {
	return saveLink(repo, resolveParcelBySlug(repo))
}

// SaveLinkByCarrierCode returns a handler for POST /save/:carrier/:code,
// the carrier+tracking-code shape of the same operation.
func SaveLinkByCarrierCode(repo LinkRepository) gin.HandlerFunc {
	return saveLink(repo, resolveParcelByCarrierCode(repo))
}

func saveLink(repo LinkRepository, resolve func(*gin.Context) (*models.Parcel, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)

		p, ok := resolve(c)
		if !ok {
			return
		}

		var req models.SaveLinkRequest
		_ = c.ShouldBindJSON(&req)

		link := &models.UserParcelLink{UserID: rc.User.ID, ParcelID: p.ID, Name: req.Name}
		if err := repo.SaveLink(c.Request.Context(), link); err != nil {
			if errors.Is(err, store.ErrAlreadyLinked) {
				respondAuthError(c, errs.Conflict("this parcel is already saved"))
				return
			}
			respondAuthError(c, errs.DatabaseError(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// DeleteLink returns a handler for DELETE /save/:slug.
func DeleteLink(repo LinkRepository) gin.HandlerFunc {
	return deleteLink(repo, resolveParcelBySlug(repo))
}

// DeleteLinkByCarrierCode returns a handler for DELETE /save/:carrier/:code.
func DeleteLinkByCarrierCode(repo LinkRepository) gin.HandlerFunc {
	return deleteLink(repo, resolveParcelByCarrierCode(repo))
}

func deleteLink(repo LinkRepository, resolve func(*gin.Context) (*models.Parcel, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)

		p, ok := resolve(c)
		if !ok {
			return
		}

		if err := repo.DeleteLink(c.Request.Context(), rc.User.ID, p.ID); err != nil {
			respondAuthError(c, errs.DatabaseError(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SetArchived returns a handler for POST|DELETE /archive/:slug, setting
// the user's archived flag to archived.
func SetArchived(repo LinkRepository, archived bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := middleware.FromGin(c)

		p, found, err := repo.GetParcelBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respondAuthError(c, errs.DatabaseError(err))
			return
		}
		if !found {
			respondAuthError(c, errs.NotFound("no such parcel"))
			return
		}

		if err := repo.SetArchived(c.Request.Context(), rc.User.ID, p.ID, archived); err != nil {
			if errors.Is(err, store.ErrArchiveUnchanged) {
				respondAuthError(c, errs.Conflict("archived flag is already in the requested state"))
				return
			}
			respondAuthError(c, errs.DatabaseError(err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
