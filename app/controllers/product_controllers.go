package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/veritas/app/services"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/bind"
	"github.com/shashiranjanraj/veritas/pkg/middleware"
	"github.com/shashiranjanraj/veritas/pkg/response"
)

type ProductController struct {
	registration *services.RegistrationService
	transfer     *services.TransferService
}

func NewProductController(reg *services.RegistrationService, tr *services.TransferService) *ProductController {
	return &ProductController{registration: reg, transfer: tr}
}

// Register onboards a product as the authenticated manufacturer.
func (c *ProductController) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorAddress(w, r)
	if !ok {
		return
	}

	var in services.RegistrationInput
	errs, err := bind.JSON(r, &in)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := c.registration.Register(r.Context(), in, actor)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	response.Created(w, out)
}

// Label re-issues the printable label for a product.
func (c *ProductController) Label(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	label, err := c.registration.Label(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	response.Success(w, label)
}

// Receive records retailer custody of a product.
func (c *ProductController) Receive(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	actor, ok := actorAddress(w, r)
	if !ok {
		return
	}

	var body struct {
		Location string `json:"location" validate:"nullable,max=200"`
		Entity   string `json:"entity"   validate:"required,max=200"`
	}
	errs, err := bind.JSON(r, &body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := c.transfer.Receive(r.Context(), id, body.Location, body.Entity, actor)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	response.Success(w, out)
}

// Sell marks a product sold by its current holder.
func (c *ProductController) Sell(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	actor, ok := actorAddress(w, r)
	if !ok {
		return
	}

	out, err := c.transfer.Sell(r.Context(), id, actor)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	response.Success(w, out)
}

func productID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// actorAddress pulls the signing address out of the authenticated claims.
func actorAddress(w http.ResponseWriter, r *http.Request) (provenance.Address, bool) {
	claims := middleware.ClaimsFromCtx(r.Context())
	if claims == nil || claims.Address == "" {
		response.Forbidden(w)
		return "", false
	}
	addr := provenance.Address(claims.Address).Normalized()
	if !addr.Valid() {
		response.Forbidden(w)
		return "", false
	}
	return addr, true
}

// writeLedgerError maps taxonomy errors to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provenance.ErrProductNotFound):
		response.NotFound(w)
	case errors.Is(err, provenance.ErrAlreadySold):
		response.Conflict(w, "product is already sold")
	case errors.Is(err, provenance.ErrUnauthorizedRetailer):
		response.Forbidden(w)
	case errors.Is(err, provenance.ErrLedgerRejected):
		response.Conflict(w, err.Error())
	case errors.Is(err, provenance.ErrLedgerUnavailable):
		response.Unavailable(w)
	default:
		response.Error(w, http.StatusInternalServerError, "internal error")
	}
}
