package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shashiranjanraj/veritas/app/services"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/middleware"
	"github.com/shashiranjanraj/veritas/pkg/response"
)

// maxBundleSize bounds a scanned label payload. Real labels are a few KB.
const maxBundleSize = 256 * 1024

type VerifyController struct {
	service *services.VerifyService
}

func NewVerifyController(service *services.VerifyService) *VerifyController {
	return &VerifyController{service: service}
}

// Verify classifies a scanned bundle. Anonymous scans are treated as
// consumer checks; a retailer token upgrades the call to an inventory
// pre-check against the allow list.
func (c *VerifyController) Verify(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBundleSize))
	if err != nil || len(raw) == 0 {
		response.Error(w, http.StatusBadRequest, "empty bundle")
		return
	}

	// Accept either the raw bundle or an envelope {"bundle": {...}}.
	var envelope struct {
		Bundle json.RawMessage `json:"bundle"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Bundle) > 0 {
		raw = envelope.Bundle
	}

	out, err := c.service.Verify(r.Context(), raw, callerFromRequest(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	response.Success(w, out)
}

// VerifyBatch classifies up to MaxBatchLabels bundles in one call. Meant
// for shipment intake where a retailer scans a whole pallet.
func (c *VerifyController) VerifyBatch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(services.MaxBatchLabels)*maxBundleSize))
	if err != nil || len(raw) == 0 {
		response.Error(w, http.StatusBadRequest, "empty batch")
		return
	}

	var in struct {
		Bundles []json.RawMessage `json:"bundles"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || len(in.Bundles) == 0 {
		response.Error(w, http.StatusBadRequest, "batch must carry a bundles array")
		return
	}
	if len(in.Bundles) > services.MaxBatchLabels {
		response.Error(w, http.StatusBadRequest,
			fmt.Sprintf("batch limited to %d labels", services.MaxBatchLabels))
		return
	}

	response.Success(w, c.service.VerifyBatch(r.Context(), in.Bundles, callerFromRequest(r)))
}

func callerFromRequest(r *http.Request) provenance.Caller {
	claims := middleware.ClaimsFromCtx(r.Context())
	if claims == nil || claims.Role != "retailer" || claims.Address == "" {
		return provenance.Caller{Role: provenance.RoleConsumer}
	}
	return provenance.Caller{
		Role:    provenance.RoleRetailer,
		Address: provenance.Address(claims.Address).Normalized(),
	}
}
