package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/cache"
	"github.com/shashiranjanraj/veritas/pkg/crypt"
	"github.com/shashiranjanraj/veritas/pkg/metrics"
	"github.com/shashiranjanraj/veritas/pkg/workerpool"
)

// verdictTTL bounds how stale a cached verdict can be. Custody writes also
// invalidate eagerly, so this mostly covers writes from other instances.
const verdictTTL = 30 * time.Second

// MaxBatchLabels caps one batch request. A pallet scan at intake is the
// expected caller; anything larger should page through.
const MaxBatchLabels = 50

// VerifyService classifies scanned bundles. It fronts the orchestrator
// with a short-lived verdict cache and records every outcome in metrics
// and the audit log.
type VerifyService struct {
	engine *provenance.Orchestrator
	log    *slog.Logger
	pool   *workerpool.Pool
}

func NewVerifyService(l provenance.Ledger, log *slog.Logger) *VerifyService {
	if log == nil {
		log = slog.Default()
	}
	return &VerifyService{
		engine: provenance.NewOrchestrator(l, log),
		log:    log,
		pool:   workerpool.New(8),
	}
}

// VerifyOutput is the consumer-facing verdict payload.
type VerifyOutput struct {
	Verdict    string `json:"verdict"`
	State      string `json:"state,omitempty"`
	NextAction string `json:"nextAction,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ProductID  uint64 `json:"productId,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
	Error      string `json:"error,omitempty"` // batch only: transient failure, no verdict
}

// Verify classifies raw as caller. A transient ledger failure is returned
// as an error, never as a negative verdict.
func (s *VerifyService) Verify(ctx context.Context, raw []byte, caller provenance.Caller) (VerifyOutput, error) {
	key := verdictCacheKey(raw, caller)

	var out VerifyOutput
	if cache.Get(ctx, key, &out) {
		metrics.CacheHits.WithLabelValues("verdict").Inc()
		out.Cached = true
		return out, nil
	}
	metrics.CacheMisses.WithLabelValues("verdict").Inc()

	res, err := s.engine.Classify(ctx, raw, caller)
	if err != nil {
		return VerifyOutput{}, err
	}

	out = VerifyOutput{Verdict: string(res.Verdict)}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	if res.Verdict == provenance.VerdictAuthentic {
		out.State = res.State.String()
		out.NextAction = string(res.NextAction)
	}
	if res.Product.ID != 0 {
		out.ProductID = res.Product.ID
	}

	metrics.RecordVerdict(out.Verdict)
	s.audit(out, caller)

	if err := cache.Set(ctx, key, out, verdictTTL); err != nil {
		s.log.Warn("verify: cache verdict", "error", err)
	}
	return out, nil
}

// VerifyBatch classifies several labels in one call, fanning the work out
// across a bounded pool so a pallet scan cannot monopolize the server.
// Results keep the input order. An item that fails transiently carries the
// error message instead of a verdict; the others still resolve.
func (s *VerifyService) VerifyBatch(ctx context.Context, bundles []json.RawMessage, caller provenance.Caller) []VerifyOutput {
	outs := make([]VerifyOutput, len(bundles))

	var wg sync.WaitGroup
	for i := range bundles {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			out, err := s.Verify(ctx, bundles[i], caller)
			if err != nil {
				out = VerifyOutput{Error: err.Error()}
			}
			outs[i] = out
		}
		if err := s.pool.SubmitWait(task); err != nil {
			// Pool shut down mid-request; finish inline.
			task()
		}
	}
	wg.Wait()
	return outs
}

// audit emits the structured record the AuditHandler persists.
func (s *VerifyService) audit(out VerifyOutput, caller provenance.Caller) {
	s.log.Info("bundle classified",
		"verdict", out.Verdict,
		"product_id", out.ProductID,
		"caller", string(caller.Address),
		"role", string(caller.Role),
		"reason", out.Reason,
	)
}

// verdictCachePrefix groups every cached verdict for one product so a
// custody write can invalidate them all with a single prefix delete.
func verdictCachePrefix(id uint64) string {
	return fmt.Sprintf("veritas:verdict:%d:", id)
}

func verdictCacheKey(raw []byte, caller provenance.Caller) string {
	// Peek at the claimed id only to pick the cache bucket; the
	// orchestrator does the real validation. Unparseable ids share
	// bucket 0, which no write ever needs to invalidate.
	var peek struct {
		ID string `json:"id"`
	}
	var id uint64
	if json.Unmarshal(raw, &peek) == nil {
		id, _ = strconv.ParseUint(peek.ID, 10, 64)
	}

	digest := crypt.Hash(string(raw) + "|" + string(caller.Role) + "|" + string(caller.Address.Normalized()))
	return verdictCachePrefix(id) + digest
}
