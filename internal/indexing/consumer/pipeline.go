package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/indexing/metrics"
	"github.com/vietddude/mint-oracle/internal/infra/rpc"
	"github.com/vietddude/mint-oracle/internal/lottery"
)

// Request outcomes, used as metric labels.
const (
	OutcomeMinted      = "minted"
	OutcomeReverted    = "reverted"
	OutcomeDecodeError = "decode_error"
	OutcomeHandled     = "already_handled"
	OutcomeFailed      = "failed"
)

// processEvent fulfils one request. It returns an error only when the
// submission failed for a reason worth retrying later; the caller must then
// stop and re-read the same range.
func (c *Consumer) processEvent(ctx context.Context, ev domain.MintRequestEvent) error {
	phase := string(c.tracker.Phase())

	if ev.Err != nil {
		c.log.Warn("Skipping malformed mint request",
			"block", ev.BlockNumber, "log_index", ev.LogIndex, "tx", ev.TxHash.Hex(), "error", ev.Err)
		c.tracker.MarkSkipped()
		metrics.RequestsTotal.WithLabelValues(phase, OutcomeDecodeError).Inc()
		return nil
	}

	req := ev.Request
	if !c.tracker.ShouldProcess(req.Nonce) {
		c.log.Debug("Request already handled", "nonce", req.Nonce, "block", ev.BlockNumber)
		metrics.RequestsTotal.WithLabelValues(phase, OutcomeHandled).Inc()
		return nil
	}

	if c.cfg.MaxQuantity > 0 && req.Quantity > c.cfg.MaxQuantity {
		c.log.Error("Skipping malformed mint request",
			"request", req.String(), "block", ev.BlockNumber,
			"error", fmt.Errorf("%w: %w: %d > %d", domain.ErrDecoding, domain.ErrQuantityTooLarge, req.Quantity, c.cfg.MaxQuantity))
		c.tracker.MarkSkipped()
		metrics.RequestsTotal.WithLabelValues(phase, OutcomeDecodeError).Inc()
		return nil
	}
	if req.Quantity == 0 {
		c.log.Warn("Mint request with zero quantity, submitting empty item list", "request", req.String())
	}

	// Drawn once per nonce; every retry, including the next poll's, resubmits the same list.
	key := req.Nonce.String()
	items, ok := c.pending[key]
	if !ok {
		items = c.batcher.BuildItemList(req)
	}
	sub := domain.Submission{Request: req, Items: items}

	// Shutdown does not interrupt a submission; the submit policy bounds it.
	submitCtx := context.WithoutCancel(ctx)
	start := time.Now()
	var receipt *domain.Receipt
	err := c.caller.Do(submitCtx, c.cfg.Policies.Submit, func(ctx context.Context) error {
		r, err := c.submitter.SubmitMint(ctx, sub)
		receipt = r
		return err
	})

	switch {
	case err == nil:
		if receipt == nil {
			receipt = &domain.Receipt{}
		}
		delete(c.pending, key)
		c.tracker.MarkHandled(req.Nonce)
		metrics.HighWater.Set(bigFloat(req.Nonce))
		metrics.RequestsTotal.WithLabelValues(phase, OutcomeMinted).Inc()
		recordItems(req.Premium, sub.Items)
		c.log.Info("Mint request fulfilled",
			"request", req.String(),
			"items", sub.Items,
			"tx", receipt.TxHash.Hex(),
			"block", receipt.BlockNumber,
			"gas_used", receipt.GasUsed,
			"duration", time.Since(start))
		return nil

	case rpc.IsReverted(err):
		// The contract refused this nonce; resubmitting cannot change that.
		delete(c.pending, key)
		c.tracker.MarkHandled(req.Nonce)
		metrics.HighWater.Set(bigFloat(req.Nonce))
		metrics.RequestsTotal.WithLabelValues(phase, OutcomeReverted).Inc()
		attrs := []any{"request", req.String(), "items", sub.Items, "error", err}
		if receipt != nil {
			attrs = append(attrs, "tx", receipt.TxHash.Hex())
		}
		c.log.Error("Mint reverted", attrs...)
		return nil

	default:
		c.pending[key] = items
		metrics.RequestsTotal.WithLabelValues(phase, OutcomeFailed).Inc()
		return fmt.Errorf("submit mint for nonce %s: %w", req.Nonce, err)
	}
}

func recordItems(premium bool, items []domain.ItemID) {
	table := lottery.TableFor(premium).Name()
	for _, id := range items {
		metrics.ItemsDrawn.WithLabelValues(table, strconv.Itoa(int(id))).Inc()
	}
}
