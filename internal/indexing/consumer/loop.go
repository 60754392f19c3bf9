package consumer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/indexing/metrics"
	"github.com/vietddude/mint-oracle/internal/infra/chain"
)

// Run catches up and then polls until ctx is cancelled. A failed catch-up
// pass is retried after RestartDelay. Run returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.tracker.Stop("context cancelled")

	for {
		err := c.catchUp(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		c.tracker.RecordPoll(err)
		c.log.Error("Catch-up failed, restarting",
			"error", err, "retry_in", c.cfg.RestartDelay)
		if !sleep(ctx, c.cfg.RestartDelay) {
			return nil
		}
	}

	c.steady(ctx)
	return nil
}

// catchUp reads the contract marker, scans StartBlock..head chunk by chunk
// and handles every request above the marker. Progress within the scan is
// kept in the tracker, so a restarted pass resumes at the failed chunk.
func (c *Consumer) catchUp(ctx context.Context) error {
	var marker *big.Int
	err := c.caller.Do(ctx, c.cfg.Policies.Read, func(ctx context.Context) error {
		m, err := c.marker.LastProcessedNonce(ctx)
		marker = m
		return err
	})
	if err != nil {
		return fmt.Errorf("read processing marker: %w", err)
	}
	if c.tracker.Phase() == domain.PhaseInit {
		if err := c.tracker.Begin(marker); err != nil {
			return err
		}
	} else {
		c.tracker.UpdateMarker(marker)
	}
	metrics.ContractMarker.Set(bigFloat(marker))

	var head uint64
	err = c.caller.Do(ctx, c.cfg.Policies.Read, func(ctx context.Context) error {
		h, err := c.source.LatestBlock(ctx)
		head = h
		return err
	})
	if err != nil {
		return fmt.Errorf("read chain head: %w", err)
	}
	metrics.ChainHead.Set(float64(head))

	from := max(c.cfg.StartBlock, c.tracker.NextBlock())
	c.log.Info("Catching up",
		"marker", marker, "from_block", from, "head", head)

	for from <= head {
		to := min(from+c.cfg.ChunkSize-1, head)
		if to < from {
			to = head
		}

		var events []domain.MintRequestEvent
		err := c.caller.Do(ctx, c.cfg.Policies.FetchLogs, func(ctx context.Context) error {
			evs, err := c.source.FetchRange(ctx, from, to)
			events = evs
			return err
		})
		if err != nil {
			return fmt.Errorf("fetch requests [%d, %d]: %w", from, to, err)
		}
		if err := c.handleEvents(ctx, events); err != nil {
			return err
		}

		c.tracker.AdvanceBlock(to + 1)
		metrics.NextBlock.Set(float64(to + 1))
		if to == head {
			break
		}
		from = to + 1
	}

	c.tracker.RecordPoll(nil)
	snap := c.tracker.Snapshot()
	c.log.Info("Caught up",
		"head", head, "high_water", snap.HighWater, "processed", snap.Processed)
	return c.tracker.EnterSteady(head+1, "caught up to head")
}

// steady sleeps PollInterval, then reads everything from NextBlock to the
// head, until ctx is cancelled. Poll errors are recorded and retried on the
// next tick.
func (c *Consumer) steady(ctx context.Context) {
	for {
		c.tracker.SetActivity(domain.ActivitySleeping)
		if !sleep(ctx, c.cfg.PollInterval) {
			return
		}

		c.tracker.SetActivity(domain.ActivityPolling)
		err := c.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		c.tracker.RecordPoll(err)
		if err != nil {
			c.log.Error("Poll failed", "error", err, "next_block", c.tracker.NextBlock())
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	from := c.tracker.NextBlock()

	var batch chain.Batch
	err := c.caller.Do(ctx, c.cfg.Policies.FetchLogs, func(ctx context.Context) error {
		b, err := c.source.FetchSince(ctx, from)
		batch = b
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch requests since %d: %w", from, err)
	}
	metrics.ChainHead.Set(float64(batch.Head))

	if len(batch.Events) > 0 {
		c.tracker.SetActivity(domain.ActivityProcessing)
		c.log.Debug("Polled requests",
			"from_block", from, "head", batch.Head, "events", len(batch.Events))
	}
	// NextBlock stays put on failure so the same range is fetched again.
	if err := c.handleEvents(ctx, batch.Events); err != nil {
		return err
	}

	c.tracker.AdvanceBlock(batch.NextBlock)
	metrics.NextBlock.Set(float64(c.tracker.NextBlock()))
	return nil
}

// handleEvents processes events in order and stops at the first transport
// failure. Cancellation is checked between events only.
func (c *Consumer) handleEvents(ctx context.Context, events []domain.MintRequestEvent) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.processEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func bigFloat(n *big.Int) float64 {
	if n == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}
