// Package control wires the oracle's components and runs them.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/mint-oracle/internal/core/config"
	"github.com/vietddude/mint-oracle/internal/core/cursor"
	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/indexing/consumer"
	"github.com/vietddude/mint-oracle/internal/indexing/health"
	"github.com/vietddude/mint-oracle/internal/indexing/metrics"
	"github.com/vietddude/mint-oracle/internal/infra/chain/evm"
	redisclient "github.com/vietddude/mint-oracle/internal/infra/redis"
	"github.com/vietddude/mint-oracle/internal/infra/rpc"
	"github.com/vietddude/mint-oracle/internal/lottery"
)

// Oracle is the main application struct that manages the consumer lifecycle.
type Oracle struct {
	cfg          config.Config
	client       *ethclient.Client
	contract     *evm.Contract
	submitter    *evm.Submitter
	consumer     *consumer.Consumer
	tracker      *cursor.Tracker
	healthMon    *health.Monitor
	healthServer *health.Server
	redisClient  *redisclient.Client
	lease        *redisclient.Lease
	log          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewOracle creates a new Oracle with all dependencies initialized.
func NewOracle(ctx context.Context, cfg config.Config) (*Oracle, error) {
	log := slog.Default().With("contract", cfg.ContractAddress)

	contract, err := evm.NewContract(common.HexToAddress(cfg.ContractAddress), cfg.ContractABI)
	if err != nil {
		return nil, &config.Error{Field: "CONTRACT_ABI", Msg: err.Error()}
	}
	key, err := evm.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, &config.Error{Field: "PRIVATE_KEY", Msg: "not a valid secp256k1 hex key"}
	}

	client, err := evm.Dial(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, err
	}

	submitter, err := evm.NewSubmitter(ctx, client, contract, key, evm.SubmitterConfig{
		GasLimit:    cfg.GasLimit,
		ReceiptPoll: cfg.ReceiptPoll,
	}, log.With("component", "submitter"))
	if err != nil {
		client.Close()
		return nil, err
	}

	o := &Oracle{
		cfg:       cfg,
		client:    client,
		contract:  contract,
		submitter: submitter,
		log:       log,
	}

	if cfg.LeaseEnabled() {
		o.redisClient, err = redisclient.NewClient(ctx, redisclient.Config{URL: cfg.RedisURL})
		if err != nil {
			client.Close()
			return nil, err
		}
		o.lease = o.redisClient.NewLease(redisclient.LeaseKey(contract.Address()), cfg.LeaseTTL, log)
	}

	o.tracker = cursor.NewTracker()
	o.tracker.SetStateChangeCallback(o.onPhaseChange)

	source := evm.NewSource(client, contract, cfg.LogChunkSize, log.With("component", "source"))
	policies := consumer.DefaultPolicies()
	policies.Submit = policies.Submit.WithTimeout(cfg.SubmitTimeout)
	o.consumer = consumer.New(consumer.Config{
		StartBlock:   cfg.StartBlock,
		PollInterval: cfg.PollInterval,
		RestartDelay: cfg.RestartDelay,
		ChunkSize:    cfg.LogChunkSize,
		MaxQuantity:  cfg.MaxQuantity,
		Policies:     policies,
	}, consumer.Deps{
		Source:    source,
		Marker:    source,
		Submitter: submitter,
		Batcher:   lottery.NewBatcher(lottery.NewDrawer()),
		Caller:    rpc.NewCaller(rpc.Options{RateLimit: cfg.RPCRateLimit, Logger: log.With("component", "rpc")}),
		Tracker:   o.tracker,
	}, log)

	var leaseStatus health.LeaseStatus
	if o.lease != nil {
		leaseStatus = o.lease
	}
	o.healthMon = health.NewMonitor(o.tracker, leaseStatus, cfg.PollInterval).
		WithHead(health.NewHeadCache(source, cfg.PollInterval))
	if cfg.HealthPort > 0 {
		o.healthServer = health.NewServer(o.healthMon, cfg.HealthPort)
	}

	log.Info("Oracle initialized",
		"signer", submitter.From().Hex(),
		"start_block", cfg.StartBlock,
		"poll_interval", cfg.PollInterval,
		"gas_limit", cfg.GasLimit,
		"submit_timeout", cfg.SubmitTimeout,
		"lease", cfg.LeaseEnabled())
	return o, nil
}

// Start starts the oracle and all its components. It returns immediately;
// use Done and Err to follow the run.
func (o *Oracle) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		return fmt.Errorf("oracle already started")
	}

	if o.healthServer != nil {
		go func() {
			if err := o.healthServer.Start(); err != nil {
				o.log.Error("Health server failed", "error", err)
			}
		}()
		o.log.Info("Health server listening", "port", o.cfg.HealthPort)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if o.lease != nil {
			if err := o.lease.Wait(gctx, 0); err != nil {
				return nil
			}
			g.Go(func() error { return o.lease.Keep(gctx) })
		}
		return o.consumer.Run(gctx)
	})

	go func() {
		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
		close(o.done)
	}()
	return nil
}

// Done is closed once the consumer has stopped.
func (o *Oracle) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Err returns why the oracle stopped on its own, such as a lost lease.
func (o *Oracle) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Status returns the consumer position.
func (o *Oracle) Status() domain.Cursor { return o.tracker.Snapshot() }

// Stop cancels the consumer, waits for the in-flight submission to finish
// or ctx to expire, then releases resources.
func (o *Oracle) Stop(ctx context.Context) error {
	o.log.Info("Stopping Oracle...")

	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("consumer did not stop: %w", ctx.Err()))
		}
	}

	if o.lease != nil {
		if err := o.lease.Release(ctx); err != nil {
			o.log.Warn("Failed to release lease", "error", err)
		}
	}
	if o.redisClient != nil {
		if err := o.redisClient.Close(); err != nil {
			o.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if o.healthServer != nil {
		if err := o.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop health server: %w", err))
		}
	}
	o.client.Close()
	return errors.Join(errs...)
}

func (o *Oracle) onPhaseChange(t cursor.Transition) {
	for _, p := range []domain.Phase{domain.PhaseInit, domain.PhaseCatchingUp, domain.PhaseSteady, domain.PhaseStopped} {
		v := 0.0
		if p == t.To {
			v = 1
		}
		metrics.Phase.WithLabelValues(string(p)).Set(v)
	}
	o.log.Info("Consumer phase changed",
		"from", t.From, "to", t.To, "reason", t.Reason,
		"description", cursor.PhaseDescription(t.To))
}
