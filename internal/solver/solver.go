// Package solver polls the registry for open intents, pays each one out on
// its destination chain and reports the payout hash back.
package solver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"intentledger/internal/config"
	"intentledger/internal/logger"
	"intentledger/internal/payout"
	"intentledger/internal/registry"
)

var (
	// ErrNotRecorded means the registry accepted the fulfill call but closed
	// no intent, so the payout is not reflected in the registry.
	ErrNotRecorded = errors.New("solver: registry did not record the payout")
	// ErrDuplicateID means another intent with the same id was already
	// settled. The registry can only close the first match.
	ErrDuplicateID = errors.New("solver: intent id already settled")
)

// Registry is the subset of the registry API the solver needs.
type Registry interface {
	ListOpenIntents(ctx context.Context) ([]registry.PaymentIntent, error)
	// GetIntent returns the first intent stored under id, or nil.
	GetIntent(ctx context.Context, id string) (*registry.PaymentIntent, error)
	// MarkFulfilled reports whether the call closed an open intent.
	MarkFulfilled(ctx context.Context, id, payoutTxHash string) (bool, error)
}

type Options struct {
	Interval time.Duration
	Retry    config.RetryConfig
	DLQPath  string
	// Chains restricts which destination chains are served. Empty means all.
	Chains []string
}

type Solver struct {
	registry Registry
	payout   payout.Client
	log      logger.Logger
	metrics  *metricsRegistry
	interval time.Duration
	retry    config.RetryConfig
	dlqPath  string
	chains   map[string]struct{}

	mu sync.Mutex
	// paid holds payouts that were sent but not yet recorded, so a failed
	// mark is retried without paying twice.
	paid map[string]string
	// settled maps every id this process paid and recorded to its payout hash.
	settled map[string]string
	// dead holds intents already written to the DLQ.
	dead map[string]struct{}
}

// Result summarizes one polling pass.
type Result struct {
	Fulfilled int
	Failed    int
	Skipped   int
}

func New(reg Registry, pay payout.Client, opts Options, log logger.Logger) *Solver {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	chains := make(map[string]struct{}, len(opts.Chains))
	for _, c := range opts.Chains {
		if c = strings.TrimSpace(c); c != "" {
			chains[c] = struct{}{}
		}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Solver{
		registry: reg,
		payout:   pay,
		log:      log,
		metrics:  newMetricsRegistry(),
		interval: interval,
		retry:    opts.Retry,
		dlqPath:  opts.DLQPath,
		chains:   chains,
		paid:     make(map[string]string),
		settled:  make(map[string]string),
		dead:     make(map[string]struct{}),
	}
	s.updateDLQDepth()
	return s
}

// MetricsHandler serves the solver's Prometheus registry.
func (s *Solver) MetricsHandler() http.Handler {
	return s.metrics.handler()
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (s *Solver) Run(ctx context.Context) error {
	s.log.Notice("Starting solver loop (interval: %s)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Solver loop error: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce handles every open intent visible right now.
func (s *Solver) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	defer func() {
		s.metrics.addIntents("fulfilled", res.Fulfilled)
		s.metrics.addIntents("failed", res.Failed)
		s.metrics.addIntents("skipped", res.Skipped)
	}()

	intents, err := s.registry.ListOpenIntents(ctx)
	if err != nil {
		return res, err
	}

	for _, intent := range intents {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !s.serves(intent) {
			res.Skipped++
			continue
		}
		shadowed, err := s.shadowedBy(ctx, intent)
		if err != nil {
			s.log.Error("lookup of intent %s failed: %v", intent.ID, err)
			res.Failed++
			continue
		}
		if shadowed != "" {
			s.log.Error("intent %s is still open but its id was already settled by payout %s; not paying again",
				intent.ID, shadowed)
			s.markDead(intent, "duplicate_id", fmt.Errorf("%w: %s (payout %s)", ErrDuplicateID, intent.ID, shadowed))
			res.Skipped++
			continue
		}
		if err := s.fulfill(ctx, intent); err != nil {
			res.Failed++
			continue
		}
		res.Fulfilled++
	}
	return res, nil
}

func (s *Solver) serves(intent registry.PaymentIntent) bool {
	if intent.State() != registry.StateOpen {
		return false
	}
	s.mu.Lock()
	_, isDead := s.dead[intent.ID]
	s.mu.Unlock()
	if isDead {
		return false
	}
	if len(s.chains) == 0 {
		return true
	}
	_, ok := s.chains[intent.DestChain]
	return ok
}

// shadowedBy returns the payout hash that already settled intent's id, or ""
// when the intent can still be closed. mark_fulfilled only ever touches the
// first intent stored under an id, so an open intent whose first match is
// fulfilled can never be recorded and must not be paid.
func (s *Solver) shadowedBy(ctx context.Context, intent registry.PaymentIntent) (string, error) {
	s.mu.Lock()
	hash, ok := s.settled[intent.ID]
	s.mu.Unlock()
	if ok {
		return hash, nil
	}

	first, err := s.registry.GetIntent(ctx, intent.ID)
	if err != nil {
		return "", err
	}
	if first == nil || first.State() == registry.StateOpen {
		return "", nil
	}
	hash = "unknown"
	if first.PayoutTxHash != nil {
		hash = *first.PayoutTxHash
	}
	return hash, nil
}

func (s *Solver) fulfill(ctx context.Context, intent registry.PaymentIntent) error {
	s.log.Info("Solver picked intent %s -> %s (%s %s) amount=%s",
		intent.ID, intent.DestAddress, intent.DestChain, intent.DestAsset, intent.AmountAtomic)

	s.mu.Lock()
	txHash, alreadyPaid := s.paid[intent.ID]
	s.mu.Unlock()

	if !alreadyPaid {
		receipt, err := s.payWithRetry(ctx, payout.FromIntent(intent))
		if err != nil {
			s.log.Error("payout for intent %s failed: %v", intent.ID, err)
			if ctx.Err() == nil {
				s.markDead(intent, "payout", err)
			}
			return err
		}
		txHash = receipt.TxHash
		s.mu.Lock()
		s.paid[intent.ID] = txHash
		s.mu.Unlock()
	}

	recorded, err := s.registry.MarkFulfilled(ctx, intent.ID, txHash)
	if err != nil {
		s.log.Error("payout %s sent for intent %s but marking failed: %v", txHash, intent.ID, err)
		return err
	}

	s.mu.Lock()
	delete(s.paid, intent.ID)
	s.settled[intent.ID] = txHash
	s.mu.Unlock()

	if !recorded {
		err := fmt.Errorf("%w: intent %s payout %s", ErrNotRecorded, intent.ID, txHash)
		s.log.Error("%v", err)
		s.markDead(intent, "mark", err)
		return err
	}

	s.log.Notice("Intent %s fulfilled with payout tx %s", intent.ID, txHash)
	return nil
}

func (s *Solver) markDead(intent registry.PaymentIntent, stage string, err error) {
	s.mu.Lock()
	s.dead[intent.ID] = struct{}{}
	s.mu.Unlock()
	s.writeDLQ(intent, stage, err)
	s.updateDLQDepth()
}

func (s *Solver) updateDLQDepth() int {
	depth := s.DLQDepth()
	s.metrics.setDLQDepth(depth)
	return depth
}

func (s *Solver) payWithRetry(ctx context.Context, ins payout.Instruction) (payout.Receipt, error) {
	attempts := s.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	backoff := s.retry.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	for i := 1; i <= attempts; i++ {
		receipt, err := s.payout.Pay(ctx, ins)
		if err == nil {
			s.metrics.incPayoutAttempt("success")
			return receipt, nil
		}
		if !isRetryable(err) || i == attempts {
			s.metrics.incPayoutAttempt("failed")
			return payout.Receipt{}, err
		}

		s.metrics.incPayoutAttempt("retry")
		s.log.Debug("payout attempt %d/%d for %s failed: %v", i, attempts, ins.IntentID, err)
		sleep := backoff
		if s.retry.MaxBackoff > 0 && sleep > s.retry.MaxBackoff {
			sleep = s.retry.MaxBackoff
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return payout.Receipt{}, ctx.Err()
		}

		if s.retry.BackoffMultiplier > 1 {
			backoff = backoff * time.Duration(s.retry.BackoffMultiplier)
		}
	}

	return payout.Receipt{}, fmt.Errorf("exhausted retries")
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, payout.ErrPermanent) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
