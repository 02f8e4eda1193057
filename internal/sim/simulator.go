// Package sim drives the market one tick at a time. Each tick executes
// queued external orders, due retries, and the agent policy's orders,
// then ages the books and runs the issuance cadence.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/stocksim/internal/domain"
	"github.com/efreitasn/stocksim/internal/engine"
	"github.com/efreitasn/stocksim/internal/issuance"
	"github.com/efreitasn/stocksim/internal/metrics"
)

// ErrQueueFull is returned by Submit when the order queue is at capacity.
var ErrQueueFull = errors.New("order_queue_full")

// Config tunes the driver.
type Config struct {
	TickInterval time.Duration
	// MaxTicks stops Run after that many ticks. Zero runs until cancelled.
	MaxTicks         uint64
	RetryProbability float64
	RetryDecay       decimal.Decimal
	RetryQuantity    uint64
	Deviation        decimal.Decimal
	// IssuanceInterval finalizes and reissues lots every that many ticks.
	// Zero disables issuance.
	IssuanceInterval uint64
	LotsPerWindow    uint64
	LotSize          uint64
	OrdersPerTick    int
	QueueLimit       int
	Seed             uint64
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.RetryQuantity == 0 {
		c.RetryQuantity = 10
	}
	if c.LotsPerWindow == 0 {
		c.LotsPerWindow = 10
	}
	if c.LotSize == 0 {
		c.LotSize = 100
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = 10000
	}
}

// StepReport summarizes one tick.
type StepReport struct {
	Tick        uint64
	Orders      int
	Outcomes    map[engine.ResultKind]int
	Bets        int
	Failures    int
	Expired     int
	Retries     int
	Allocations []issuance.Allocation
}

// Simulator owns the market and issuance engine. Reads through View may
// run concurrently with each other; Step runs alone.
type Simulator struct {
	mu         sync.RWMutex
	cfg        Config
	market     *engine.Market
	issuance   *issuance.Engine
	policy     Policy
	concession engine.ConcessionPolicy
	retries    *retryTable
	rng        *rand.Rand
	logger     *slog.Logger

	qmu   sync.Mutex
	queue []Order
}

// New creates a Simulator. A nil policy runs only external orders and
// retries; a nil concession policy never concedes.
func New(cfg Config, m *engine.Market, iss *issuance.Engine, policy Policy, concession engine.ConcessionPolicy, logger *slog.Logger) *Simulator {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if concession == nil {
		concession = engine.NeverConcede{}
	}
	return &Simulator{
		cfg:        cfg,
		market:     m,
		issuance:   iss,
		policy:     policy,
		concession: concession,
		retries:    newRetryTable(cfg.RetryDecay),
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		logger:     logger,
	}
}

// Submit queues an order for the next tick after checking its shape and
// that the agent and company exist.
func (s *Simulator) Submit(o Order) error {
	if !o.Side.Valid() {
		return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if o.Quantity == 0 {
		return &domain.ValidationError{Message: "quantity must be > 0"}
	}
	if o.Quantity > domain.MaxQuantity {
		return &domain.ValidationError{Message: fmt.Sprintf("quantity must be <= %d", domain.MaxQuantity)}
	}
	if !o.Price.IsPositive() {
		return &domain.ValidationError{Message: "price must be > 0"}
	}
	if o.Deviation.IsNegative() {
		return &domain.ValidationError{Message: "deviation must be >= 0"}
	}

	s.mu.RLock()
	l := s.market.Ledger()
	hasAgent, hasCompany := l.HasAgent(o.Agent), l.HasCompany(o.Company)
	s.mu.RUnlock()
	if !hasAgent {
		return fmt.Errorf("agent %d: %w", o.Agent, domain.ErrAgentNotFound)
	}
	if !hasCompany {
		return fmt.Errorf("company %d: %w", o.Company, domain.ErrCompanyNotFound)
	}

	s.qmu.Lock()
	defer s.qmu.Unlock()
	if len(s.queue) >= s.cfg.QueueLimit {
		return ErrQueueFull
	}
	s.queue = append(s.queue, o)
	return nil
}

// Queued returns the number of orders waiting for the next tick.
func (s *Simulator) Queued() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue)
}

// PendingRetries returns the size of the retry table.
func (s *Simulator) PendingRetries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retries.len()
}

// View runs fn with shared access to the market and issuance engine. fn
// must not mutate either.
func (s *Simulator) View(fn func(m *engine.Market, iss *issuance.Engine)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.market, s.issuance)
}

func (s *Simulator) drainQueue() []Order {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// Step runs one tick.
func (s *Simulator) Step(ctx context.Context) (StepReport, error) {
	if err := ctx.Err(); err != nil {
		return StepReport{}, err
	}
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rep := StepReport{Outcomes: make(map[engine.ResultKind]int)}

	orders := s.drainQueue()
	retries := s.retries.due(s.rng, s.cfg.RetryProbability, s.cfg.RetryQuantity, s.cfg.Deviation, s.market.Ledger())
	rep.Retries = len(retries)
	orders = append(orders, retries...)
	if s.policy != nil {
		orders = append(orders, s.policy.Orders(s.market, s.issuance, s.cfg.OrdersPerTick)...)
	}
	rep.Orders = len(orders)
	for _, o := range orders {
		s.execute(o, &rep)
	}

	tick := s.market.Tick()
	rep.Tick = tick.Tick
	rep.Expired = len(tick.Expired) + len(tick.ExpiredOptions)
	for _, e := range tick.Expired {
		metrics.OffersExpired.WithLabelValues(e.Side.String()).Inc()
		s.retries.record(e.Offer.OffererID, e.Company, e.Side, e.Offer.StrikePrice)
	}
	for _, e := range tick.ExpiredOptions {
		metrics.OffersExpired.WithLabelValues(e.Side.String()).Inc()
		s.retries.record(e.Offer.OffererID, e.Company, e.Side, e.Offer.StrikePrice)
	}

	s.runIssuance(tick.Tick, &rep)

	book := s.market.Book()
	metrics.OpenOffers.WithLabelValues(domain.SideBuy.String()).Set(float64(book.Total(domain.SideBuy)))
	metrics.OpenOffers.WithLabelValues(domain.SideSell.String()).Set(float64(book.Total(domain.SideSell)))

	s.logger.Debug("tick",
		slog.Uint64("tick", rep.Tick),
		slog.Int("orders", rep.Orders),
		slog.Int("failures", rep.Failures),
		slog.Int("expired", rep.Expired),
	)
	return rep, nil
}

func (s *Simulator) execute(o Order, rep *StepReport) {
	if o.PreferIssuance && o.Side == domain.SideBuy && s.issuance != nil && s.issuance.IsOpen(o.Company) {
		lots, _ := s.issuance.Lots(o.Company)
		n := o.Quantity / lots.LotSize
		if n == 0 {
			n = 1
		}
		if err := s.issuance.AddBet(o.Company, o.Agent, n); err != nil {
			s.fail(o, err, rep)
			return
		}
		rep.Bets++
		return
	}

	res, err := s.market.Execute(o.Request, s.concession)
	if err != nil {
		s.fail(o, err, rep)
		return
	}
	rep.Outcomes[res.Kind]++
	metrics.TradesTotal.WithLabelValues(res.Kind.String()).Inc()
	if res.Transaction != nil {
		metrics.SharesTraded.Add(float64(res.Transaction.Shares))
	}
}

func (s *Simulator) fail(o Order, err error, rep *StepReport) {
	rep.Failures++
	metrics.OrderFailures.WithLabelValues(failureReason(err)).Inc()
	level := slog.LevelWarn
	if !engine.IsRequestError(err) && !errors.Is(err, domain.ErrLotsClosed) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "order skipped",
		slog.Uint64("agent_id", uint64(o.Agent)),
		slog.Uint64("company_id", uint64(o.Company)),
		slog.String("side", o.Side.String()),
		slog.String("error", err.Error()),
	)
}

func failureReason(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, domain.ErrUnspendable):
		return "unspendable"
	case errors.Is(err, domain.ErrAgentNotFound):
		return "agent_not_found"
	case errors.Is(err, domain.ErrCompanyNotFound):
		return "company_not_found"
	case errors.Is(err, domain.ErrOfferNotFound):
		return "offer_not_found"
	case errors.Is(err, domain.ErrLotsClosed):
		return "lots_closed"
	}
	return "internal"
}

// shockSpan bounds the random reissue shock to ±10%.
const shockSpan = 0.1

func (s *Simulator) runIssuance(tick uint64, rep *StepReport) {
	if s.issuance == nil || s.cfg.IssuanceInterval == 0 || tick%s.cfg.IssuanceInterval != 0 {
		return
	}
	for _, company := range s.issuance.OpenCompanies() {
		alloc, err := s.issuance.Finalize(company)
		if err != nil {
			s.logger.Error("finalize lots",
				slog.Uint64("company_id", uint64(company)),
				slog.String("error", err.Error()),
			)
			continue
		}
		rep.Allocations = append(rep.Allocations, alloc)
		metrics.IssuanceLotsAllocated.Add(float64(alloc.LotsAllocated))
	}
	for _, company := range s.market.Ledger().Companies() {
		current := decimal.Zero
		if mv, err := s.market.Prices().Value(company); err == nil {
			current = mv.CurrentPrice
		}
		shock := decimal.NewFromFloat((s.rng.Float64()*2 - 1) * shockSpan).Round(4)
		if _, err := s.issuance.Reissue(company, current, shock, s.cfg.LotsPerWindow, s.cfg.LotSize); err != nil {
			s.logger.Error("reissue lots",
				slog.Uint64("company_id", uint64(company)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Run calls Step every TickInterval until ctx is done or MaxTicks ticks
// have run.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("simulation started", slog.Duration("interval", s.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rep, err := s.Step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if s.cfg.MaxTicks > 0 && rep.Tick >= s.cfg.MaxTicks {
				s.logger.Info("simulation reached max ticks", slog.Uint64("tick", rep.Tick))
				return nil
			}
		}
	}
}

// Settle refunds every resting offer and open bet and returns a snapshot
// of the settled market. The simulator should not be stepped afterwards.
func (s *Simulator) Settle() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	offers := s.market.Drain()
	bets := 0
	if s.issuance != nil {
		bets = s.issuance.CancelAll()
	}
	s.logger.Info("market settled", slog.Int("offers_refunded", offers), slog.Int("bets_refunded", bets))
	return s.market.Snapshot()
}
