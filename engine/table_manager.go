package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"holdem-engine/models"
)

var ErrTableOccupied = errors.New("table has seated players")

// Wallet moves money between a player's balance and table stacks.
type Wallet interface {
	Debit(ctx context.Context, playerID string, amount int, reference string) error
	Credit(ctx context.Context, playerID string, amount int, reference string) error
	Settle(ctx context.Context, settled models.HandSettled) error
}

// HandSink stores settled hands for audit and history queries.
type HandSink interface {
	RecordHand(ctx context.Context, settled models.HandSettled) error
}

type ManagerOptions struct {
	Clock     quartz.Clock
	Logger    zerolog.Logger
	Ledger    IdempotencyLedger
	Publisher Publisher
	Wallet    Wallet
	Sink      HandSink
	NewDeck   func() *models.Deck

	// EmptyTableTTL is how long a table without seated players survives.
	// Negative disables collection.
	EmptyTableTTL time.Duration
	GCInterval    time.Duration

	// OnDestroy is called after a table is removed from the directory.
	OnDestroy func(tableID string)
}

type settlementJob struct {
	name string
	run  func(ctx context.Context) error
	done chan struct{}
}

// TableManager is the directory of running tables. It owns their lifecycle
// and performs wallet and persistence I/O outside the table serializers.
type TableManager struct {
	mu     sync.RWMutex
	tables map[string]*Table

	opts   ManagerOptions
	clock  quartz.Clock
	logger zerolog.Logger

	jobs   chan settlementJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTableManager(opts ManagerOptions) *TableManager {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.EmptyTableTTL == 0 {
		opts.EmptyTableTTL = 10 * time.Minute
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	tm := &TableManager{
		tables: make(map[string]*Table),
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger,
		jobs:   make(chan settlementJob, 1024),
		ctx:    ctx,
		cancel: cancel,
	}

	tm.wg.Add(1)
	go tm.settlementLoop()

	if opts.EmptyTableTTL > 0 {
		opts.Clock.TickerFunc(ctx, opts.GCInterval, func() error {
			tm.CollectGarbage(ctx)
			return nil
		}, "directory", "gc")
	}
	return tm
}

// CreateTable registers a new table under a generated id.
func (tm *TableManager) CreateTable(name string, cfg models.TableConfig) (*Table, error) {
	return tm.CreateTableWithID(uuid.NewString(), name, cfg)
}

func (tm *TableManager) CreateTableWithID(tableID, name string, cfg models.TableConfig) (*Table, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.tables[tableID]; exists {
		return nil, fmt.Errorf("table %s already exists", tableID)
	}
	table, err := NewTable(tableID, name, cfg, TableOptions{
		Clock:     tm.clock,
		Logger:    tm.logger,
		Ledger:    tm.opts.Ledger,
		Publisher: tm.opts.Publisher,
		NewDeck:   tm.opts.NewDeck,
		OnSettled: tm.onSettled,
		OnCashOut: func(playerID string, amount int) { tm.onCashOut(tableID, playerID, amount) },
	})
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", tableID, err)
	}
	tm.tables[tableID] = table
	tm.logger.Info().Str("table_id", tableID).Str("name", name).Int("max_seats", table.Config().MaxSeats).Msg("table created")
	return table, nil
}

// DestroyTable closes and removes a table. Tables with seated players are
// refused.
func (tm *TableManager) DestroyTable(ctx context.Context, tableID string) error {
	table, err := tm.GetTable(tableID)
	if err != nil {
		return err
	}
	sum, err := table.Summary(ctx)
	if err != nil {
		return err
	}
	if sum.Seated > 0 {
		return ErrTableOccupied
	}
	tm.remove(tableID)
	return nil
}

func (tm *TableManager) remove(tableID string) {
	tm.mu.Lock()
	table, exists := tm.tables[tableID]
	delete(tm.tables, tableID)
	tm.mu.Unlock()

	if !exists {
		return
	}
	table.Close()
	tm.logger.Info().Str("table_id", tableID).Msg("table destroyed")
	if tm.opts.OnDestroy != nil {
		tm.opts.OnDestroy(tableID)
	}
}

// CollectGarbage destroys tables that have had no seated players for
// longer than EmptyTableTTL. Frozen tables are kept for the operator.
func (tm *TableManager) CollectGarbage(ctx context.Context) int {
	collected := 0
	for _, table := range tm.snapshotTables() {
		sum, err := table.Summary(ctx)
		if err != nil {
			continue
		}
		if sum.Seated > 0 || sum.Frozen || tm.clock.Since(sum.LastActive) < tm.opts.EmptyTableTTL {
			continue
		}
		tm.remove(sum.TableID)
		collected++
	}
	if collected > 0 {
		tm.logger.Info().Int("collected", collected).Msg("empty tables collected")
	}
	return collected
}

func (tm *TableManager) GetTable(tableID string) (*Table, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	table, exists := tm.tables[tableID]
	if !exists {
		return nil, ErrTableNotFound
	}
	return table, nil
}

func (tm *TableManager) snapshotTables() []*Table {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	tables := make([]*Table, 0, len(tm.tables))
	for _, t := range tm.tables {
		tables = append(tables, t)
	}
	return tables
}

func (tm *TableManager) ListTables(ctx context.Context) []models.TableSummary {
	tables := tm.snapshotTables()
	summaries := make([]models.TableSummary, 0, len(tables))
	for _, t := range tables {
		sum, err := t.Summary(ctx)
		if err != nil {
			continue
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Name != summaries[j].Name {
			return summaries[i].Name < summaries[j].Name
		}
		return summaries[i].TableID < summaries[j].TableID
	})
	return summaries
}

// Submit runs the player's decision through the table's action processor.
// Failures are reported as reasons.
func (tm *TableManager) Submit(ctx context.Context, tableID, playerID string, action models.Action, requestID string) (models.ActionResult, error) {
	table, err := tm.GetTable(tableID)
	if err != nil {
		return models.ActionResult{Reason: models.ReasonTableNotFound}, nil
	}
	return resultFor(table.Submit(ctx, playerID, action, requestID))
}

func resultFor(result models.ActionResult, err error) (models.ActionResult, error) {
	if err != nil {
		return resultForError(err)
	}
	return result, nil
}

func resultForError(err error) (models.ActionResult, error) {
	if reason, ok := ReasonOf(err); ok {
		return models.ActionResult{Reason: reason}, nil
	}
	return models.ActionResult{}, err
}

func (tm *TableManager) StartHand(ctx context.Context, tableID string) error {
	table, err := tm.GetTable(tableID)
	if err != nil {
		return err
	}
	return table.StartHand(ctx)
}

// JoinTable takes the buy-in from the wallet and seats the player. The
// buy-in is refunded when the table refuses the seat.
func (tm *TableManager) JoinTable(ctx context.Context, tableID, playerID, playerName string, seat, buyIn int) (int, error) {
	table, err := tm.GetTable(tableID)
	if err != nil {
		return -1, err
	}
	cfg := table.Config()
	if buyIn < cfg.MinBuyIn || buyIn > cfg.MaxBuyIn {
		return -1, reject(models.ReasonInvalidBuyIn, "buy-in %d outside %d-%d", buyIn, cfg.MinBuyIn, cfg.MaxBuyIn)
	}

	ref := "buy-in:" + tableID
	if tm.opts.Wallet != nil {
		if err := tm.opts.Wallet.Debit(ctx, playerID, buyIn, ref); err != nil {
			return -1, fmt.Errorf("debit buy-in: %w", err)
		}
	}

	seat, err = table.SeatPlayer(ctx, playerID, playerName, seat, buyIn)
	if err != nil {
		tm.refund(playerID, buyIn, "refund:"+tableID)
		return -1, err
	}
	tm.logger.Info().Str("table_id", tableID).Str("player_id", playerID).Int("seat", seat).Int("buy_in", buyIn).Msg("player seated")
	return seat, nil
}

func (tm *TableManager) refund(playerID string, amount int, ref string) {
	if tm.opts.Wallet == nil || amount <= 0 {
		return
	}
	tm.enqueue("refund", func(ctx context.Context) error {
		return tm.opts.Wallet.Credit(ctx, playerID, amount, ref)
	})
}

func (tm *TableManager) LeaveTable(ctx context.Context, tableID, playerID string) (LeaveResult, error) {
	table, err := tm.GetTable(tableID)
	if err != nil {
		return LeaveResult{Seat: -1}, err
	}
	return table.Leave(ctx, playerID)
}

// AddChips takes amount from the wallet and adds it to the player's stack.
func (tm *TableManager) AddChips(ctx context.Context, tableID, playerID string, amount int) error {
	table, err := tm.GetTable(tableID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return reject(models.ReasonInvalidBuyIn, "amount must be positive")
	}
	if tm.opts.Wallet != nil {
		if err := tm.opts.Wallet.Debit(ctx, playerID, amount, "top-up:"+tableID); err != nil {
			return fmt.Errorf("debit top-up: %w", err)
		}
	}
	if err := table.AddChips(ctx, playerID, amount); err != nil {
		tm.refund(playerID, amount, "refund:"+tableID)
		return err
	}
	return nil
}

// MoveSeat leaves one table and joins another with the cashed-out stack.
// The two steps are independent; if the join fails the chips stay in the
// player's wallet.
func (tm *TableManager) MoveSeat(ctx context.Context, playerID, playerName, fromTableID, toTableID string, seat int) (int, error) {
	if _, err := tm.GetTable(toTableID); err != nil {
		return -1, err
	}
	res, err := tm.LeaveTable(ctx, fromTableID, playerID)
	if err != nil {
		return -1, err
	}
	if res.Deferred {
		return -1, reject(models.ReasonHandInProgress, "seat %d leaves after the current hand", res.Seat)
	}
	if err := tm.Flush(ctx); err != nil {
		return -1, err
	}

	to, err := tm.GetTable(toTableID)
	if err != nil {
		return -1, err
	}
	buyIn := min(res.CashOut, to.Config().MaxBuyIn)
	return tm.JoinTable(ctx, toTableID, playerID, playerName, seat, buyIn)
}

func (tm *TableManager) onCashOut(tableID, playerID string, amount int) {
	if tm.opts.Wallet == nil {
		return
	}
	tm.enqueue("cash-out", func(ctx context.Context) error {
		return tm.opts.Wallet.Credit(ctx, playerID, amount, "cash-out:"+tableID)
	})
}

func (tm *TableManager) onSettled(settled models.HandSettled) {
	if tm.opts.Sink != nil {
		tm.enqueue("record-hand", func(ctx context.Context) error {
			return tm.opts.Sink.RecordHand(ctx, settled)
		})
	}
	if tm.opts.Wallet != nil {
		tm.enqueue("settle", func(ctx context.Context) error {
			return tm.opts.Wallet.Settle(ctx, settled)
		})
	}
}

// enqueue hands work to the settlement worker without blocking the caller,
// which may be a table serializer.
func (tm *TableManager) enqueue(name string, run func(ctx context.Context) error) {
	job := settlementJob{name: name, run: run}
	select {
	case tm.jobs <- job:
	default:
		tm.logger.Warn().Str("job", name).Msg("settlement queue full, running detached")
		go tm.runJob(job)
	}
}

func (tm *TableManager) settlementLoop() {
	defer tm.wg.Done()
	for {
		select {
		case job := <-tm.jobs:
			tm.runJob(job)
		case <-tm.ctx.Done():
			for {
				select {
				case job := <-tm.jobs:
					tm.runJob(job)
				default:
					return
				}
			}
		}
	}
}

func (tm *TableManager) runJob(job settlementJob) {
	if job.done != nil {
		close(job.done)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := job.run(ctx); err != nil {
		tm.logger.Error().Err(err).Str("job", job.name).Msg("settlement job failed")
	}
}

// Flush waits until every settlement job queued so far has run.
func (tm *TableManager) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case tm.jobs <- settlementJob{name: "flush", done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes every table and drains the settlement queue.
func (tm *TableManager) Stop() {
	for _, table := range tm.snapshotTables() {
		table.Close()
	}
	tm.cancel()
	tm.wg.Wait()
	tm.logger.Info().Msg("table manager stopped")
}
