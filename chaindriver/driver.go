// Package chaindriver orchestrates catch-up and live ingestion over
// chainstate.ChainState and blockparser, enforcing block linkage and
// surfacing orphans.
package chaindriver

import (
	"context"
	"sync"

	"github.com/Pranacoin/exchange/blockparser"
	"github.com/Pranacoin/exchange/chainerrors"
	"github.com/Pranacoin/exchange/chainsource"
	"github.com/Pranacoin/exchange/chainstate"
	"github.com/Pranacoin/exchange/internal/panics"
)

// OnBlock is invoked once per committed block, on the driver's worker
// goroutine, with a ChainState that already reflects the commit.
type OnBlock func(*chainstate.Block)

// Progress is invoked after each block committed during a catch-up
// sweep, letting a caller track how far the sweep has gotten.
type Progress func(height, headHeight uint32)

// PreMaterializedBlock is one entry for the pre-materialized ingestion
// path: a raw block together with every transaction it
// names, supplied directly rather than fetched from BlockSource.
type PreMaterializedBlock struct {
	Raw *chainsource.RawBlock
	Txs map[string]*chainsource.TxRecord
}

// ChainDriver runs the single dedicated worker goroutine that is the only
// writer of the ChainState it was built with.
type ChainDriver struct {
	state  *chainstate.ChainState
	source chainsource.BlockSource

	jobs chan func()
	quit chan struct{}
	once sync.Once
}

// New starts a ChainDriver's worker goroutine over state, fetching raw
// blocks and transactions from source.
func New(state *chainstate.ChainState, source chainsource.BlockSource) *ChainDriver {
	d := &ChainDriver{
		state:  state,
		source: source,
		jobs:   make(chan func(), 16),
		quit:   make(chan struct{}),
	}
	spawn := panics.GoroutineWrapperFunc(log)
	spawn(d.run)
	return d
}

// Close stops accepting new work. In-flight work already submitted still
// runs to completion; this does not interrupt it.
func (d *ChainDriver) Close() {
	d.once.Do(func() { close(d.quit) })
}

func (d *ChainDriver) run() {
	for {
		select {
		case job := <-d.jobs:
			job()
		case <-d.quit:
			return
		}
	}
}

// submit hands job to the worker goroutine and waits for either job to
// signal completion (by the caller closing over a result channel) or ctx
// to be cancelled. A cancelled ctx does not stop job from running to
// completion on the worker (the in-progress block still can't be
// half-committed), it only stops this call from waiting on it.
func (d *ChainDriver) submit(ctx context.Context, job func()) error {
	select {
	case <-d.quit:
		return chainerrors.New(chainerrors.CodeSourceUnavailable, 0, "chain driver is closed")
	default:
	}

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		job()
	}
	select {
	case d.jobs <- wrapped:
	case <-d.quit:
		return chainerrors.New(chainerrors.CodeSourceUnavailable, 0, "chain driver is closed")
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

// ParseBlocks is the catch-up sweep: for each height in
// [startHeight, headHeight], fetch the raw block and its transactions,
// classify, commit, and notify.
func (d *ChainDriver) ParseBlocks(
	ctx context.Context,
	startHeight, headHeight uint32,
	cfg blockparser.Config,
	onBlock OnBlock,
	progress Progress,
) error {
	var result error
	err := d.submit(ctx, func() {
		result = d.parseBlocksSync(ctx, startHeight, headHeight, cfg, onBlock, progress)
	})
	if err != nil {
		return err
	}
	return result
}

func (d *ChainDriver) parseBlocksSync(
	ctx context.Context,
	startHeight, headHeight uint32,
	cfg blockparser.Config,
	onBlock OnBlock,
	progress Progress,
) error {
	for height := startHeight; height <= headHeight; height++ {
		raw, err := d.source.RequestBlock(ctx, height)
		if err != nil {
			return chainsource.WrapSourceError(height, "RequestBlock", err)
		}
		txs, err := d.fetchTxs(ctx, raw)
		if err != nil {
			return err
		}
		block, err := d.classifyAndCommit(raw, txs, cfg)
		if err != nil {
			return err
		}
		if onBlock != nil {
			onBlock(block)
		}
		if progress != nil {
			progress(height, headHeight)
		}
	}
	return nil
}

// ParseBsqBlocks is the pre-materialized ingestion path:
// every entry already carries its transactions, so BlockSource is never
// consulted.
func (d *ChainDriver) ParseBsqBlocks(
	ctx context.Context,
	blocks []*PreMaterializedBlock,
	cfg blockparser.Config,
	onBlock OnBlock,
) error {
	var result error
	err := d.submit(ctx, func() {
		for _, entry := range blocks {
			block, err := d.classifyAndCommit(entry.Raw, entry.Txs, cfg)
			if err != nil {
				result = err
				return
			}
			if onBlock != nil {
				onBlock(block)
			}
		}
	})
	if err != nil {
		return err
	}
	return result
}

// ParseBlock is the live single-block path: one block
// arrived; fetch its transactions, classify, commit.
func (d *ChainDriver) ParseBlock(
	ctx context.Context,
	raw *chainsource.RawBlock,
	cfg blockparser.Config,
) (*chainstate.Block, error) {
	var block *chainstate.Block
	var result error
	err := d.submit(ctx, func() {
		txs, err := d.fetchTxs(ctx, raw)
		if err != nil {
			result = err
			return
		}
		block, result = d.classifyAndCommit(raw, txs, cfg)
	})
	if err != nil {
		return nil, err
	}
	return block, result
}

func (d *ChainDriver) fetchTxs(ctx context.Context, raw *chainsource.RawBlock) (map[string]*chainsource.TxRecord, error) {
	txs := make(map[string]*chainsource.TxRecord, len(raw.TxIDs))
	for _, txID := range raw.TxIDs {
		tx, err := d.source.RequestTransaction(ctx, txID, raw.Height)
		if err != nil {
			return nil, chainsource.WrapSourceError(raw.Height, "RequestTransaction", err)
		}
		txs[txID] = tx
	}
	return txs, nil
}

// classifyAndCommit runs the PENDING -> PARSING -> COMMITTED state
// machine for one block: linkage check, classification,
// atomic commit.
func (d *ChainDriver) classifyAndCommit(
	raw *chainsource.RawBlock,
	txs map[string]*chainsource.TxRecord,
	cfg blockparser.Config,
) (*chainstate.Block, error) {
	if !d.state.IsConnecting(raw.PreviousHash) {
		log.Infof("block %d: orphan detected (previous_hash %s doesn't match chain tip)",
			raw.Height, raw.PreviousHash)
		return nil, chainerrors.New(chainerrors.CodeOrphanDetected, raw.Height,
			"previous_hash does not match chain tip")
	}

	log.Tracef("block %d: parsing", raw.Height)
	block, sv, err := blockparser.Classify(raw, txs, d.state, cfg)
	if err != nil {
		return d.handleParseFailure(raw.Height, cfg, err)
	}

	if err := d.state.Commit(sv, block); err != nil {
		return d.handleParseFailure(raw.Height, cfg, err)
	}

	log.Debugf("block %d: committed with %d colored tx(s)", raw.Height, len(block.ColoredTxIDs))
	return block, nil
}

func (d *ChainDriver) handleParseFailure(height uint32, cfg blockparser.Config, err error) (*chainstate.Block, error) {
	log.Errorf("block %d: parse failed: %v", height, err)
	chainErr, ok := err.(*chainerrors.ChainError)
	if ok && chainErr.Code == chainerrors.CodeInvariantViolation && cfg.DevMode {
		panic(chainErr)
	}
	return nil, err
}
