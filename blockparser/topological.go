package blockparser

import (
	"github.com/Pranacoin/exchange/chainerrors"
	"github.com/Pranacoin/exchange/chainsource"
	"github.com/Pranacoin/exchange/chainstate"
)

// ClassifyTopological is an alternative implementation of Classify's
// fixed-point: instead of iterating ready/deferred
// partitions, it builds the intra-block dependency DAG once and drains
// it with Kahn's algorithm. It produces byte-identical colored-tx
// ordering to Classify for any input that doesn't hit the recursion cap
// (both walk "ready-set order per depth, depth-first across iterations").
func ClassifyTopological(
	rawBlock *chainsource.RawBlock,
	txs map[string]*chainsource.TxRecord,
	base *chainstate.ChainState,
	cfg Config,
) (*chainstate.Block, *chainstate.StagingView, error) {
	sv := chainstate.NewStagingView(base)

	var coloredTxIDs []string
	var remaining []*chainsource.TxRecord

	for _, txID := range rawBlock.TxIDs {
		tx, ok := txs[txID]
		if !ok {
			return nil, nil, chainerrors.New(chainerrors.CodeInvariantViolation, rawBlock.Height,
				"tx "+txID+" named by raw block but not supplied")
		}
		if tx.ID == cfg.GenesisTxID && rawBlock.Height == cfg.GenesisBlockHeight {
			if err := classifyGenesis(tx, rawBlock.Height, sv); err != nil {
				return nil, nil, err
			}
			coloredTxIDs = append(coloredTxIDs, tx.ID)
			continue
		}
		remaining = append(remaining, tx)
	}

	// Build the dependency DAG: an edge producer -> consumer for every
	// input whose spending_tx_id is itself in remaining.
	index := make(map[string]int, len(remaining))
	for i, tx := range remaining {
		index[tx.ID] = i
	}
	inDegree := make([]int, len(remaining))
	dependents := make([][]int, len(remaining))
	for i, tx := range remaining {
		seen := make(map[int]bool)
		for _, in := range tx.Inputs {
			producerIdx, ok := index[in.SpendingTxID]
			if !ok || seen[producerIdx] {
				continue
			}
			seen[producerIdx] = true
			inDegree[i]++
			dependents[producerIdx] = append(dependents[producerIdx], i)
		}
	}

	// A queue seeded with every zero-in-degree node, drained in original
	// block order within each depth level — identical order to the
	// worklist's ready-set-per-depth traversal.
	queue := make([]int, 0, len(remaining))
	for i := range remaining {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	done := make([]bool, len(remaining))
	processed := 0
	depth := uint32(0)
	for len(queue) > 0 {
		for _, i := range queue {
			tx := remaining[i]
			colored, err := classifyTx(tx, rawBlock.Height, sv)
			if err != nil {
				return nil, nil, err
			}
			if colored {
				coloredTxIDs = append(coloredTxIDs, tx.ID)
			}
			done[i] = true
			processed++
			for _, d := range dependents[i] {
				inDegree[d]--
			}
		}

		// Rebuild the next level by scanning in original block order,
		// so relative order within a depth level matches the worklist's
		// partition-over-remaining traversal exactly.
		next := make([]int, 0)
		for i := range remaining {
			if !done[i] && inDegree[i] == 0 {
				next = append(next, i)
			}
		}
		queue = next
		if len(queue) == 0 {
			break
		}
		depth++
		if depth == cfg.WarnRecursionThreshold+1 {
			log.Warnf("block %d: topological fixed-point has recursed %d times", rawBlock.Height, depth)
		}
		if depth > cfg.MaxIntraBlockRecursions {
			return nil, nil, chainerrors.New(chainerrors.CodeInvariantViolation, rawBlock.Height,
				"intra-block fixed-point exceeded max_intra_block_recursions")
		}
	}

	if processed != len(remaining) {
		return nil, nil, chainerrors.New(chainerrors.CodeInvariantViolation, rawBlock.Height,
			"intra-block dependency graph contains a cycle")
	}

	block := &chainstate.Block{
		Height:       rawBlock.Height,
		Hash:         rawBlock.Hash,
		PreviousHash: rawBlock.PreviousHash,
		ColoredTxIDs: coloredTxIDs,
	}
	return block, sv, nil
}
