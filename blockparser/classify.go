// Package blockparser classifies one block's transactions into the
// colored set: a genesis base case, then a
// ready/deferred fixed-point over intra-block dependencies applying the
// per-tx coloring rule.
package blockparser

import (
	"github.com/Pranacoin/exchange/chainerrors"
	"github.com/Pranacoin/exchange/chainsource"
	"github.com/Pranacoin/exchange/chainstate"
)

// Classify classifies every tx of rawBlock, mutating the returned staging
// view (not yet committed to base) and producing the colored Block
// record. txs must contain every tx id named by rawBlock.TxIDs. The
// caller commits the result atomically via ChainState.Commit, or
// discards it on error.
func Classify(
	rawBlock *chainsource.RawBlock,
	txs map[string]*chainsource.TxRecord,
	base *chainstate.ChainState,
	cfg Config,
) (*chainstate.Block, *chainstate.StagingView, error) {
	sv := chainstate.NewStagingView(base)

	var coloredTxIDs []string
	var remaining []*chainsource.TxRecord

	// Step 1 — genesis check. Genesis txs are classified immediately and
	// removed from the input-driven fixed-point entirely.
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

	// The ready/deferred fixed-point, as an explicit worklist loop over
	// partitions rather than recursion: termination is guaranteed because
	// each iteration the set of intra-block producers among the
	// remaining txs strictly shrinks.
	depth := uint32(0)
	for len(remaining) > 0 {
		ready, deferred := partition(remaining)
		if len(ready) == 0 {
			// Every remaining tx depends on another remaining tx: a
			// dependency cycle (a tx spending its own output included).
			return nil, nil, chainerrors.New(chainerrors.CodeInvariantViolation, rawBlock.Height,
				"intra-block fixed-point made no progress; likely a dependency cycle")
		}

		for _, tx := range ready {
			colored, err := classifyTx(tx, rawBlock.Height, sv)
			if err != nil {
				return nil, nil, err
			}
			if colored {
				coloredTxIDs = append(coloredTxIDs, tx.ID)
			}
		}

		remaining = deferred
		if len(remaining) == 0 {
			break
		}

		depth++
		if depth == cfg.WarnRecursionThreshold+1 {
			log.Warnf("block %d: intra-block fixed-point has recursed %d times (%d txs remaining)",
				rawBlock.Height, depth, len(remaining))
		}
		if depth > cfg.MaxIntraBlockRecursions {
			return nil, nil, chainerrors.New(chainerrors.CodeInvariantViolation, rawBlock.Height,
				"intra-block fixed-point exceeded max_intra_block_recursions")
		}
	}

	block := &chainstate.Block{
		Height:       rawBlock.Height,
		Hash:         rawBlock.Hash,
		PreviousHash: rawBlock.PreviousHash,
		ColoredTxIDs: coloredTxIDs,
	}
	return block, sv, nil
}

// partition splits remaining into ready (no input produced by another tx
// still in remaining) and deferred (at least one such input), preserving
// relative order within each group.
func partition(remaining []*chainsource.TxRecord) (ready, deferred []*chainsource.TxRecord) {
	producers := make(map[string]struct{}, len(remaining))
	for _, tx := range remaining {
		producers[tx.ID] = struct{}{}
	}

	for _, tx := range remaining {
		dependsOnRemaining := false
		for _, in := range tx.Inputs {
			if _, ok := producers[in.SpendingTxID]; ok {
				dependsOnRemaining = true
				break
			}
		}
		if dependsOnRemaining {
			deferred = append(deferred, tx)
		} else {
			ready = append(ready, tx)
		}
	}
	return ready, deferred
}

// classifyGenesis handles the genesis base case: every output of the
// genesis tx is colored at full face value, unconditionally.
func classifyGenesis(tx *chainsource.TxRecord, height uint32, sv *chainstate.StagingView) error {
	csTx := toChainTx(tx, height)
	if err := sv.SetGenesisTx(csTx); err != nil {
		return err
	}
	for _, out := range tx.Outputs {
		verified := &chainstate.TxOutput{
			TxID:    tx.ID,
			Index:   out.Index,
			Value:   out.Value,
			Address: out.Address,
		}
		if err := sv.AddVerifiedTxOutput(verified); err != nil {
			return err
		}
	}
	return nil
}

// classifyTx implements the per-tx coloring rule for a
// non-genesis tx. It returns whether the tx was colored.
func classifyTx(tx *chainsource.TxRecord, height uint32, sv *chainstate.StagingView) (bool, error) {
	var available uint64
	for idx, in := range tx.Inputs {
		out, ok := sv.GetSpendableTxOutput(in.SpendingTxID, in.SpendingOutputIndex)
		if !ok {
			// Non-colored or already-spent input: contributes nothing,
			// silently.
			continue
		}
		info := &chainstate.SpentInfo{
			BlockHeight:  height,
			SpendingTxID: tx.ID,
			InputIndex:   idx,
		}
		if err := sv.AddSpentTxWithSpentInfo(out, info); err != nil {
			return false, err
		}
		available += out.Value
	}

	if available == 0 {
		return false, nil
	}

	csTx := toChainTx(tx, height)
	if err := sv.AddTx(csTx); err != nil {
		return false, err
	}

	for _, out := range tx.Outputs {
		if available < out.Value {
			break
		}
		verified := &chainstate.TxOutput{
			TxID:    tx.ID,
			Index:   out.Index,
			Value:   out.Value,
			Address: out.Address,
		}
		if err := sv.AddVerifiedTxOutput(verified); err != nil {
			return false, err
		}
		available -= out.Value
		if available == 0 {
			break
		}
	}

	if available > 0 {
		if err := sv.AddBurnedFee(tx.ID, available); err != nil {
			return false, err
		}
	}

	return true, nil
}

func toChainTx(tx *chainsource.TxRecord, height uint32) *chainstate.Tx {
	inputs := make([]chainstate.TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = chainstate.TxInput{
			SpendingTxID:        in.SpendingTxID,
			SpendingOutputIndex: in.SpendingOutputIndex,
		}
	}
	outputs := make([]chainstate.TxOutput, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = chainstate.TxOutput{
			TxID:    tx.ID,
			Index:   out.Index,
			Value:   out.Value,
			Address: out.Address,
		}
	}
	return &chainstate.Tx{
		ID:          tx.ID,
		BlockHeight: height,
		Inputs:      inputs,
		Outputs:     outputs,
	}
}
