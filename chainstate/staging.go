package chainstate

import "github.com/Pranacoin/exchange/chainerrors"

// StagingView buffers the writes BlockParser produces while classifying
// one block, so that either all of them land in ChainState together
// (Commit) or none do (the view is dropped without calling Commit).
// Reads fall through to the underlying committed ChainState
// layered under whatever has been staged so far this block.
type StagingView struct {
	base *ChainState

	newTxs      map[string]*Tx
	newOutputs  map[OutputKey]*TxOutput
	newSpent    map[OutputKey]*SpentInfo
	newBurn     map[string]uint64
	genesisTx   *Tx
	setsGenesis bool
}

// NewStagingView opens a staging view over base for one block's worth of
// classification work.
func NewStagingView(base *ChainState) *StagingView {
	return &StagingView{
		base:       base,
		newTxs:     make(map[string]*Tx),
		newOutputs: make(map[OutputKey]*TxOutput),
		newSpent:   make(map[OutputKey]*SpentInfo),
		newBurn:    make(map[string]uint64),
	}
}

// GetSpendableTxOutput returns the output iff it is verified colored
// (either already committed, or staged earlier this block) and not
// spent (either already committed, or staged earlier this block).
func (sv *StagingView) GetSpendableTxOutput(txID string, index uint32) (*TxOutput, bool) {
	key := OutputKey{TxID: txID, Index: index}
	if _, spent := sv.newSpent[key]; spent {
		return nil, false
	}
	if out, ok := sv.newOutputs[key]; ok {
		return out, true
	}
	sv.base.mu.RLock()
	defer sv.base.mu.RUnlock()
	return sv.base.getSpendableTxOutputLocked(txID, index)
}

// SetGenesisTx stages the genesis tx, checking it against any genesis
// already committed to base.
func (sv *StagingView) SetGenesisTx(tx *Tx) error {
	sv.base.mu.RLock()
	hasGenesis, genesisTxID := sv.base.hasGenesis, sv.base.genesisTxID
	sv.base.mu.RUnlock()

	if hasGenesis && genesisTxID != tx.ID {
		return chainerrors.New(chainerrors.CodeGenesisConflict, tx.BlockHeight,
			"a different genesis tx was already recorded: "+genesisTxID)
	}
	sv.genesisTx = tx
	sv.setsGenesis = true
	return sv.AddTx(tx)
}

// AddTx stages tx.
func (sv *StagingView) AddTx(tx *Tx) error {
	sv.newTxs[tx.ID] = tx
	return nil
}

// AddVerifiedTxOutput stages output as verified colored.
func (sv *StagingView) AddVerifiedTxOutput(output *TxOutput) error {
	key := OutputKey{TxID: output.TxID, Index: output.Index}
	sv.newOutputs[key] = output
	return nil
}

// AddSpentTxWithSpentInfo stages output as consumed by info.
func (sv *StagingView) AddSpentTxWithSpentInfo(output *TxOutput, info *SpentInfo) error {
	key := OutputKey{TxID: output.TxID, Index: output.Index}
	sv.newSpent[key] = info
	return nil
}

// AddBurnedFee stages a burned-fee record for txID.
func (sv *StagingView) AddBurnedFee(txID string, amount uint64) error {
	if amount == 0 {
		return chainerrors.New(chainerrors.CodeInvariantViolation, 0,
			"burned fee amount must be positive for tx "+txID)
	}
	sv.newBurn[txID] += amount
	return nil
}

// Commit atomically merges every staged write into ChainState along with
// the parsed block record, re-checking the linkage precondition first.
// On any error nothing is mutated.
func (cs *ChainState) Commit(sv *StagingView, block *Block) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.isConnectingLocked(block.PreviousHash) {
		return chainerrors.New(chainerrors.CodeChainLinkage, block.Height,
			"previous_hash no longer matches chain tip at commit time")
	}

	if sv.setsGenesis {
		if err := cs.setGenesisTxLocked(sv.genesisTx); err != nil {
			return err
		}
	}
	for _, tx := range sv.newTxs {
		if err := cs.addTxLocked(tx); err != nil {
			return err
		}
	}
	for _, out := range sv.newOutputs {
		if err := cs.addVerifiedTxOutputLocked(out); err != nil {
			return err
		}
	}
	for key, info := range sv.newSpent {
		out, ok := cs.outputs[key]
		if !ok {
			// Defensive: the output must already exist from this merge.
			out = &TxOutput{TxID: key.TxID, Index: key.Index}
		}
		if err := cs.addSpentTxWithSpentInfoLocked(out, info); err != nil {
			return err
		}
	}
	for txID, amount := range sv.newBurn {
		if err := cs.addBurnedFeeLocked(txID, amount); err != nil {
			return err
		}
	}

	cs.blocks = append(cs.blocks, block)
	return nil
}
