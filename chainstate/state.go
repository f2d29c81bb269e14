// Package chainstate is the in-memory authoritative store of parsed
// blocks, colored transactions, unspent colored outputs, spent-info
// records, and burned-fee tallies.
//
// ChainState is the only shared mutable resource in the system:
// exactly one writer — the parser worker driven by chaindriver — ever
// calls its mutating methods; readers on other goroutines use Snapshot.
package chainstate

import (
	"reflect"
	"sync"

	"github.com/Pranacoin/exchange/chainerrors"
)

// ChainState owns the tx and output maps, the block list, and the
// burned-fee map exclusively; all mutation flows through its methods.
type ChainState struct {
	mu sync.RWMutex

	blocks []*Block
	txs    map[string]*Tx

	// outputs holds every output ever verified colored, spent or not.
	// Spendability is outputs minus spent (see GetSpendableTxOutput).
	outputs map[OutputKey]*TxOutput
	spent   map[OutputKey]*SpentInfo

	burnedFees map[string]uint64

	genesisTxID string
	hasGenesis  bool
}

// New returns an empty ChainState.
func New() *ChainState {
	return &ChainState{
		txs:        make(map[string]*Tx),
		outputs:    make(map[OutputKey]*TxOutput),
		spent:      make(map[OutputKey]*SpentInfo),
		burnedFees: make(map[string]uint64),
	}
}

// IsConnecting reports whether the store is empty (no block ever
// appended) or the most recently appended block's hash equals prevHash.
func (cs *ChainState) IsConnecting(prevHash string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.isConnectingLocked(prevHash)
}

func (cs *ChainState) isConnectingLocked(prevHash string) bool {
	if len(cs.blocks) == 0 {
		return true
	}
	return cs.blocks[len(cs.blocks)-1].Hash == prevHash
}

// TipHeight returns the height of the most recently appended block, and
// whether any block has been appended at all.
func (cs *ChainState) TipHeight() (height uint32, ok bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if len(cs.blocks) == 0 {
		return 0, false
	}
	return cs.blocks[len(cs.blocks)-1].Height, true
}

// AppendBlock appends a fully parsed colored block. The caller must have
// observed IsConnecting(block.PreviousHash) at parse start; this method
// re-checks the precondition at commit time and fails with a
// CodeChainLinkage ChainError if it no longer holds, leaving state
// untouched.
func (cs *ChainState) AppendBlock(block *Block) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.isConnectingLocked(block.PreviousHash) {
		return chainerrors.New(chainerrors.CodeChainLinkage, block.Height,
			"previous_hash no longer matches chain tip at commit time")
	}
	cs.blocks = append(cs.blocks, block)
	return nil
}

// SetGenesisTx records the genesis tx once. A later call naming a
// different tx id fails with CodeGenesisConflict; a call repeating the
// same tx id is a no-op.
func (cs *ChainState) SetGenesisTx(tx *Tx) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.setGenesisTxLocked(tx)
}

func (cs *ChainState) setGenesisTxLocked(tx *Tx) error {
	if cs.hasGenesis {
		if cs.genesisTxID != tx.ID {
			return chainerrors.New(chainerrors.CodeGenesisConflict, tx.BlockHeight,
				"a different genesis tx was already recorded: "+cs.genesisTxID)
		}
		return nil
	}
	cs.genesisTxID = tx.ID
	cs.hasGenesis = true
	return cs.addTxLocked(tx)
}

// AddTx inserts tx into the colored-tx map keyed by id. Idempotent on an
// identical payload; a differing payload for an already-recorded id is
// an invariant violation (the parser must never reclassify a tx within
// the same run).
func (cs *ChainState) AddTx(tx *Tx) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.addTxLocked(tx)
}

func (cs *ChainState) addTxLocked(tx *Tx) error {
	if existing, ok := cs.txs[tx.ID]; ok {
		if !reflect.DeepEqual(existing, tx) {
			return chainerrors.New(chainerrors.CodeInvariantViolation, tx.BlockHeight,
				"tx "+tx.ID+" re-added with a different payload")
		}
		return nil
	}
	cs.txs[tx.ID] = tx
	return nil
}

// AddVerifiedTxOutput marks an output as colored and unspent. Idempotent.
func (cs *ChainState) AddVerifiedTxOutput(output *TxOutput) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.addVerifiedTxOutputLocked(output)
}

func (cs *ChainState) addVerifiedTxOutputLocked(output *TxOutput) error {
	key := OutputKey{TxID: output.TxID, Index: output.Index}
	if existing, ok := cs.outputs[key]; ok {
		if !reflect.DeepEqual(existing, output) {
			return chainerrors.New(chainerrors.CodeInvariantViolation, 0,
				"output re-verified with a different payload")
		}
		return nil
	}
	cs.outputs[key] = output
	return nil
}

// GetSpendableTxOutput returns the output iff it is verified colored and
// has not been recorded as spent.
func (cs *ChainState) GetSpendableTxOutput(txID string, index uint32) (*TxOutput, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.getSpendableTxOutputLocked(txID, index)
}

func (cs *ChainState) getSpendableTxOutputLocked(txID string, index uint32) (*TxOutput, bool) {
	key := OutputKey{TxID: txID, Index: index}
	if _, isSpent := cs.spent[key]; isSpent {
		return nil, false
	}
	out, ok := cs.outputs[key]
	return out, ok
}

// AddSpentTxWithSpentInfo records output as consumed by info. A
// subsequent GetSpendableTxOutput for the same key returns none.
func (cs *ChainState) AddSpentTxWithSpentInfo(output *TxOutput, info *SpentInfo) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.addSpentTxWithSpentInfoLocked(output, info)
}

func (cs *ChainState) addSpentTxWithSpentInfoLocked(output *TxOutput, info *SpentInfo) error {
	key := OutputKey{TxID: output.TxID, Index: output.Index}
	if existing, ok := cs.spent[key]; ok {
		if *existing == *info {
			return nil
		}
		return chainerrors.New(chainerrors.CodeInvariantViolation, info.BlockHeight,
			"output "+output.TxID+" already spent by a different tx")
	}
	cs.spent[key] = info
	return nil
}

// AddBurnedFee records a positive colored-value burn for txID.
func (cs *ChainState) AddBurnedFee(txID string, amount uint64) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.addBurnedFeeLocked(txID, amount)
}

func (cs *ChainState) addBurnedFeeLocked(txID string, amount uint64) error {
	if amount == 0 {
		return chainerrors.New(chainerrors.CodeInvariantViolation, 0,
			"burned fee amount must be positive for tx "+txID)
	}
	cs.burnedFees[txID] += amount
	return nil
}

// BurnedFee returns the recorded burn for txID, if any.
func (cs *ChainState) BurnedFee(txID string) (uint64, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	amount, ok := cs.burnedFees[txID]
	return amount, ok
}

// Snapshot returns a deep, immutable copy of the queryable state,
// published for readers on other goroutines.
func (cs *ChainState) Snapshot() *Snapshot {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	blocks := make([]*Block, len(cs.blocks))
	for i, b := range cs.blocks {
		bc := *b
		bc.ColoredTxIDs = append([]string(nil), b.ColoredTxIDs...)
		blocks[i] = &bc
	}

	txs := make(map[string]*Tx, len(cs.txs))
	for id, tx := range cs.txs {
		tc := *tx
		tc.Inputs = append([]TxInput(nil), tx.Inputs...)
		tc.Outputs = append([]TxOutput(nil), tx.Outputs...)
		txs[id] = &tc
	}
	outputs := make(map[OutputKey]*TxOutput, len(cs.outputs))
	for k, v := range cs.outputs {
		oc := *v
		outputs[k] = &oc
	}
	spent := make(map[OutputKey]*SpentInfo, len(cs.spent))
	for k, v := range cs.spent {
		sc := *v
		spent[k] = &sc
	}
	burned := make(map[string]uint64, len(cs.burnedFees))
	for k, v := range cs.burnedFees {
		burned[k] = v
	}

	return &Snapshot{
		Blocks:      blocks,
		Txs:         txs,
		Outputs:     outputs,
		Spent:       spent,
		BurnedFees:  burned,
		GenesisTxID: cs.genesisTxID,
	}
}
