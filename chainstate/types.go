package chainstate

// OutputKey identifies a transaction output by its owning tx id and
// output index — the identity a TxOutput is keyed by.
type OutputKey struct {
	TxID  string
	Index uint32
}

// TxOutput is a colored-coin-eligible output. Its colored/spent status is
// not carried as a field here — per the design notes, "verified colored
// and unspent" is an explicit set owned by ChainState, not a boolean
// recomputed at query time.
type TxOutput struct {
	TxID    string
	Index   uint32
	Value   uint64
	Address string
}

// TxInput is an immutable reference into a prior output.
type TxInput struct {
	SpendingTxID        string
	SpendingOutputIndex uint32
}

// Tx is a colored transaction as recorded in chain state: ordered inputs
// and outputs, output order being semantically significant.
type Tx struct {
	ID          string
	BlockHeight uint32
	Inputs      []TxInput
	Outputs     []TxOutput
}

// SpentInfo records the consumer of a previously colored output.
type SpentInfo struct {
	BlockHeight  uint32
	SpendingTxID string
	InputIndex   int
}

// Block is the colored view of an underlying block: its header plus the
// deterministic ordered list of colored tx ids discovered within it.
type Block struct {
	Height       uint32
	Hash         string
	PreviousHash string
	ColoredTxIDs []string
}

// Snapshot is an immutable, deep-copied view of ChainState published
// after a successful commit, safe for concurrent read access without
// touching ChainState's internal lock.
type Snapshot struct {
	Blocks      []*Block
	Txs         map[string]*Tx
	Outputs     map[OutputKey]*TxOutput
	Spent       map[OutputKey]*SpentInfo
	BurnedFees  map[string]uint64
	GenesisTxID string
}
