package types

// ChainData is the per-chain snapshot the ContextBuilder assembles: gas
// price, current block number, and the wall-clock time of the fetch
// (unix seconds), keyed by chain id.
type ChainData struct {
	ChainID     uint64 `json:"chain_id"`
	GasPrice    string `json:"gas_price"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}

// ExecutionContext is the per-intent bundle an ExecutionStrategy decides
// against: per-chain data for every chain id referenced by the order, and
// the solver's native plus per-token balances on each of those chains.
type ExecutionContext struct {
	Order          *Order
	ChainData      map[uint64]ChainData
	SolverBalances map[uint64]map[string]string // chainID -> token address ("" = native) -> balance
	Timestamp      uint64
}

// ExecutionDecisionKind is the closed set of choices an ExecutionStrategy
// can return for a given ExecutionContext.
type ExecutionDecisionKind string

const (
	DecisionExecute ExecutionDecisionKind = "execute"
	DecisionSkip    ExecutionDecisionKind = "skip"
	DecisionDefer   ExecutionDecisionKind = "defer"
)

// ExecutionDecision is what an ExecutionStrategy returns for an
// ExecutionContext: whether to proceed, and if so with what gas params.
type ExecutionDecision struct {
	Kind   ExecutionDecisionKind
	Params *ExecutionParams // set when Kind == DecisionExecute
	Reason string           // set when Kind == DecisionSkip
	Defer  string           // set when Kind == DecisionDefer (opaque duration string)
}
