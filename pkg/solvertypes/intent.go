package types

import "encoding/json"

// IntentSource records whether an intent was observed off-chain (e.g. via a
// quote/RFQ feed) or on-chain (discovered from an emitted event). The
// IntentHandler's Preparing-vs-Executing decision keys off this field.
type IntentSource string

const (
	IntentSourceOffChain IntentSource = "off_chain"
	IntentSourceOnChain  IntentSource = "on_chain"
)

// Intent is a discovered, not-yet-validated opportunity. Discovery produces
// these; the IntentHandler validates one (via the named Order-Standard
// collaborator) into an Order before anything else touches it.
type Intent struct {
	ID        string       `json:"id"`
	Standard  string       `json:"standard"`
	Source    IntentSource `json:"source"`
	QuoteID   string       `json:"quote_id,omitempty"`
	DiscoveredAt uint64    `json:"discovered_at"`

	// Payload is opaque to the core; only the Order-Standard collaborator
	// named by Standard knows how to parse and validate it.
	Payload json.RawMessage `json:"payload"`
}
