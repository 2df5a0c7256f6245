package registry

// State is the lifecycle position of a PaymentIntent.
type State string

const (
	StateOpen      State = "open"
	StateFulfilled State = "fulfilled"
)

// PaymentIntent is a pending payout posted for solver fulfillment.
//
// PayoutTxHash is meant to be set exactly when Fulfilled is true, but the
// pairing is only established by MarkFulfilled. CreateIntent stores whatever
// the owner supplied, so an intent may be created already fulfilled, with or
// without a hash.
type PaymentIntent struct {
	ID            string  `json:"id"`
	PaymentID     string  `json:"payment_id"`
	DestChain     string  `json:"dest_chain"`
	DestAsset     string  `json:"dest_asset"`
	DestAddress   string  `json:"dest_address"`
	AmountAtomic  Uint128 `json:"amount_atomic"`
	Decimals      uint8   `json:"decimals"`
	ZcashBurnTxID string  `json:"zcash_burn_txid"`
	CreatedAt     uint64  `json:"created_at,string"`
	Fulfilled     bool    `json:"fulfilled"`
	PayoutTxHash  *string `json:"payout_tx_hash"`
}

// State reports where the intent sits in its lifecycle.
func (p PaymentIntent) State() State {
	if p.Fulfilled {
		return StateFulfilled
	}
	return StateOpen
}

// Clone returns a copy that shares no memory with p.
func (p PaymentIntent) Clone() PaymentIntent {
	out := p
	if p.PayoutTxHash != nil {
		hash := *p.PayoutTxHash
		out.PayoutTxHash = &hash
	}
	return out
}

// IntentInput is the caller-facing form of PaymentIntent. AmountAtomic and
// CreatedAt arrive as decimal text.
type IntentInput struct {
	ID            string  `json:"id"`
	PaymentID     string  `json:"payment_id"`
	DestChain     string  `json:"dest_chain"`
	DestAsset     string  `json:"dest_asset"`
	DestAddress   string  `json:"dest_address"`
	AmountAtomic  string  `json:"amount_atomic"`
	Decimals      uint8   `json:"decimals"`
	ZcashBurnTxID string  `json:"zcash_burn_txid"`
	CreatedAt     string  `json:"created_at"`
	Fulfilled     bool    `json:"fulfilled"`
	PayoutTxHash  *string `json:"payout_tx_hash,omitempty"`
}
