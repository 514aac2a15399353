package models

// -----------------------------------------------------------------------------
// Provider Data Transfer Types
// -----------------------------------------------------------------------------

// MTokenSupply is the normalized result of a token supply lookup.
type MTokenSupply struct {
	UIAmount  float64 `json:"ui_amount"`
	RawAmount string  `json:"raw_amount"`
	Decimals  int     `json:"decimals"`
}

// -----------------------------------------------------------------------------

// MTokenHolder is one entry of a largest-accounts lookup, ranked by balance.
type MTokenHolder struct {
	Address  string  `json:"address"`
	Balance  float64 `json:"balance"`
	Decimals int     `json:"decimals"`
	Rank     int     `json:"rank"`
}

// -----------------------------------------------------------------------------

// MSignatureInfo is one transaction signature returned for an address.
type MSignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"block_time"`
	Failed    bool   `json:"failed"`
}

// -----------------------------------------------------------------------------

// MTransactionDetail carries the balance movements of one transaction in the
// flat shape the analytics formulas consume.
type MTransactionDetail struct {
	Signature    string   `json:"signature"`
	BlockTime    int64    `json:"block_time"`
	Failed       bool     `json:"failed"`
	AccountKeys  []string `json:"account_keys"`
	PreBalances  []int64  `json:"pre_balances"`
	PostBalances []int64  `json:"post_balances"`
}

// -----------------------------------------------------------------------------

// MTokenMetadata is the combined asset lookup: identity, supply and the
// provider's price quote, all from one fetch so price and supply never come
// from different snapshots.
type MTokenMetadata struct {
	Mint          string  `json:"mint"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Decimals      int     `json:"decimals"`
	RawSupply     float64 `json:"raw_supply"`
	PricePerToken float64 `json:"price_per_token"`
	PriceCurrency string  `json:"price_currency"`
	MintAuthority string  `json:"mint_authority"`
	IsMutable     bool    `json:"is_mutable"`
}

// -----------------------------------------------------------------------------

// UISupply converts the raw supply into its decimal-adjusted amount.
func (m MTokenMetadata) UISupply() float64 {
	if m.RawSupply <= 0 {
		return 0
	}
	div := 1.0
	for i := 0; i < m.Decimals; i++ {
		div *= 10
	}
	return m.RawSupply / div
}

// -----------------------------------------------------------------------------

// MTraderAction is one observed buy or sell by a wallet, extracted from a
// transaction for behavioral analysis.
type MTraderAction struct {
	Trader    string  `json:"trader"`
	Type      string  `json:"type"` // "buy" or "sell"
	Amount    float64 `json:"amount"`
	BlockTime int64   `json:"block_time"`
}
