package datafetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
	"token-observer/src/network"
)

// -----------------------------------------------------------------------------
// ProviderClient
// -----------------------------------------------------------------------------

// ProviderClient implements the data-fetch collaborators over the provider's
// JSON-RPC HTTP endpoint: supply, largest accounts, signatures, transaction
// detail and the combined asset lookup.
type ProviderClient struct {
	Config    *models.MConfig
	Network   interfaces.INetworkManager
	Logger    *logger.Logger
	rpcURL    string
	requestID atomic.Uint64
}

// -----------------------------------------------------------------------------

func NewProviderClient(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *ProviderClient {
	return &ProviderClient{
		Config:  cfg,
		Network: netMgr,
		Logger:  log,
		rpcURL:  fmt.Sprintf("%s?api-key=%s", cfg.Upstream.RPCURL, cfg.Upstream.APIKey),
	}
}

// -----------------------------------------------------------------------------

// rpcCall sends one JSON-RPC request and unwraps the result envelope.
func (c *ProviderClient) rpcCall(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req := models.NewRPCRequest(c.requestID.Add(1), method, rawParams)
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := c.Network.Post(ctx, c.rpcURL, payload)
	if err != nil {
		var rl *network.RateLimitedError
		if errors.As(err, &rl) {
			c.Logger.Warning("Provider throttled %s", method)
			return nil, fmt.Errorf("%s: %w", method, ErrRateLimited)
		}
		return nil, fmt.Errorf("%s: %w", method, ErrUnavailable)
	}

	var frame struct {
		Result json.RawMessage   `json:"result"`
		Error  *models.MRPCError `json:"error"`
	}
	if err := json.Unmarshal(body, &frame); err != nil {
		return nil, fmt.Errorf("%s: malformed response: %w", method, ErrUnavailable)
	}

	if frame.Error != nil {
		rpcErr := &RPCError{Code: frame.Error.Code, Message: frame.Error.Message}
		c.Logger.Warning("RPC error on %s: %v", method, rpcErr)
		return nil, fmt.Errorf("%s: %w", method, classify(rpcErr))
	}

	return frame.Result, nil
}

// -----------------------------------------------------------------------------

// classify folds message-text hints into the code-based taxonomy; some
// provider errors carry a generic code with a telling message.
func classify(e *RPCError) error {
	msg := strings.ToLower(e.Message)
	switch {
	case e.Code == -32602 || strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
	case e.Code == -32600 || strings.Contains(msg, "rate"):
		return fmt.Errorf("%w: %s", ErrRateLimited, e.Message)
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, e.Message)
}

// -----------------------------------------------------------------------------
// Supply and Metadata
// -----------------------------------------------------------------------------

func (c *ProviderClient) GetTokenSupply(ctx context.Context, mint string) (models.MTokenSupply, error) {
	result, err := c.rpcCall(ctx, "getTokenSupply", []interface{}{mint})
	if err != nil {
		return models.MTokenSupply{}, err
	}

	var parsed struct {
		Value struct {
			Amount   string   `json:"amount"`
			Decimals int      `json:"decimals"`
			UIAmount *float64 `json:"uiAmount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return models.MTokenSupply{}, fmt.Errorf("getTokenSupply: %w", ErrUnavailable)
	}

	supply := models.MTokenSupply{
		RawAmount: parsed.Value.Amount,
		Decimals:  parsed.Value.Decimals,
	}
	if parsed.Value.UIAmount != nil {
		supply.UIAmount = *parsed.Value.UIAmount
	}
	return supply, nil
}

// -----------------------------------------------------------------------------

// GetTokenMetadata resolves the combined asset record: identity, supply and
// the provider's own price quote, from a single fetch so valuation never
// mixes snapshots from different sources.
func (c *ProviderClient) GetTokenMetadata(ctx context.Context, mint string) (models.MTokenMetadata, error) {
	result, err := c.rpcCall(ctx, "getAsset", map[string]string{"id": mint})
	if err != nil {
		return models.MTokenMetadata{}, err
	}

	var parsed struct {
		Content struct {
			Metadata struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"metadata"`
		} `json:"content"`
		TokenInfo struct {
			Supply    float64 `json:"supply"`
			Decimals  int     `json:"decimals"`
			Authority string  `json:"mint_authority"`
			PriceInfo struct {
				PricePerToken float64 `json:"price_per_token"`
				Currency      string  `json:"currency"`
			} `json:"price_info"`
		} `json:"token_info"`
		Mutable bool `json:"mutable"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return models.MTokenMetadata{}, fmt.Errorf("getAsset: %w", ErrUnavailable)
	}

	meta := models.MTokenMetadata{
		Mint:          mint,
		Name:          strings.TrimSpace(parsed.Content.Metadata.Name),
		Symbol:        strings.TrimSpace(parsed.Content.Metadata.Symbol),
		Decimals:      parsed.TokenInfo.Decimals,
		RawSupply:     parsed.TokenInfo.Supply,
		PricePerToken: parsed.TokenInfo.PriceInfo.PricePerToken,
		PriceCurrency: parsed.TokenInfo.PriceInfo.Currency,
		MintAuthority: parsed.TokenInfo.Authority,
		IsMutable:     parsed.Mutable,
	}
	if meta.PriceCurrency == "" {
		meta.PriceCurrency = "USD"
	}
	return meta, nil
}

// -----------------------------------------------------------------------------
// Holders
// -----------------------------------------------------------------------------

func (c *ProviderClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]models.MTokenHolder, error) {
	params := []interface{}{mint, map[string]string{"commitment": "finalized"}}
	result, err := c.rpcCall(ctx, "getTokenLargestAccounts", params)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Value []struct {
			Address  string   `json:"address"`
			UIAmount *float64 `json:"uiAmount"`
			Decimals int      `json:"decimals"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("getTokenLargestAccounts: %w", ErrUnavailable)
	}

	holders := make([]models.MTokenHolder, 0, len(parsed.Value))
	for _, acc := range parsed.Value {
		if acc.UIAmount == nil || *acc.UIAmount <= 0 {
			continue
		}
		holders = append(holders, models.MTokenHolder{
			Address:  acc.Address,
			Balance:  *acc.UIAmount,
			Decimals: acc.Decimals,
			Rank:     len(holders) + 1,
		})
	}

	c.Logger.Debug("Largest accounts for %s: %d", mint, len(holders))
	return holders, nil
}

// -----------------------------------------------------------------------------
// Signatures and Transactions
// -----------------------------------------------------------------------------

func (c *ProviderClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]models.MSignatureInfo, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	params := []interface{}{address, map[string]interface{}{
		"limit":      limit,
		"commitment": "finalized",
	}}

	result, err := c.rpcCall(ctx, "getSignaturesForAddress", params)
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		Signature string          `json:"signature"`
		Slot      uint64          `json:"slot"`
		BlockTime *int64          `json:"blockTime"`
		Err       json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress: %w", ErrUnavailable)
	}

	sigs := make([]models.MSignatureInfo, 0, len(parsed))
	for _, s := range parsed {
		info := models.MSignatureInfo{
			Signature: s.Signature,
			Slot:      s.Slot,
			Failed:    len(s.Err) > 0 && string(s.Err) != "null",
		}
		if s.BlockTime != nil {
			info.BlockTime = *s.BlockTime
		}
		sigs = append(sigs, info)
	}
	return sigs, nil
}

// -----------------------------------------------------------------------------

func (c *ProviderClient) GetTransaction(ctx context.Context, signature string) (models.MTransactionDetail, error) {
	params := []interface{}{signature, map[string]interface{}{
		"encoding":                       "jsonParsed",
		"commitment":                     "finalized",
		"maxSupportedTransactionVersion": 0,
	}}

	result, err := c.rpcCall(ctx, "getTransaction", params)
	if err != nil {
		return models.MTransactionDetail{}, err
	}
	if len(result) == 0 || string(result) == "null" {
		return models.MTransactionDetail{}, fmt.Errorf("getTransaction %s: %w", signature, ErrNotFound)
	}

	var parsed struct {
		BlockTime *int64 `json:"blockTime"`
		Meta      struct {
			Err          json.RawMessage `json:"err"`
			PreBalances  []int64         `json:"preBalances"`
			PostBalances []int64         `json:"postBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []json.RawMessage `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return models.MTransactionDetail{}, fmt.Errorf("getTransaction: %w", ErrUnavailable)
	}

	detail := models.MTransactionDetail{
		Signature:    signature,
		Failed:       len(parsed.Meta.Err) > 0 && string(parsed.Meta.Err) != "null",
		PreBalances:  parsed.Meta.PreBalances,
		PostBalances: parsed.Meta.PostBalances,
	}
	if parsed.BlockTime != nil {
		detail.BlockTime = *parsed.BlockTime
	}

	// jsonParsed account keys arrive either as bare strings or as objects
	// with a pubkey field, depending on the provider version.
	for _, raw := range parsed.Transaction.Message.AccountKeys {
		detail.AccountKeys = append(detail.AccountKeys, parseAccountKey(raw))
	}

	return detail, nil
}

// -----------------------------------------------------------------------------

func parseAccountKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Pubkey
	}
	return ""
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// ValidMintAddress checks the base58 length envelope of a mint address.
func ValidMintAddress(mint string) bool {
	if len(mint) < 32 || len(mint) > 44 {
		return false
	}
	for _, r := range mint {
		ok := (r >= '1' && r <= '9') || (r >= 'A' && r <= 'H') ||
			(r >= 'J' && r <= 'N') || (r >= 'P' && r <= 'Z') ||
			(r >= 'a' && r <= 'k') || (r >= 'm' && r <= 'z')
		if !ok {
			return false
		}
	}
	return true
}
