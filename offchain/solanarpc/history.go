package solanarpc

import (
	"context"
	"errors"
	"strings"
)

// MaxSignaturesPerPage is the largest limit getSignaturesForAddress accepts.
const MaxSignaturesPerPage = 1000

type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       any    `json:"err"`
	BlockTime *int64 `json:"blockTime"`
}

// SignaturesForAddress returns one page of signatures, newest first. A
// non-empty before continues from that signature.
func (c *Client) SignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("address required")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	if limit > MaxSignaturesPerPage {
		return nil, errors.New("limit too large")
	}

	cfg := map[string]any{
		"limit":      limit,
		"commitment": "confirmed",
	}
	if before = strings.TrimSpace(before); before != "" {
		cfg["before"] = before
	}

	var resp []SignatureInfo
	if err := c.rpcCall(ctx, "getSignaturesForAddress", []any{address, cfg}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AllSignaturesForAddress walks pages backwards until the history is
// exhausted or maxPages pages were read. maxPages <= 0 means no cap.
func (c *Client) AllSignaturesForAddress(ctx context.Context, address string, maxPages int) ([]SignatureInfo, error) {
	var (
		out    []SignatureInfo
		before string
	)
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		batch, err := c.SignaturesForAddress(ctx, address, MaxSignaturesPerPage, before)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < MaxSignaturesPerPage {
			break
		}
		before = batch[len(batch)-1].Signature
	}
	return out, nil
}

type Transaction struct {
	Signature   string
	Slot        uint64
	BlockTime   *int64
	Err         any
	LogMessages []string
}

type transactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err         any      `json:"err"`
		LogMessages []string `json:"logMessages"`
	} `json:"meta"`
}

// ParsedTransaction fetches a confirmed transaction. It returns (nil, nil)
// when the node no longer has it.
func (c *Client) ParsedTransaction(ctx context.Context, signature string) (*Transaction, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, errors.New("signature required")
	}

	var resp *transactionResult
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.rpcCall(ctx, "getTransaction", params, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	out := &Transaction{
		Signature: signature,
		Slot:      resp.Slot,
		BlockTime: resp.BlockTime,
	}
	if resp.Meta != nil {
		out.Err = resp.Meta.Err
		out.LogMessages = resp.Meta.LogMessages
	}
	return out, nil
}
