package solanarpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

type AccountInfo struct {
	Owner      string
	Executable bool
	Lamports   uint64
	// Parsed is nil when the node could not decode the account data.
	Parsed *ParsedAccountData
}

type ParsedAccountData struct {
	Program string          `json:"program"`
	Type    string          `json:"type"`
	Info    json.RawMessage `json:"info"`
}

// ProgramDataAccount returns parsed.info.programData for upgradeable
// program accounts, or "" when the account does not carry one.
func (a *AccountInfo) ProgramDataAccount() string {
	if a == nil || a.Parsed == nil || len(a.Parsed.Info) == 0 {
		return ""
	}
	var info struct {
		ProgramData string `json:"programData"`
	}
	if err := json.Unmarshal(a.Parsed.Info, &info); err != nil {
		return ""
	}
	return strings.TrimSpace(info.ProgramData)
}

type accountValue struct {
	Owner      string          `json:"owner"`
	Executable bool            `json:"executable"`
	Lamports   uint64          `json:"lamports"`
	Data       json.RawMessage `json:"data"`
}

// ParsedAccountInfo fetches an account with jsonParsed encoding. It returns
// (nil, nil) when the account does not exist.
func (c *Client) ParsedAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("address required")
	}

	var resp struct {
		Value *accountValue `json:"value"`
	}
	params := []any{
		address,
		map[string]any{
			"encoding":   "jsonParsed",
			"commitment": "confirmed",
		},
	}
	if err := c.rpcCall(ctx, "getAccountInfo", params, &resp); err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return nil, nil
	}

	out := &AccountInfo{
		Owner:      resp.Value.Owner,
		Executable: resp.Value.Executable,
		Lamports:   resp.Value.Lamports,
	}
	// Data is an object when the node knows the owner's layout, and a
	// [payload, encoding] pair otherwise.
	if raw := strings.TrimSpace(string(resp.Value.Data)); strings.HasPrefix(raw, "{") {
		var parsed struct {
			Program string `json:"program"`
			Parsed  struct {
				Type string          `json:"type"`
				Info json.RawMessage `json:"info"`
			} `json:"parsed"`
		}
		if err := json.Unmarshal(resp.Value.Data, &parsed); err == nil {
			out.Parsed = &ParsedAccountData{
				Program: parsed.Program,
				Type:    parsed.Parsed.Type,
				Info:    parsed.Parsed.Info,
			}
		}
	}
	return out, nil
}
