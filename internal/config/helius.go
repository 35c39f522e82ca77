package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrMissingHeliusAPIKey = errors.New("missing helius api key")

type HeliusCluster string

const (
	HeliusMainnet HeliusCluster = "mainnet"
	HeliusDevnet  HeliusCluster = "devnet"
)

func HeliusRPCURL(cluster HeliusCluster, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrMissingHeliusAPIKey
	}

	var host string
	switch cluster {
	case HeliusMainnet, "mainnet-beta", "":
		host = "https://mainnet.helius-rpc.com"
	case HeliusDevnet:
		host = "https://devnet.helius-rpc.com"
	default:
		return "", fmt.Errorf("unsupported helius cluster: %q", cluster)
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
