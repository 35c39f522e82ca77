// Package config resolves deployscan settings from the environment.
//
// Environment:
//   - SOLANA_RPC_URL: primary endpoint (falls back to HELIUS_RPC_URL, then HELIUS_API_KEY + HELIUS_CLUSTER)
//   - SOLANA_RPC_PRIMARY_NAME: display name of the primary (default "primary")
//   - SOLANA_RPC_BACKUP_URLS: comma separated backup endpoints, in preference order
//   - SOLANA_RPC_BACKUP_NAMES: comma separated display names matching SOLANA_RPC_BACKUP_URLS
//   - DEPLOYSCAN_CACHE_REDIS_ADDR: use a Redis cache document instead of the local file
//   - DEPLOYSCAN_CACHE_REDIS_KEY: Redis key of the cache document
//   - DEPLOYSCAN_CACHE_REDIS_PASSWORD, DEPLOYSCAN_CACHE_REDIS_DB
package config

import (
	"os"
	"strings"

	"github.com/Abdullah1738/deployscan/offchain/endpoints"
)

const DefaultRedisCacheKey = "deployscan:deployments"

// Endpoints builds the endpoint configuration. Explicit values win over the
// environment; a missing primary is left empty so endpoints.New reports it.
func Endpoints(primaryURL string, backupURLs []string) (endpoints.Config, error) {
	var cfg endpoints.Config

	primaryURL = strings.TrimSpace(primaryURL)
	if primaryURL == "" {
		u, err := primaryFromEnv()
		if err != nil {
			return cfg, err
		}
		primaryURL = u
	}
	cfg.Primary = endpoints.Target{URL: primaryURL, Name: Env("SOLANA_RPC_PRIMARY_NAME", "")}

	names := EnvList("SOLANA_RPC_BACKUP_NAMES")
	if len(backupURLs) == 0 {
		backupURLs = EnvList("SOLANA_RPC_BACKUP_URLS")
	}
	for i, u := range backupURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		t := endpoints.Target{URL: u}
		if i < len(names) {
			t.Name = names[i]
		}
		cfg.Backups = append(cfg.Backups, t)
	}
	return cfg, nil
}

func primaryFromEnv() (string, error) {
	if raw := Env("SOLANA_RPC_URL", ""); raw != "" {
		return raw, nil
	}
	if raw := Env("HELIUS_RPC_URL", ""); raw != "" {
		return raw, nil
	}
	apiKey := strings.TrimSpace(os.Getenv("HELIUS_API_KEY"))
	if apiKey == "" {
		return "", nil
	}
	return HeliusRPCURL(HeliusCluster(Env("HELIUS_CLUSTER", string(HeliusMainnet))), apiKey)
}

type RedisCache struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// CacheRedis returns the Redis cache settings, or ok=false when the local
// file cache should be used.
func CacheRedis() (RedisCache, bool) {
	addr := Env("DEPLOYSCAN_CACHE_REDIS_ADDR", "")
	if addr == "" {
		return RedisCache{}, false
	}
	return RedisCache{
		Addr:     addr,
		Password: Env("DEPLOYSCAN_CACHE_REDIS_PASSWORD", ""),
		DB:       EnvInt("DEPLOYSCAN_CACHE_REDIS_DB", 0),
		Key:      Env("DEPLOYSCAN_CACHE_REDIS_KEY", DefaultRedisCacheKey),
	}, true
}
