package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Hook struct {
	Address          string // hex address pool keys must name
	MaxLevelsPerSwap int
	MaxOrdersPerBook int    // 0 = unbounded
	EvictionPolicy   string // "reject" or "evict"
	// FeeOverridePips is the LP fee returned from beforeSwap when the book filled
	// part of a swap. 0 disables the override.
	FeeOverridePips uint32
}

type Node struct {
	DataDir      string
	APIAddr      string
	LogFile      string
	LogLevel     string
	TxLogFile    string
	Network      string
	DevPoolPrice string // decimal, used when an initialize request carries no price
	CORSOrigins  []string
}

type Events struct {
	NATSURL      string // empty disables the NATS sink
	P2PListen    string // empty disables gossip
	P2PBootstrap []string
	Buffer       int
}

type Config struct {
	Hook   Hook
	Node   Node
	Events Events
}

func Default() Config {
	return Config{
		Hook: Hook{
			Address:          "0x0000000000000000000000000000000000000b00",
			MaxLevelsPerSwap: 32,
			MaxOrdersPerBook: 10_000,
			EvictionPolicy:   "reject",
		},
		Node: Node{
			DataDir:      "data",
			APIAddr:      ":8080",
			LogFile:      "data/node.log",
			LogLevel:     "info",
			TxLogFile:    "data/transactions.log",
			Network:      "devnet",
			DevPoolPrice: "1",
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Events: Events{
			Buffer: 1024,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Hook.Address = getEnv("HOOK_ADDRESS", cfg.Hook.Address)
	cfg.Hook.MaxLevelsPerSwap = getInt("HOOK_MAX_LEVELS_PER_SWAP", cfg.Hook.MaxLevelsPerSwap)
	cfg.Hook.MaxOrdersPerBook = getInt("HOOK_MAX_ORDERS_PER_BOOK", cfg.Hook.MaxOrdersPerBook)
	cfg.Hook.EvictionPolicy = getEnv("HOOK_EVICTION_POLICY", cfg.Hook.EvictionPolicy)
	if pips := os.Getenv("HOOK_FEE_OVERRIDE_PIPS"); pips != "" {
		if v, err := strconv.ParseUint(pips, 10, 32); err == nil {
			cfg.Hook.FeeOverridePips = uint32(v)
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.TxLogFile = getEnv("TX_LOG_FILE", cfg.Node.TxLogFile)
	cfg.Node.Network = getEnv("NETWORK_NAME", cfg.Node.Network)
	cfg.Node.DevPoolPrice = getEnv("DEV_POOL_PRICE", cfg.Node.DevPoolPrice)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.CORSOrigins = splitList(origins)
	}

	cfg.Events.NATSURL = getEnv("NATS_URL", cfg.Events.NATSURL)
	cfg.Events.P2PListen = getEnv("P2P_LISTEN", cfg.Events.P2PListen)
	if peers := os.Getenv("P2P_BOOTSTRAP"); peers != "" {
		// Example: "/ip4/10.0.0.2/tcp/4001/p2p/12D3...,/ip4/10.0.0.3/tcp/4001/p2p/12D3..."
		cfg.Events.P2PBootstrap = splitList(peers)
	}
	cfg.Events.Buffer = getInt("EVENT_BUFFER", cfg.Events.Buffer)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
