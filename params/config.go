package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

type Solver struct {
	Chain model.ChainID
	// Strategies run in this order; the first settlement wins.
	Strategies     []string
	MaxRingLength  int
	BatchInterval  time.Duration
	MaxBatchOrders int
}

// PoolSeed describes a devnet constant-product pool on the solver chain.
type PoolSeed struct {
	Name     string
	Token0   common.Address
	Reserve0 decimal.Decimal
	Token1   common.Address
	Reserve1 decimal.Decimal
	FeeBps   int64
}

type Routing struct {
	QuoteTimeout time.Duration
	Pools        []PoolSeed
}

type Bridge struct {
	Enabled    bool
	Target     model.ChainID
	Targets    []model.ChainID
	LedgerPath string
	// MaxGasPrice in wei; zero disables the cap.
	MaxGasPrice decimal.Decimal
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type P2P struct {
	Enabled    bool
	ListenAddr string
	Bootstrap  []string
}

type Log struct {
	Level string
	File  string
}

type Attestation struct {
	// Seed is the BLS key seed; empty disables attestation.
	Seed []byte
}

type Config struct {
	Solver      Solver
	Routing     Routing
	Bridge      Bridge
	RPC         map[model.ChainID]string
	API         API
	P2P         P2P
	Log         Log
	Attestation Attestation
}

func Default() Config {
	return Config{
		Solver: Solver{
			Chain:          model.EthereumMainnet,
			Strategies:     []string{"advanced", "baseline"},
			MaxRingLength:  3,
			BatchInterval:  time.Second,
			MaxBatchOrders: 500,
		},
		Routing: Routing{
			QuoteTimeout: 2 * time.Second,
		},
		Bridge: Bridge{
			Target:     model.EthereumMainnet,
			Targets:    model.SupportedChains(),
			LedgerPath: "data/bridge-ledger",
		},
		RPC: map[model.ChainID]string{},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		P2P: P2P{
			ListenAddr: "/ip4/0.0.0.0/tcp/4001",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults. Malformed values keep the default.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	// ---- Solver ----
	if c, ok := chainEnv("SOLVER_CHAIN"); ok {
		cfg.Solver.Chain = c
	}
	if v := listEnv("SOLVER_STRATEGIES"); len(v) > 0 {
		cfg.Solver.Strategies = v
	}
	if n, ok := intEnv("SOLVER_MAX_RING_LENGTH"); ok && n >= 2 {
		cfg.Solver.MaxRingLength = n
	}
	if d, ok := msEnv("BATCH_INTERVAL_MS"); ok && d > 0 {
		cfg.Solver.BatchInterval = d
	}
	if n, ok := intEnv("MAX_BATCH_ORDERS"); ok {
		cfg.Solver.MaxBatchOrders = n
	}

	// ---- Routing ----
	if d, ok := msEnv("ROUTING_QUOTE_TIMEOUT_MS"); ok {
		cfg.Routing.QuoteTimeout = d
	}
	// ROUTING_POOLS=name:token0:reserve0:token1:reserve1:feeBps;...
	for _, spec := range strings.Split(os.Getenv("ROUTING_POOLS"), ";") {
		if p, ok := parsePool(spec); ok {
			cfg.Routing.Pools = append(cfg.Routing.Pools, p)
		}
	}

	// ---- Bridge ----
	if v := os.Getenv("BRIDGE_ENABLED"); v != "" {
		cfg.Bridge.Enabled = v == "true"
	}
	if c, ok := chainEnv("BRIDGE_TARGET"); ok {
		cfg.Bridge.Target = c
	}
	if v := listEnv("BRIDGE_TARGETS"); len(v) > 0 {
		var targets []model.ChainID
		for _, s := range v {
			if c, err := model.ParseChainID(s); err == nil {
				targets = append(targets, c)
			}
		}
		cfg.Bridge.Targets = targets
	}
	cfg.Bridge.LedgerPath = getEnv("BRIDGE_LEDGER_PATH", cfg.Bridge.LedgerPath)
	if v := os.Getenv("BRIDGE_MAX_GAS_PRICE_WEI"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Bridge.MaxGasPrice = d
		}
	}

	// ---- RPC: RPC_URL_<chain id> ----
	for _, c := range model.SupportedChains() {
		if url := os.Getenv("RPC_URL_" + strconv.FormatUint(uint64(c), 10)); url != "" {
			cfg.RPC[c] = url
		}
	}

	// ---- API ----
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if v := listEnv("API_ALLOWED_ORIGINS"); len(v) > 0 {
		cfg.API.AllowedOrigins = v
	}

	// ---- P2P ----
	if v := os.Getenv("P2P_ENABLED"); v != "" {
		cfg.P2P.Enabled = v == "true"
	}
	cfg.P2P.ListenAddr = getEnv("P2P_LISTEN", cfg.P2P.ListenAddr)
	if v := listEnv("P2P_BOOTSTRAP"); len(v) > 0 {
		cfg.P2P.Bootstrap = v
	}

	// ---- Log ----
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	// ---- Attestation ----
	if v := os.Getenv("ATTESTATION_SEED"); v != "" {
		if seed, err := decodeHex(v); err == nil {
			cfg.Attestation.Seed = seed
		}
	}

	return cfg
}

func parsePool(spec string) (PoolSeed, bool) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if len(parts) != 6 || !common.IsHexAddress(parts[1]) || !common.IsHexAddress(parts[3]) {
		return PoolSeed{}, false
	}
	r0, err0 := decimal.NewFromString(parts[2])
	r1, err1 := decimal.NewFromString(parts[4])
	fee, err2 := strconv.ParseInt(parts[5], 10, 64)
	if err0 != nil || err1 != nil || err2 != nil || fee < 0 || fee >= 10_000 {
		return PoolSeed{}, false
	}
	return PoolSeed{
		Name:     parts[0],
		Token0:   common.HexToAddress(parts[1]),
		Reserve0: r0,
		Token1:   common.HexToAddress(parts[3]),
		Reserve1: r1,
		FeeBps:   fee,
	}, true
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func msEnv(key string) (time.Duration, bool) {
	n, ok := intEnv(key)
	return time.Duration(n) * time.Millisecond, ok
}

func chainEnv(key string) (model.ChainID, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	c, err := model.ParseChainID(v)
	return c, err == nil
}

// listEnv splits a comma-separated variable, dropping empty entries.
func listEnv(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
