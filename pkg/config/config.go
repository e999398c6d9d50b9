package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the momentum engine.
type Config struct {
	Port string

	// Binance USDT-M futures
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Execution toggle: false logs decisions without touching the exchange.
	ExecutionEnabled bool

	// Database and breaker state
	DBPath           string
	BreakerStatePath string

	// Universe selection
	UniverseSize       int     // daily volume ranking depth
	TopGainerCount     int     // minutely shortlist size
	ChangeThresholdMin float64 // 24h change lower bound (%)
	ChangeThresholdMax float64 // 24h change upper bound (%)
	MinVolume24hUSD    float64
	Blacklist          []string

	// Signal thresholds (YAML file can override, see LoadThresholds)
	Signal Thresholds

	// Risk
	RiskPerTrade     float64 // fraction of balance risked per position
	ATRPeriod        int
	ATRMultiplier    float64
	StopCapPct       float64 // max stop distance as fraction of entry
	MaxOpenPositions int
	MarginType       string // ISOLATED or CROSSED

	// Exit management
	BreakevenROE   float64 // max ROE that arms the breakeven stop
	TrailingROE    float64 // max ROE that arms the trailing stop
	BaseCallback   float64 // starting callback before tightening
	MinCallback    float64 // floor for the tightened callback
	TimeStopAfter  time.Duration
	FeeBufferRatio float64 // breakeven exit buffer above entry

	// Stream
	StreamBatchSize  int
	StreamIdleAfter  time.Duration
	ReconnectBackoff time.Duration // cap for exponential backoff

	// Engine
	TimeframeMinutes int
	EvalConcurrency  int
	HistoryBars      int
}

// Thresholds gate a breakout candidate; values are tuned per deployment.
type Thresholds struct {
	VolumeRatio    float64 `yaml:"volume_ratio"`
	RSILong        float64 `yaml:"rsi_long"`
	RSIShort       float64 `yaml:"rsi_short"`
	ADXMin         float64 `yaml:"adx_min"`
	ADXMax         float64 `yaml:"adx_max"`
	Overextension  float64 `yaml:"overextension"`
	WickRatio      float64 `yaml:"wick_ratio"`
	VolatilityCap  float64 `yaml:"volatility_cap"` // ATR/price ceiling per bar
	DeadHours      []int   `yaml:"dead_hours"`     // UTC hours excluded from entries
	VolumeLookback int     `yaml:"volume_lookback"`
}

// DefaultThresholds returns the tuned production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VolumeRatio:    3.2,
		RSILong:        59,
		RSIShort:       45,
		ADXMin:         33,
		ADXMax:         60,
		Overextension:  0.15,
		WickRatio:      0.20,
		VolatilityCap:  0.05,
		DeadHours:      []int{23, 0, 1, 2, 3},
		VolumeLookback: 20,
	}
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		ExecutionEnabled: getEnv("EXECUTION_ENABLED", "true") == "true",

		DBPath:           getEnv("DB_PATH", "./data/momentum.db"),
		BreakerStatePath: getEnv("BREAKER_STATE_PATH", "./data/breaker_state.json"),

		UniverseSize:       getEnvInt("UNIVERSE_SIZE", 200),
		TopGainerCount:     getEnvInt("TOP_GAINER_COUNT", 50),
		ChangeThresholdMin: getEnvFloat("CHANGE_THRESHOLD_MIN", 2),
		ChangeThresholdMax: getEnvFloat("CHANGE_THRESHOLD_MAX", 200),
		MinVolume24hUSD:    getEnvFloat("MIN_VOLUME_24H_USD", 50_000_000),
		Blacklist:          splitAndTrim(getEnv("SYMBOL_BLACKLIST", "")),

		Signal: DefaultThresholds(),

		RiskPerTrade:     getEnvFloat("RISK_PER_TRADE", 0.02),
		ATRPeriod:        getEnvInt("ATR_PERIOD", 14),
		ATRMultiplier:    getEnvFloat("ATR_MULTIPLIER", 2.5),
		StopCapPct:       getEnvFloat("STOP_CAP_PCT", 0.014),
		MaxOpenPositions: getEnvInt("MAX_OPEN_POSITIONS", 3),
		MarginType:       getEnv("MARGIN_TYPE", "ISOLATED"),

		BreakevenROE:   getEnvFloat("BREAKEVEN_ROE", 0.15),
		TrailingROE:    getEnvFloat("TRAILING_ROE", 0.30),
		BaseCallback:   getEnvFloat("BASE_CALLBACK", 0.10),
		MinCallback:    getEnvFloat("MIN_CALLBACK", 0.05),
		TimeStopAfter:  time.Duration(getEnvInt("TIME_STOP_HOURS", 24)) * time.Hour,
		FeeBufferRatio: getEnvFloat("FEE_BUFFER_RATIO", 0.002),

		StreamBatchSize:  getEnvInt("STREAM_BATCH_SIZE", 50),
		StreamIdleAfter:  time.Duration(getEnvInt("STREAM_IDLE_SECONDS", 60)) * time.Second,
		ReconnectBackoff: time.Duration(getEnvInt("RECONNECT_BACKOFF_CAP_SECONDS", 60)) * time.Second,

		TimeframeMinutes: getEnvInt("TIMEFRAME_MINUTES", 15),
		EvalConcurrency:  getEnvInt("EVAL_CONCURRENCY", 8),
		HistoryBars:      getEnvInt("HISTORY_BARS", 250),
	}

	if path := os.Getenv("THRESHOLDS_FILE"); path != "" {
		th, err := LoadThresholds(path)
		if err != nil {
			return nil, err
		}
		cfg.Signal = *th
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
