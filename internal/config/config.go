// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	// Пустой токен отключает бота, остаётся только HTTP API.
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminIDsRaw        string        `envconfig:"ADMIN_IDS"`
	AdminIDs           []int64       `ignored:"true"` // заполним вручную
	AdminPasswordHash  string        `envconfig:"ADMIN_PASSWORD_HASH"`
	AdminSessionTTL    time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`
	AdminLoginAttempts int           `envconfig:"ADMIN_LOGIN_ATTEMPTS" default:"3"`
	AdminLoginWindow   time.Duration `envconfig:"ADMIN_LOGIN_WINDOW" default:"1h"`

	// --- Storage ---
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// --- Database ---
	// Дефолт "postgres": имя сервиса в docker-compose, для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"wallet"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"wallet"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Redis (пусто: лимитер в памяти) ---
	RedisURL string `envconfig:"REDIS_URL"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- HTTP API (пустой адрес отключает сервер) ---
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	JWTSecret        string        `envconfig:"JWT_SECRET"`
	WebhookSecret    string        `envconfig:"WEBHOOK_SECRET"`

	// --- Rate Limiting ---
	RateLimitRequests   int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow     time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	RedeemLimitRequests int           `envconfig:"REDEEM_LIMIT_REQUESTS" default:"5"`
	RedeemLimitWindow   time.Duration `envconfig:"REDEEM_LIMIT_WINDOW" default:"1m"`

	// --- Wallet ---
	// Дневной лимит использований без активного тарифа
	WalletDefaultDailyLimit int           `envconfig:"WALLET_DEFAULT_DAILY_LIMIT" default:"1000000"`
	WalletNewUserBonus      int64         `envconfig:"WALLET_NEW_USER_BONUS" default:"100"`
	WalletTxTimeout         time.Duration `envconfig:"WALLET_TX_TIMEOUT" default:"5s"`
	WalletConflictRetries   int           `envconfig:"WALLET_CONFLICT_RETRIES" default:"3"`
	WalletHistoryLimit      int           `envconfig:"WALLET_HISTORY_LIMIT" default:"20"`

	// --- Referral ---
	ReferralInviterReward      int64         `envconfig:"REFERRAL_INVITER_REWARD" default:"200"`
	ReferralInviteeReward      int64         `envconfig:"REFERRAL_INVITEE_REWARD" default:"100"`
	ReferralCodeChangeInterval time.Duration `envconfig:"REFERRAL_CODE_CHANGE_INTERVAL" default:"720h"`

	// --- Redemption ---
	RedemptionSegments int `envconfig:"REDEMPTION_SEGMENTS" default:"3"`
	RedemptionMaxBatch int `envconfig:"REDEMPTION_MAX_BATCH" default:"1000"`

	// --- Subscriptions ---
	PlanDefaultDays int `envconfig:"PLAN_DEFAULT_DAYS" default:"30"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin: входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для STORE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	if c.TelegramBotToken != "" {
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	if c.HTTPAddr != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET должен быть не короче 16 символов")
	}
	if c.TelegramBotToken == "" && c.HTTPAddr == "" {
		return fmt.Errorf("нужен хотя бы один вход: TELEGRAM_BOT_TOKEN или HTTP_ADDR")
	}
	if c.RateLimitRequests <= 0 || c.RedeemLimitRequests <= 0 || c.AdminLoginAttempts <= 0 {
		return fmt.Errorf("лимиты запросов должны быть > 0")
	}
	if c.WalletNewUserBonus < 0 || c.ReferralInviterReward < 0 || c.ReferralInviteeReward < 0 {
		return fmt.Errorf("бонусы не могут быть отрицательными")
	}
	if c.WalletConflictRetries < 1 {
		return fmt.Errorf("WALLET_CONFLICT_RETRIES должен быть >= 1")
	}
	if c.RedemptionSegments < 1 || c.RedemptionMaxBatch < 1 {
		return fmt.Errorf("некорректные REDEMPTION_SEGMENTS/REDEMPTION_MAX_BATCH")
	}
	if c.PlanDefaultDays < 1 {
		return fmt.Errorf("PLAN_DEFAULT_DAYS должен быть >= 1")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default возвращает конфигурацию со значениями по умолчанию
// и хранилищем в памяти. Используется в тестах.
// Заданные переменные окружения тоже подхватываются.
func Default() *Config {
	var cfg Config
	_ = envconfig.Process("", &cfg)
	cfg.StoreDriver = StoreDriverMemory
	return &cfg
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
