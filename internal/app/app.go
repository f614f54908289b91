// Package app инициализирует все компоненты приложения.
// app.go собирает приложение: создаёт хранилище, лимитеры, сервисы, обработчики,
// HTTP API, Telegram-бота и планировщик.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/wallet-bot/internal/bot"
	"serotonyl.ru/wallet-bot/internal/config"
	"serotonyl.ru/wallet-bot/internal/db"
	"serotonyl.ru/wallet-bot/internal/db/memory"
	"serotonyl.ru/wallet-bot/internal/db/postgres"
	"serotonyl.ru/wallet-bot/internal/features/admin"
	"serotonyl.ru/wallet-bot/internal/features/bonus"
	"serotonyl.ru/wallet-bot/internal/features/members"
	"serotonyl.ru/wallet-bot/internal/features/redemption"
	"serotonyl.ru/wallet-bot/internal/features/referral"
	"serotonyl.ru/wallet-bot/internal/features/reset"
	"serotonyl.ru/wallet-bot/internal/features/subscription"
	"serotonyl.ru/wallet-bot/internal/features/usage"
	"serotonyl.ru/wallet-bot/internal/features/wallet"
	"serotonyl.ru/wallet-bot/internal/httpapi"
	"serotonyl.ru/wallet-bot/internal/jobs"
	"serotonyl.ru/wallet-bot/internal/ratelimit"
)

// App содержит все компоненты приложения.
type App struct {
	Store     db.Store
	Bot       *bot.Bot        // nil, если токен не задан
	HTTP      *httpapi.Server // nil, если HTTP_ADDR пуст
	Scheduler *jobs.Scheduler
	redis     *redis.Client
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилище ===
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	// === 2. Лимитеры ===
	if cfg.RedisURL != "" {
		a.redis, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
	}
	msgLimiter := a.limiter("msg", cfg.RateLimitRequests, cfg.RateLimitWindow)
	redeemLimiter := a.limiter("redeem", cfg.RedeemLimitRequests, cfg.RedeemLimitWindow)
	loginLimiter := a.limiter("login", cfg.AdminLoginAttempts, cfg.AdminLoginWindow)

	// === 3. Сервисы ===
	walletService := wallet.NewService(store, cfg)
	usageService := usage.NewService(walletService)
	resetService := reset.NewService(walletService)
	bonusService := bonus.NewService(walletService, cfg)
	referralService := referral.NewService(walletService, cfg)
	subscriptionService := subscription.NewService(walletService, referralService, cfg)
	redemptionService := redemption.NewService(walletService, cfg)
	memberService := members.NewService(walletService, bonusService)
	adminService := admin.NewService(cfg, loginLimiter)

	// === 4. HTTP API ===
	if cfg.HTTPAddr != "" {
		a.HTTP = httpapi.NewServer(httpapi.Deps{
			Cfg:           cfg,
			Wallet:        walletService,
			Usage:         usageService,
			Reset:         resetService,
			Redemption:    redemptionService,
			Referral:      referralService,
			Bonus:         bonusService,
			Subscriptions: subscriptionService,
			RedeemLimiter: redeemLimiter,
		})
	}

	// === 5. Telegram Bot ===
	if cfg.TelegramBotToken != "" {
		api, err := telego.NewBot(cfg.TelegramBotToken,
			telego.WithLogger(log.WithField("component", "telego")))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
		}
		me, err := api.GetMe(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
		}
		log.Infof("Авторизован как @%s", me.Username)

		sender := bot.NewSender(api)
		referralHandler := referral.NewHandler(referralService, sender, me.Username)
		a.Bot = bot.New(api, cfg, sender, bot.Handlers{
			MemberService: memberService,
			Members:       members.NewHandler(memberService, referralHandler, sender),
			Wallet:        wallet.NewHandler(walletService, sender),
			Usage:         usage.NewHandler(usageService, sender),
			Reset:         reset.NewHandler(resetService, sender),
			Redemption:    redemption.NewHandler(redemptionService, sender, redeemLimiter),
			Referral:      referralHandler,
			Subscription:  subscription.NewHandler(subscriptionService, sender),
			Admin:         admin.NewHandler(adminService, memberService, walletService, subscriptionService, sender),
		}, msgLimiter)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN не задан — бот отключён, работает только HTTP API")
	}

	// === 6. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(redemptionService, walletService.Now)
	a.Scheduler.AddEvicter("admin_sessions", jobs.EvictFunc(adminService.EvictSessions))
	for name, l := range map[string]ratelimit.Limiter{
		"msg_limiter":    msgLimiter,
		"redeem_limiter": redeemLimiter,
		"login_limiter":  loginLimiter,
	} {
		if m, ok := l.(*ratelimit.Memory); ok {
			a.Scheduler.AddEvicter(name, m)
		}
	}

	return a, nil
}

// openStore открывает хранилище по STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (db.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("STORE_DRIVER=memory — данные не переживут перезапуск")
		return memory.New(), nil
	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		return postgres.NewStore(pool, cfg.WalletTxTimeout), nil
	}
}

// limiter выбирает Redis, если он подключён, иначе лимитер в памяти.
func (a *App) limiter(prefix string, limit int, window time.Duration) ratelimit.Limiter {
	if a.redis != nil {
		return ratelimit.NewRedis(a.redis, prefix, limit, window)
	}
	return ratelimit.NewMemory(limit, window)
}

// Run запускает бота и HTTP API и ждёт их завершения.
// Ошибка любого из них останавливает остальные.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска планировщика: %w", err)
	}
	defer a.Scheduler.Stop()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.WithError(err).WithField("component", name).Error("Компонент остановлен с ошибкой")
				once.Do(func() { firstErr = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	if a.HTTP != nil {
		run("http", a.HTTP.Run)
	}
	if a.Bot != nil {
		run("bot", a.Bot.Start)
	}

	<-ctx.Done()
	wg.Wait()
	return firstErr
}

// Close освобождает соединения.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
