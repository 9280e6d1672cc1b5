package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/config"
	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/archive"
	"github.com/cosu123/reality-firewall-v3/internal/infra/auth/jwtauth"
	"github.com/cosu123/reality-firewall-v3/internal/infra/auth/rbac"
	"github.com/cosu123/reality-firewall-v3/internal/infra/cachemem"
	"github.com/cosu123/reality-firewall-v3/internal/infra/collab"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
	"github.com/cosu123/reality-firewall-v3/internal/infra/db"
	"github.com/cosu123/reality-firewall-v3/internal/infra/events"
	httpinfra "github.com/cosu123/reality-firewall-v3/internal/infra/http"
	"github.com/cosu123/reality-firewall-v3/internal/infra/httpjson"
	"github.com/cosu123/reality-firewall-v3/internal/infra/keys/soft"
	"github.com/cosu123/reality-firewall-v3/internal/infra/memstore"
	"github.com/cosu123/reality-firewall-v3/internal/infra/metrics"
	"github.com/cosu123/reality-firewall-v3/internal/infra/policyopa"
	"github.com/cosu123/reality-firewall-v3/internal/infra/ratelimit"
	"github.com/cosu123/reality-firewall-v3/internal/infra/redisstore"
	"github.com/cosu123/reality-firewall-v3/internal/infra/signals"
	"github.com/cosu123/reality-firewall-v3/internal/usecase"
)

const entryCacheSize = 4096

type app struct {
	server  *httpinfra.Server
	closers []io.Closer
	once    sync.Once
	logger  zerolog.Logger
}

func (a *app) close() {
	a.once.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i].Close(); err != nil {
				a.logger.Warn().Err(err).Msg("close resource")
			}
		}
	})
}

type stores struct {
	ledger  domain.LedgerRepository
	markets domain.MarketPolicyRepository
	access  domain.AccessControl
	redis   *redis.Client
}

func build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{logger: logger}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	boot, err := config.LoadBootstrap(cfg.BootstrapFile)
	if err != nil {
		return fail(err)
	}
	owner := cfg.OwnerID
	if owner == "" {
		owner = boot.Owner
	}
	if owner == "" {
		logger.Warn().Msg("no owner configured; agent and role management is disabled")
	}

	st, err := openStores(ctx, cfg, owner, logger, a)
	if err != nil {
		return fail(err)
	}

	recorder := metrics.New()
	history := events.NewMemory()
	publisher := events.Fanout{history, events.NewLog(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := events.NewKafka(events.KafkaConfig{Brokers: cfg.KafkaBrokers, TopicPrefix: cfg.KafkaTopicPrefix})
		if err != nil {
			return fail(err)
		}
		// the queue is closed first so buffered events drain into the writer
		queue := events.NewQueue(k, cfg.EventQueueSize, cfg.EventPublishTimeout, logger)
		a.closers = append(a.closers, k, queue)
		publisher = append(publisher, queue)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("kafka event publisher enabled")
	}

	keys, key, err := loadKey(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	logger.Info().Str("agent", cfg.AgentID).Str("public_key", hex.EncodeToString(key.PublicKey)).Msg("signing key loaded")

	directory := collab.NewStaticDirectory(domain.AgentRecord{
		AgentID:      cfg.AgentID,
		PublicKeyHex: hex.EncodeToString(key.PublicKey),
	})
	if err := seedRoles(ctx, st.access, cfg.AgentID, boot, directory); err != nil {
		return fail(err)
	}
	if err := seedMarkets(ctx, st.markets, boot.Markets); err != nil {
		return fail(err)
	}

	svc := crypto.NewService()
	ledger := usecase.NewEvidenceLedger(usecase.EvidenceLedgerDeps{
		Repo:      st.ledger,
		Access:    st.access,
		Directory: directory,
		Verifier:  svc,
		Publisher: publisher,
		Metrics:   recorder,
		Logger:    logger.With().Str("component", "ledger").Logger(),
	})

	var engine domain.PolicyEngine
	if cfg.PolicyBundlePath != "" {
		e, err := policyopa.NewEngineFromPath(ctx, cfg.PolicyBundlePath)
		if err != nil {
			return fail(err)
		}
		engine = e
		logger.Info().Str("path", cfg.PolicyBundlePath).Str("bundle_hash", e.BundleHash()).Msg("enforcement policy loaded")
	}
	guard := usecase.NewPolicyGuard(usecase.PolicyGuardDeps{
		Repo:      st.markets,
		Ledger:    ledger,
		Cache:     cachemem.New(cfg.EntryCacheTTL, entryCacheSize),
		Access:    st.access,
		Engine:    engine,
		Publisher: publisher,
		Metrics:   recorder,
		Logger:    logger.With().Str("component", "guard").Logger(),
	})

	client := httpjson.NewClient()
	evaluate := &usecase.EvaluateRisk{
		Signals: buildAggregator(boot.Signals, client, recorder, logger),
		Signer:  svc,
		Keys:    keys,
		Ledger:  ledger,
		AgentID: cfg.AgentID,
		Metrics: recorder,
		Logger:  logger.With().Str("component", "evaluate").Logger(),
	}
	switch {
	case cfg.PaymentFacilitatorURL != "":
		gate, err := collab.NewHTTPPaymentGate(cfg.PaymentFacilitatorURL, client)
		if err != nil {
			return fail(err)
		}
		evaluate.Payments = gate
	case len(cfg.DevPaymentRefs) > 0:
		logger.Warn().Int("refs", len(cfg.DevPaymentRefs)).Msg("using static development payment references")
		evaluate.Payments = collab.NewStaticPaymentGate(cfg.DevPaymentRefs)
	}
	if cfg.NarratorURL != "" {
		narrator, err := collab.NewHTTPNarrator(cfg.NarratorURL, client)
		if err != nil {
			return fail(err)
		}
		evaluate.Narrator = narrator
	}
	if cfg.ClickHouseDSN != "" {
		ch, err := archive.Open(ctx, archive.Config{DSN: cfg.ClickHouseDSN})
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, ch)
		evaluate.Archive = ch
		logger.Info().Msg("clickhouse receipt archive enabled")
	}

	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		return fail(err)
	}

	var limiter domain.RateLimiter
	if st.redis != nil {
		rl, err := ratelimit.NewRedis(st.redis, nil)
		if err != nil {
			return fail(err)
		}
		limiter = rl
	} else {
		limiter = ratelimit.NewMemory(ratelimit.MemoryConfig{MaxKeys: cfg.RateLimitMaxKeys})
	}

	a.server = httpinfra.NewServer(httpinfra.ServerOptions{
		Addr:                cfg.HTTPAddr,
		Mode:                cfg.LedgerBackend,
		RateLimitRequests:   cfg.RateLimitRequests,
		RateLimitWindow:     cfg.RateLimitWindow(),
		RateLimitFailClosed: cfg.RateLimitFailClosed,
	}, httpinfra.ServerDeps{
		Evaluate:      evaluate,
		Ledger:        ledger,
		Guard:         guard,
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Metrics:       recorder,
		History:       history,
		Logger:        logger.With().Str("component", "http").Logger(),
	})
	return a, nil
}

func openStores(ctx context.Context, cfg config.Config, owner string, logger zerolog.Logger, a *app) (stores, error) {
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		store, err := db.NewStore(cfg.PostgresDSN, logger)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, store)
		if cfg.DBAutoMigrate {
			if err := store.AutoMigrate(); err != nil {
				return stores{}, fmt.Errorf("migrate: %w", err)
			}
		}
		roles := db.NewRoleRepository(store.DB)
		if owner != "" {
			if err := roles.Grant(ctx, domain.RoleOwner, owner); err != nil {
				return stores{}, fmt.Errorf("grant owner: %w", err)
			}
		}
		logger.Info().Msg("ledger backend: postgres")
		return stores{
			ledger:  db.NewLedgerRepository(store.DB),
			markets: db.NewMarketPolicyRepository(store.DB),
			access:  roles,
		}, nil
	case config.LedgerRedis:
		client, err := redisstore.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return stores{}, err
		}
		a.closers = append(a.closers, client)
		roles := redisstore.NewRoleRepository(client)
		if owner != "" {
			if err := roles.Grant(ctx, domain.RoleOwner, owner); err != nil {
				return stores{}, fmt.Errorf("grant owner: %w", err)
			}
		}
		logger.Info().Msg("ledger backend: redis")
		return stores{
			ledger:  redisstore.NewLedgerRepository(client),
			markets: redisstore.NewMarketPolicyRepository(client),
			access:  roles,
			redis:   client,
		}, nil
	default:
		logger.Info().Msg("ledger backend: memory")
		return stores{
			ledger:  memstore.NewLedgerRepository(),
			markets: memstore.NewMarketPolicyRepository(),
			access:  rbac.NewRoleSets(owner),
		}, nil
	}
}

func loadKey(ctx context.Context, cfg config.Config) (usecase.KeyProvider, domain.SigningKey, error) {
	if cfg.SigningPrivateKeySeedHex != "" || cfg.SigningPrivateKeyBase64 != "" {
		key, err := soft.KeyFromConfig(cfg.SigningPrivateKeySeedHex, cfg.SigningPrivateKeyBase64)
		if err != nil {
			return nil, domain.SigningKey{}, fmt.Errorf("signing key: %w", err)
		}
		return soft.NewStaticKeyStore(key), key, nil
	}
	ks := soft.NewKeyStore(cfg.KeystorePath)
	key, err := ks.Init(ctx)
	if err != nil {
		return nil, domain.SigningKey{}, fmt.Errorf("keystore %s: %w", cfg.KeystorePath, err)
	}
	return ks, key, nil
}

func seedRoles(ctx context.Context, access domain.AccessControl, localAgent string, boot config.Bootstrap, directory *collab.StaticDirectory) error {
	agents := []string{localAgent}
	for _, ag := range boot.Agents {
		directory.Register(domain.AgentRecord{
			AgentID:      ag.AgentID,
			PublicKeyHex: ag.PublicKeyHex,
			RegistryRef:  ag.RegistryRef,
		})
		if !ag.RegisterOnly {
			agents = append(agents, ag.AgentID)
		}
	}
	if err := rbac.Seed(ctx, access, domain.RoleAgent, agents); err != nil {
		return err
	}
	if err := rbac.Seed(ctx, access, domain.RoleAdmin, boot.Admins); err != nil {
		return err
	}
	return rbac.Seed(ctx, access, domain.RoleExecutor, boot.Executors)
}

// seedMarkets creates configured markets. Markets already present keep their
// stored bounds and update time.
func seedMarkets(ctx context.Context, repo domain.MarketPolicyRepository, seeds []config.MarketSeed) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, m := range seeds {
		err := repo.Create(ctx, domain.MarketPolicy{
			Market:          m.Market,
			MaxLTV:          m.MaxLTV,
			MinLTV:          m.MinLTV,
			MaxCap:          m.MaxCap,
			CooldownSeconds: m.CooldownSeconds,
			CreatedAt:       now,
		})
		if err != nil && !errors.Is(err, domain.ErrMarketExists) {
			return fmt.Errorf("seed market %s: %w", m.Market, err)
		}
	}
	return nil
}

func buildAggregator(sc config.SignalsConfig, client *httpjson.Client, recorder *metrics.Recorder, logger zerolog.Logger) *signals.Aggregator {
	synthetic := signals.NewSynthetic(sc.BasePrices)

	var providers []signals.Provider
	if sc.Consensus != nil {
		evaluators := make([]signals.Evaluator, 0, len(sc.Consensus.Evaluators))
		for _, url := range sc.Consensus.Evaluators {
			evaluators = append(evaluators, signals.NewHTTPEvaluator(client, url))
		}
		providers = append(providers, signals.NewConsensusProvider(sc.Consensus.Name, evaluators, synthetic.BasePrice, sc.Consensus.Limit))
	}
	for _, f := range sc.Feeds {
		providers = append(providers, signals.NewFeedProvider(f.Name, client, f.URL))
	}
	if sc.Public != nil {
		providers = append(providers, signals.NewPublicProvider(
			sc.Public.Name,
			signals.NewHTTPEvaluator(client, sc.Public.PriceURL),
			signals.NewHTTPMarketData(client, sc.Public.MarketURL),
		))
	}
	logger.Info().Int("providers", len(providers)).Msg("signal cascade configured")

	return signals.NewAggregator(providers, synthetic,
		signals.WithDefaultTimeout(time.Duration(sc.ProviderTimeoutMillis)*time.Millisecond),
		signals.WithStressProfile(sc.Stress),
		signals.WithLogger(logger.With().Str("component", "signals").Logger()),
		signals.WithRecorder(recorder),
	)
}

func buildAuthenticator(cfg config.Config) (domain.Authenticator, error) {
	if cfg.AuthMode == config.AuthJWT {
		return jwtauth.New(jwtauth.Config{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
	}
	return jwtauth.Header{}, nil
}
