package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/nexusholdings/nexus/client"
	"github.com/nexusholdings/nexus/internal/config"
	"github.com/nexusholdings/nexus/internal/infra/database"
	"github.com/nexusholdings/nexus/internal/infra/gateway"
	"github.com/nexusholdings/nexus/internal/infra/repository"
	"github.com/nexusholdings/nexus/internal/metrics"
	"github.com/nexusholdings/nexus/internal/present/rest"
	"github.com/nexusholdings/nexus/internal/present/rest/middleware"
	"github.com/nexusholdings/nexus/internal/service"
	"github.com/nexusholdings/nexus/internal/usecase"
	"github.com/nexusholdings/nexus/internal/utils"
	"github.com/nexusholdings/nexus/policy"
)

type app struct {
	db       *gorm.DB
	rdb      *redis.Client
	kafka    *service.KafkaPublisher
	activity *service.ActivityService
	auth     *service.AuthService

	eligibility *usecase.EligibilityUsecase
	proposals   *usecase.ProposalUsecase
	handler     *rest.Handler
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	if cfg.Server.PostgresDsn != "" {
		return database.NewPostgres(cfg.Server.PostgresDsn)
	}
	utils.Warn("no postgres dsn configured, using sqlite", utils.String("path", cfg.Server.SqlitePath))
	return database.NewSqlite(cfg.Server.SqlitePath)
}

type policies struct {
	roles    usecase.RoleChecker
	limits   usecase.LimitEngine
	weights  usecase.VoteWeightOracle
	approval usecase.ApprovalPolicy
}

func buildPolicies(cfg config.Config, db *gorm.DB) (policies, error) {
	var p policies

	switch cfg.Policy.Mode {
	case config.PolicyModeRPC:
		cl := client.New(cfg.Policy.RPCEndpoint, cfg.Policy.RPCKey, client.Options{
			Timeout: config.Duration(cfg.Policy.RPCTimeout),
			Retries: cfg.Policy.RPCRetries,
		})
		rpc := gateway.NewRPCPolicyGateway(cl)
		p = policies{roles: rpc, limits: rpc, weights: rpc, approval: rpc}
	default:
		document := policy.SimpleMajority()
		if cfg.Policy.ApprovalDocument != "" {
			var err error
			document, err = policy.LoadDocument(cfg.Policy.ApprovalDocument)
			if err != nil {
				return policies{}, err
			}
		}
		p = policies{
			roles:    repository.NewRoleRepository(db),
			limits:   usecase.NewReferenceLimitEngine(),
			weights:  usecase.NewHoldingWeightOracle(repository.NewHoldingRepository(db)),
			approval: usecase.NewDocumentApprovalPolicy(document, cfg.Policy.ApprovalQuorum),
		}
	}

	if ttl := config.Duration(cfg.Policy.RoleCacheTTL); ttl > 0 {
		p.roles = gateway.NewCachedRoleChecker(p.roles, ttl)
	}
	if cfg.Server.MemcachedAddr != "" {
		if ttl := config.Duration(cfg.Policy.LimitCacheTTL); ttl > 0 {
			p.limits = gateway.NewCachedLimitEngine(p.limits, database.NewMemcached(cfg.Server.MemcachedAddr, config.Duration(cfg.Server.CacheTimeout)), ttl)
		}
	}
	return p, nil
}

func newApp(cfg config.Config) (*app, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	a := &app{db: db}

	p, err := buildPolicies(cfg, db)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher service.Publisher = service.NopPublisher{}
	var signal *service.SignalService
	switch cfg.Server.ActivityTransport {
	case config.TransportRedis:
		a.rdb = database.NewRedis(cfg.Server.RedisAddr, cfg.Server.RedisPassword, cfg.Server.RedisDB, config.Duration(cfg.Server.CacheTimeout))
		signal = service.NewSignalService(a.rdb)
		publisher = signal
	case config.TransportKafka:
		a.kafka = service.NewKafkaPublisher(cfg.Server.KafkaBrokers, cfg.Server.KafkaTopic)
		publisher = a.kafka
	}

	var gatherer prometheus.Gatherer
	var registerer prometheus.Registerer
	if cfg.Server.EnableMetrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gatherer, registerer = registry, registry
	}
	var m *metrics.Metrics
	if registerer != nil {
		m = metrics.New(registerer)
	}

	activityRepo := repository.NewActivityRepository(db)
	a.activity = service.NewActivityService(activityRepo, publisher, config.Duration(cfg.Server.ActivityTimeout))
	a.auth = service.NewAuthService(cfg.Auth.JwtSecret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL))

	fallback := usecase.WeightFallback{Enabled: cfg.Policy.FallbackEnabled, Weight: cfg.Policy.FallbackWeight}

	a.eligibility = usecase.NewEligibilityUsecase(repository.NewInvestorRepository(db), p.limits, p.roles, a.activity, m)
	a.proposals = usecase.NewProposalUsecase(repository.NewProposalRepository(db), p.roles, p.weights, p.approval, fallback, a.activity, m)
	a.handler = rest.NewHandler(
		a.eligibility,
		a.proposals,
		usecase.NewActivityUsecase(activityRepo),
		middleware.NewAuthMiddleware(a.auth),
		signal,
		gatherer,
	)
	return a, nil
}

// Close flushes pending activity before releasing connections.
func (a *app) Close() {
	if a.activity != nil {
		a.activity.Wait()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			utils.Error("failed to close kafka writer", utils.ErrorField(err))
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) sweep(ctx context.Context) {
	approved, err := a.proposals.SweepExpired(ctx)
	if err != nil {
		utils.Error("deadline sweep failed", utils.ErrorField(err))
		return
	}
	utils.Info("deadline sweep finished", utils.Int("approved", approved))
}
