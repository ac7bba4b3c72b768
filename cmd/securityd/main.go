package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/okwaro/pesasentinel/internal/api/rest"
	identitydomain "github.com/okwaro/pesasentinel/internal/domain/identity"
	policydomain "github.com/okwaro/pesasentinel/internal/domain/policy"
	"github.com/okwaro/pesasentinel/internal/infrastructure/config"
	"github.com/okwaro/pesasentinel/internal/infrastructure/telemetry"
	"github.com/okwaro/pesasentinel/internal/metrics"
	"github.com/okwaro/pesasentinel/internal/service/alerts"
	"github.com/okwaro/pesasentinel/internal/service/auditlog"
	"github.com/okwaro/pesasentinel/internal/service/fraud"
	"github.com/okwaro/pesasentinel/internal/service/identity"
	"github.com/okwaro/pesasentinel/internal/service/monitor"
	"github.com/okwaro/pesasentinel/internal/service/orchestrator"
	"github.com/okwaro/pesasentinel/internal/service/policy"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	registry, err := metrics.NewRegistry("pesasentinel")
	if err != nil {
		logger.Fatal("initializing metrics registry", zap.Error(err))
	}

	auditLog := auditlog.New(cfg.Audit.Capacity, logger)
	alertMgr := alerts.NewManager(cfg.Alerts.Capacity, auditLog, newPromNotifier(), logger)
	defer alertMgr.Close()

	ids := identity.NewService(identity.Config{
		TrustDomain:    cfg.Identity.TrustDomain,
		PrimaryNetwork: cfg.Identity.PrimaryNetwork,
		TTL:            cfg.Identity.TTL,
	}, auditLog, logger)

	engine := fraud.NewEngine(fraudRules(cfg.Fraud, logger), cfg.Fraud.BlockThreshold,
		alertMgr, auditLog, logger)

	policySvc := policy.NewService(ids, auditLog, logger)
	for key, rule := range policy.DefaultRuleSet(
		cfg.Identity.CountryPrefix,
		cfg.Policy.MaxTravelKMH,
		cfg.Policy.MinOrderAgeDays,
		cfg.Policy.MedianMultiple,
	) {
		policySvc.RegisterRule(key, rule)
	}
	if err := policySvc.LoadPolicies(policySet(cfg.Policy)); err != nil {
		logger.Fatal("loading policies", zap.Error(err))
	}

	flow := orchestrator.NewService(conservativeFacts{}, ids, engine, policySvc,
		alertMgr, auditLog, cfg.Fraud.ReviewThreshold, logger)

	ids.SetMetrics(registry)
	alertMgr.SetMetrics(registry)
	policySvc.SetMetrics(registry)
	flow.SetMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(ids, alertMgr, cfg.Monitor.Interval, logger)
	mon.Start(ctx)
	defer mon.Stop()

	go observeGauges(ctx, registry, ids, alertMgr)
	watchConfig(*configPath, cfg.Fraud, engine, policySvc, logger)

	handler := rest.NewHandler(flow, alertMgr, auditLog, policySvc, logger)
	router := rest.NewRouter(handler, registry, logger, rest.RouterConfig{
		RateLimitRPS:   cfg.Server.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.Server.RateLimit.BurstSize,
	})
	server := rest.NewServer(router, rest.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutting down server", zap.Error(err))
		}
		<-errCh
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	}
}

// fraudRules builds the engine rule set from configuration, falling back to
// the defaults when none are configured.
func fraudRules(cfg config.FraudConfig, logger *zap.Logger) []fraud.Rule {
	if len(cfg.Rules) == 0 {
		return nil
	}
	var rules []fraud.Rule
	for _, rc := range cfg.Rules {
		if !rc.Enabled {
			continue
		}
		switch rc.Name {
		case fraud.RuleNewAccountLargeOrder:
			rules = append(rules, fraud.NewAccountLargeOrderRule(rc.Weight))
		case fraud.RuleLocationVelocity:
			rules = append(rules, fraud.LocationVelocityRule(rc.Weight))
		case fraud.RuleStaleOrRiskyPattern:
			rules = append(rules, fraud.StaleOrRiskyPatternRule(rc.Weight))
		default:
			logger.Warn("unknown fraud rule in configuration", zap.String("rule", rc.Name))
		}
	}
	return rules
}

// policySet builds the policy chain from configuration, falling back to the
// defaults when none are configured.
func policySet(cfg config.PolicyConfig) []policydomain.Policy {
	if len(cfg.Policies) == 0 {
		return policy.DefaultPolicies()
	}
	out := make([]policydomain.Policy, 0, len(cfg.Policies))
	for _, pc := range cfg.Policies {
		out = append(out, policydomain.Policy{
			ID:          pc.ID,
			Name:        pc.Name,
			Description: pc.Description,
			Priority:    pc.Priority,
			Region:      pc.Region,
			MinTier:     identitydomain.Tier(pc.MinTier),
			RuleKey:     pc.RuleKey,
			Active:      pc.Active,
		})
	}
	return out
}

// watchConfig hot-reloads the runtime toggles only: fraud rule enabled flags
// and policy active flags. Weights, thresholds, and the rest of the
// configuration keep their startup values until a restart.
func watchConfig(path string, base config.FraudConfig, engine *fraud.Engine, policySvc *policy.Service, logger *zap.Logger) {
	err := config.Watch(path, func(cfg *config.Config, err error) {
		if err != nil {
			logger.Error("config reload failed", zap.Error(err))
			return
		}
		if len(base.Rules) > 0 {
			engine.SetRules(fraudRules(applyRuleFlags(base, cfg.Fraud), logger))
		}
		for _, pc := range cfg.Policy.Policies {
			policySvc.SetActive(pc.ID, pc.Active)
		}
		logger.Info("configuration reloaded", zap.String("path", path))
	})
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	}
}

// applyRuleFlags copies the startup rule set, taking only the enabled flags
// from the reloaded configuration. Rules absent from the startup set are
// ignored: a reload cannot introduce rules or change weights.
func applyRuleFlags(base, reloaded config.FraudConfig) config.FraudConfig {
	enabled := make(map[string]bool, len(reloaded.Rules))
	for _, rc := range reloaded.Rules {
		enabled[rc.Name] = rc.Enabled
	}
	out := base
	out.Rules = make([]config.FraudRuleEntry, len(base.Rules))
	copy(out.Rules, base.Rules)
	for i, rc := range out.Rules {
		if on, ok := enabled[rc.Name]; ok {
			out.Rules[i].Enabled = on
		}
	}
	return out
}

// observeGauges feeds the observable gauges from the live services.
func observeGauges(ctx context.Context, registry *metrics.Registry, ids *identity.Service, alertMgr *alerts.Manager) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.SetActiveIdentities(int64(ids.ActiveCount()))
			registry.SetPendingAlerts(int64(alertMgr.PendingCount()))
		}
	}
}

// conservativeFacts stands in when no KYC upstream is configured: unknown
// accounts get zero history, which the policy chain refuses to clear.
type conservativeFacts struct{}

func (conservativeFacts) Lookup(_ context.Context, account string) (identitydomain.VerificationFact, error) {
	return identitydomain.VerificationFact{AccountNumber: account}, nil
}
