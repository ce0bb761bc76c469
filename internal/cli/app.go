package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/signalwatch/internal/agent"
	"github.com/ppiankov/signalwatch/internal/correlate"
	"github.com/ppiankov/signalwatch/internal/escalation"
	"github.com/ppiankov/signalwatch/internal/logging"
	"github.com/ppiankov/signalwatch/internal/mlscore"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/pipeline"
	"github.com/ppiankov/signalwatch/internal/resilience"
	"github.com/ppiankov/signalwatch/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// loadConfig layers the config file, environment and flags over the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if storeDriver != "" {
		cfg.Store.Driver = storeDriver
	}
	if storeDSN != "" {
		cfg.Store.DSN = storeDSN
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	for i := range cfg.Sources {
		cfg.Sources[i].SourceType = strings.ToLower(cfg.Sources[i].SourceType)
	}
	return cfg, nil
}

// app wires the collaborators one command invocation needs
type app struct {
	cfg   *model.Config
	log   *logrus.Logger
	store store.Store
	deps  *resilience.Dependencies
}

// newApp opens the store and sets up logging. Agents, the runner and the
// correlation engine are built on demand.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	log.WithFields(logrus.Fields{"driver": cfg.Store.Driver}).Debug("store opened")

	if cfg.ML.Provider != "" {
		if cfg.Resilience.Dependencies == nil {
			cfg.Resilience.Dependencies = make(map[string]model.DependencyConfig)
		}
		cfg.Resilience.Dependencies[mlscore.Dependency] = mlscore.DependencyConfig(*cfg)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		store: s,
		deps:  resilience.NewDependencies(cfg.Resilience, log),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close store")
	}
}

// agents builds every enabled source in config order
func (a *app) agents() ([]agent.Agent, error) {
	fetcher := agent.NewFetcher(a.cfg.HTTP, a.deps, a.log)
	env := agent.Env{
		Fetcher:         fetcher,
		Log:             a.log,
		DefaultLookback: a.cfg.Run.DefaultLookback,
	}
	if a.cfg.HTTP.RespectRobots {
		env.Robots = agent.NewRobotsChecker(a.cfg.HTTP.UserAgent, fetcher)
	}
	return agent.NewRegistry().BuildAll(a.cfg.Sources, env)
}

// runner seeds the signal library and builds the ingestion runner
func (a *app) runner(ctx context.Context) (*pipeline.Runner, error) {
	if _, err := escalation.Seed(ctx, a.store, a.cfg.Escalation.SignalsFile); err != nil {
		return nil, err
	}

	agents, err := a.agents()
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no sources configured; add a sources section to the config file")
	}

	scorer, err := mlscore.NewScorer(a.cfg.ML, a.deps)
	if err != nil {
		return nil, fmt.Errorf("ml scorer: %w", err)
	}
	if scorer != nil {
		a.log.WithField("scorer", scorer.Name()).Info("ml scoring enabled")
	}

	checker := escalation.NewChecker(a.store, scorer, a.log)
	return pipeline.NewRunner(a.store, agents, checker, pipeline.Options{
		Deadline: a.cfg.Run.AgentDeadline,
		Log:      a.log,
	}), nil
}

// engine builds the correlation engine from the configured rules
func (a *app) engine() (*correlate.Engine, error) {
	var rules []correlate.Rule
	if a.cfg.Correlation.RulesFile != "" {
		loaded, err := correlate.LoadRules(a.cfg.Correlation.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return correlate.NewEngine(a.store, rules, correlate.Options{Log: a.log}), nil
}
