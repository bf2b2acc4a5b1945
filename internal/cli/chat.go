package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harun/convoy/internal/config"
	"github.com/harun/convoy/internal/logger"
	"github.com/harun/convoy/internal/metrics"
	"github.com/harun/convoy/internal/tracing"
	"github.com/harun/convoy/pkg/agent"
	"github.com/harun/convoy/pkg/capability"
	"github.com/harun/convoy/pkg/history"
	"github.com/harun/convoy/pkg/provider"
	"github.com/harun/convoy/pkg/runner"
	"github.com/harun/convoy/pkg/session"
	"github.com/harun/convoy/pkg/tool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	chatAgent      string
	chatSessionKey string
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Start a conversation with the agent roster",
	Long: `Start a conversation. With a prompt argument the run is one-shot: the
answer is printed and convoy exits. Without arguments an interactive loop
reads prompts from stdin until "exit" or "quit".`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatAgent, "agent", "", "agent to start with (default is the first in the manifest)")
	chatCmd.Flags().StringVar(&chatSessionKey, "session", "", "session key for the transcript (default is generated)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	lg.SetGlobal()
	log := lg.Get()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = tracing.NewRequestContext(ctx)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, m.Handler()); err != nil {
				log.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics listener started")
	}

	servers, closeServers := connectServers(ctx, cfg, m, log)
	defer closeServers()

	agents, firstAgent, err := loadAgents(cfg, servers, log)
	if err != nil {
		return err
	}

	approvals := buildApprovals(cfg, m)

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	run, err := runner.New(runner.Config{
		Agents:    agents,
		Providers: providers,
		Approvals: approvals,
		Metrics:   m,
		MaxTurns:  cfg.MaxTurns,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	cleanup := session.NewCleanup(store, time.Duration(cfg.Session.CleanupAgeHours)*time.Hour)
	if err := cleanup.Start(); err != nil {
		return err
	}
	defer cleanup.Stop()

	sessionKey := chatSessionKey
	if sessionKey == "" {
		sessionKey = session.NewSessionKey()
	}
	ctx = tracing.WithSessionKey(ctx, sessionKey)

	startAgent := chatAgent
	if startAgent == "" {
		startAgent = firstAgent
	}
	if !agents.Exists(startAgent) {
		return fmt.Errorf("unknown start agent: %s", startAgent)
	}

	hist := history.New()
	defer func() {
		if hist.Len() == 0 {
			return
		}
		if err := store.Append(context.Background(), sessionKey, hist.Snapshot()...); err != nil {
			log.Error().Err(err).Msg("Failed to persist transcript")
		}
	}()

	if len(args) > 0 {
		return runTurn(ctx, run, startAgent, hist, strings.Join(args, " "), log)
	}
	return chatLoop(ctx, run, startAgent, hist, log)
}

// runTurn executes one prompt and prints the answer
func runTurn(ctx context.Context, run *runner.Runner, startAgent string, hist *history.History, prompt string, log zerolog.Logger) error {
	result, err := run.Run(ctx, startAgent, nil, hist, prompt)
	if err != nil {
		if errors.Is(err, runner.ErrMaxTurnsExceeded) {
			fmt.Println("(run stopped: turn budget exhausted)")
			return nil
		}
		return err
	}

	fmt.Println(result.FinalOutput)
	log.Debug().
		Str("agent", result.LastAgent).
		Int("turns", result.Turns).
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Msg("Run completed")
	return nil
}

// chatLoop reads prompts from stdin until exit/quit or EOF. The run resumes
// at whichever agent answered last, so a handoff sticks for the follow-ups.
func chatLoop(ctx context.Context, run *runner.Runner, startAgent string, hist *history.History, log zerolog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	active := startAgent

	for {
		fmt.Printf("%s> ", active)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if prompt == "exit" || prompt == "quit" {
			return nil
		}

		result, err := run.Run(ctx, active, nil, hist, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, runner.ErrMaxTurnsExceeded) {
				fmt.Println("(run stopped: turn budget exhausted)")
				continue
			}
			log.Error().Err(err).Msg("Run failed")
			fmt.Printf("(error: %v)\n", err)
			continue
		}

		fmt.Println(result.FinalOutput)
		active = result.LastAgent
	}
}

// connectServers brings up every configured capability server. A server that
// fails to connect is logged and skipped; it never takes the process down.
func connectServers(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (map[string]tool.RemoteProvider, func()) {
	servers := make(map[string]tool.RemoteProvider, len(cfg.Servers))
	clients := make([]*capability.Client, 0, len(cfg.Servers))

	for _, sc := range cfg.Servers {
		serverName := sc.Name
		clientCfg := capability.Config{
			Name:           sc.Name,
			StartupTimeout: time.Duration(sc.StartupTimeoutSeconds) * time.Second,
			CallTimeout:    time.Duration(sc.CallTimeoutSeconds) * time.Second,
			Logger:         log,
			OnInvoke: func(toolName string, err error) {
				status := "ok"
				if err != nil {
					status = "error"
				}
				m.RemoteCallsTotal.WithLabelValues(serverName, status).Inc()
			},
		}
		if len(sc.Allow) > 0 || len(sc.Deny) > 0 {
			clientCfg.Filter = &capability.ToolFilter{Allow: sc.Allow, Deny: sc.Deny}
		}

		var client *capability.Client
		switch sc.Transport {
		case "stdio":
			client = capability.NewSubprocess(clientCfg, sc.Command, sc.Args, sc.Dir)
		case "websocket":
			client = capability.NewStreaming(clientCfg, sc.URL, nil)
		}

		if err := client.Connect(ctx); err != nil {
			log.Warn().Str("server", sc.Name).Err(err).Msg("Capability server unavailable, skipping")
			m.ServerConnected.WithLabelValues(sc.Name).Set(0)
			continue
		}

		m.ServerConnected.WithLabelValues(sc.Name).Set(1)
		servers[sc.Name] = client
		clients = append(clients, client)
	}

	return servers, func() {
		for _, client := range clients {
			if err := client.Close(); err != nil {
				log.Warn().Str("server", client.Name()).Err(err).Msg("Capability server close failed")
			}
		}
	}
}

// loadAgents builds the agent registry from the manifest. The first manifest
// entry is the default start agent.
func loadAgents(cfg *config.Config, servers map[string]tool.RemoteProvider, log zerolog.Logger) (*agent.Registry, string, error) {
	loader := agent.NewLoader(log)

	manifest, err := loader.LoadFromFile(cfg.AgentsFile)
	if err != nil {
		return nil, "", err
	}

	defs, err := loader.Build(manifest, builtinTools(), servers)
	if err != nil {
		return nil, "", err
	}

	agents := agent.NewRegistry()
	for _, def := range defs {
		if err := agents.Register(def); err != nil {
			return nil, "", err
		}
	}
	if err := agents.ValidateHandoffs(); err != nil {
		return nil, "", err
	}

	return agents, defs[0].Name, nil
}

// buildApprovals wires the configured decider into an approval manager
func buildApprovals(cfg *config.Config, m *metrics.Metrics) *tool.ApprovalManager {
	var decider tool.Decider
	switch cfg.Approvals.Mode {
	case "policy":
		decider = &tool.PolicyDecider{
			Allow:          cfg.Approvals.Allow,
			Deny:           cfg.Approvals.Deny,
			DefaultApprove: cfg.Approvals.DefaultApprove,
		}
	default:
		decider = tool.NewCLIDecider(os.Stdin, os.Stdout)
	}

	approvals := tool.NewApprovalManager(decider)
	if cfg.Approvals.TimeoutSeconds > 0 {
		approvals.SetDefaultTimeout(time.Duration(cfg.Approvals.TimeoutSeconds) * time.Second)
	}
	approvals.OnDecision = func(approved bool) {
		decision := "denied"
		if approved {
			decision = "approved"
		}
		m.ApprovalDecisionTotal.WithLabelValues(decision).Inc()
	}
	return approvals
}

// buildProviders creates one backend per configured credential
func buildProviders(cfg *config.Config) (map[string]provider.Provider, error) {
	factory := &provider.Factory{}
	providers := make(map[string]provider.Provider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := factory.New(pc.Name, pc.APIKey)
		if err != nil {
			return nil, err
		}
		providers[pc.Name] = p
	}
	return providers, nil
}
