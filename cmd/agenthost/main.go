// Command agenthost is the composition root: it loads configuration,
// wires every store, manager, and channel, then runs until a
// terminating signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nugget/message-agent-host/internal/agent"
	"github.com/nugget/message-agent-host/internal/buildinfo"
	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/channels/email"
	"github.com/nugget/message-agent-host/internal/channels/imessage"
	"github.com/nugget/message-agent-host/internal/channels/telegram"
	"github.com/nugget/message-agent-host/internal/channels/webchan"
	"github.com/nugget/message-agent-host/internal/channels/wechat"
	"github.com/nugget/message-agent-host/internal/channels/whatsapp"
	"github.com/nugget/message-agent-host/internal/config"
	"github.com/nugget/message-agent-host/internal/health"
	"github.com/nugget/message-agent-host/internal/historystore"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/llm"
	"github.com/nugget/message-agent-host/internal/mcp"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/migrate"
	"github.com/nugget/message-agent-host/internal/paths"
	"github.com/nugget/message-agent-host/internal/skills"
	"github.com/nugget/message-agent-host/internal/statestore"
	"github.com/nugget/message-agent-host/internal/taskmgr"
	"github.com/nugget/message-agent-host/internal/taskstore"
	"github.com/nugget/message-agent-host/internal/verify"
	"github.com/nugget/message-agent-host/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: searches standard locations)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("starting", "build", buildinfo.String())

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return fmt.Errorf("locate config: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("loaded config", "path", path)

	root, err := paths.DataRoot(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data root: %w", err)
	}
	tree, err := paths.Derive(root)
	if err != nil {
		return fmt.Errorf("create data subtrees: %w", err)
	}
	logger.Info("data root", "path", root)

	state, err := statestore.NewStore(tree.State + "/state.db")
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer state.Close()

	history := historystore.New(tree.History, logger)
	j := journal.New(tree.Journal, cfg.Journal.Enabled, logger)
	tasks := taskstore.New(tree.Tasks, logger)

	if err := migrate.LegacyHistory(filepath.Join(root, "legacy-history"), history, logger); err != nil {
		logger.Warn("legacy history migration failed", "error", err)
	}

	llmClient, err := buildLLMClient(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	registry := skills.New()
	for _, dir := range cfg.Skills.Directories {
		if err := registry.LoadDir(dir); err != nil {
			logger.Warn("failed to load skill directory", "dir", dir, "error", err)
		}
	}

	mcpMgr := mcp.NewManager(logger)
	for name, srvCfg := range cfg.MCP.Servers {
		connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := mcpMgr.Connect(connectCtx, name, mcp.ServerConfig{
			Command: srvCfg.Command,
			Args:    srvCfg.Args,
			Env:     srvCfg.Env,
		})
		cancel()
		if err != nil {
			logger.Warn("failed to connect mcp server", "server", name, "error", err)
		}
	}
	defer mcpMgr.DisconnectAll()

	verifier := buildVerifier(cfg.Verification, llmClient, logger)

	chMgr := channel.NewManager(logger)
	sse := web.NewSSEManager()
	webChan := webchan.New("web", sse, logger)

	svc := agent.New(
		cfg.Persona,
		cfg.LLM.Model,
		llmClient,
		history,
		j,
		tasks,
		chMgr,
		mcpMgr,
		registry,
		verify.Config{
			Enabled:                cfg.Verification.Enabled,
			MaxRetries:             cfg.Verification.MaxRetries,
			ConfidenceThreshold:    cfg.Verification.ConfidenceThreshold,
			SkipForShortResponses:  cfg.Verification.SkipForShortResponses,
			ShortResponseThreshold: cfg.Verification.ShortResponseThreshold,
		},
		verifier,
		cfg.Tools.GitHub,
		logger,
	)
	if err := svc.BindBuiltins(); err != nil {
		return fmt.Errorf("bind builtin skills: %w", err)
	}

	taskMgr := taskmgr.New(tasks, chMgr, logger)
	chMgr.RegisterHandler(func(ctx context.Context, msg message.NormalizedMessage) {
		svc.Handle(ctx, taskMgr, msg)
	})

	if err := registerChannels(cfg, chMgr, webChan, state, logger); err != nil {
		return fmt.Errorf("register channels: %w", err)
	}

	var mqttPub health.MQTTPublisher
	if cfg.Health.MQTT.Enabled {
		mqttCtx, mqttCancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := health.NewMQTTClient(mqttCtx, health.MQTTConfig{
			BrokerURL: cfg.Health.MQTT.BrokerURL,
			Topic:     cfg.Health.MQTT.Topic,
		}, logger)
		mqttCancel()
		if err != nil {
			logger.Warn("failed to connect mqtt heartbeat publisher", "error", err)
		} else {
			mqttPub = client
		}
	}

	heartbeatPath := cfg.Health.HeartbeatFile
	if heartbeatPath == "" {
		heartbeatPath = tree.Health + "/heartbeat.json"
	}
	heartbeat := health.New(
		heartbeatPath,
		time.Duration(cfg.Health.HeartbeatIntervalSec)*time.Second,
		chMgr,
		mqttPub,
		logger,
	)
	monitor := health.NewMonitor(
		chMgr,
		time.Duration(cfg.Health.CheckIntervalSec)*time.Second,
		cfg.Health.MaxReconnectAttempts,
		logger,
	)

	if cfg.TaskPersistence.Enabled && cfg.TaskPersistence.RecoverOnStartup {
		health.RecoverTasks(tasks, chMgr, j, logger)
	}
	recoveryCtx, recoveryCancel := context.WithTimeout(context.Background(), 30*time.Second)
	health.NotifyRecovery(recoveryCtx, tree.Health+"/recovery-event.json", cfg.Health.RecoveryNotifyTargets, chMgr, logger)
	recoveryCancel()

	var webSrv *web.Server
	if cfg.Web.Enabled {
		webSrv = web.New(web.Config{
			Port:    cfg.Web.Port,
			Channels: chMgr,
			WebChan:  webChan,
			History:  history,
			Tasks:    tasks,
			Journal:  j,
			SSE:      sse,
			Logger:   logger,
		})
		webSrv.Start()
		logger.Info("web server started", "port", cfg.Web.Port)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	heartbeat.Start(cfg.Health.HeartbeatPort)
	monitor.Start(sigCtx)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), time.Minute)
	chMgr.ConnectAll(connectCtx)
	connectCancel()
	logger.Info("all channels connected", "channels", chMgr.IDs())

	<-sigCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	chMgr.DisconnectAll(shutdownCtx)
	monitor.Stop()
	heartbeat.Stop()
	if webSrv != nil {
		webSrv.Stop(shutdownCtx)
	}
	if closer, ok := mqttPub.(*health.MQTTClient); ok {
		closer.Disconnect(shutdownCtx)
	}
	return nil
}

// buildLLMClient selects a backend for cfg.Provider. Only direct-api
// (Anthropic) has a full chat-native client in this codebase; copilot
// and claude-code fall back to the Ollama-compatible completion
// client pointed at cfg.BaseURL, since neither a Copilot nor a
// Claude Code CLI bridge exists here yet (see DESIGN.md).
func buildLLMClient(cfg config.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderDirectAPI:
		return llm.NewAnthropicClient(cfg.APIKey, logger), nil
	case config.ProviderCopilot, config.ProviderClaudeCode:
		return llm.NewOllamaClient(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func buildVerifier(cfg config.VerificationConfig, llmClient llm.Client, logger *slog.Logger) *verify.Composite {
	var verifiers []verify.Verifier
	if cfg.Rules.Enabled {
		verifiers = append(verifiers, verify.NewRuleVerifier())
	}
	if cfg.LLMReview.Enabled {
		model := cfg.LLMReview.Model
		if model == "" {
			model = "default"
		}
		verifiers = append(verifiers, verify.NewLLMVerifier(llmClient, model, cfg.ConfidenceThreshold, logger))
	}
	return verify.NewComposite(verifiers...)
}

func registerChannels(cfg *config.Config, chMgr *channel.Manager, webChan *webchan.Channel, state *statestore.Store, logger *slog.Logger) error {
	chMgr.Register(webChan)
	if err := webChan.Connect(context.Background()); err != nil {
		logger.Warn("web channel connect reported an error", "error", err)
	}

	for id, chCfg := range cfg.Channels {
		if !chCfg.Enabled {
			continue
		}
		switch chCfg.Type {
		case config.ChannelTelegram:
			chMgr.Register(telegram.New(id, chCfg.Token, logger))
		case config.ChannelWhatsApp:
			chMgr.Register(whatsapp.New(id, chCfg.PuppetProvider, chCfg.SessionDataPath, logger))
		case config.ChannelWeChat:
			chMgr.Register(wechat.New(id, chCfg.PuppetProvider, chCfg.SessionDataPath, logger))
		case config.ChannelIMessage:
			chMgr.Register(imessage.New(id, logger))
		case config.ChannelWeb:
			// The web channel is registered unconditionally above;
			// a config entry of this type only controls whether the
			// HTTP surface (cfg.Web.Enabled) is up, not the channel.
		case config.ChannelEmail:
			if chCfg.Email == nil {
				logger.Warn("email channel missing settings, skipping", "channel", id)
				continue
			}
			acct := email.AccountConfig{
				Name:        chCfg.Email.Name,
				DefaultFrom: chCfg.Email.DefaultFrom,
			}
			acct.IMAP.Host = chCfg.Email.IMAP.Host
			acct.IMAP.Port = chCfg.Email.IMAP.Port
			acct.IMAP.Username = chCfg.Email.IMAP.Username
			acct.IMAP.Password = chCfg.Email.IMAP.Password
			acct.IMAP.TLS = chCfg.Email.IMAP.TLS
			acct.SMTP.Host = chCfg.Email.SMTP.Host
			acct.SMTP.Port = chCfg.Email.SMTP.Port
			acct.SMTP.Username = chCfg.Email.SMTP.Username
			acct.SMTP.Password = chCfg.Email.SMTP.Password
			acct.SMTP.StartTLS = chCfg.Email.SMTP.StartTLS
			acct.ApplyDefaults()
			chMgr.Register(email.New(id, acct, state, logger))
		default:
			return fmt.Errorf("channel %q: unhandled type %q", id, chCfg.Type)
		}
	}
	return nil
}
