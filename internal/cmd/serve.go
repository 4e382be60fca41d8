package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loppo-llc/tgbotctl/internal/audit"
	"github.com/loppo-llc/tgbotctl/internal/auth"
	"github.com/loppo-llc/tgbotctl/internal/config"
	"github.com/loppo-llc/tgbotctl/internal/dispatcher"
	"github.com/loppo-llc/tgbotctl/internal/editsession"
	"github.com/loppo-llc/tgbotctl/internal/mcpbridge"
	"github.com/loppo-llc/tgbotctl/internal/policy"
	"github.com/loppo-llc/tgbotctl/internal/promptrule"
	"github.com/loppo-llc/tgbotctl/internal/registry"
	"github.com/loppo-llc/tgbotctl/internal/scheduler"
	"github.com/loppo-llc/tgbotctl/internal/terminal"
	"github.com/loppo-llc/tgbotctl/internal/transport"
	"github.com/loppo-llc/tgbotctl/internal/userstate"
)

const shutdownGrace = 10 * time.Second

var (
	serveMCP           bool
	serveCreateMissing bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load config, reconcile tabs, and poll the chat transport",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "also serve the read-only MCP introspection bridge over stdio")
	serveCmd.Flags().BoolVar(&serveCreateMissing, "create-missing", true, "recreate sessions missing at startup rather than marking tabs broken")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return configError(fmt.Errorf("serve: %w", err))
	}

	term := terminal.New(terminal.Config{
		Width:      cfg.Tmux.Width,
		Height:     cfg.Tmux.Height,
		Scrollback: cfg.Tmux.Scrollback,
	})

	reg := registry.New(cfg.Paths.TagRegistryPath, term, logger)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("serve: load registry: %w", err)
	}
	result, err := reg.Reconcile(serveCreateMissing)
	if err != nil {
		return driverUnavailable(fmt.Errorf("serve: reconcile: %w", err))
	}
	logger.Info("reconciled tab registry",
		"recreated", len(result.Recreated), "broken", len(result.Broken), "orphans", len(result.Orphans))

	users := userstate.New(cfg.Paths.StatePath)
	if err := users.Load(); err != nil {
		return fmt.Errorf("serve: load user state: %w", err)
	}

	authMgr := auth.New(cfg.Paths.WhitelistStatePath, auth.Config{
		MaxFailures:          cfg.AuthConfig.MaxFailures,
		FailureWindowSeconds: cfg.AuthConfig.FailureWindowSeconds,
		LockoutSeconds:       cfg.AuthConfig.LockoutSeconds,
	})
	if err := authMgr.Load(); err != nil {
		return fmt.Errorf("serve: load whitelist: %w", err)
	}
	authMgr.Seed(seedEntries(cfg.WhitelistKeys))

	pol, err := policy.Compile(cfg.CommandPolicy.MaxLength, cfg.CommandPolicy.BlockedPatterns, cfg.CommandPolicy.AllowedPatterns, cfg.CommandPolicy.RequireAllowlist)
	if err != nil {
		return configError(fmt.Errorf("serve: compile command policy: %w", err))
	}

	promptCfg, err := config.LoadPromptRules(cfg.Paths.PromptRulesPath)
	if err != nil {
		return configError(fmt.Errorf("serve: load prompt rules: %w", err))
	}
	rules, err := promptrule.Compile(translatePromptRules(*promptCfg))
	if err != nil {
		return configError(fmt.Errorf("serve: compile prompt rules: %w", err))
	}

	editMgr := editsession.New(cfg.Paths.EditRootPath)
	auditLog := audit.New(cfg.Paths.AuditLogPath, logger)

	tg, err := transport.NewTelegram(cfg.Telegram.BotToken, logger)
	if err != nil {
		return fmt.Errorf("serve: telegram transport: %w", err)
	}

	d := dispatcher.New(dispatcher.Deps{
		Terminal:  term,
		Registry:  reg,
		Users:     users,
		Auth:      authMgr,
		Policy:    pol,
		Edit:      editMgr,
		Audit:     auditLog,
		Transport: tg,
		Logger:    logger,
	})

	sched := scheduler.New(term, rules, users, d, schedulerEmitter(tg, logger), scheduler.Config{
		ScrollbackLines: cfg.Tmux.Scrollback,
		MaxMessageLen:   4000,
	}, logger)
	d.SetScheduler(sched)
	sched.Start()

	if serveMCP {
		bridge := mcpbridge.New(mcpListTabs(reg), mcpCapture(term, cfg.Tmux.Scrollback))
		go func() {
			if err := bridge.ServeStdio(); err != nil {
				logger.Warn("mcp bridge stopped", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go d.Run()
	logger.Info("tgbotctl serving", "mcp", serveMCP)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	sched.Stop()
	if err := tg.Close(); err != nil {
		logger.Warn("transport close failed", "err", err)
	}

	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logger.Warn("shutdown grace period exceeded, forcing exit")
	}
	return nil
}

func schedulerEmitter(tg *transport.TelegramAdapter, logger *slog.Logger) scheduler.Emitter {
	return func(out scheduler.Outbound) {
		outbound := transport.Outbound{ChatID: out.UserID, Text: out.Text}
		if len(out.Buttons) > 0 {
			var row []transport.Button
			for _, b := range out.Buttons {
				row = append(row, transport.Button{Label: b.Label, CallbackData: "prompt:send:" + b.Action})
			}
			outbound.Buttons = [][]transport.Button{row}
		}
		if err := tg.Send(outbound); err != nil {
			logger.Warn("scheduler: send failed", "user_id", out.UserID, "err", err)
		}
	}
}

func mcpListTabs(reg *registry.Registry) mcpbridge.TabLister {
	return func(userID int64) []mcpbridge.TabInfo {
		var out []mcpbridge.TabInfo
		for _, t := range reg.ListTags(userID) {
			out = append(out, mcpbridge.TabInfo{TabID: t.TabID, DisplayName: t.DisplayName, SessionName: t.SessionName})
		}
		return out
	}
}

func mcpCapture(term *terminal.Driver, scrollback int) mcpbridge.Capturer {
	return func(tabID string) (string, error) { return term.Capture(tabID, scrollback) }
}

func seedEntries(keys []config.WhitelistKey) []auth.Entry {
	var out []auth.Entry
	for _, k := range keys {
		exp, _ := config.ParseExpiresAt(k.ExpiresAt)
		out = append(out, auth.Entry{
			UserID:    k.UserID,
			AccessKey: k.AccessKey,
			ServerIP:  k.ServerIP,
			ExpiresAt: exp,
			Admin:     k.Admin,
		})
	}
	return out
}

func translatePromptRules(p config.PromptRules) promptrule.Config {
	cfg := promptrule.Config{Enabled: p.Enabled, DefaultSilence: p.DefaultSilence}
	for _, r := range p.Rules {
		spec := promptrule.RuleSpec{
			ID:                r.ID,
			Type:              promptrule.MatcherType(r.Type),
			Pattern:           r.Pattern,
			Keywords:          r.Keywords,
			CaseSensitive:     r.CaseSensitive,
			IncrementalOutput: r.IncrementalOutput,
		}
		for _, b := range r.Buttons {
			spec.Buttons = append(spec.Buttons, promptrule.Button{Label: b.Label, Action: b.Action})
		}
		cfg.Rules = append(cfg.Rules, spec)
	}
	return cfg
}
