package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"memento/internal/analysis"
	"memento/internal/classify"
	"memento/internal/config"
	"memento/internal/llm"
	"memento/internal/lock"
	"memento/internal/logging"
	"memento/internal/prefs"
	"memento/internal/server"
	"memento/internal/session"
	"memento/internal/tasks"
	"memento/internal/themes"
)

const version = "0.3.0"

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "memento",
		Short: "Browser session capture, classification, and longitudinal memory",
		Long: fmt.Sprintf(`%s

Memento captures browser tab sessions, classifies them into intent groups
with a multi-pass LLM pipeline, and tracks what you keep coming back to:
recurring unfinished work, project health, research themes, and the tabs
worth letting go of.`, bold("Memento "+version)),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, debug)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ~/.memento/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug mode")

	rootCmd.AddCommand(newServeCommand(&configFile, &debug))
	rootCmd.AddCommand(newSessionsCommand(&configFile))
	rootCmd.AddCommand(newConfigCommand(&configFile))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newServeCommand(configFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture and launchpad HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configFile, *debug)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("memento " + version)
		},
	}
}

func newSessionsCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect captured sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List captured sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			summaries, err := session.NewStore(cfg.SessionsDir()).List()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println(gray("no sessions captured yet"))
				return nil
			}
			for _, s := range summaries {
				fmt.Printf("%s  %3d tabs  %s\n", bold(s.ID), s.TabCount, gray(s.Narrative))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Dump one session artifact as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			artifact, err := session.NewStore(cfg.SessionsDir()).Read(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(artifact, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})

	return cmd
}

func newConfigCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})

	return cmd
}

func runServe(configFile string, debug bool) error {
	logger := logging.NewComponentLogger("Main")

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if debug {
		cfg.Debug = true
	}

	fmt.Println(bold("Memento " + version))
	fmt.Printf("%s %s\n", gray("listen:"), cfg.ListenAddr)
	fmt.Printf("%s %s\n", gray("state: "), cfg.BaseDir)
	fmt.Printf("%s %s\n", gray("engine:"), cfg.DefaultEngine)

	sessions := session.NewStore(cfg.SessionsDir())
	locks := lock.NewManager(filepath.Join(cfg.BaseDir, "lock.json"))

	registry := llm.NewRegistry()
	for id, engine := range cfg.Engines {
		registry.Register(id, llm.NewHTTPDriver(llm.HTTPDriverConfig{
			Engine:  id,
			Model:   engine.Model,
			BaseURL: engine.Endpoint,
			APIKey:  engine.APIKey,
			Headers: engine.Headers,
		}))
		logger.Info("Engine registered: %s (%s)", id, engine.Model)
	}
	registry.Register("mock", llm.NewMockDriver())

	rules := prefs.NewStore(cfg.LearnedRulesPath())
	domainRules := prefs.NewDomainRuleStore(cfg.DomainRulesPath())
	if err := domainRules.Bootstrap(defaultDomainRules); err != nil {
		logger.Warn("Domain rule bootstrap failed: %v", err)
	}

	classifier := classify.New(registry, rules).WithPricing(classify.Pricing{
		InputPerMTok:  cfg.Pricing.InputPerMTok,
		OutputPerMTok: cfg.Pricing.OutputPerMTok,
	})

	aggregator := analysis.NewAggregator(sessions)
	detector := themes.NewDetector(sessions,
		themes.NewFeedbackStore(filepath.Join(cfg.MemoryDir, "theme-feedback.json")))
	if cfg.InterestsDir != "" {
		detector.WithInterestsDir(cfg.InterestsDir)
	}

	blocked := tasks.NewBlocklist(filepath.Join(cfg.MemoryDir, "released-urls.json"))
	deferred := tasks.NewDeferredList(filepath.Join(cfg.MemoryDir, "deferred-tasks.json"))
	paused := tasks.NewPausedProjects(filepath.Join(cfg.MemoryDir, "paused-projects.json"))
	taskLog := tasks.NewTaskLog(filepath.Join(cfg.MemoryDir, "task-log.json"))

	srv := server.New(server.Deps{
		Config:      cfg,
		Sessions:    sessions,
		Locks:       locks,
		Classifier:  classifier,
		Rules:       rules,
		Analyzer:    prefs.NewAnalyzer(sessions, rules),
		Aggregator:  aggregator,
		Detector:    detector,
		Generator:   tasks.NewGenerator(aggregator, blocked, deferred, paused),
		TaskRunner:  tasks.NewRunner(sessions, blocked, deferred, paused, taskLog),
		DomainRules: domainRules,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(green("ready"))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
