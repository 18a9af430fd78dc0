package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/archive"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

var (
	topic            string
	mode             string
	maxIterations    int
	maxDetailFetches int
	configPath       string
	outputPath       string
)

func main() {
	// Progress goes to stderr so the report on stdout stays clean.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research plans search queries for a topic, reads and summarizes what it finds, decides whether to dig deeper, and writes a cited report.`,
		RunE:  run,
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "Research mode: depth, breadth or balanced")
	rootCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Maximum search iterations")
	rootCmd.Flags().IntVar(&maxDetailFetches, "max-detail-fetches", 0, "Maximum full-page fetch rounds")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Optional YAML config file")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Report file (default research_report_<timestamp>.md)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("topic") {
		fmt.Fprint(os.Stderr, "Enter research topic: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		topic = strings.TrimSpace(input)
	}
	if topic == "" {
		return research.ErrEmptyTopic
	}

	req := research.Request{Topic: topic, Mode: mode}
	if cmd.Flags().Changed("max-iterations") {
		req.MaxIterations = &maxIterations
	}
	if cmd.Flags().Changed("max-detail-fetches") {
		req.MaxDetailFetches = &maxDetailFetches
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	llm, err := clients.New(ctx, cfg)
	if err != nil {
		return err
	}
	search, err := tools.NewProvider(cfg)
	if err != nil {
		return err
	}
	engine := research.NewEngine(llm, search, cfg.ResearchDefaults())
	engine.MaxResults = cfg.SearchMaxResults
	engine.Concurrency = cfg.WorkerConcurrency
	if cfg.ArchiveDir != "" {
		a, err := archive.NewFileArchive(cfg.ArchiveDir)
		if err != nil {
			return err
		}
		engine.Archive = a
	}

	slog.Info("Starting research", "topic", topic, "llm", cfg.LLMProvider, "search", cfg.SearchProvider)

	var report strings.Builder
	var failure string
	for ev := range engine.Stream(ctx, req) {
		switch data := ev.Data.(type) {
		case research.ReportChunkData:
			report.WriteString(data.Content)
			fmt.Print(data.Content)
		case research.ProcessMessage:
			slog.Info(data.Content, "node", data.Node, "type", data.Type)
		case research.IterationData:
			slog.Info("Iteration", "current", data.Current, "max", data.Max)
		case research.CompleteData:
			fmt.Println()
			slog.Info("Research complete", "sources", data.SourcesCount, "iterations", data.Iterations)
		case research.ErrorData:
			failure = data.Message
		}
	}
	if failure != "" {
		return fmt.Errorf("research failed: %s", failure)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("research_report_%s.md", time.Now().Format("20060102_150405"))
	}
	if err := os.WriteFile(outputPath, []byte(report.String()), 0o644); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	slog.Info("Report saved", "path", outputPath)
	return nil
}
