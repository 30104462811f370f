package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"req-studio/internal/config"
	"req-studio/internal/export"
	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/stories"
	"req-studio/internal/store"
)

const version = "0.3.0"

var (
	configFile string
	dryRun     bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:     "req-studio",
		Short:   "Requirements Studio - manage BRDs, PRDs, user stories and tasks",
		Version: version,
		Long: `Requirements Studio keeps a workspace of projects, each holding
business and product requirements, user stories and tasks as JSON files.
Documents can be drafted with an LLM, exported and synced to JIRA.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	rootCmd.AddCommand(projectCommand())
	rootCmd.AddCommand(docCommand())
	rootCmd.AddCommand(storyCommand())
	rootCmd.AddCommand(taskCommand())
	rootCmd.AddCommand(exportCommand())
	rootCmd.AddCommand(jiraCommand())
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(mcpCommand())

	if err := rootCmd.Execute(); err != nil {
		helpers.PrintError("Error: %v", err)
		os.Exit(1)
	}
}

// app holds the wired stores shared by every command
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	fs      *gateway.LocalFS
	docs    *store.Store
	stories *stories.Store
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := helpers.NewLogger(cfg.Log.Level)

	fs, err := gateway.NewLocalFS(cfg.Workspace.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	docs := store.New(fs, store.WithLogger(logger), store.WithTimeout(cfg.Workspace.OperationTimeout()))
	docs.Subscribe(func(st store.State) {
		logger.Debug("store updated", "loading", st.Loading, "projects", len(st.Projects))
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		fs:      fs,
		docs:    docs,
		stories: stories.New(fs, docs, logger),
	}, nil
}

func (a *app) exporter() *export.Pipeline {
	var clip export.Clipboard = export.SystemClipboard{}
	if !helpers.IsTerminal() {
		clip = export.NoClipboard{}
	}
	return export.NewPipeline(a.fs, a.cfg.Export.OutputDir,
		export.WithClipboard(clip),
		export.WithLogger(a.logger))
}

// selectProject loads the project whose id, name or folder matches ref
func (a *app) selectProject(ctx context.Context, ref string) (models.Project, error) {
	for _, p := range a.docs.ListProjects(ctx) {
		if p.ID == ref || p.Dir == ref || strings.EqualFold(p.Name, ref) {
			if _, err := a.docs.LoadProjectFiles(ctx, p.ID, gateway.BaseFiles); err != nil {
				return models.Project{}, err
			}
			return p, nil
		}
	}
	return models.Project{}, fmt.Errorf("%w: %s", store.ErrProjectNotFound, ref)
}

// prdPaths resolves a PRD reference such as "PRD01" or "1" to its base
// and feature file paths inside the selected project
func (a *app) prdPaths(ref string) (base, feature string, err error) {
	n, ok := gateway.ParseNumber(strings.ToUpper(ref), string(models.TypePRD))
	if !ok {
		if _, scanErr := fmt.Sscanf(ref, "%d", &n); scanErr != nil || n <= 0 {
			return "", "", fmt.Errorf("invalid PRD reference %q", ref)
		}
	}

	base, err = a.docs.DocumentPath(string(models.TypePRD), gateway.BaseFileName(string(models.TypePRD), n))
	if err != nil {
		return "", "", err
	}
	feature, err = a.docs.DocumentPath(string(models.TypePRD), gateway.FeatureFileName(string(models.TypePRD), n))
	if err != nil {
		return "", "", err
	}
	return base, feature, nil
}

func parseType(s string) (models.RequirementType, error) {
	t, ok := models.ParseRequirementType(strings.ToUpper(s))
	if !ok {
		return "", fmt.Errorf("unknown requirement type %q", s)
	}
	return t, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	if helpers.FileExists(configFile) {
		helpers.PrintWarning("Configuration file %s already exists", configFile)
		if !confirm("Do you want to overwrite it?") {
			helpers.PrintInfo("Operation cancelled by user")
			return nil
		}
	}

	if err := config.WriteSample(configFile); err != nil {
		return err
	}

	helpers.PrintSuccess("Sample configuration written to %s", configFile)
	helpers.PrintInfo("Edit the file and set your Anthropic and JIRA credentials")
	return nil
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s (y/N): ", question)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
