package main

import (
	"fmt"
	"path"

	"github.com/gin-gonic/gin"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"req-studio/internal/api"
	"req-studio/internal/export"
	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/mcptools"
	"req-studio/internal/models"
	"req-studio/internal/services"
)

func exportCommand() *cobra.Command {
	var exportCmd = &cobra.Command{
		Use:   "export <project> <type>",
		Short: "Export requirements as JSON (clipboard) or an Excel workbook",
		Long: `Export the active documents of one requirement type. JSON output is
printed and copied to the clipboard; xlsx output is written to the export
directory. US exports need --prd.`,
		Args: cobra.ExactArgs(2),
		RunE: runExport,
	}
	exportCmd.Flags().StringP("format", "f", string(export.FormatJSON), "Output format (json, xlsx)")
	exportCmd.Flags().String("prd", "", "PRD whose user stories are exported (US only)")
	return exportCmd
}

func jiraCommand() *cobra.Command {
	var jiraCmd = &cobra.Command{
		Use:   "jira",
		Short: "JIRA integration",
	}

	jiraCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Test the JIRA connection and issue types",
		Args:  cobra.NoArgs,
		RunE:  runJiraTest,
	})

	var syncCmd = &cobra.Command{
		Use:   "sync <project> <prd>",
		Short: "Create the PRD epic, its stories and sub-tasks in JIRA",
		Args:  cobra.ExactArgs(2),
		RunE:  runJiraSync,
	}
	syncCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Show what would be created without creating JIRA tickets")
	syncCmd.Flags().String("report", "", "Write the sync report as JSON to this file")
	jiraCmd.AddCommand(syncCmd)

	jiraCmd.AddCommand(&cobra.Command{
		Use:   "link <project>",
		Short: "Record the configured JIRA project in the project metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runJiraLink,
	})

	return jiraCmd
}

func serveCommand() *cobra.Command {
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return serveCmd
}

func mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only workspace tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("format")
	prdRef, _ := cmd.Flags().GetString("prd")

	a, err := loadApp()
	if err != nil {
		return err
	}
	p, err := a.selectProject(ctx, args[0])
	if err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}

	var src export.Source
	switch {
	case t == models.TypeUS:
		if prdRef == "" {
			return fmt.Errorf("--prd is required for US exports")
		}
		_, feature, err := a.prdPaths(prdRef)
		if err != nil {
			return err
		}
		src.Stories = a.stories.GetUserStories(ctx, feature)
		src.ParentID = gateway.RequirementID(path.Base(feature))
	case t.IsFolderType():
		folder, err := a.docs.FolderPath(t)
		if err != nil {
			return err
		}
		src.FolderPath = folder
		src.Entries = a.docs.BulkReadFiles(ctx, string(t), gateway.BaseFiles, "title", "requirement")
	}

	res := a.exporter().Export(ctx, t, src, export.Options{Format: export.Format(format), ProjectName: p.Name})
	if !res.Success {
		return fmt.Errorf("export failed: %w", res.Error)
	}

	if res.Path != "" {
		helpers.PrintSuccess("Exported %d rows to %s", res.Rows, res.Path)
		return nil
	}
	fmt.Println(res.Output)
	helpers.PrintSuccess("Exported %d rows to the clipboard", res.Rows)
	return nil
}

func runJiraTest(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateJira(); err != nil {
		return fmt.Errorf("invalid JIRA config: %w", err)
	}

	helpers.PrintTitle("Testing JIRA connection")
	if err := services.NewJiraService(&a.cfg.Jira, a.docs, a.stories).TestConnection(cmd.Context()); err != nil {
		return err
	}
	helpers.PrintSuccess("JIRA connection OK")
	return nil
}

func runJiraLink(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateJira(); err != nil {
		return fmt.Errorf("invalid JIRA config: %w", err)
	}
	p, err := a.selectProject(ctx, args[0])
	if err != nil {
		return err
	}

	info, err := services.NewJiraService(&a.cfg.Jira, a.docs, a.stories).LinkProject(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to link %s: %w", p.Name, err)
	}

	helpers.PrintSuccess("Linked %s to JIRA project %s (%s)", p.Name, info.Key, info.Name)
	return nil
}

func runJiraSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reportFile, _ := cmd.Flags().GetString("report")
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateJira(); err != nil {
		return fmt.Errorf("invalid JIRA config: %w", err)
	}
	p, err := a.selectProject(ctx, args[0])
	if err != nil {
		return err
	}
	base, feature, err := a.prdPaths(args[1])
	if err != nil {
		return err
	}

	prd, err := a.docs.ReadFile(ctx, base)
	if err != nil {
		return fmt.Errorf("failed to read PRD: %w", err)
	}
	list := a.stories.GetUserStories(ctx, feature)

	helpers.PrintTitle("Syncing %s to JIRA project %s", prd.Title, a.cfg.Jira.ProjectKey)
	helpers.PrintItem("Epic: "+prd.Title, prd.EpicTicketID)
	for _, s := range list {
		helpers.PrintItem(s.ID+": "+s.Name, s.StoryTicketID)
		for _, task := range s.Tasks {
			helpers.PrintItem("  "+task.ID+": "+task.List, task.SubTaskTicketID)
		}
	}

	if dryRun {
		helpers.PrintInfo("Dry run mode - no JIRA tickets will be created")
		return nil
	}

	if !confirm("Do you want to create these tickets in JIRA?") {
		helpers.PrintInfo("Operation cancelled by user")
		return nil
	}

	jira := services.NewJiraService(&a.cfg.Jira, a.docs, a.stories)
	if err := jira.TestConnection(ctx); err != nil {
		return fmt.Errorf("failed to sync %s: %w", p.Name, err)
	}

	report, err := jira.SyncPRD(ctx, base, feature)
	if err != nil {
		return fmt.Errorf("failed to sync %s: %w", p.Name, err)
	}

	helpers.PrintSuccess("Epic %s: %d stories and %d sub-tasks created, %d skipped",
		report.EpicKey, len(report.CreatedStories), len(report.CreatedTasks), report.Skipped)
	for _, f := range report.Failed {
		helpers.PrintWarning("Failed: %s", f)
	}

	if reportFile != "" {
		if err := helpers.SaveJSON(report, reportFile); err != nil {
			return fmt.Errorf("failed to save sync report: %w", err)
		}
		helpers.PrintInfo("Sync report saved to %s", reportFile)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	a, err := loadApp()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := api.NewServer(a.docs, a.stories, a.fs, a.exporter(), a.logger)
	helpers.PrintInfo("Serving %s on %s", a.fs.Root(), addr)
	return server.Run(addr)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	s := mcptools.NewServer(mcptools.New(a.docs, a.stories), version)
	return mcpserver.ServeStdio(s)
}
