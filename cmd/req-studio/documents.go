package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"req-studio/internal/gateway"
	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/services"
)

func projectCommand() *cobra.Command {
	var projectCmd = &cobra.Command{
		Use:   "project",
		Short: "List and create projects",
	}

	projectCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the projects in the workspace",
		Args:  cobra.NoArgs,
		RunE:  runProjectList,
	})

	var createCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project with empty requirement folders",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectCreate,
	}
	createCmd.Flags().StringP("description", "d", "", "Project description")
	createCmd.Flags().String("tech", "", "Technical details")
	projectCmd.AddCommand(createCmd)

	projectCmd.AddCommand(&cobra.Command{
		Use:   "status <project>",
		Short: "Show document counts and counters per requirement type",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectStatus,
	})

	return projectCmd
}

func docCommand() *cobra.Command {
	var docCmd = &cobra.Command{
		Use:   "doc",
		Short: "Work with requirement documents",
	}

	var listCmd = &cobra.Command{
		Use:   "list <project> <type>",
		Short: "List the documents of one requirement type",
		Args:  cobra.ExactArgs(2),
		RunE:  runDocList,
	}
	listCmd.Flags().Bool("archived", false, "Include archived documents")
	docCmd.AddCommand(listCmd)

	docCmd.AddCommand(&cobra.Command{
		Use:   "show <path>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE:  runDocShow,
	})

	var createCmd = &cobra.Command{
		Use:   "create <project> <type>",
		Short: "Create a requirement document",
		Args:  cobra.ExactArgs(2),
		RunE:  runDocCreate,
	}
	createCmd.Flags().StringP("title", "t", "", "Document title")
	createCmd.Flags().StringP("requirement", "r", "", "Requirement text")
	createCmd.Flags().StringSlice("brd", nil, "BRD ids referenced by a business process")
	createCmd.Flags().StringSlice("prd", nil, "PRD ids referenced by a business process")
	docCmd.AddCommand(createCmd)

	var draftCmd = &cobra.Command{
		Use:   "draft <project> <type> <brief>",
		Short: "Draft a requirement document from a short brief with the LLM",
		Args:  cobra.ExactArgs(3),
		RunE:  runDocDraft,
	}
	draftCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Show the draft without saving it")
	docCmd.AddCommand(draftCmd)

	docCmd.AddCommand(&cobra.Command{
		Use:   "archive <project> <type> <id|file>",
		Short: "Archive a requirement document",
		Args:  cobra.ExactArgs(3),
		RunE:  runDocArchive,
	})

	return docCmd
}

func runProjectList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	projects := a.docs.ListProjects(cmd.Context())
	helpers.PrintTitle("Projects (%d)", len(projects))
	for _, p := range projects {
		helpers.PrintItem(p.Name, fmt.Sprintf("id=%s folder=%s", p.ID, p.Dir))
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	description, _ := cmd.Flags().GetString("description")
	tech, _ := cmd.Flags().GetString("tech")

	a, err := loadApp()
	if err != nil {
		return err
	}

	p, err := a.docs.CreateProject(cmd.Context(), args[0], description, tech)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	helpers.PrintSuccess("Created project %s (%s)", p.Name, p.ID)
	return nil
}

func runProjectStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}

	p, err := a.selectProject(ctx, args[0])
	if err != nil {
		return err
	}

	summary, err := services.NewRequirementService(a.docs, a.fs, a.logger).Summary(ctx)
	if err != nil {
		return err
	}

	helpers.PrintTitle("Project: %s", p.Name)
	helpers.PrintSeparator()
	for _, s := range summary {
		next, err := a.docs.GetNextRequirementID(s.Type)
		if err != nil {
			return err
		}
		fmt.Printf("%-5s active %-4d archived %-4d counter %-4d next %s%s\n",
			s.Type, s.Active, s.Archived, s.Counter, s.Type, gateway.PadID(next))
	}
	fmt.Printf("%-5s counter %d\n", models.TypeUS, p.RequirementCounters[models.TypeUS])
	fmt.Printf("%-5s counter %d\n", models.TypeTask, p.RequirementCounters[models.TypeTask])
	return nil
}

func runDocList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	archived, _ := cmd.Flags().GetBool("archived")

	a, err := loadApp()
	if err != nil {
		return err
	}
	if _, err := a.selectProject(ctx, args[0]); err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}

	filter := gateway.BaseFiles
	if archived {
		filter = gateway.AllBaseFiles
	}

	entries := a.docs.BulkReadFiles(ctx, string(t), filter, "title")
	helpers.PrintTitle("%s documents (%d)", t, len(entries))
	for _, e := range entries {
		label := gateway.RequirementID(e.FileName)
		if gateway.IsArchived(e.FileName) {
			label += " (archived)"
		}
		helpers.PrintItem(label, e.Content.Title)
	}
	return nil
}

func runDocShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	doc, err := a.docs.ReadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	data, err := helpers.MarshalPretty(doc)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runDocCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	title, _ := cmd.Flags().GetString("title")
	requirement, _ := cmd.Flags().GetString("requirement")
	brds, _ := cmd.Flags().GetStringSlice("brd")
	prds, _ := cmd.Flags().GetStringSlice("prd")

	a, err := loadApp()
	if err != nil {
		return err
	}
	if _, err := a.selectProject(ctx, args[0]); err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}

	doc := models.Document{Title: title, Requirement: requirement, SelectedBRDs: brds, SelectedPRDs: prds}
	created, err := services.NewRequirementService(a.docs, a.fs, a.logger).Create(ctx, t, doc)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	helpers.PrintSuccess("Created %s (%s)", created.ID, created.File)
	return nil
}

func runDocDraft(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateAnthropic(); err != nil {
		return fmt.Errorf("invalid anthropic config: %w", err)
	}

	p, err := a.selectProject(ctx, args[0])
	if err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}

	helpers.PrintTitle("Drafting %s for %s", t, p.Name)
	doc, err := services.NewAIService(&a.cfg.Anthropic).ExpandRequirement(ctx, t, args[2], p)
	if err != nil {
		return fmt.Errorf("failed to draft requirement: %w", err)
	}

	helpers.PrintInfo("Title: %s", doc.Title)
	fmt.Println(doc.Requirement)

	if dryRun {
		helpers.PrintInfo("Dry run mode - the draft was not saved")
		return nil
	}

	created, err := services.NewRequirementService(a.docs, a.fs, a.logger).Create(ctx, t, doc)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	helpers.PrintSuccess("Saved draft as %s", created.ID)
	return nil
}

func runDocArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	if _, err := a.selectProject(ctx, args[0]); err != nil {
		return err
	}
	t, err := parseType(args[1])
	if err != nil {
		return err
	}

	file := path.Base(args[2])
	if !strings.HasSuffix(file, ".json") {
		file += gateway.BaseSuffix
	}
	if err := services.NewRequirementService(a.docs, a.fs, a.logger).Archive(ctx, t, file); err != nil {
		return fmt.Errorf("failed to archive %s: %w", file, err)
	}

	helpers.PrintSuccess("Archived %s", file)
	return nil
}
