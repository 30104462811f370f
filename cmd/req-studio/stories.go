package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"req-studio/internal/helpers"
	"req-studio/internal/models"
	"req-studio/internal/services"
	"req-studio/internal/stories"
)

func storyCommand() *cobra.Command {
	var storyCmd = &cobra.Command{
		Use:   "story",
		Short: "Work with the user stories of a PRD",
	}

	storyCmd.AddCommand(&cobra.Command{
		Use:   "list <project> <prd>",
		Short: "List user stories and their tasks",
		Args:  cobra.ExactArgs(2),
		RunE:  runStoryList,
	})

	var createCmd = &cobra.Command{
		Use:   "create <project> <prd>",
		Short: "Add a user story",
		Args:  cobra.ExactArgs(2),
		RunE:  runStoryCreate,
	}
	createCmd.Flags().StringP("name", "n", "", "Story name")
	createCmd.Flags().StringP("description", "d", "", "Story description")
	_ = createCmd.MarkFlagRequired("name")
	storyCmd.AddCommand(createCmd)

	var generateCmd = &cobra.Command{
		Use:   "generate <project> <prd>",
		Short: "Generate user stories from the PRD with the LLM",
		Args:  cobra.ExactArgs(2),
		RunE:  runStoryGenerate,
	}
	generateCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Show the generated stories without saving them")
	storyCmd.AddCommand(generateCmd)

	storyCmd.AddCommand(&cobra.Command{
		Use:   "import <project> <prd> <file>",
		Short: "Import user stories from a JSON file",
		Long:  "Import a JSON array of user stories with their tasks. Ids in the file are replaced with fresh ones.",
		Args:  cobra.ExactArgs(3),
		RunE:  runStoryImport,
	})

	storyCmd.AddCommand(&cobra.Command{
		Use:   "archive <project> <prd> <story>",
		Short: "Archive a user story",
		Args:  cobra.ExactArgs(3),
		RunE:  runStoryArchive,
	})

	return storyCmd
}

func taskCommand() *cobra.Command {
	var taskCmd = &cobra.Command{
		Use:   "task",
		Short: "Work with the tasks of a user story",
	}

	var createCmd = &cobra.Command{
		Use:   "create <project> <prd> <story>",
		Short: "Add a task to a user story",
		Args:  cobra.ExactArgs(3),
		RunE:  runTaskCreate,
	}
	createCmd.Flags().StringP("list", "l", "", "Task description")
	createCmd.Flags().StringP("acceptance", "a", "", "Acceptance criteria")
	_ = createCmd.MarkFlagRequired("list")
	taskCmd.AddCommand(createCmd)

	var updateCmd = &cobra.Command{
		Use:   "update <project> <prd> <story> <task>",
		Short: "Replace a task",
		Args:  cobra.ExactArgs(4),
		RunE:  runTaskUpdate,
	}
	updateCmd.Flags().StringP("list", "l", "", "Task description")
	updateCmd.Flags().StringP("acceptance", "a", "", "Acceptance criteria")
	taskCmd.AddCommand(updateCmd)

	taskCmd.AddCommand(&cobra.Command{
		Use:   "archive <project> <prd> <story> <task>",
		Short: "Archive a task",
		Args:  cobra.ExactArgs(4),
		RunE:  runTaskArchive,
	})

	return taskCmd
}

// openFeatureFile selects the project and resolves the PRD's feature file
func openFeatureFile(cmd *cobra.Command, projectRef, prdRef string) (*app, models.Project, string, error) {
	a, err := loadApp()
	if err != nil {
		return nil, models.Project{}, "", err
	}
	p, err := a.selectProject(cmd.Context(), projectRef)
	if err != nil {
		return nil, models.Project{}, "", err
	}
	_, feature, err := a.prdPaths(prdRef)
	if err != nil {
		return nil, models.Project{}, "", err
	}

	a.stories.Subscribe(func(e stories.Event) {
		a.logger.Debug("story event", "kind", e.Kind, "story", e.UserStoryID, "task", e.TaskID)
		if e.Kind == stories.EventTaskUpdated {
			helpers.PrintInfo("Next: req-studio story list %s %s", projectRef, prdRef)
		}
	})
	return a, p, feature, nil
}

func runStoryList(cmd *cobra.Command, args []string) error {
	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	list := a.stories.GetUserStories(cmd.Context(), feature)
	helpers.PrintTitle("User stories (%d)", len(list))
	for _, s := range list {
		helpers.PrintSeparator()
		helpers.PrintInfo("%s: %s", s.ID, s.Name)
		if s.Description != "" {
			fmt.Println(s.Description)
		}
		for _, task := range s.Tasks {
			helpers.PrintItem(task.ID+": "+task.List, task.Acceptance)
		}
	}

	if archived := a.stories.ArchivedFeatures(); len(archived) > 0 {
		helpers.PrintSeparator()
		helpers.PrintInfo("%d archived stories", len(archived))
	}
	return nil
}

func runStoryCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")

	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	story, err := a.stories.CreateNewUserStory(cmd.Context(), models.UserStory{Name: name, Description: description}, feature)
	if err != nil {
		return fmt.Errorf("failed to create user story: %w", err)
	}

	helpers.PrintSuccess("Created %s", story.ID)
	return nil
}

func runStoryGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, p, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateAnthropic(); err != nil {
		return fmt.Errorf("invalid anthropic config: %w", err)
	}

	base, _, err := a.prdPaths(args[1])
	if err != nil {
		return err
	}
	prd, err := a.docs.ReadFile(ctx, base)
	if err != nil {
		return fmt.Errorf("failed to read PRD: %w", err)
	}

	helpers.PrintTitle("Generating user stories for %s", prd.Title)
	generated, err := services.NewAIService(&a.cfg.Anthropic).GenerateUserStories(ctx, prd, p)
	if err != nil {
		return fmt.Errorf("failed to generate user stories: %w", err)
	}

	for i, s := range generated {
		helpers.PrintProgress(i+1, len(generated), s.Name)
		for _, task := range s.Tasks {
			helpers.PrintItem(task.List, task.Acceptance)
		}
	}

	if dryRun {
		helpers.PrintInfo("Dry run mode - no stories were saved")
		return nil
	}

	created, err := a.stories.ImportUserStories(ctx, feature, generated)
	if err != nil {
		return fmt.Errorf("failed to save user stories: %w", err)
	}

	helpers.PrintSuccess("Saved %d user stories", len(created))
	return nil
}

func runStoryImport(cmd *cobra.Command, args []string) error {
	var incoming []models.UserStory
	if err := helpers.LoadJSON(args[2], &incoming); err != nil {
		return fmt.Errorf("failed to load %s: %w", args[2], err)
	}

	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	created, err := a.stories.ImportUserStories(cmd.Context(), feature, incoming)
	if err != nil {
		return fmt.Errorf("failed to import user stories: %w", err)
	}

	for _, s := range created {
		helpers.PrintItem(s.ID+": "+s.Name, fmt.Sprintf("%d tasks", len(s.Tasks)))
	}
	helpers.PrintSuccess("Imported %d user stories", len(created))
	return nil
}

func runStoryArchive(cmd *cobra.Command, args []string) error {
	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	if err := a.stories.ArchiveUserStory(cmd.Context(), feature, args[2]); err != nil {
		return fmt.Errorf("failed to archive %s: %w", args[2], err)
	}

	helpers.PrintSuccess("Archived %s", args[2])
	return nil
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	list, _ := cmd.Flags().GetString("list")
	acceptance, _ := cmd.Flags().GetString("acceptance")

	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	// CreateNewTask works on the selected story, as the editor does
	a.stories.GetUserStories(cmd.Context(), feature)
	a.stories.SelectUserStory(args[2])

	task, err := a.stories.CreateNewTask(cmd.Context(), models.Task{List: list, Acceptance: acceptance}, feature)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	helpers.PrintSuccess("Created %s under %s", task.ID, args[2])
	return nil
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	storyID, taskID := args[2], args[3]
	a.stories.GetUserStories(ctx, feature)

	var current models.Task
	found := false
	for _, task := range a.stories.TaskMap()[storyID] {
		if task.ID == taskID {
			current, found = task, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s in %s", stories.ErrTaskNotFound, taskID, storyID)
	}

	if cmd.Flags().Changed("list") {
		current.List, _ = cmd.Flags().GetString("list")
	}
	if cmd.Flags().Changed("acceptance") {
		current.Acceptance, _ = cmd.Flags().GetString("acceptance")
	}

	a.stories.SelectUserStory(storyID)
	a.stories.SelectTask(taskID)
	if err := a.stories.UpdateTask(ctx, current, feature); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	helpers.PrintSuccess("Updated %s", taskID)
	return nil
}

func runTaskArchive(cmd *cobra.Command, args []string) error {
	a, _, feature, err := openFeatureFile(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	if err := a.stories.ArchiveTask(cmd.Context(), feature, args[2], args[3]); err != nil {
		return fmt.Errorf("failed to archive %s: %w", args[3], err)
	}

	helpers.PrintSuccess("Archived %s", args[3])
	return nil
}
