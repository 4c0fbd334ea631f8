package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/tbaudier/overseer/internal/queue"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect queued and finished tasks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all tasks",
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
		},
		DefaultCommand: "list",
	}
}

func newTaskStore(cmd *cli.Command) *queue.FileStore {
	cfg := loadConfig(cmd)
	return queue.NewFileStore(
		filepath.Join(cfg.Queue.Dir, "tasks"),
		filepath.Join(cfg.Queue.Dir, "threads"),
	)
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	store := newTaskStore(cmd)

	list, err := store.ListTasks()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTHREAD\tCREATED\tPROMPT")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			t.Status,
			t.ThreadID,
			t.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(t.Prompt, 60),
		)
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: overseer tasks show <task_id>")
	}

	store := newTaskStore(cmd)

	t, err := store.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("task %s not found", taskID)
	}

	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Thread:    %s\n", t.ThreadID)
	fmt.Printf("Status:    %s\n", t.Status)
	fmt.Printf("Created:   %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("Started:   %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.WorkerID != "" {
		fmt.Printf("Worker:    %s\n", t.WorkerID)
	}

	fmt.Printf("\nPrompt:\n%s\n", t.Prompt)

	if t.Result != nil {
		fmt.Printf("\nTrace:     %s\n", t.Result.TraceID)
		if len(t.Result.ActionsTaken) > 0 {
			fmt.Printf("Actions:   %v\n", t.Result.ActionsTaken)
		}
		if len(t.Result.AgentsSpawned) > 0 {
			fmt.Printf("Agents:    %v\n", t.Result.AgentsSpawned)
		}
		if len(t.Result.ToolsForged) > 0 {
			fmt.Printf("Tools:     %v\n", t.Result.ToolsForged)
		}
		if t.Result.Response != "" {
			fmt.Printf("\nResponse:\n%s\n", t.Result.Response)
		}
	}
	if t.Error != "" {
		fmt.Printf("\nError: %s\n", t.Error)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
