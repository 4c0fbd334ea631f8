package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/tbaudier/overseer/internal/queue"
)

// NewThreadsCommand returns the threads subcommand.
func NewThreadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "threads",
		Usage: "Inspect conversation threads",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all threads",
				Action: runThreadsList,
			},
			{
				Name:      "show",
				Usage:     "Show a thread and its tasks",
				ArgsUsage: "<thread_id>",
				Action:    runThreadsShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete a thread and its tasks",
				ArgsUsage: "<thread_id>",
				Action:    runThreadsDelete,
			},
		},
		DefaultCommand: "list",
	}
}

func runThreadsList(_ context.Context, cmd *cli.Command) error {
	store := newTaskStore(cmd)

	threads, err := store.ListThreads()
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Println("No threads found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTASKS\tUPDATED\tTITLE")
	for _, th := range threads {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			th.ID,
			th.Mode,
			len(th.TaskIDs),
			th.UpdatedAt.Format("2006-01-02 15:04:05"),
			th.Title,
		)
	}
	return w.Flush()
}

func runThreadsShow(_ context.Context, cmd *cli.Command) error {
	threadID := cmd.Args().First()
	if threadID == "" {
		return fmt.Errorf("usage: overseer threads show <thread_id>")
	}

	store := newTaskStore(cmd)

	th, err := store.GetThread(threadID)
	if err != nil {
		return fmt.Errorf("get thread: %w", err)
	}
	if th == nil {
		return fmt.Errorf("thread %s not found", threadID)
	}

	fmt.Printf("ID:       %s\n", th.ID)
	fmt.Printf("Title:    %s\n", th.Title)
	fmt.Printf("Mode:     %s\n", th.Mode)
	fmt.Printf("Context:  %s (window %d)\n", th.Settings.ContextMode, th.Settings.ContextWindow)
	fmt.Printf("Created:  %s\n", th.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(th.TaskIDs) == 0 {
		fmt.Println("\nNo tasks on this thread.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tSTATUS\tPROMPT")
	for _, id := range th.TaskIDs {
		t, err := store.GetTask(id)
		if err != nil || t == nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Status, truncate(t.Prompt, 60))
	}
	return w.Flush()
}

func runThreadsDelete(_ context.Context, cmd *cli.Command) error {
	threadID := cmd.Args().First()
	if threadID == "" {
		return fmt.Errorf("usage: overseer threads delete <thread_id>")
	}

	// A bare manager over the store gives us the cascade without a gateway.
	manager := queue.NewManager(newTaskStore(cmd), nil, nil, 1)
	if err := manager.DeleteThread(threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}

	fmt.Printf("Thread %s deleted.\n", threadID)
	return nil
}
