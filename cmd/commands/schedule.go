package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/scheduler"
)

// NewScheduleCommand returns the schedule subcommand.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage recurring task schedules",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List schedule entries",
				Action: runScheduleList,
			},
			{
				Name:      "add",
				Usage:     "Add a schedule entry",
				ArgsUsage: "<prompt>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "cron",
						Usage: "Cron expression (5 fields)",
					},
					&cli.IntFlag{
						Name:  "interval",
						Usage: "Interval in seconds (alternative to --cron)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Entry title",
					},
					&cli.StringFlag{
						Name:    "thread",
						Aliases: []string{"t"},
						Usage:   "Thread to submit to (default: one thread per entry)",
					},
					&cli.StringFlag{
						Name:    "model",
						Aliases: []string{"m"},
						Usage:   "Model id for the scheduled tasks",
					},
					&cli.IntFlag{
						Name:  "max-runs",
						Usage: "Stop after this many runs (0 = unlimited)",
					},
				},
				Action: runScheduleAdd,
			},
			{
				Name:      "remove",
				Usage:     "Remove a schedule entry",
				ArgsUsage: "<schedule_id>",
				Action:    runScheduleRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func newScheduleStore() *scheduler.Store {
	return scheduler.NewStore(filepath.Join(config.OverseerPath(), "schedules"))
}

func runScheduleList(_ context.Context, _ *cli.Command) error {
	entries, err := newScheduleStore().List()
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No schedule entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tTRIGGER\tRUNS\tLAST RUN\tTITLE")
	for _, e := range entries {
		trigger := e.CronSpec
		if trigger == "" {
			trigger = fmt.Sprintf("every %ds", e.IntervalSec)
		}
		runs := fmt.Sprintf("%d", e.RunCount)
		if e.MaxRuns > 0 {
			runs = fmt.Sprintf("%d/%d", e.RunCount, e.MaxRuns)
		}
		lastRun := "-"
		if e.LastRunAt != nil {
			lastRun = e.LastRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%s\n",
			e.ID, e.Enabled, trigger, runs, lastRun, e.Title)
	}
	return w.Flush()
}

func runScheduleAdd(_ context.Context, cmd *cli.Command) error {
	prompt := cmd.Args().First()
	if prompt == "" {
		return fmt.Errorf("usage: overseer schedule add <prompt>")
	}

	cronSpec := cmd.String("cron")
	interval := cmd.Int("interval")
	if cronSpec == "" && interval == 0 {
		return fmt.Errorf("one of --cron or --interval is required")
	}
	if cronSpec != "" {
		if _, err := scheduler.ParseCron(cronSpec); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	}

	entry := &scheduler.Entry{
		ID:          scheduler.GenerateScheduleID(),
		Title:       cmd.String("title"),
		Prompt:      prompt,
		ThreadID:    cmd.String("thread"),
		Model:       cmd.String("model"),
		CronSpec:    cronSpec,
		IntervalSec: interval,
		MaxRuns:     cmd.Int("max-runs"),
		Enabled:     true,
		CreatedAt:   time.Now(),
	}
	if entry.Title == "" {
		entry.Title = truncate(prompt, 40)
	}

	if err := newScheduleStore().Create(entry); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}

	fmt.Printf("Schedule %s created. A running gateway picks it up on restart.\n", entry.ID)
	return nil
}

func runScheduleRemove(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: overseer schedule remove <schedule_id>")
	}

	if err := newScheduleStore().Delete(id); err != nil {
		return fmt.Errorf("remove schedule: %w", err)
	}
	fmt.Printf("Schedule %s removed.\n", id)
	return nil
}
