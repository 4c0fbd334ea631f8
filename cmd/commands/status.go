package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show gateway and provider health",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:18520",
			},
		},
		Action: runStatus,
	}
}

func runStatus(_ context.Context, cmd *cli.Command) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(cmd.String("gateway") + "/api/health")
	if err != nil {
		fmt.Println("Gateway: NOT RUNNING")
		return nil
	}
	defer resp.Body.Close()

	var health struct {
		Status           string `json:"status"`
		Uptime           string `json:"uptime"`
		InterruptedTasks int    `json:"interrupted_tasks"`
		Providers        []struct {
			Name     string `json:"name"`
			Status   string `json:"status"`
			Failures int    `json:"consecutive_failures"`
		} `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}

	fmt.Printf("Gateway: ALIVE (uptime %s)\n", health.Uptime)
	if health.InterruptedTasks > 0 {
		fmt.Printf("Interrupted tasks: %d\n", health.InterruptedTasks)
	}

	if len(health.Providers) == 0 {
		fmt.Println("No providers configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nPROVIDER\tSTATUS\tFAILURES")
	for _, p := range health.Providers {
		fmt.Fprintf(w, "%s\t%s\t%d\n", p.Name, p.Status, p.Failures)
	}
	return w.Flush()
}
