package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
)

// NewSubmitCommand returns the submit subcommand.
func NewSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Enqueue a task on a running gateway",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway base URL",
				Value: "http://127.0.0.1:18520",
			},
			&cli.StringFlag{
				Name:    "thread",
				Aliases: []string{"t"},
				Usage:   "Thread id (empty = new thread)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Title for a newly created thread",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model id, or \"auto\"",
			},
		},
		Action: runSubmit,
	}
}

func runSubmit(_ context.Context, cmd *cli.Command) error {
	prompt := cmd.Args().First()
	if prompt == "" {
		return fmt.Errorf("usage: overseer submit <prompt>")
	}

	body, err := json.Marshal(map[string]string{
		"prompt":       prompt,
		"thread_id":    cmd.String("thread"),
		"thread_title": cmd.String("title"),
		"model":        cmd.String("model"),
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(cmd.String("gateway")+"/api/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit task: %w (is the gateway running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway rejected task: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var created struct {
		TaskID   string `json:"task_id"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Printf("Task %s queued on thread %s.\n", created.TaskID, created.ThreadID)
	return nil
}
