package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tbaudier/overseer/internal/config"
	"github.com/tbaudier/overseer/internal/events"
	"github.com/tbaudier/overseer/internal/providers"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a one-shot message through the provider router and print the reply",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model id, or \"auto\" to let the picker choose",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Response timeout in seconds",
				Value: 120,
			},
		},
		Action: runAsk,
	}
}

func runAsk(_ context.Context, cmd *cli.Command) error {
	message := cmd.Args().First()
	if message == "" {
		return fmt.Errorf("usage: overseer ask <message>")
	}

	cfg := loadConfig(cmd)
	if len(cfg.Providers.Registry) == 0 {
		return fmt.Errorf("no providers configured; edit %s", config.ConfigPath())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cmd.Int("timeout"))*time.Second)
	defer cancel()

	bus := events.NewBus(64)
	defer bus.Close()

	registry := providers.NewRegistry(cfg.Providers, nil)
	routing, err := config.LoadRouting(cfg.Providers.RoutingFile)
	if err != nil {
		routing = &config.RoutingConfig{}
	}
	router := providers.NewRouter(registry, routing, bus)

	resp := router.CallWithFailover(ctx, providers.Request{
		Prompt: message,
		Type:   providers.RequestChat,
		Model:  cmd.String("model"),
	})
	if !resp.Success {
		return fmt.Errorf("all providers failed: %s", resp.Error)
	}

	fmt.Fprintln(os.Stdout, resp.Content)
	fmt.Fprintf(os.Stderr, "[%s/%s, %d in / %d out tokens]\n",
		resp.Provider, resp.Model, resp.TokensInput, resp.TokensOutput)
	return nil
}
