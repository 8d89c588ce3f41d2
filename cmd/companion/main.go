// Command companion is a terminal client for the Uttarakhand tourism
// guide: multilingual chat with saved history, feedback and speech.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/config"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	var a *app

	return &cli.App{
		Name:  "companion",
		Usage: "chat with the Uttarakhand tourism guide",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"COMPANION_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "completion provider: backend, ollama, openrouter or demo",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "model name for the ollama and openrouter providers",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "ephemeral",
				Usage: "keep login and preferences in memory for this run only",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if v := c.String("provider"); v != "" {
				cfg.Completion.Provider = v
			}
			if v := c.String("model"); v != "" {
				cfg.Completion.Model = v
			}
			if v := c.String("log-level"); v != "" {
				cfg.Log.Level = v
			}
			if c.Bool("ephemeral") {
				cfg.State.Driver = "memory"
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a, err = newApp(cfg, log)
			return err
		},
		After: func(*cli.Context) error {
			if a != nil {
				a.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			chatCommand(&a),
			askCommand(&a),
			suggestionsCommand(&a),
			signupCommand(&a),
			loginCommand(&a),
			logoutCommand(&a),
			whoamiCommand(&a),
			historyCommand(&a),
			serveDemoCommand(&a),
		},
	}
}
