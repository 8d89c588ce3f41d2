package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/backend"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/devserver"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/state"
)

var languageFlag = &cli.StringFlag{
	Name:    "language",
	Aliases: []string{"l"},
	Usage:   "english, hindi, garhwali or kumaoni (default: saved preference)",
}

func askCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "send one message and print the reply",
		ArgsUsage: "<message>",
		Flags:     []cli.Flag{languageFlag},
		Action: func(c *cli.Context) error {
			a := *pa
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return cli.Exit("nothing to ask", 2)
			}
			if err := a.openState(c.Context); err != nil {
				return err
			}
			sess, err := a.newSession(c.Context, a.language(c.Context, c.String("language")), nil)
			if err != nil {
				return err
			}
			defer sess.Close()

			turn, ok := sess.Submit(c.Context, text)
			if !ok {
				return cli.Exit("interrupted", 1)
			}
			fmt.Fprintln(c.App.Writer, turn.Content)
			sess.Wait()
			if turn.Synthetic {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func suggestionsCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "suggestions",
		Usage: "print quick-reply suggestions",
		Flags: []cli.Flag{languageFlag},
		Action: func(c *cli.Context) error {
			a := *pa
			if err := a.openState(c.Context); err != nil {
				return err
			}
			lang := a.language(c.Context, c.String("language"))
			list, err := a.client.Suggestions(c.Context, lang)
			if err != nil {
				a.log.Warnw("loading suggestions failed, using built-in list", "err", err)
				list = a.cat.Suggestions(lang)
			}
			for i, s := range list {
				fmt.Fprintf(c.App.Writer, "%d. %s\n", i+1, s)
			}
			return nil
		},
	}
}

var credentialFlags = []cli.Flag{
	&cli.StringFlag{Name: "email", Required: true},
	&cli.StringFlag{Name: "password", EnvVars: []string{"COMPANION_PASSWORD"}, Required: true},
}

func signupCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "create an account and log in",
		Flags: append([]cli.Flag{&cli.StringFlag{Name: "name", Required: true}, languageFlag}, credentialFlags...),
		Action: func(c *cli.Context) error {
			a := *pa
			if err := a.openState(c.Context); err != nil {
				return err
			}
			lang := a.language(c.Context, c.String("language"))
			res, err := a.client.Signup(c.Context, c.String("name"), c.String("email"), c.String("password"), lang)
			if err != nil {
				return cli.Exit(backend.Reason(err), 1)
			}
			return a.storeLogin(c, res)
		},
	}
}

func loginCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in so conversations are saved",
		Flags: credentialFlags,
		Action: func(c *cli.Context) error {
			a := *pa
			if err := a.openState(c.Context); err != nil {
				return err
			}
			res, err := a.client.Login(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return cli.Exit(backend.Reason(err), 1)
			}
			return a.storeLogin(c, res)
		},
	}
}

func (a *app) storeLogin(c *cli.Context, res backend.LoginResult) error {
	u := state.User{ID: res.User.ID, Name: res.User.Name, Email: res.User.Email}
	if err := a.auth.Login(c.Context, u, res.Token); err != nil {
		return fmt.Errorf("save login: %w", err)
	}
	msg := res.Message
	if msg == "" {
		msg = "Logged in as " + u.Email
	}
	fmt.Fprintln(c.App.Writer, msg)
	return nil
}

func logoutCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored login",
		Action: func(c *cli.Context) error {
			a := *pa
			if err := a.openState(c.Context); err != nil {
				return err
			}
			if err := a.auth.Logout(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Logged out.")
			return nil
		},
	}
}

func whoamiCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the logged-in user",
		Action: func(c *cli.Context) error {
			a := *pa
			if err := a.openState(c.Context); err != nil {
				return err
			}
			cred, ok, err := a.auth.Current(c.Context)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(c.App.Writer, "Not logged in. Conversations will not be saved.")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "%s <%s>, logged in %s\n",
				cred.User.Name, cred.User.Email, cred.IssuedAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func historyCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list saved conversations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "at most 50"},
		},
		Action: func(c *cli.Context) error {
			a := *pa
			if err := a.openState(c.Context); err != nil {
				return err
			}
			sessions, err := a.client.Sessions(c.Context, c.Int("limit"))
			if err != nil {
				return historyError(err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(c.App.Writer, "No saved conversations.")
				return nil
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tMESSAGES\tLAST ACTIVE\tSTARTED WITH")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.ID, s.MessageCount, s.LastTimestamp, truncate(s.FirstMessage, 48))
			}
			return tw.Flush()
		},
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "print one saved conversation",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					a := *pa
					id := c.Args().First()
					if id == "" {
						return cli.Exit("session id required", 2)
					}
					if err := a.openState(c.Context); err != nil {
						return err
					}
					msgs, err := a.client.SessionMessages(c.Context, id)
					if err != nil {
						return historyError(err)
					}
					for _, m := range msgs {
						who := "You"
						if m.Role == "assistant" {
							who = "Guide"
						}
						fmt.Fprintf(c.App.Writer, "%s  %s: %s", m.Timestamp, who, m.Content)
						if r := m.Feedback.Rating; r != nil {
							if *r > 0 {
								fmt.Fprint(c.App.Writer, "  [liked]")
							} else {
								fmt.Fprint(c.App.Writer, "  [disliked]")
							}
						}
						fmt.Fprintln(c.App.Writer)
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "delete one saved conversation",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					a := *pa
					id := c.Args().First()
					if id == "" {
						return cli.Exit("session id required", 2)
					}
					if err := a.openState(c.Context); err != nil {
						return err
					}
					n, err := a.client.DeleteSession(c.Context, id)
					if err != nil {
						return historyError(err)
					}
					if n == 0 {
						fmt.Fprintf(c.App.Writer, "No saved conversation %s.\n", id)
						return nil
					}
					fmt.Fprintf(c.App.Writer, "Deleted %s (%d messages).\n", id, n)
					return nil
				},
			},
		},
	}
}

func historyError(err error) error {
	if errors.Is(err, backend.ErrUnauthenticated) {
		return cli.Exit("log in first to see saved conversations", 1)
	}
	return cli.Exit(backend.Reason(err), 1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func serveDemoCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "serve-demo",
		Usage: "run the offline demo backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default devserver.addr)"},
		},
		Action: func(c *cli.Context) error {
			a := *pa
			cfg := a.cfg.DevServer
			if v := c.String("addr"); v != "" {
				cfg.Addr = v
			}

			db, err := state.OpenDB(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("open demo db: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			provider := a.cfg.Completion.Provider
			if provider == "backend" {
				provider = "demo"
			}
			completer, err := a.registry().Get(c.Context, provider, a.cfg.Completion.Model)
			if err != nil {
				return err
			}

			srv, err := devserver.New(db, cfg, completer, a.cat, a.log)
			if err != nil {
				return err
			}
			if err := srv.SeedUser(c.Context, cfg.DemoName, cfg.DemoEmail, cfg.DemoPassword); err != nil {
				return fmt.Errorf("seed demo user: %w", err)
			}
			fmt.Fprintf(os.Stderr, "demo backend on %s (login %s / %s)\n", cfg.Addr, cfg.DemoEmail, cfg.DemoPassword)
			return srv.Run(c.Context, cfg.Addr)
		},
	}
}
