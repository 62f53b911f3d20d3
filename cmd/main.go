package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"gopkg.in/natefinch/lumberjack.v2"

	"mailcal/internal/caldav"
	"mailcal/internal/config"
	"mailcal/internal/mailbox"
	"mailcal/internal/metrics"
	"mailcal/internal/oauth"
	"mailcal/internal/pipeline"
	"mailcal/internal/router"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "mailcal",
		Usage: "Turn calendar attachments from a mailbox into events on per-recipient calendars.",
		Commands: []*cli.Command{
			runCommand(),
			authCommand(),
			destinationsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize IMAP access with OAuth and save the token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger(config.LogConfig{Level: "info"})
			logger.Info("Starting OAuth authentication flow.")

			oc := config.LoadOAuth()
			cfg, err := oauth.Config(oc.ClientID, oc.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get oauth config: %w", err)
			}

			authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser. After consent the browser "+
				"is sent to localhost; copy that address (or just its code parameter): \n%v\n", authURL)

			fmt.Print("Enter redirect address or authorization code: ")
			reader := bufio.NewReader(os.Stdin)
			input, _ := reader.ReadString('\n')
			authCode, err := oauth.AuthCode(input)
			if err != nil {
				return fmt.Errorf("invalid authorization response: %w", err)
			}

			token, err := oauth.TokenFromWeb(c.Context, cfg, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			if err := oauth.SaveToken(oc.TokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", oc.TokenFile)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Scan the mailbox and upload calendar events.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run a single pass and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Parse and route events without uploading anything."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run a pass every N seconds. Overrides --once."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := setupLogger(cfg.Log)

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No events will be uploaded.")
			}

			box, err := newMailbox(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			uploader, err := newUploader(logger, cfg)
			if err != nil {
				return err
			}

			m := metrics.New()
			if cfg.MetricsAddr != "" {
				go serveMetrics(logger, cfg.MetricsAddr, m)
			}

			p := pipeline.New(logger, box, router.New(logger, cfg.Routes, cfg.DefaultChannel), uploader, m, pipeline.Options{
				DryRun:   c.Bool("dry-run"),
				MarkSeen: cfg.IMAP.MarkRead,
			})

			// --watch flag takes precedence
			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := runPass(c.Context, p, c.App.Writer); err != nil {
						logger.Error("Pipeline pass failed", "error", err)
					}
					select {
					case <-c.Context.Done():
						return nil
					case <-ticker.C:
					}
				}
			}

			// --once is the default behavior if --watch is not set
			logger.Info("Running a single pass.")
			if err := runPass(c.Context, p, c.App.Writer); err != nil {
				return fmt.Errorf("single pass failed: %w", err)
			}
			return nil
		},
	}
}

func destinationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "destinations",
		Usage: "List the calendars each routing destination can see on the store.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := setupLogger(cfg.Log)

			uploader, err := newUploader(logger, cfg)
			if err != nil {
				return err
			}

			w := c.App.Writer
			for _, name := range cfg.Routes.Destinations(cfg.DefaultChannel) {
				d, err := uploader.Discover(c.Context, name)
				if err != nil {
					logger.Error("Failed to discover destination", "destination", name, "error", err)
					fmt.Fprintf(w, "%s: error: %v\n", name, err)
					continue
				}
				status := "missing"
				if d.Found {
					status = "ok"
				}
				fmt.Fprintf(w, "%s: calendar %q %s (home %s)\n", name, cfg.CalDAV.Calendar, status, d.HomeSet)
				for _, cal := range d.Calendars {
					fmt.Fprintf(w, "   %s\n", cal)
				}
			}
			return nil
		},
	}
}

func runPass(ctx context.Context, p *pipeline.Pipeline, w io.Writer) error {
	report, err := p.Run(ctx)
	if err != nil {
		return err
	}
	report.Print(w)
	return nil
}

func newMailbox(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*mailbox.IMAPClient, error) {
	opts := mailbox.Options{
		Host:               cfg.IMAP.Host,
		Port:               cfg.IMAP.Port,
		Security:           cfg.IMAP.Security,
		Folder:             cfg.IMAP.Folder,
		Username:           cfg.IMAP.Username,
		Password:           cfg.IMAP.Password,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
	}

	if cfg.IMAP.Auth == config.AuthOAuth {
		oc, err := oauth.Config(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to get oauth config: %w", err)
		}
		ts, err := oauth.TokenSource(ctx, oc, cfg.OAuth.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("could not load oauth token, did you run auth command? %w", err)
		}
		opts.TokenSource = ts
	}

	return mailbox.NewIMAPClient(logger, opts), nil
}

func newUploader(logger *slog.Logger, cfg *config.Config) (*caldav.Uploader, error) {
	uploader, err := caldav.NewUploader(logger, caldav.Options{
		BaseURL:            cfg.CalDAV.BaseURL,
		Password:           cfg.CalDAV.Password,
		Calendar:           cfg.CalDAV.Calendar,
		Limits:             cfg.Limits,
		Timeout:            cfg.CalDAV.Timeout,
		InsecureSkipVerify: cfg.CalDAV.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav uploader: %w", err)
	}
	return uploader, nil
}

func serveMetrics(logger *slog.Logger, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	logger.Info("Serving metrics.", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
