package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/guildwarden/warden/automod/classifier"
	"github.com/guildwarden/warden/automod/detect"
	"github.com/guildwarden/warden/automod/policy"
	"github.com/guildwarden/warden/automod/settings"
	"github.com/guildwarden/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "chat moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "llm-api-key",
			Usage:   "API key for the classification backend; Tier 2 detection is disabled without one",
			EnvVars: []string{"LLM_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "llm-host",
			Usage:   "base URL of an OpenAI-compatible classification backend",
			EnvVars: []string{"LLM_HOST"},
		},
		&cli.StringFlag{
			Name:    "llm-model",
			Usage:   "model name for classification requests",
			Value:   classifier.DefaultModel,
			EnvVars: []string{"LLM_MODEL"},
		},
		&cli.Float64Flag{
			Name:    "llm-rate-limit",
			Usage:   "max classification requests per second",
			Value:   10,
			EnvVars: []string{"WARDEN_LLM_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "classifier-timeout",
			Usage:   "upper bound on a single classification request",
			Value:   detect.DefaultClassifierTimeout,
			EnvVars: []string{"WARDEN_CLASSIFIER_TIMEOUT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		Level: cctx.String("log-level"),
	})
}

func configClassifier(cctx *cli.Context, logger *slog.Logger) (detect.Classifier, error) {
	if cctx.String("llm-api-key") == "" {
		logger.Warn("no classification backend configured, only keyword detection will run")
		return nil, nil
	}
	return classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
		APIKey:    cctx.String("llm-api-key"),
		Host:      cctx.String("llm-host"),
		Model:     cctx.String("llm-model"),
		RateLimit: cctx.Float64("llm-rate-limit"),
		Logger:    logger,
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "discord-token",
			Usage:    "bot token for the discord gateway and REST API",
			Required: true,
			EnvVars:  []string{"DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; counters, flags and caches are kept in-process without it",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "password for the admin API (basic auth, username 'admin'); API is disabled if unset",
			EnvVars: []string{"WARDEN_ADMIN_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.IntFlag{
			Name:    "max-concurrency",
			Usage:   "max messages processed at once",
			Value:   64,
			EnvVars: []string{"WARDEN_MAX_CONCURRENCY"},
		},
		&cli.BoolFlag{
			Name:    "log-all-verdicts",
			Usage:   "also append violation log entries for messages judged clean",
			EnvVars: []string{"WARDEN_LOG_ALL_VERDICTS"},
		},
		&cli.DurationFlag{
			Name:    "fake-account-age",
			Usage:   "accounts younger than this are treated as suspected fakes (0 disables)",
			EnvVars: []string{"WARDEN_FAKE_ACCOUNT_AGE"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL(ctx, "warden")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"), logger)
		if err != nil {
			return err
		}
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return err
		}

		cls, err := configClassifier(cctx, logger)
		if err != nil {
			return err
		}

		srv, err := NewServer(
			db,
			cls,
			Config{
				Logger:            logger,
				DiscordToken:      cctx.String("discord-token"),
				RedisURL:          cctx.String("redis-url"),
				SlackWebhookURL:   cctx.String("slack-webhook-url"),
				AdminPassword:     cctx.String("admin-password"),
				ClassifierTimeout: cctx.Duration("classifier-timeout"),
				MaxConcurrency:    cctx.Int("max-concurrency"),
				LogAllVerdicts:    cctx.Bool("log-all-verdicts"),
				FakeAccountAge:    cctx.Duration("fake-account-age"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx, cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run warden service: %w", err)
		}
		return nil
	},
}

type checkOutput struct {
	Tier     string          `json:"tier"`
	Verdict  any             `json:"verdict"`
	Decision policy.Decision `json:"decision"`
	Raw      string          `json:"raw,omitempty"`
	Error    string          `json:"error,omitempty"`
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "run detection and policy for a single message text, offline",
	ArgsUsage: `<text>`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "rule",
			Usage:    "workspace rule statement (repeatable, in priority order)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "prompt-template",
			Usage: "classification prompt template; must contain " + settings.MessagePlaceholder,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		text := cctx.Args().First()
		if text == "" {
			return fmt.Errorf("need to provide message text as an argument")
		}
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		cls, err := configClassifier(cctx, logger)
		if err != nil {
			return err
		}

		now := time.Now()
		ms := &settings.MonitorSettings{
			WorkspaceID:                  "check",
			Enabled:                      true,
			Rules:                        cctx.StringSlice("rule"),
			ClassificationPromptTemplate: cctx.String("prompt-template"),
			EnabledAt:                    &now,
		}
		if err := ms.Validate(); err != nil {
			return err
		}

		det := detect.Detector{
			Classifier: cls,
			Timeout:    cctx.Duration("classifier-timeout"),
			Logger:     logger,
		}
		res := det.Detect(ctx, ms, text)
		out := checkOutput{
			Tier:     res.Tier.String(),
			Verdict:  res.Verdict,
			Decision: policy.Resolve(res.Verdict, ms),
			Raw:      res.Raw,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}
