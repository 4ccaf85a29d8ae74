// Command marker grades student submissions against question definitions
// using a remote jobe sandbox.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/codegrade/marker/internal/bulktest"
	"github.com/codegrade/marker/internal/environment"
	"github.com/codegrade/marker/internal/filestore"
	"github.com/codegrade/marker/internal/gradecache"
	"github.com/codegrade/marker/internal/jobrunner"
	"github.com/codegrade/marker/internal/qfile"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/report"
	"github.com/codegrade/marker/internal/report/natsrep"
	"github.com/codegrade/marker/internal/report/sqsrep"
	"github.com/codegrade/marker/internal/report/termrep"
	"github.com/codegrade/marker/internal/sandbox"
)

func main() {
	cmd := &cli.Command{
		Name:  "marker",
		Usage: "grade student submissions against question definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			bulktestCommand(),
			languagesCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})), nil
}

func newSandbox(cfg *environment.EnvConfig, logger *slog.Logger) *sandbox.Jobe {
	return sandbox.NewJobe(sandbox.JobeConfig{
		Server:  cfg.JobeServers,
		APIKey:  cfg.JobeAPIKey,
		Timeout: cfg.JobeTimeout,
		Logger:  logger,
	})
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "grade one submission file against one question file",
		ArgsUsage: "<question.toml> <submission>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "precheck",
				Usage: "run example tests only, as a precheck",
			},
			&cli.BoolFlag{
				Name:  "show-output",
				Usage: "print expected and got for failing tests",
			},
			&cli.StringFlag{
				Name:  "report",
				Value: "term",
				Usage: "progress backend: term, nats or sqs",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("expected a question file and a submission file")
			}
			logger, err := newLogger(cmd.String("log-level"))
			if err != nil {
				return err
			}
			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}

			spec, err := qfile.Load(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			code, err := os.ReadFile(cmd.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to read submission: %w", err)
			}

			testcases := spec.Question.TestCases
			if cmd.Bool("precheck") {
				testcases = exampleTests(testcases)
				if len(testcases) == 0 {
					return fmt.Errorf("question has no example tests to precheck")
				}
			}

			reporter, err := newReporter(ctx, cmd, cfg, logger)
			if err != nil {
				return err
			}
			store, err := filestore.New(cfg.FileStoreDir, cfg.FileStoreBaseURL)
			if err != nil {
				return err
			}

			sb := newSandbox(cfg, logger)
			defer sb.Close()

			runner := jobrunner.New(sb, &question.SubstRenderer{}, store, reporter, logger)
			o := runner.RunTests(ctx, jobrunner.Job{
				Question:   spec.Question,
				Code:       string(code),
				TestCases:  testcases,
				IsPrecheck: cmd.Bool("precheck"),
			})

			if !o.AllCorrect() {
				return fmt.Errorf("submission did not pass all tests")
			}
			return nil
		},
	}
}

func newReporter(ctx context.Context, cmd *cli.Command, cfg *environment.EnvConfig, logger *slog.Logger) (report.Reporter, error) {
	switch backend := cmd.String("report"); backend {
	case "term":
		t := termrep.New()
		t.ShowOutput = cmd.Bool("show-output")
		return t, nil
	case "nats":
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		return natsrep.New(nc, cfg.NatsSubject, logger), nil
	case "sqs":
		if cfg.SQSResponseURL == "" {
			return nil, fmt.Errorf("SQS_RESPONSE_URL is not set")
		}
		return sqsrep.New(ctx, cfg.AWSRegion, cfg.SQSResponseURL, logger)
	default:
		return nil, fmt.Errorf("unknown report backend %q", backend)
	}
}

func exampleTests(testcases []question.TestCase) []question.TestCase {
	var examples []question.TestCase
	for _, tc := range testcases {
		if tc.UseAsExample {
			examples = append(examples, tc)
		}
	}
	return examples
}

func bulktestCommand() *cli.Command {
	return &cli.Command{
		Name:      "bulktest",
		Usage:     "grade every question's reference answer in a directory",
		ArgsUsage: "<question-dir>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Value: 4,
				Usage: "questions graded in parallel",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "regrade even when a cached outcome exists",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected a question directory")
			}
			logger, err := newLogger(cmd.String("log-level"))
			if err != nil {
				return err
			}
			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}

			specs, err := qfile.LoadDir(cmd.Args().Get(0))
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				return fmt.Errorf("no question files found")
			}

			var cache *gradecache.Cache
			if !cmd.Bool("no-cache") {
				cache, err = gradecache.New(cfg.GradeCacheDir, logger)
				if err != nil {
					return err
				}
			}
			store, err := filestore.New(cfg.FileStoreDir, cfg.FileStoreBaseURL)
			if err != nil {
				return err
			}

			sb := newSandbox(cfg, logger)
			defer sb.Close()

			runner := jobrunner.New(sb, &question.SubstRenderer{}, store, nil, logger)
			tester := bulktest.New(runner, cache, int(cmd.Int("concurrency")), logger)

			results, err := tester.Run(ctx, specs)
			if err != nil {
				return err
			}
			if failed := bulktest.RenderSummary(os.Stdout, results); failed > 0 {
				return fmt.Errorf("%d of %d questions did not pass", failed, len(results))
			}
			return nil
		},
	}
}

func languagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "list the languages the sandbox supports",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := newLogger(cmd.String("log-level"))
			if err != nil {
				return err
			}
			cfg, err := environment.ReadEnvConfig()
			if err != nil {
				return err
			}

			sb := newSandbox(cfg, logger)
			defer sb.Close()

			langs, err := sb.Languages(ctx)
			if err != nil {
				return err
			}
			sort.Strings(langs)
			for _, lang := range langs {
				fmt.Println(lang)
			}
			return nil
		},
	}
}
