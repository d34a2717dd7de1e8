package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/core"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
	"github.com/bakkerme/wanderlust-ai/internal/llm/chatcompletion"
	"github.com/bakkerme/wanderlust-ai/internal/llm/openai"
	"github.com/bakkerme/wanderlust-ai/internal/observability/otelx"
	"github.com/bakkerme/wanderlust-ai/internal/planner"
	"github.com/bakkerme/wanderlust-ai/internal/policy"
)

// app holds what every subcommand needs. It is built once per invocation.
type app struct {
	env      config.EnvConfig
	logger   *slog.Logger
	client   llm.Client
	streamer llm.Streamer
	shutdown otelx.Shutdown
}

type callFlags struct {
	system      string
	model       string
	temperature float64
	maxTokens   int
}

func (f *callFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.system, "system", "s", "", "system prompt")
	flags.StringVarP(&f.model, "model", "m", "", "model (default LLM_MODEL)")
	flags.Float64VarP(&f.temperature, "temperature", "t", 0, "sampling temperature 0-2 (default LLM_TEMPERATURE)")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "maximum completion tokens")
}

func (f *callFlags) params(cmd *cobra.Command, prompt string) llm.ChatParams {
	params := llm.ChatParams{
		System:    f.system,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Model:     f.model,
		MaxTokens: f.maxTokens,
	}
	if cmd.Flags().Changed("temperature") {
		t := f.temperature
		params.Temperature = &t
	}
	return params
}

func newRootCmd() *cobra.Command {
	var backend string
	a := &app{}

	root := &cobra.Command{
		Use:           "wanderlust",
		Short:         "Resilient chat completions and trip planning against OpenAI-compatible providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			built, err := newApp(cmd.Context(), config.LoadEnv(), backend, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			*a = *built
			ctx := core.WithLogger(cmd.Context(), a.logger)
			cmd.SetContext(core.WithSessionID(ctx, a.env.SessionID))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}
	root.PersistentFlags().StringVar(&backend, "backend", "", "client backend: http or openai (default LLM_BACKEND)")

	root.AddCommand(newChatCmd(a), newStreamCmd(a), newPlanCmd(a))
	return root
}

func newApp(ctx context.Context, env config.EnvConfig, backend string, logOut io.Writer) (*app, error) {
	logger, err := core.NewLogger(logOut, env.Log.Level, env.Log.Format)
	if err != nil {
		return nil, err
	}
	for _, invalid := range env.Invalid {
		logger.Warn("ignoring unparseable environment variable, using default", "key", invalid.Key, "value", invalid.Value, "error", invalid.Err)
	}
	if backend != "" {
		env.LLM.Backend = backend
	}

	shutdown, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	client, streamer, err := newClient(env.LLM, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	return &app{env: env, logger: logger, client: client, streamer: streamer, shutdown: shutdown}, nil
}

// newClient builds the configured backend. Only the http backend streams.
func newClient(cfg config.LLMEnvConfig, logger *slog.Logger) (llm.Client, llm.Streamer, error) {
	var apiPolicy llm.APIErrorPolicy
	if strings.TrimSpace(cfg.APIErrorRetryRule) != "" {
		rule, err := policy.CompileAPIErrorRule(cfg.APIErrorRetryRule)
		if err != nil {
			return nil, nil, fmt.Errorf("LLM_API_ERROR_RETRY_RULE: %w", err)
		}
		apiPolicy = rule.Policy()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "http":
		c, err := chatcompletion.New(cfg,
			chatcompletion.WithLogger(logger),
			chatcompletion.WithAPIErrorPolicy(apiPolicy),
		)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("llm client ready", "backend", "http", "base_url", c.BaseURL(), "worst_case_latency", c.WorstCaseLatency())
		return c, c, nil
	case "openai":
		c, err := openai.New(cfg, openai.WithLogger(logger), openai.WithAPIErrorPolicy(apiPolicy))
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, llm.ConfigurationError("backend", cfg.Backend, "backend must be http or openai")
	}
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	return prompt, nil
}

// fail logs a terminal error with its taxonomy before handing it back to cobra.
func (a *app) fail(msg string, err error) error {
	attrs := []any{"error", err}
	if e, ok := llm.AsError(err); ok {
		attrs = append(attrs, "error_code", e.Code)
		if e.Status != 0 {
			attrs = append(attrs, "status", e.Status)
		}
	}
	a.logger.Error(msg, append(attrs, "http_status", planner.HTTPStatus(err))...)
	return err
}
