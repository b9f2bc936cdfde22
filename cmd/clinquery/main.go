package main

import (
	"clinquery/internal/answer"
	"clinquery/internal/config"
	"clinquery/internal/guardrails"
	"clinquery/internal/llm"
	"clinquery/internal/sqlgen"
	"clinquery/internal/store"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "clinquery",
	Short: "clinquery - natural-language analytics over clinical trial data",
	Long: `clinquery answers free-text questions about clinical trial data.

A question is scope-filtered, classified into an intent (LLM with a
rule-based fallback), translated to a SELECT-only SQL statement, executed
read-only, and rendered as a short human-readable answer.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments use actual env vars
		_ = godotenv.Load()

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// askCmd runs the full guarded pipeline for one question.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a clinical-data question end to end",
	Long: `Runs a question through the full pipeline:
  1. Guardrails: scope filtering, refusal of off-topic input
  2. SQL generation: question to a validated SELECT statement
  3. Execution: read-only query against the configured database
  4. Formatting: short natural-language answer`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// intentCmd shows the extracted intent without touching the database.
var intentCmd = &cobra.Command{
	Use:   "intent [question]",
	Short: "Classify a question into the intent schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntent,
}

// sqlCmd prints the SQL a question would run, without executing it.
var sqlCmd = &cobra.Command{
	Use:   "sql [question]",
	Short: "Generate (but do not execute) SQL for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSQL,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "clinquery.yaml", "path to config file")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(intentCmd)
	rootCmd.AddCommand(sqlCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildExtractor wires the LLM side of the pipeline. Returns *llm.ConfigError
// when the model is disabled or has no credentials, so callers can fall back
// to rules.
func buildExtractor(cfg *config.Config, log *zap.Logger) (*llm.Extractor, error) {
	if cfg.LLM.Disabled {
		return nil, &llm.ConfigError{Reason: "llm disabled by configuration"}
	}
	gcfg := llm.DefaultGeminiConfig(cfg.LLM.APIKey)
	if cfg.LLM.Model != "" {
		gcfg.Model = cfg.LLM.Model
	}
	if cfg.LLM.BaseURL != "" {
		gcfg.BaseURL = cfg.LLM.BaseURL
	}
	gcfg.Timeout = cfg.LLMTimeout()
	if cfg.LLM.MaxOutputTokens > 0 {
		gcfg.MaxOutputTokens = cfg.LLM.MaxOutputTokens
	}
	client, err := llm.NewGeminiClient(gcfg, log)
	if err != nil {
		return nil, err
	}
	caller := llm.NewCaller(cfg.AppTimeout())
	caller.Log = log
	return llm.NewExtractor(client, caller, log), nil
}

func buildRunner(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Runner, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		r, err := store.NewSQLiteRunner(cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		r, err := store.NewPostgresRunner(ctx, cfg.Database.URL, log)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	ctx := cmd.Context()
	log := logger.With(zap.String("request_id", uuid.NewString()))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	extractor, err := buildExtractor(cfg, log)
	if err != nil {
		var cfgErr *llm.ConfigError
		if !errors.As(err, &cfgErr) {
			return err
		}
		log.Info("llm unavailable, template-only pipeline", zap.Error(err))
	}

	runner, closeRunner, err := buildRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRunner()

	router := guardrails.NewRouter(
		guardrails.NewKeywordClassifier(cfg.Guardrails.ExtraOutOfScope...), nil, log)

	fallback := buildFallback(cfg, extractor, runner, log)
	fmt.Println(router.Run(ctx, question, fallback))
	return nil
}

// buildFallback composes the backend chain the guardrails defer to. With a
// working extractor it runs the free-form semantic path; without one it runs
// rule-based intent matching over the fixed statement templates.
func buildFallback(cfg *config.Config, extractor *llm.Extractor, runner store.Runner, log *zap.Logger) guardrails.Fallback {
	if extractor != nil {
		gen := sqlgen.NewGenerator(extractor, cfg.Database.DefaultLimit, log)
		svc := answer.NewService(gen, runner, log)
		return svc.Answer
	}

	matcher := llm.NewMatcher()
	var formatter answer.Formatter
	return func(ctx context.Context, text string) (string, error) {
		intent, err := matcher.Match(text)
		if err != nil || intent.Kind == llm.KindUnsupported {
			return answer.MsgAskClinical, nil
		}
		stmt, err := sqlgen.BuildSQL(intent.Kind, intent.Args)
		if err != nil {
			return answer.MsgAskClinical, nil
		}
		res, err := runner.Query(ctx, stmt.Text, stmt.Params...)
		if err != nil {
			return "", err
		}
		return formatter.Format(text, res.Columns, res.Rows), nil
	}
}

func runIntent(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	log := logger.With(zap.String("request_id", uuid.NewString()))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var intent llm.Intent
	extractor, err := buildExtractor(cfg, log)
	if err == nil {
		intent, err = extractor.InferIntent(cmd.Context(), question)
		if err != nil {
			return err
		}
	} else {
		var cfgErr *llm.ConfigError
		if !errors.As(err, &cfgErr) {
			return err
		}
		log.Info("llm unavailable, using rule matcher", zap.Error(err))
		intent, err = llm.NewMatcher().Match(question)
		if errors.Is(err, llm.ErrNoRuleMatch) {
			intent = llm.NewIntent(llm.KindUnsupported, nil)
		} else if err != nil {
			return err
		}
	}

	line, err := intent.CompactJSON()
	if err != nil {
		return err
	}
	fmt.Println(line)
	return nil
}

func runSQL(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	log := logger.With(zap.String("request_id", uuid.NewString()))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	extractor, err := buildExtractor(cfg, log)
	if err == nil {
		gen := sqlgen.NewGenerator(extractor, cfg.Database.DefaultLimit, log)
		sql, err := gen.GenerateSemanticSQL(cmd.Context(), question, true)
		if err != nil {
			return err
		}
		fmt.Println(sql)
		return nil
	}
	var cfgErr *llm.ConfigError
	if !errors.As(err, &cfgErr) {
		return err
	}

	intent, err := llm.NewMatcher().Match(question)
	if err != nil {
		return err
	}
	stmt, err := sqlgen.BuildSQL(intent.Kind, intent.Args)
	if err != nil {
		return err
	}
	fmt.Println(stmt.Text)
	return nil
}
