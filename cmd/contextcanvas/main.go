package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/contextcanvas/pkg/claude"
	"github.com/go-go-golems/contextcanvas/pkg/orchestrator"
	"github.com/go-go-golems/contextcanvas/pkg/redisstream"
	"github.com/go-go-golems/contextcanvas/pkg/render"
	"github.com/go-go-golems/contextcanvas/pkg/server"
	"github.com/go-go-golems/contextcanvas/pkg/store"
	"github.com/go-go-golems/contextcanvas/pkg/templates"
	"github.com/go-go-golems/contextcanvas/pkg/webshot"
)

const systemPrompt = `You are a drawing assistant that edits a shared HTML canvas by writing JavaScript.

The canvas script uses the standard 2D context API through the variable "ctx"; "canvas" exposes width and height. Organize the drawing into named elements delimited by marker comments:

// ELEMENT: name
...drawing code...
// END ELEMENT: name

Prefer update_element for targeted changes, append_to_canvas for additions, and replace_canvas only for a fresh start. After each change you will see a rendered screenshot of the result; use it to check and refine your work. Respond with plain text, never with fenced code blocks, once the drawing is done.`

type serveSettings struct {
	addr           string
	logLevel       string
	model          string
	maxTokens      int
	maxIterations  int
	thinking       bool
	thinkingBudget int
	canvasWidth    int
	canvasHeight   int

	redisEnabled  bool
	redisAddr     string
	redisGroup    string
	redisConsumer string

	sqlitePath    string
	templatesFile string
	screenshotURL string
	idleTTL       time.Duration
	verbose       bool
}

func main() {
	settings := &serveSettings{}

	rootCmd := &cobra.Command{
		Use:   "contextcanvas",
		Short: "LLM-driven collaborative canvas server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			level, err := zerolog.ParseLevel(settings.logLevel)
			if err != nil {
				return errors.Wrapf(err, "invalid log level %q", settings.logLevel)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&settings.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(settings)
		},
	}
	serveCmd.Flags().StringVar(&settings.addr, "addr", ":3000", "listen address")
	serveCmd.Flags().StringVar(&settings.model, "model", "claude-sonnet-4-20250514", "model to use")
	serveCmd.Flags().IntVar(&settings.maxTokens, "max-tokens", 4096, "max tokens per model response")
	serveCmd.Flags().IntVar(&settings.maxIterations, "max-iterations", orchestrator.DefaultMaxIterations, "tool-use iteration cap per request")
	serveCmd.Flags().BoolVar(&settings.thinking, "thinking", false, "enable extended thinking")
	serveCmd.Flags().IntVar(&settings.thinkingBudget, "thinking-budget", orchestrator.DefaultThinkingBudget, "thinking token budget")
	serveCmd.Flags().IntVar(&settings.canvasWidth, "canvas-width", orchestrator.DefaultCanvasWidth, "server-side render width")
	serveCmd.Flags().IntVar(&settings.canvasHeight, "canvas-height", orchestrator.DefaultCanvasHeight, "server-side render height")
	serveCmd.Flags().BoolVar(&settings.redisEnabled, "redis-enabled", false, "publish events over Redis Streams instead of in-memory")
	serveCmd.Flags().StringVar(&settings.redisAddr, "redis-addr", "localhost:6379", "redis address")
	serveCmd.Flags().StringVar(&settings.redisGroup, "redis-group", "canvas-ui", "redis consumer group")
	serveCmd.Flags().StringVar(&settings.redisConsumer, "redis-consumer", "ui-1", "redis consumer name")
	serveCmd.Flags().StringVar(&settings.sqlitePath, "sqlite", "", "path to sqlite canvas store (in-memory map when empty)")
	serveCmd.Flags().StringVar(&settings.templatesFile, "templates", "", "extra canvas templates YAML file")
	serveCmd.Flags().StringVar(&settings.screenshotURL, "screenshot-service", "", "webpage screenshot service endpoint (import_webpage disabled when empty)")
	serveCmd.Flags().DurationVar(&settings.idleTTL, "session-idle-ttl", time.Hour, "evict sessions idle longer than this")
	serveCmd.Flags().BoolVar(&settings.verbose, "verbose", false, "verbose event router logging")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(s *serveSettings) error {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return errors.New("ANTHROPIC_API_KEY is not set")
	}

	router, err := redisstream.BuildRouter(redisstream.Settings{
		Enabled:  s.redisEnabled,
		Addr:     s.redisAddr,
		Group:    s.redisGroup,
		Consumer: s.redisConsumer,
	}, s.verbose)
	if err != nil {
		return errors.Wrap(err, "build event router")
	}

	var canvases store.CanvasStore = store.NewMemoryStore()
	if s.sqlitePath != "" {
		dsn, err := store.SQLiteDSNForFile(s.sqlitePath)
		if err != nil {
			return err
		}
		sqliteStore, err := store.NewSQLiteStore(dsn)
		if err != nil {
			return errors.Wrap(err, "open sqlite canvas store")
		}
		canvases = sqliteStore
		log.Info().Str("path", s.sqlitePath).Msg("using sqlite canvas store")
	}
	defer func() { _ = canvases.Close() }()

	tpls := templates.Builtin()
	if s.templatesFile != "" {
		if err := tpls.LoadFile(s.templatesFile); err != nil {
			return err
		}
		log.Info().Str("path", s.templatesFile).Msg("loaded canvas templates")
	}

	var registryOpts []orchestrator.RegistryOption
	if s.screenshotURL != "" {
		registryOpts = append(registryOpts, orchestrator.WithScreenshotter(webshot.NewHTTPService(s.screenshotURL)))
	}

	orch := orchestrator.New(
		claude.NewClient(apiKey),
		render.NewGojaRasterizer(),
		orchestrator.NewToolRegistry(registryOpts...),
		orchestrator.Config{
			Model:          s.model,
			MaxTokens:      s.maxTokens,
			MaxIterations:  s.maxIterations,
			SystemPrompt:   systemPrompt,
			Thinking:       s.thinking,
			ThinkingBudget: s.thinkingBudget,
			CanvasWidth:    s.canvasWidth,
			CanvasHeight:   s.canvasHeight,
		},
	)

	srv := server.NewServer(server.Settings{
		Addr:           s.addr,
		SessionIdleTTL: s.idleTTL,
	}, router, orch, canvases, tpls)

	return srv.Run(context.Background())
}
