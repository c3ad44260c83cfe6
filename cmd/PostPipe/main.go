package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/BTreeMap/PostPipe/internal/api"
	"github.com/BTreeMap/PostPipe/internal/backend"
	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/genai"
	"github.com/BTreeMap/PostPipe/internal/lockfile"
	"github.com/BTreeMap/PostPipe/internal/messaging"
	"github.com/BTreeMap/PostPipe/internal/store"
	"github.com/BTreeMap/PostPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/PostPipe/internal/util"
	"github.com/BTreeMap/PostPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PostPipe state data
	DefaultStateDir = "/var/lib/postpipe"
	// DefaultAppDBFileName is the default SQLite session database filename
	DefaultAppDBFileName = "postpipe.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultBackendTimeout bounds a single backend call
	DefaultBackendTimeout = 60 * time.Second
	// DefaultBackendRetries is the number of retries for transient backend failures
	DefaultBackendRetries = 2
)

// Generation providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderTemplate  = "template"
)

// Messaging services
const (
	MessagingNone     = "none"
	MessagingWhatsApp = "whatsapp"
	MessagingTwilio   = "twilio"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"), false)
	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		os.Exit(2)
	}
	if *flags.debug {
		initializeLogger("debug", true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("PostPipe failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags Flags) error {
	reg := prometheus.NewRegistry()
	be, err := buildBackend(flags, reg)
	if err != nil {
		return err
	}
	if *flags.message != "" || *flags.brief != "" {
		return runOneShot(ctx, flags, be, os.Stdin, os.Stdout)
	}
	return runServer(ctx, flags, be, reg)
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	WhatsAppDSN      string
	APIAddr          string
	Provider         string
	Model            string
	Temperature      float64
	MaxTokens        int
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	MaxIterations    int
	BackendTimeout   time.Duration
	BackendRetries   int
	MessagingService string
	ReviewerNumber   string
}

// Flags holds command line flag values
type Flags struct {
	debug            *bool
	stateDir         *string
	dbDSN            *string
	waDSN            *string
	apiAddr          *string
	provider         *string
	model            *string
	temperature      *float64
	maxTokens        *int
	openaiKey        *string
	openaiBaseURL    *string
	anthropicKey     *string
	maxIterations    *int
	backendTimeout   *time.Duration
	backendRetries   *int
	messagingService *string
	reviewer         *string
	qrOutput         *string
	numeric          *bool

	message     *string
	audience    *string
	tone        *string
	noEmojis    *bool
	brief       *string
	output      *string
	interactive *bool
}

// initializeLogger installs the default text logger at the given level.
func initializeLogger(level string, debug bool) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("POSTPIPE_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		Provider:         strings.ToLower(os.Getenv("GENAI_PROVIDER")),
		Model:            os.Getenv("GENAI_MODEL"),
		Temperature:      util.ParseFloatEnv("GENAI_TEMPERATURE", genai.DefaultTemperature),
		MaxTokens:        util.ParseIntEnv("GENAI_MAX_TOKENS", genai.DefaultMaxTokens),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		MaxIterations:    util.ParseIntEnv("MAX_ITERATIONS", flow.DefaultMaxIterations),
		BackendTimeout:   util.ParseDurationEnv("BACKEND_TIMEOUT", DefaultBackendTimeout),
		BackendRetries:   util.ParseIntEnv("BACKEND_RETRIES", DefaultBackendRetries),
		MessagingService: strings.ToLower(os.Getenv("MESSAGING_SERVICE")),
		ReviewerNumber:   os.Getenv("REVIEWER_NUMBER"),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No POSTPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.MessagingService == "" {
		config.MessagingService = MessagingNone
	}

	slog.Debug("environment variables loaded",
		"POSTPIPE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"API_ADDR", config.APIAddr,
		"GENAI_PROVIDER", config.Provider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ANTHROPIC_API_KEY_SET", config.AnthropicKey != "",
		"MAX_ITERATIONS", config.MaxIterations,
		"MESSAGING_SERVICE", config.MessagingService,
		"REVIEWER_NUMBER_SET", config.ReviewerNumber != "")
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		debug:            fs.Bool("debug", false, "enable debug logging (overrides $LOG_LEVEL)"),
		stateDir:         fs.String("state-dir", config.StateDir, "state directory for PostPipe data (overrides $POSTPIPE_STATE_DIR)"),
		dbDSN:            fs.String("db-dsn", config.DatabaseURL, "session database DSN; defaults to SQLite in the state directory (overrides $DATABASE_URL)"),
		waDSN:            fs.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:          fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:         fs.String("provider", config.Provider, "generation provider: openai, anthropic or template (overrides $GENAI_PROVIDER)"),
		model:            fs.String("model", config.Model, "model name (overrides $GENAI_MODEL)"),
		temperature:      fs.Float64("temperature", config.Temperature, "sampling temperature (overrides $GENAI_TEMPERATURE)"),
		maxTokens:        fs.Int("max-tokens", config.MaxTokens, "maximum tokens per reply (overrides $GENAI_MAX_TOKENS)"),
		openaiKey:        fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:    fs.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		anthropicKey:     fs.String("anthropic-api-key", config.AnthropicKey, "Anthropic API key (overrides $ANTHROPIC_API_KEY)"),
		maxIterations:    fs.Int("max-iterations", config.MaxIterations, "default refinement cap (overrides $MAX_ITERATIONS)"),
		backendTimeout:   fs.Duration("backend-timeout", config.BackendTimeout, "timeout of one backend call (overrides $BACKEND_TIMEOUT)"),
		backendRetries:   fs.Int("backend-retries", config.BackendRetries, "retries for transient backend failures (overrides $BACKEND_RETRIES)"),
		messagingService: fs.String("messaging", config.MessagingService, "review channel: none, whatsapp or twilio (overrides $MESSAGING_SERVICE)"),
		reviewer:         fs.String("reviewer", config.ReviewerNumber, "default reviewer phone number (overrides $REVIEWER_NUMBER)"),
		qrOutput:         fs.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:          fs.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),

		message:     fs.String("message", "", "campaign message; runs once and exits instead of serving"),
		audience:    fs.String("audience", "", "target audience for -message"),
		tone:        fs.String("tone", "friendly", "tone for -message: friendly, professional, humorous, casual or formal"),
		noEmojis:    fs.Bool("no-emojis", false, "ask for posts without emojis"),
		brief:       fs.String("brief", "", "YAML campaign brief file; runs once and exits instead of serving"),
		output:      fs.String("output", "", "write the final result to this file instead of stdout"),
		interactive: fs.Bool("interactive", false, "read feedback lines from stdin; an empty line accepts"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if *flags.provider == "" {
		*flags.provider = defaultProvider(*flags.openaiKey, *flags.anthropicKey)
	}
	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"provider", *flags.provider,
		"maxIterations", *flags.maxIterations,
		"messaging", *flags.messagingService)
	return flags, nil
}

// defaultProvider picks the provider whose API key is configured, falling back to
// the offline template backend.
func defaultProvider(openaiKey, anthropicKey string) string {
	switch {
	case openaiKey != "":
		return ProviderOpenAI
	case anthropicKey != "":
		return ProviderAnthropic
	default:
		return ProviderTemplate
	}
}

// appDSN returns the session database DSN, defaulting to SQLite in the state directory.
func appDSN(flags Flags) string {
	if *flags.dbDSN != "" {
		return *flags.dbDSN
	}
	return filepath.Join(*flags.stateDir, DefaultAppDBFileName)
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	switch *flags.provider {
	case ProviderOpenAI:
		if *flags.openaiKey != "" {
			opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
		}
		if *flags.openaiBaseURL != "" {
			opts = append(opts, genai.WithBaseURL(*flags.openaiBaseURL))
		}
	case ProviderAnthropic:
		if *flags.anthropicKey != "" {
			opts = append(opts, genai.WithAPIKey(*flags.anthropicKey))
		}
	}
	if *flags.model != "" {
		opts = append(opts, genai.WithModel(*flags.model))
	}
	opts = append(opts, genai.WithTemperature(*flags.temperature))
	if *flags.maxTokens > 0 {
		opts = append(opts, genai.WithMaxTokens(int64(*flags.maxTokens)))
	}
	return opts
}

// buildBackend constructs the generation backend with its timeout, retry and
// metrics decorators.
func buildBackend(flags Flags, reg prometheus.Registerer) (flow.Backend, error) {
	var be flow.Backend
	switch *flags.provider {
	case ProviderOpenAI:
		c, err := genai.NewClient(buildGenAIOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		be = backend.NewLLM(c)
	case ProviderAnthropic:
		c, err := genai.NewAnthropicClient(buildGenAIOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		be = backend.NewLLM(c)
	case ProviderTemplate:
		be = backend.NewTemplate()
	default:
		return nil, fmt.Errorf("unknown provider %q", *flags.provider)
	}
	slog.Info("Generation backend configured", "provider", *flags.provider)

	if *flags.provider != ProviderTemplate {
		be = backend.WithTimeout(be, *flags.backendTimeout)
		if *flags.backendRetries > 0 {
			be = backend.WithRetry(be, backend.WithMaxRetries(uint64(*flags.backendRetries)))
		}
	}
	if reg != nil {
		m, err := backend.NewMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register backend metrics: %w", err)
		}
		be = backend.Instrument(be, m)
	}
	return be, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	dsn := appDSN(flags)
	slog.Debug("Session store configured", "dsn_type", store.DetectDSNType(dsn))
	return []store.Option{store.WithDSN(dsn)}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	dsn := *flags.waDSN
	if dsn == "" {
		dsn = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	opts := []whatsapp.Option{whatsapp.WithDBDSN(dsn)}
	if *flags.qrOutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}

// buildMessagingService connects the configured review channel. It returns a nil
// service when messaging is disabled, and the Twilio webhook when Twilio is used.
func buildMessagingService(ctx context.Context, flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	switch *flags.messagingService {
	case MessagingNone, "":
		return nil, nil, nil
	case MessagingWhatsApp:
		c, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(c), nil, nil
	case MessagingTwilio:
		c, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(c)
		return svc, svc, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging service %q", *flags.messagingService)
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, reg *prometheus.Registry) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	if reg != nil {
		opts = append(opts, api.WithMetrics(reg, reg))
	}
	return opts
}

func runServer(ctx context.Context, flags Flags, be flow.Backend, reg *prometheus.Registry) error {
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := flow.NewSessionManager(st, be, flow.WithMaxIterations(*flags.maxIterations))
	if err != nil {
		return err
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	apiOpts := buildAPIOptions(flags, reg)

	svc, twilioSvc, err := buildMessagingService(ctx, flags)
	if err != nil {
		return fmt.Errorf("failed to start messaging: %w", err)
	}
	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return err
		}
		defer svc.Stop()
		reviews := messaging.NewReviewHandler(svc, sessions, st)
		go reviews.Run(ctx)
		apiOpts = append(apiOpts, api.WithNotifier(reviews, *flags.reviewer))
		if twilioSvc != nil {
			apiOpts = append(apiOpts, api.WithTwilioWebhook(http.HandlerFunc(twilioSvc.WebhookHandler)))
		}
		slog.Info("Review channel enabled", "service", *flags.messagingService, "defaultReviewer_set", *flags.reviewer != "")
	}

	server, err := api.NewServer(sessions, apiOpts...)
	if err != nil {
		return err
	}
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("PostPipe exited successfully")
	return nil
}
