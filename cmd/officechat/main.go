package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"OfficeChat/internal/backend"
	"OfficeChat/internal/chatbot"
	"OfficeChat/internal/config"
	"OfficeChat/internal/hostbridge"
	"OfficeChat/internal/office"
	"OfficeChat/internal/secrets"
	"OfficeChat/internal/security"
	"OfficeChat/internal/store"
	"OfficeChat/internal/telemetry"
)

func main() {
	cfg := config.Default()
	var envFile string
	var hostURL string
	var noStream bool

	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database holding chat data")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for log, trace and metric files")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&noStream, "no-stream", false, "Wait for the whole reply instead of streaming it")
	flag.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature")
	flag.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Maximum tokens per reply")
	flag.DurationVar(&cfg.SaveDelay, "save-delay", cfg.SaveDelay, "Quiet period before changes are saved")
	flag.IntVar(&cfg.MaxBackups, "max-backups", cfg.MaxBackups, "Number of backups kept")
	flag.IntVar(&cfg.RequestsPerMinute, "rpm", 0, "Maximum completion requests per minute (0 = unlimited)")
	flag.BoolVar(&cfg.UseKeyring, "keyring", false, "Keep the API key in the system keyring")
	flag.StringVar(&cfg.KeyringDir, "keyring-dir", "", "Encrypted file keyring directory, used when no system keyring exists")
	flag.BoolVar(&cfg.Telemetry, "telemetry", false, "Export traces and metrics to the log directory")
	flag.StringVar(&envFile, "env-file", ".env", "Optional file of environment variables")
	flag.StringVar(&hostURL, "host-url", "", "Document host bridge (ws:// or http://); /insert prints to the terminal when empty")
	flag.Parse()
	cfg.Stream = !noStream

	if err := config.LoadEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", envFile, err)
		os.Exit(1)
	}

	if err := run(cfg, hostURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, hostURL string) error {
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()
	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var clientOpts []backend.Option
	clientOpts = append(clientOpts, backend.WithLogger(logger), backend.WithRateLimit(cfg.RequestsPerMinute, 1))
	botOpts := []chatbot.Option{chatbot.WithLogger(logger)}
	if cfg.Telemetry {
		tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer shutdown()
		clientOpts = append(clientOpts, backend.WithTracer(tracer), backend.WithMeter(meter))
		botOpts = append(botOpts, chatbot.WithTracer(tracer), chatbot.WithMeter(meter))
	}

	kv, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer kv.Close()

	storeOpts := []store.Option{store.WithLogger(logger), store.WithMaxBackups(cfg.MaxBackups)}
	if cfg.UseKeyring {
		ring, err := secrets.Open(secrets.Config{
			FileDir:      cfg.KeyringDir,
			FilePassword: os.Getenv("OFFICECHAT_KEYRING_PASSWORD"),
			FileOnly:     cfg.KeyringDir != "",
		})
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, store.WithSecrets(ring))
	}
	st := store.New(kv, storeOpts...)

	state := st.Load(ctx)
	state.Settings = config.EnvSettings().Seed(state.Settings)

	guard := security.New(security.DefaultConfig(), logger)
	sendOpts := backend.DefaultSendOptions()
	sendOpts.Stream = cfg.Stream
	sendOpts.Temperature = cfg.Temperature
	sendOpts.MaxTokens = cfg.MaxTokens

	bot := chatbot.New(append(botOpts,
		chatbot.WithState(state),
		chatbot.WithClientOptions(clientOpts...),
		chatbot.WithSendOptions(sendOpts),
		chatbot.WithFilter(guard),
		chatbot.WithValidator(guard),
	)...)
	st.SetWarningHandler(bot.ReportWarning)

	saver := store.NewAutoSaver(st, cfg.SaveDelay)
	unsubscribe := bot.OnStateChange(saver.Notify)
	defer func() {
		unsubscribe()
		if err := saver.Stop(context.Background()); err != nil {
			logger.Error("failed to save state on exit", "error", err)
		}
	}()

	// Ctrl-C stops a streaming reply; when nothing is streaming it quits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == os.Interrupt && bot.Cancel() {
				continue
			}
			stop()
			return
		}
	}()

	var host office.DocumentHost = office.NewWriterHost(os.Stdout)
	if hostURL != "" {
		bridge, err := hostbridge.Dial(ctx, hostURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to document host: %w", err)
		}
		defer bridge.Close()
		host = bridge
	}

	r := newREPL(bot, st, saver, host, os.Stdin, os.Stdout, logger)
	r.clientOpts = clientOpts
	return r.Run(ctx)
}
