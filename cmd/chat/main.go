package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/finchat/internal/chatclient"
	"github.com/suPer8Hu/finchat/internal/config"
	"github.com/suPer8Hu/finchat/internal/store/redisstore"
	"github.com/suPer8Hu/finchat/internal/tui"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const clientKeyPrefix = "finchat:client:"

var (
	cfg     config.ClientConfig
	verbose bool

	logger  *zap.Logger
	storage chatclient.Storage
	closer  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "finchat",
	Short: "Chat with the personal finance assistant",
	Long: `finchat talks to a finchat server. Run without arguments for the
interactive chat; the subcommands do one thing and exit.

The conversation id is kept in local storage, so restarting resumes the same
conversation until it is reset.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = buildLogger(cmd == cmd.Root())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		storage, closer, err = openStorage()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closer != nil {
			_ = closer.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		feed := tui.NewFeed()
		client := newClient(chatclient.WithObserver(feed.Observe))
		p := tea.NewProgram(tui.New(cmd.Context(), client, feed), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err := p.Run()
		return err
	},
}

func init() {
	_ = godotenv.Load()
	cfg = config.LoadClient()

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "chat server base URL")
	f.StringVar(&cfg.HistoryBaseURL, "history-api", cfg.HistoryBaseURL, "base URL serving conversation history (default: --api)")
	f.StringVar(&cfg.Storage, "storage", cfg.Storage, "where the session id is kept: file, redis or memory")
	f.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "file used by --storage=file")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write logs to this file")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(sendCmd, historyCmd, resetCmd, refreshCmd, sessionCmd)
}

// buildLogger writes to the log file when one is set. Otherwise the
// interactive UI gets no logger since it owns the terminal, and one-shot
// commands log warnings to stderr.
func buildLogger(interactive bool) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	switch {
	case cfg.LogFile != "":
		zcfg.OutputPaths = []string{cfg.LogFile}
		zcfg.ErrorOutputPaths = []string{cfg.LogFile}
	case interactive:
		return zap.NewNop(), nil
	default:
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zcfg.Build()
}

func openStorage() (chatclient.Storage, io.Closer, error) {
	switch cfg.Storage {
	case "memory":
		return chatclient.NewMemoryStorage(), nil, nil
	case "redis":
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return rs.KV(clientKeyPrefix), rs, nil
	case "file", "":
		fs, err := chatclient.OpenFileStorage(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

func newClient(opts ...chatclient.Option) *chatclient.Client {
	backend := chatclient.NewHTTPBackend(cfg.APIBaseURL, cfg.HistoryBaseURL)
	opts = append([]chatclient.Option{chatclient.WithLogger(logger)}, opts...)
	return chatclient.New(backend, storage, opts...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
