package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"translink/internal"
	"translink/utils"
)

var (
	apiURL     string
	wsURL      string
	apiToken   string
	proxyURL   string
	cacheDir   string
	sharedDir  string
	timeoutSec int
	rateLimit  string
	quiet      bool
	jsonOutput bool
	debug      bool
	logLevel   string
	logFile    string
	config     *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "translink",
	Short:   "Translate documents, text, photos and recordings through a translator backend",
	Version: "v1.0.0",
	Long: `translink talks to a translator backend: it uploads documents for
asynchronous translation, waits for the completion event over socket.io and
downloads the translated file. Text, photos and voice recordings are
translated synchronously.

Examples:
  translink file report.pdf -t vi
  translink text "Good morning" -t Japanese
  translink image sign.jpg
  translink audio memo.m4a -s en -t vi
  translink download report_vi.pdf -r 500K
  translink status

Environment Variables:
  TRANSLINK_API_URL        REST base URL (default ` + internal.DefaultAPIBaseURL + `)
  TRANSLINK_WS_URL         socket.io server URL (default ` + internal.DefaultChannelURL + `)
  TRANSLINK_API_TOKEN      Bearer token sent with every request
  TRANSLINK_PROXY          HTTP/SOCKS proxy URL
  TRANSLINK_TIMEOUT        Default HTTP timeout in seconds
  TRANSLINK_CACHE_DIR      Where downloads are written first
  TRANSLINK_SHARED_DIR     Where finished downloads are copied to
  TRANSLINK_RATE_LIMIT     Download bandwidth limit (e.g., 5M)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogDebug("Configuration loaded: api=%s, ws=%s, timeout=%v, cache=%s, debug=%v, quiet=%v",
			config.APIBaseURL, config.ChannelURL, config.DefaultTimeout, config.CacheDir, config.EnableDebug, config.QuietMode)
		return nil
	},
}

// loadConfiguration loads configuration from environment variables and merges with CLI flags
func loadConfiguration() error {
	config = internal.DefaultConfig()
	config.LoadFromEnv()

	if apiURL != "" {
		config.APIBaseURL = apiURL
	}
	if wsURL != "" {
		config.ChannelURL = wsURL
	}
	if apiToken != "" {
		config.APIToken = apiToken
	}
	if proxyURL != "" {
		config.ProxyURL = proxyURL
	}
	if cacheDir != "" {
		config.CacheDir = cacheDir
	}
	if sharedDir != "" {
		config.SharedDir = sharedDir
	}
	if timeoutSec > 0 {
		config.DefaultTimeout = time.Duration(timeoutSec) * time.Second
	}

	if rateLimit == "" {
		rateLimit = internal.GetEnvWithDefault("TRANSLINK_RATE_LIMIT", "")
	}
	if rateLimit != "" {
		limit, err := utils.ParseRateLimit(rateLimit)
		if err != nil {
			validationErr := internal.NewValidationErrorWithValue("rate_limit", "invalid format", rateLimit).
				WithSuggestion("Use formats like 1M (1 MB/s), 500K (500 KB/s), 2G (2 GB/s), or 1024 (1024 bytes/s)")
			internal.LogValidationError(validationErr)
			return validationErr
		}
		config.RateLimit = limit
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	return config.ValidateConfig()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// showProgress reports whether a progress bar should be drawn
func showProgress() bool {
	return !config.QuietMode && !jsonOutput && term.IsTerminal(int(os.Stderr.Fd()))
}

func init() {
	config = internal.DefaultConfig()

	rootCmd.AddCommand(fileCmd, textCmd, imageCmd, audioCmd, downloadCmd, statusCmd, languagesCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&apiURL, "api-url", "", "Translator REST base URL (env: TRANSLINK_API_URL)")
	flags.StringVar(&wsURL, "ws-url", "", "socket.io server URL (env: TRANSLINK_WS_URL)")
	flags.StringVar(&apiToken, "token", "", "Bearer token (env: TRANSLINK_API_TOKEN)")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: TRANSLINK_PROXY)")
	flags.StringVar(&cacheDir, "cache-dir", "", "Download cache directory (env: TRANSLINK_CACHE_DIR)")
	flags.StringVar(&sharedDir, "shared-dir", "", "Copy finished downloads into this directory (env: TRANSLINK_SHARED_DIR)")
	flags.IntVar(&timeoutSec, "timeout", 0, "Default HTTP timeout in seconds (env: TRANSLINK_TIMEOUT)")
	flags.StringVarP(&rateLimit, "limit-rate", "r", "", "Download bandwidth limit (e.g., 5M for 5MB/s) (env: TRANSLINK_RATE_LIMIT)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress and informational output")
	flags.BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	// Logging flags
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: TRANSLINK_DEBUG)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: TRANSLINK_LOG_LEVEL)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: TRANSLINK_LOG_FILE)")
}

// Execute runs the CLI and prints user-facing errors
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func printError(err error) {
	var apiErr *internal.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", apiErr.Message)
		if apiErr.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "Suggestion: %s\n", apiErr.Suggestion)
		}
		return
	}

	var validationErr *internal.ValidationError
	if errors.As(err, &validationErr) {
		fmt.Fprintln(os.Stderr, validationErr.DetailedError())
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
