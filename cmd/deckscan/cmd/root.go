package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/deckscan/internal/config"
	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/ocr/tesseract"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
	"github.com/MeKo-Tech/deckscan/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
	// logger is configured in PersistentPreRunE and writes to stderr so
	// that stdout carries only results (and the MCP protocol).
	logger = slog.Default()
)

// newEngine builds the OCR engine used for pages without text.
var newEngine = func(cfg *config.Config) ocr.Engine {
	return tesseract.New(tesseract.Options{
		TessdataPrefix: cfg.OCR.TessdataPrefix,
		PageSegMode:    cfg.OCR.PageSegMode,
	})
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "deckscan",
	Short: "Extract text from PDF documents, with OCR for scanned pages",
	Long: `deckscan extracts the text of every page of a PDF document.

Pages that carry embedded text are read directly. Pages without text, such
as scanned slides, are rendered to a bitmap and recognized with Tesseract OCR.
The result is reported per page together with how its text was obtained.

Examples:
  deckscan extract deck.pdf
  deckscan extract deck.pdf --format json --output deck.json
  deckscan extract ./decks --recursive --format csv
  deckscan serve --port 8080
  deckscan mcp`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		logger = newLogger(cmd.ErrOrStderr(), globalConfig)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is deckscan.yaml in ., ./config, $XDG_CONFIG_HOME/deckscan, /etc/deckscan)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// initConfig reads in config file and ENV variables if set. Every call
// starts from a fresh viper instance.
func initConfig() error {
	v := viper.New()
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	configLoader = config.NewLoaderWithViper(v)

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	return nil
}

// GetConfig returns the global configuration.
func GetConfig() *config.Config {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			d := config.DefaultConfig()
			return &d
		}
	}
	cfg := *globalConfig
	return &cfg
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoaderWithViper(viper.New())
	}
	return configLoader
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// newExtractor wires the configured engine and rasterizer into an extractor.
func newExtractor(cfg *config.Config, opts ...extract.Option) (*extract.Extractor, error) {
	rasterizer, err := pdf.NewRasterizer(cfg.Render.Backend)
	if err != nil {
		return nil, err
	}
	ecfg := cfg.ToExtractConfig()
	if err := ecfg.Validate(); err != nil {
		return nil, err
	}
	base := []extract.Option{extract.WithLogger(logger), extract.WithRasterizer(rasterizer)}
	return extract.New(newEngine(cfg), ecfg, append(base, opts...)...), nil
}
