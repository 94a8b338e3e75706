package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/feichai0017/text-extractor/config"
	"github.com/feichai0017/text-extractor/internal/agent"
	"github.com/feichai0017/text-extractor/internal/agent/ocr"
	"github.com/feichai0017/text-extractor/pkg/logger"
)

var (
	configPath string
	verbose    bool

	// newPipeline is replaced in tests.
	newPipeline = defaultPipeline
)

var rootCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Extract plain text from documents",
	Long: `Extracts plain text from text, RTF, Office, OpenDocument, PDF and image files.
Scanned PDFs and images are recognized with tesseract, using the CLI when it is
installed and the embedded library otherwise.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runExtract,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.Execute()
}

func defaultPipeline(log logger.Logger) (*agent.Pipeline, error) {
	return agent.New(log, agent.WithOCR(ocr.DefaultFactory))
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	if !verbose {
		return logger.NewNop(), nil
	}
	opts := append(logger.FromConfig(cfg.Log),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithLevel("debug"),
	)
	return logger.NewLogger(opts...)
}
