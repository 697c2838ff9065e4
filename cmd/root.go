package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"selfie-capture-kiosk/internal/config"
	"selfie-capture-kiosk/models"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is loaded once by the root command and shared by subcommands.
	cfg *models.Config

	configFile string
	flagOpts   flagOverrides
)

// flagOverrides are applied after env and YAML, only when set.
type flagOverrides struct {
	Verbose    bool
	Source     string
	DeviceID   int
	Backend    string
	Models     string
	Strictness string
}

var rootCmd = &cobra.Command{
	Use:     "selfie-capture-kiosk",
	Short:   "Guided selfie capture with live face validation",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.NewLoader().WithFile(configFile).Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := applyFlags(cmd, loaded); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	// SIGINT/SIGTERM end the session the way leaving the page would
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML config file (overrides "+config.FileEnv+")")
	bindConfigFlags(pf)
}

func bindConfigFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&flagOpts.Verbose, "verbose", "v", false, "Print debug output (tick errors, biometric summary)")
	fs.StringVar(&flagOpts.Source, "source", "", "Camera source: device or webrtc")
	fs.IntVar(&flagOpts.DeviceID, "device", 0, "Local camera index")
	fs.StringVar(&flagOpts.Backend, "backend", "", "Face detector: yunet or haar")
	fs.StringVar(&flagOpts.Models, "models", "", "Model directory or base URL")
	fs.StringVar(&flagOpts.Strictness, "strictness", "", "Validation preset: strict or lenient")
}

// applyFlags overlays the flags the user actually set.
func applyFlags(cmd *cobra.Command, c *models.Config) error {
	flags := cmd.Flags()

	if flags.Changed("verbose") {
		c.Session.Verbose = flagOpts.Verbose
	}
	if flags.Changed("source") {
		c.Camera.Source = flagOpts.Source
	}
	if flags.Changed("device") {
		c.Camera.DeviceID = flagOpts.DeviceID
	}
	if flags.Changed("backend") {
		c.Detector.Backend = flagOpts.Backend
	}
	if flags.Changed("models") {
		c.Detector.ModelLocation = flagOpts.Models
	}
	if flags.Changed("strictness") {
		preset, ok := models.ValidationPreset(models.Strictness(flagOpts.Strictness))
		if !ok {
			return fmt.Errorf("invalid --strictness %q", flagOpts.Strictness)
		}
		c.Validation = preset
	}

	return config.Validate(c)
}
