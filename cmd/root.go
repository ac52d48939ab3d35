/*
Copyright © 2024-2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/blacktop/sdpaint/internal/cloudflare"
	"github.com/blacktop/sdpaint/internal/paint"
)

var (
	// flags
	logger       *log.Logger
	verbose      bool
	logFile      string
	modelLabel   string
	prompt       string
	guidance     int
	steps        int
	accountID    string
	apiToken     string
	outputFolder string
	protocol     string
	timeout      time.Duration
	envFiles     []string
	// choices
	validProtocols = []string{
		"auto",
		"kitty",
		"iterm",
	}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sdpaint",
	Short: "Stable Diffusion painting with Cloudflare Workers AI",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(log.DebugLevel)
			log.SetLevel(log.DebugLevel)
		}
		if err := validateFlags(); err != nil {
			logger.Error("Invalid flags", "err", err)
			os.Exit(1)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		// the TUI owns the terminal, so logs go to a file or nowhere
		out := io.Discard
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				logger.Error("Failed to open log file", "err", err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}
		logger.SetOutput(out)
		log.SetOutput(out)

		ctrl, err := newController(paint.ModeWarn)
		if err != nil {
			logger.Error("Failed to initialize", "err", err)
			os.Exit(1)
		}
		p := tea.NewProgram(newInitialModel(ctrl, newConfig()), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			logger.SetOutput(os.Stderr)
			logger.Error("Error running program", "err", err)
			os.Exit(1)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func validateFlags() error {
	if labels := cloudflare.Labels(); !slices.Contains(labels, modelLabel) {
		return fmt.Errorf("invalid model %q (must be one of: %s)", modelLabel, strings.Join(labels, ", "))
	}
	if !slices.Contains(validProtocols, protocol) {
		return fmt.Errorf("invalid display protocol %q (must be one of: %s)", protocol, strings.Join(validProtocols, ", "))
	}
	return nil
}

func newConfig() *config {
	return &config{
		DisplayProtocol: protocol,
		OutputFolder:    outputFolder,
	}
}

// newController builds a paint controller from the command line flags.
func newController(mode paint.CredentialMode) (*paint.Controller, error) {
	opts := []cloudflare.Option{cloudflare.WithLogger(logger)}
	if timeout > 0 {
		opts = append(opts, cloudflare.WithTimeout(timeout))
	}
	return paint.New(paint.Options{
		Mode:        mode,
		Credentials: cloudflare.Credentials{AccountID: accountID, APIToken: apiToken},
		EnvFiles:    envFiles,
		Config: &paint.Configuration{
			Model:         modelLabel,
			Prompt:        prompt,
			GuidanceScale: guidance,
			Steps:         steps,
		},
		Client: cloudflare.NewClient(opts...),
		Logger: logger,
	})
}

func init() {
	// Override the default error level style.
	styles := log.DefaultStyles()
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR!!").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("204")).
		Foreground(lipgloss.Color("0"))
	// Add a custom style for key `err`
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styles.Values["err"] = lipgloss.NewStyle().Bold(true)
	logger = log.New(os.Stderr)
	logger.SetStyles(styles)

	defaults := paint.DefaultConfiguration()
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Verbose output")
	rootCmd.PersistentFlags().StringVarP(&modelLabel, "model", "m", defaults.Model, fmt.Sprintf("Model to use (%s)", strings.Join(cloudflare.Labels(), ", ")))
	rootCmd.PersistentFlags().StringVarP(&prompt, "prompt", "p", defaults.Prompt, "Prompt for image generation")
	rootCmd.PersistentFlags().IntVarP(&guidance, "guidance", "g", defaults.GuidanceScale, "Guidance (CFG) scale")
	rootCmd.PersistentFlags().IntVarP(&steps, "steps", "s", defaults.Steps, "Number of diffusion steps")
	rootCmd.PersistentFlags().StringVar(&accountID, "account-id", "", "Cloudflare account ID (overrides "+paint.EnvAccountID+" env_var)")
	rootCmd.PersistentFlags().StringVarP(&apiToken, "api-token", "t", "", "Cloudflare API token (overrides "+paint.EnvAPIToken+" env_var)")
	rootCmd.PersistentFlags().StringVarP(&outputFolder, "output", "o", "", "Output folder")
	rootCmd.PersistentFlags().StringVar(&protocol, "protocol", "auto", fmt.Sprintf("Terminal image protocol (%s)", strings.Join(validProtocols, ", ")))
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout (0 waits forever)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load (default .env)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file while the TUI is running")
	rootCmd.MarkPersistentFlagDirname("output")
}
