package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/blacktop/sdpaint/internal/paint"
)

var showImage bool

var generateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"gen"},
	Short:   "Generate one image and save it without the TUI",
	Example: `  export CLOUDFLARE_ACCOUNT_ID=... CLOUDFLARE_API_TOKEN=...
  sdpaint generate -p "A photo of a cat" -m dreamshaper-8-lcm -s 8 -g 7 -o ./out`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctrl, err := newController(paint.ModeAbort)
		if err != nil {
			logger.Error("Failed to initialize", "err", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		st := ctrl.Snapshot()
		logger.Info("Generating image", "model", st.Config.Model, "steps", st.Config.Steps, "guidance", st.Config.GuidanceScale)
		res := ctrl.Generate(ctx)
		if !res.OK() {
			logger.Error("Image generation failed", "reason", res.Failure(), "err", res.Err)
			os.Exit(1)
		}

		path, err := saveImage(res.Image, st.Config.Prompt, outputFolder)
		if err != nil {
			logger.Error("Failed to save image", "err", err)
			os.Exit(1)
		}
		logger.Info("Image saved", "path", path, "elapsed", res.Elapsed.Round(time.Millisecond))

		if showImage {
			fmt.Println(displayImage(res.Image, protocol, 80, 40))
		}
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVar(&showImage, "show", false, "Print the image inline in the terminal")
}
