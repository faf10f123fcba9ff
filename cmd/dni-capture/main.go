package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fpang/dni-capture/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd is the main Cobra command for the dni-capture CLI.
var rootCmd = &cobra.Command{
	Use:   "dni-capture",
	Short: "Capture DNI and face photos from local cameras and send them to the photo API",
	Long: `dni-capture lists the video cameras on this machine, takes a photo of a DNI
(national ID) or a face, optionally checks and crops it, and uploads it to the
remote photo API. Requests are retried with exponential backoff and can be
interrupted with Ctrl-C.

Configuration comes from the environment (or a .env file):
  DNI_API_URL, DNI_API_UNA_URL, DNI_STORAGE, DNI_CROP_ENDPOINT, DNI_LOG_LEVEL ...

Examples:
  dni-capture cameras
  dni-capture capture --device back --kind dni --upload
  dni-capture capture --file ./dni.jpg --check
  dni-capture capture --kind face --dni 12345678 --crop
  dni-capture lookup 12345678
  dni-capture history
  dni-capture export --out capturas.zip`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	rootCmd.AddCommand(
		camerasCmd,
		captureCmd,
		validateFaceCmd,
		searchFaceCmd,
		faceBoxCmd,
		submitCmd,
		lookupCmd,
		foldersCmd,
		photosCmd,
		photoCmd,
		zipCmd,
		serverHistoryCmd,
		uploadsCmd,
		historyCmd,
		exportCmd,
		loginCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
