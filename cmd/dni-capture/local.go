package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fpang/dni-capture/internal/archive"
	"github.com/fpang/dni-capture/internal/auth"
	"github.com/fpang/dni-capture/internal/capture"
	"github.com/fpang/dni-capture/internal/cli"
	"github.com/fpang/dni-capture/internal/photo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Local command flags
var (
	jsonFlag     bool
	exportOut    string
	exportDir    string
	exportLabel  string
	tokenFlag    string
	verifyFlag   bool
	loginCfgPath string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent cropped photos",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		photos := env.State.Photos()
		if jsonFlag {
			printJSON(photos)
			return
		}
		if len(photos) == 0 {
			fmt.Println("No recent photos.")
			return
		}
		now := time.Now()
		for i, p := range photos {
			fmt.Printf("%2d) %-12s %-30s %-12s %s\n", i+1, p.AssociatedID, p.DisplayName, cli.FormatAge(now, p.Timestamp), p.ImageURL)
		}
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from the recent photo history",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		count := env.State.PhotosCount()
		if err := env.State.ClearRecentPhotos(cmd.Context()); err != nil {
			cli.HandleError(err, "Failed to clear history")
		}
		log.Info().Int("removed", count).Msg("Recent photo history cleared")
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Bundle locally saved captures into a ZIP file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())

		dir := exportDir
		if dir == "" {
			dir = env.CapturesDir()
		}
		files, err := archive.CollectCaptures(dir, capture.SupportedStillExtensions)
		if err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to list captures")
		}
		if len(files) == 0 {
			log.Fatal().Str("dir", dir).Msg("No captures to export")
		}

		out := exportOut
		if out == "" {
			out = archive.BundleName(exportLabel, time.Now())
		}
		out = cli.ResolveOutputPath(out)

		f, err := os.Create(out)
		if err != nil {
			log.Fatal().Err(err).Str("path", out).Msg("Failed to create ZIP file")
		}
		sum, err := archive.WriteBundle(f, files)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			log.Fatal().Err(err).Str("path", out).Msg("Failed to write ZIP file")
		}

		log.Info().
			Str("path", out).
			Int("files", sum.Files).
			Int("skipped", len(sum.Skipped)).
			Int64("bytes", sum.Bytes).
			Msg("Captures exported")
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the API auth token to the local config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		path := loginCfgPath
		if path == "" {
			p, err := auth.DefaultConfigPath()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to resolve config file location")
			}
			path = p
		}
		if err := auth.SaveToken(path, tokenFlag); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to save auth token")
		}

		if !verifyFlag {
			return
		}
		env := cli.InitEnv(ctx, build())
		if err := auth.ValidateToken(ctx, env.Tokens, env.API, photo.PathDNIHistory); err != nil {
			cli.HandleValidationError(err)
		}
		log.Info().Msg("Auth token accepted by the API")
	},
}

func init() {
	historyCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the history as JSON")
	historyCmd.AddCommand(historyClearCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "ZIP file to write (default: <label>-<timestamp>.zip)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Directory with captures (default: <storage dir>/captures)")
	exportCmd.Flags().StringVar(&exportLabel, "label", "", "Label used in the default file name")

	loginCmd.Flags().StringVar(&tokenFlag, "token", "", "Bearer token issued for this client")
	loginCmd.Flags().StringVar(&loginCfgPath, "config", "", "Config file to write (default: ~/.dni-capture.yaml)")
	loginCmd.Flags().BoolVar(&verifyFlag, "verify", false, "Check the token against the API after saving")
	_ = loginCmd.MarkFlagRequired("token")
}
