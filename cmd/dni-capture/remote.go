package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fpang/dni-capture/internal/apiclient"
	"github.com/fpang/dni-capture/internal/cli"
	"github.com/fpang/dni-capture/internal/photo"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Remote command flags
var (
	imageFlag    string
	endpointFlag string
	bodyFlag     string
	quantityFlag bool
	allFlag      bool
)

var validateFaceCmd = &cobra.Command{
	Use:   "validate-face",
	Short: "Check that an image contains a usable face",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		runUpload(cmd.Context(), env, "Face validation failed", env.Photos.StartValidateFace, uploadRequest())
	},
}

var searchFaceCmd = &cobra.Command{
	Use:   "search-face",
	Short: "Search the face in an image against the registered photos",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		runUpload(cmd.Context(), env, "Face search failed", env.Photos.StartSearchFace, uploadRequest())
	},
}

var faceBoxCmd = &cobra.Command{
	Use:   "face-box",
	Short: "Find the bounding box of the face in an image",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		env := cli.InitEnv(ctx, build())
		box, err := env.Photos.FaceSquare(ctx, uploadRequest())
		if err != nil {
			cli.HandleError(err, "Face box request failed")
		}
		printJSON(box)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Send a processed photo to an endpoint (default recovery-account)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		env := cli.InitEnv(ctx, build())
		req := uploadRequest()
		req.Endpoint = endpointFlag
		res, err := trackJSON(env, func() (json.RawMessage, error) {
			return env.Photos.SubmitProcessed(ctx, req)
		})
		if err != nil {
			cli.HandleError(err, "Submit failed")
		}
		printRaw(res)
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <dni>",
	Short: "Look up the name registered for a document number",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		p, err := env.Photos.StartLookupName(cmd.Context(), args[0])
		if err != nil {
			cli.HandleError(err, "Name lookup failed")
		}
		raw, err := trackJSON(env, p.Wait)
		if err != nil {
			cli.HandleError(err, "Name lookup failed")
		}
		fmt.Println(photo.NameFromLookup(raw))
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List the photo folders available on the server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		start := env.Photos.StartFoldersAvailable
		if quantityFlag {
			start = env.Photos.StartFoldersWithQuantity
		}
		wait(env, "Failed to list folders", start(cmd.Context()))
	},
}

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "List server photos for a date range (--body is sent as-is)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		wait(env, "Failed to list photos", env.Photos.StartPhotosByDate(cmd.Context(), parseBody(bodyFlag)))
	},
}

var photoCmd = &cobra.Command{
	Use:   "photo <path>",
	Short: "Fetch a single server photo by its path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		wait(env, "Failed to fetch photo", env.Photos.StartPhotoByPath(cmd.Context(), args[0]))
	},
}

var zipCmd = &cobra.Command{
	Use:   "zip",
	Short: "Ask the server to compress photo folders",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		start := env.Photos.StartZipFolders
		if allFlag {
			start = env.Photos.StartZipAllFolders
		}
		wait(env, "Failed to compress folders", start(cmd.Context(), parseBody(bodyFlag)))
	},
}

var serverHistoryCmd = &cobra.Command{
	Use:   "server-history",
	Short: "Fetch photo URLs from the server history",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		wait(env, "Failed to fetch history", env.Photos.StartHistoryPhotos(cmd.Context(), parseBody(bodyFlag)))
	},
}

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Inspect and manage DNI uploads",
}

var uploadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List previous DNI uploads",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		wait(env, "Failed to list uploads", env.DNI.StartUploadHistory(cmd.Context()))
	},
}

var uploadsStatusCmd = &cobra.Command{
	Use:   "status <upload-id>",
	Short: "Show the processing status of a DNI upload",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		wait(env, "Failed to get upload status", env.DNI.StartUploadStatus(cmd.Context(), args[0]))
	},
}

var uploadsDeleteCmd = &cobra.Command{
	Use:   "delete <upload-id>",
	Short: "Delete a DNI upload",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := cli.InitEnv(cmd.Context(), build())
		wait(env, "Failed to delete upload", env.DNI.StartDeleteUpload(cmd.Context(), args[0]))
		log.Info().Str("upload_id", args[0]).Msg("Upload deleted")
	},
}

func init() {
	for _, c := range []*cobra.Command{validateFaceCmd, searchFaceCmd, faceBoxCmd, submitCmd} {
		c.Flags().StringVarP(&imageFlag, "image", "i", "", "Image file to send (jpg, png, webp)")
		c.Flags().StringVar(&dniFlag, "dni", "", "Document number the photo belongs to")
		c.Flags().StringSliceVar(&codesFlag, "codes", nil, "Auxiliary codes")
	}
	submitCmd.Flags().StringVar(&endpointFlag, "endpoint", photo.DefaultProcessedEndpoint, "Endpoint path that receives the photo")

	for _, c := range []*cobra.Command{photosCmd, zipCmd, serverHistoryCmd} {
		c.Flags().StringVar(&bodyFlag, "body", "", "JSON request body")
	}
	foldersCmd.Flags().BoolVar(&quantityFlag, "quantity", false, "Include the number of photos per folder")
	zipCmd.Flags().BoolVar(&allFlag, "all", false, "Compress every folder instead of the dates in --body")

	uploadsCmd.AddCommand(uploadsListCmd, uploadsStatusCmd, uploadsDeleteCmd)
}

func uploadRequest() photo.UploadRequest {
	return photo.UploadRequest{
		Payload:        imagePayload(imageFlag),
		AssociatedID:   dniFlag,
		AuxiliaryCodes: codesFlag,
	}
}

// runUpload starts a multipart call and prints its result.
func runUpload(ctx context.Context, env *cli.Env, msg string, start func(context.Context, photo.UploadRequest) (*apiclient.Pending, error), req photo.UploadRequest) {
	p, err := start(ctx, req)
	if err != nil {
		cli.HandleError(err, msg)
	}
	wait(env, msg, p)
}

// wait blocks on a pending call while the session is marked loading.
func wait(env *cli.Env, msg string, p *apiclient.Pending) {
	res, err := trackJSON(env, p.Wait)
	if err != nil {
		cli.HandleError(err, msg)
	}
	printRaw(res)
}
