package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/dni-capture/internal/camera"
	"github.com/fpang/dni-capture/internal/capture"
	"github.com/fpang/dni-capture/internal/cli"
	"github.com/fpang/dni-capture/internal/photo"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const readyTimeout = 10 * time.Second

// Capture flags
var (
	deviceFlag   string
	nextFlag     bool
	fileFlag     string
	pickFlag     bool
	outFlag      string
	kindFlag     string
	dniFlag      string
	codesFlag    []string
	checkFlag    bool
	uploadFlag   bool
	validateFlag bool
	cropFlag     bool
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List the video cameras on this machine",
	Args:  cobra.NoArgs,
	Run:   runCameras,
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take a photo from a camera or an image file",
	Long: `Capture takes a single JPEG still from a live camera (or from an existing image
with --file/--pick), saves it locally, and optionally checks, uploads, validates
or crops it.

The camera is chosen with --device (ID, 1-based index, type such as "back",
or part of the label). Without --device you are asked when several cameras
are available. --next moves to the camera after the chosen one.`,
	Args: cobra.NoArgs,
	Run:  runCapture,
}

func init() {
	captureCmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "Camera to use (ID, index, type, or label)")
	captureCmd.Flags().BoolVar(&nextFlag, "next", false, "Switch to the next camera before capturing")
	captureCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Use an existing image instead of a camera")
	captureCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose an existing image with a file dialog")
	captureCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Where to save the JPEG (default: <storage dir>/captures)")
	captureCmd.Flags().StringVar(&kindFlag, "kind", "dni", "What is being photographed: dni or face")
	captureCmd.Flags().StringVar(&dniFlag, "dni", "", "Document number the photo belongs to")
	captureCmd.Flags().StringSliceVar(&codesFlag, "codes", nil, "Auxiliary codes sent with face uploads")
	captureCmd.Flags().BoolVar(&checkFlag, "check", false, "Check document size and aspect ratio")
	captureCmd.Flags().BoolVar(&uploadFlag, "upload", false, "Upload the photo")
	captureCmd.Flags().BoolVar(&validateFlag, "validate", false, "Validate the face with the API")
	captureCmd.Flags().BoolVar(&cropFlag, "crop", false, "Crop the photo and add it to the recent history")
}

func runCameras(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	devices, err := camera.ListCameras(ctx, camera.NewV4L2Devices())
	if err != nil {
		cli.HandleError(err, "Failed to list cameras")
	}

	fmt.Printf("Found %d camera(s):\n", len(devices))
	for i, d := range devices {
		fmt.Printf("  %d) %-32s %-11s %s\n", i+1, d.DisplayName(i), d.Type, d.ID)
	}
}

func runCapture(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	if kindFlag != "dni" && kindFlag != "face" {
		log.Fatal().Str("kind", kindFlag).Msg("--kind must be dni or face")
	}
	if cropFlag && dniFlag == "" {
		log.Fatal().Msg("--crop needs --dni to record the photo in the history")
	}

	env := cli.InitEnv(ctx, build())

	img, err := grab(ctx)
	if err != nil {
		cli.HandleError(err, "Failed to capture photo")
	}
	env.State.SetCapturedPhoto(img.DataURI)

	path := outFlag
	if path == "" {
		path = filepath.Join(env.CapturesDir(), fmt.Sprintf("%s-%s.jpg", kindFlag, img.Timestamp.Format("20060102-150405")))
	}
	path = cli.ResolveOutputPath(path)
	if err := saveCapture(path, img); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to save photo")
	}
	log.Info().Str("path", path).Int("width", img.Width).Int("height", img.Height).Msg("Photo saved")

	if checkFlag {
		report := capture.CheckDocumentGeometry(img.Width, img.Height)
		printJSON(report)
		if !report.Valid() {
			log.Warn().Msg("Photo does not look like a DNI: check framing and resolution")
		}
	}

	if validateFlag {
		res, err := trackJSON(env, func() (json.RawMessage, error) {
			return env.Photos.ValidateFace(ctx, photo.UploadRequest{Payload: img.DataURI, AssociatedID: dniFlag})
		})
		if err != nil {
			cli.HandleError(err, "Face validation failed")
		}
		printRaw(res)
	}

	if uploadFlag {
		res, err := trackJSON(env, func() (json.RawMessage, error) {
			if kindFlag == "dni" {
				return env.DNI.UploadDNI(ctx, img.DataURI, photo.DefaultMetadata(version))
			}
			return env.Photos.UploadPhoto(ctx, photo.UploadRequest{
				Payload:        img.DataURI,
				AssociatedID:   dniFlag,
				AuxiliaryCodes: codesFlag,
			})
		})
		if err != nil {
			cli.HandleError(err, "Upload failed")
		}
		log.Info().Str("kind", kindFlag).Msg("Photo uploaded")
		printRaw(res)
	}

	if cropFlag {
		res, err := env.Crop.Crop(ctx, img.DataURI)
		if err != nil {
			cli.HandleError(err, "Crop failed")
		}

		name, err := env.Photos.LookupName(ctx, dniFlag)
		if err != nil {
			log.Warn().Err(err).Str("dni", dniFlag).Msg("Name lookup failed")
			name = photo.UnknownName
		}

		entry, err := env.State.AddCroppedPhoto(ctx, dniFlag, name, res.CroppedImageURL)
		if err != nil {
			cli.HandleError(err, "Failed to record cropped photo")
		}
		printJSON(entry)
	}
}

// grab takes the photo from a file, the picker, or a camera.
func grab(ctx context.Context) (*capture.CapturedImage, error) {
	if pickFlag {
		path, err := pickImage()
		if err != nil {
			return nil, err
		}
		fileFlag = path
	}
	if fileFlag != "" {
		still, err := capture.OpenStill(fileFlag)
		if err != nil {
			return nil, err
		}
		if !still.Taken.IsZero() {
			log.Debug().Time("taken", still.Taken).Str("model", still.CameraModel).Msg("Using existing image")
		}
		return capture.Capture(still)
	}
	return grabFromCamera(ctx)
}

func grabFromCamera(ctx context.Context) (*capture.CapturedImage, error) {
	mgr := camera.NewManager(camera.NewV4L2Devices())
	devices, err := mgr.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	var dev camera.CameraDevice
	if deviceFlag != "" {
		dev, err = cli.FindCamera(devices, deviceFlag)
	} else {
		dev, err = cli.PromptForCamera(devices, os.Stdin, os.Stderr)
	}
	if err != nil {
		return nil, err
	}
	mgr.Select(dev)

	if nextFlag {
		dev, err = mgr.SwitchToNext(ctx)
		if err != nil {
			return nil, err
		}
	}

	sess, err := mgr.Acquire(ctx, &dev)
	if err != nil {
		return nil, err
	}
	defer mgr.Release()

	if r, ok := sess.Stream.(interface{ WaitReady(context.Context) error }); ok {
		waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		err := r.WaitReady(waitCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("wait for first frame: %w", err)
		}
	}

	src, ok := sess.Stream.(capture.FrameSource)
	if !ok {
		return nil, capture.ErrSourceNotReady
	}
	log.Info().Str("device", sess.DeviceID).Msg("Capturing from camera")
	return capture.Capture(src)
}

func pickImage() (string, error) {
	patterns := make([]string, 0, len(capture.SupportedStillExtensions))
	for ext := range capture.SupportedStillExtensions {
		patterns = append(patterns, "*"+ext)
	}
	path, err := zenity.SelectFile(
		zenity.Title("Select a DNI or face photo"),
		zenity.FileFilters{{Name: "Images", Patterns: patterns}},
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return "", fmt.Errorf("no image selected")
	}
	if err != nil {
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	return path, nil
}

func saveCapture(path string, img *capture.CapturedImage) error {
	_, data, err := capture.DecodeDataURI(img.DataURI)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// imagePayload loads an image file as a JPEG data URI.
func imagePayload(path string) string {
	if path == "" {
		log.Fatal().Msg("--image is required")
	}
	still, err := capture.OpenStill(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open image")
	}
	img, err := capture.Capture(still)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to encode image")
	}
	return img.DataURI
}

func build() cli.Build {
	return cli.Build{Version: version, CommitHash: commitHash, BuildTime: buildTime}
}
