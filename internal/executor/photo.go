package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"

	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

const (
	photoQuality = 80
	dataURLJPEG  = "data:image/jpeg;base64,"
)

// Uploader delivers a captured photo to the controller
type Uploader interface {
	UploadPhoto(ctx context.Context, hardwareID, photoData string) error
}

// Photo captures one frame from the user-facing camera and uploads it
type Photo struct {
	camera   Camera
	uploader Uploader
	logger   zerolog.Logger
}

func NewPhoto(camera Camera, uploader Uploader, logger zerolog.Logger) *Photo {
	return &Photo{
		camera:   camera,
		uploader: uploader,
		logger:   logger.With().Str("component", "photo").Logger(),
	}
}

func (p *Photo) Execute(ctx context.Context, hardwareID string, _ types.Command) types.Result {
	if p.camera == nil {
		return types.Failed(fmt.Errorf("camera: %w", types.ErrCapabilityUnavailable))
	}

	data, err := p.capture(ctx)
	if err != nil {
		return types.Failed(err)
	}

	result := types.Result{Success: true, PhotoTaken: true, ImageSize: len(data)}
	if err := p.uploader.UploadPhoto(ctx, hardwareID, data); err != nil {
		p.logger.Debug().Err(err).Msg("photo upload failed")
		result.Success = false
		result.Error = err.Error()
	}
	return result
}

// capture returns the frame as a JPEG data URL. The stream is released
// before returning, on every path.
func (p *Photo) capture(ctx context.Context) (string, error) {
	stream, err := p.camera.Open(ctx, FacingUser)
	if err != nil {
		return "", fmt.Errorf("camera: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("failed to release camera")
		}
	}()

	frame, err := stream.Frame(ctx)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: photoQuality}); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return dataURLJPEG + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
