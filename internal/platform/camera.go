package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dennisdiepolder/ghosttrack/internal/executor"
	"github.com/dennisdiepolder/ghosttrack/internal/localstore"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/google/uuid"
)

// OutputPlaceholder in a camera command is replaced with a scratch file
// path; without it the image is read from stdout
const OutputPlaceholder = "{output}"

// CommandCamera captures frames by running an external tool such as
// fswebcam or ffmpeg
type CommandCamera struct {
	argv    []string
	scratch *localstore.CacheDir
}

// NewCommandCamera returns nil when argv is empty so callers can hand the
// result straight to executors that treat nil as "no camera"
func NewCommandCamera(argv []string, scratch *localstore.CacheDir) *CommandCamera {
	if len(argv) == 0 {
		return nil
	}
	return &CommandCamera{argv: argv, scratch: scratch}
}

func (c *CommandCamera) Open(ctx context.Context, facing executor.Facing) (executor.Stream, error) {
	path, err := exec.LookPath(c.argv[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.argv[0], types.ErrCapabilityUnavailable)
	}
	return &commandStream{camera: c, path: path, facing: facing}, nil
}

type commandStream struct {
	camera *CommandCamera
	path   string
	facing executor.Facing
	files  []string
}

func (s *commandStream) Frame(ctx context.Context) (image.Image, error) {
	args, output, err := s.args()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, s.path, args...)
	cmd.Env = append(os.Environ(), "GT_CAMERA_FACING="+s.facing.String())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(msg), "permission denied") {
			return nil, fmt.Errorf("%s: %w", msg, types.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("%s: %w: %s", s.camera.argv[0], err, msg)
	}

	data := stdout.Bytes()
	if output != "" {
		if data, err = os.ReadFile(output); err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// args substitutes the output placeholder, allocating a scratch file
func (s *commandStream) args() ([]string, string, error) {
	var output string
	args := make([]string, 0, len(s.camera.argv)-1)
	for _, a := range s.camera.argv[1:] {
		if strings.Contains(a, OutputPlaceholder) {
			if output == "" {
				if s.camera.scratch == nil {
					return nil, "", errors.New("camera: no scratch directory for " + OutputPlaceholder)
				}
				dir, err := s.camera.scratch.Path()
				if err != nil {
					return nil, "", err
				}
				output = filepath.Join(dir, "frame-"+uuid.NewString()+".jpg")
				s.files = append(s.files, output)
			}
			a = strings.ReplaceAll(a, OutputPlaceholder, output)
		}
		args = append(args, a)
	}
	return args, output, nil
}

// Close removes any scratch frames
func (s *commandStream) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}
