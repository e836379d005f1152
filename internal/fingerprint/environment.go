package fingerprint

// Screen describes the primary display
type Screen struct {
	Width      int
	Height     int
	ColorDepth int
	PixelDepth int
	PixelRatio float64
}

// GPU describes the graphics adapter
type GPU struct {
	Vendor          string
	Renderer        string
	Version         string
	ShadingLanguage string
}

// Platform describes the operating environment
type Platform struct {
	Name      string
	UserAgent string
	Machine   string
}

// Environment exposes the semi-static host attributes a fingerprint is
// derived from. Accessors return types.ErrCapabilityUnavailable when the host
// cannot provide a value.
type Environment interface {
	Screen() (Screen, error)
	GPU() (GPU, error)
	CPUCount() (int, error)
	DeviceMemory() (float64, error)
	Platform() (Platform, error)
	ConnectionClass() (string, error)
}

// Components is the serialised input of the digest. Field order is fixed so
// the same attributes always produce the same bytes.
type Components struct {
	ScreenWidth         int     `json:"screenWidth,omitempty"`
	ScreenHeight        int     `json:"screenHeight,omitempty"`
	ColorDepth          int     `json:"colorDepth,omitempty"`
	PixelDepth          int     `json:"pixelDepth,omitempty"`
	PixelRatio          float64 `json:"pixelRatio,omitempty"`
	GPUVendor           string  `json:"gpuVendor,omitempty"`
	GPURenderer         string  `json:"gpuRenderer,omitempty"`
	GLVersion           string  `json:"glVersion,omitempty"`
	ShadingLanguage     string  `json:"shadingLanguage,omitempty"`
	HardwareConcurrency int     `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        float64 `json:"deviceMemory,omitempty"`
	Platform            string  `json:"platform,omitempty"`
	UserAgent           string  `json:"userAgent,omitempty"`
	Machine             string  `json:"machine,omitempty"`
	Connection          string  `json:"connection,omitempty"`
}
