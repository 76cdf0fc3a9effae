package camera

// Facing describes which way a camera lens points.
type Facing int

const (
	FacingUnknown Facing = iota
	FacingBack
	FacingFront
	FacingExternal
)

// String returns the config name of the facing.
func (f Facing) String() string {
	switch f {
	case FacingBack:
		return "back"
	case FacingFront:
		return "front"
	case FacingExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ParseFacing converts a config name to a Facing.
func ParseFacing(s string) Facing {
	switch s {
	case "back", "rear":
		return FacingBack
	case "front":
		return FacingFront
	case "external":
		return FacingExternal
	default:
		return FacingUnknown
	}
}

// Format is the pixel layout a reader produces.
type Format int

const (
	// FormatGray8 is single-channel 8-bit intensity.
	FormatGray8 Format = iota
	// FormatYUV420 is planar YUV 4:2:0 with the luma plane first.
	FormatYUV420
)

// AFMode is the autofocus mode of a capture request.
type AFMode int

const (
	AFOff AFMode = iota
	AFAuto
	AFContinuous
)

// AEMode is the auto-exposure mode of a capture request.
type AEMode int

const (
	AEOff AEMode = iota
	AEOn
)

// DeviceInfo describes a camera the service can open.
type DeviceInfo struct {
	ID     string
	Name   string
	Facing Facing
}

// Executor runs callbacks in order on the capture worker. Post returns false
// when the worker no longer accepts work; the callback will never run.
type Executor interface {
	Post(fn func()) bool
}

// Target is an output a capture pipeline writes frames to.
type Target interface {
	TargetName() string
}

// Request is a repeating capture request.
type Request struct {
	Targets []Target
	AFMode  AFMode
	AEMode  AEMode
}

// ReaderConfig sizes a processing reader.
type ReaderConfig struct {
	Width  int
	Height int
	Format Format
	// Depth bounds the images held by the reader at once.
	Depth int
}

// Service is the camera-service capability injected into a Session. It
// replaces any process-wide camera singleton.
type Service interface {
	// Devices lists the cameras. Permission failures return ErrAccessDenied.
	Devices() ([]DeviceInfo, error)

	// OpenDevice requests a device asynchronously. Exactly one of the
	// callbacks is later posted on exec. If the post is refused the service
	// must close the device itself.
	OpenDevice(id string, exec Executor, cb DeviceCallbacks) error

	// NewReader creates a processing reader.
	NewReader(cfg ReaderConfig) (Reader, error)

	// PreviewTarget returns the display preview target.
	PreviewTarget() Target
}

// DeviceCallbacks receive device lifecycle events on the worker.
type DeviceCallbacks struct {
	OnOpened       func(Device)
	OnDisconnected func(Device)
	OnError        func(Device, error)
}

// Device is an opened camera.
type Device interface {
	ID() string

	// CreatePipeline configures a capture pipeline writing to targets.
	// The outcome is posted on exec.
	CreatePipeline(targets []Target, exec Executor, cb PipelineCallbacks) error

	Close() error
}

// PipelineCallbacks receive pipeline configuration results on the worker.
type PipelineCallbacks struct {
	OnConfigured      func(Pipeline)
	OnConfigureFailed func(Pipeline, error)
}

// Pipeline is a configured capture pipeline.
type Pipeline interface {
	SetRepeatingRequest(req Request) error
	StopRepeating() error
	Close() error
}

// Reader receives processing frames from the pipeline.
type Reader interface {
	Target

	// SetOnImageAvailable registers fn, posted on exec whenever a new image
	// arrives.
	SetOnImageAvailable(exec Executor, fn func(Reader))

	// AcquireLatest returns the newest image and discards older ones.
	// It returns (nil, nil) when no image is available.
	AcquireLatest() (Image, error)

	Close() error
}

// Plane is one image plane.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Image is a captured sensor image. Callers must Close it.
type Image interface {
	Width() int
	Height() int
	Plane(i int) (Plane, error)
	Close()
}
