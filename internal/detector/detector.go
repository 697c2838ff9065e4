package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/models"

	"gocv.io/x/gocv"
)

// ============================================================
// FACE DETECTOR
// ============================================================

type faceBackend interface {
	name() string
	detect(img gocv.Mat) []models.FaceObservation
	Close()
}

// FaceDetector wraps the OpenCV face models behind the session's detector
// contract. Inference is serialized; the nets are not safe for concurrent use.
type FaceDetector struct {
	Config models.DetectorConfig

	store *ModelStore

	loadMu  sync.Mutex
	settled bool
	loadErr error
	loaded  atomic.Bool

	mu          sync.Mutex
	backend     faceBackend
	expressions *expressionNet
}

// NewFaceDetector creates a detector. Nothing is loaded until LoadModels.
func NewFaceDetector(config models.DetectorConfig) *FaceDetector {
	return &FaceDetector{
		Config: config,
		store:  NewModelStore(config.ModelLocation, config.CacheDir),
	}
}

// WithProgress reports remote model downloads.
func (fd *FaceDetector) WithProgress(fn ProgressFunc) *FaceDetector {
	fd.store.WithProgress(fn)
	return fd
}

// LoadModels loads every configured model. The first call that runs to
// completion settles the result, failure included; later calls return it.
// A load cut short by ctx settles nothing.
func (fd *FaceDetector) LoadModels(ctx context.Context) error {
	fd.loadMu.Lock()
	defer fd.loadMu.Unlock()
	if fd.settled {
		return fd.loadErr
	}

	err := fd.load(ctx)
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	fd.settled = true
	fd.loadErr = err
	if err == nil {
		fd.loaded.Store(true)
	}
	return err
}

func (fd *FaceDetector) Loaded() bool {
	return fd.loaded.Load()
}

func (fd *FaceDetector) load(ctx context.Context) error {
	backend, err := fd.loadBackend(ctx)
	if err != nil {
		return err
	}

	var expressions *expressionNet
	if fd.Config.ExpressionModel != "" {
		path, err := fd.store.Path(ctx, fd.Config.ExpressionModel)
		if err != nil {
			backend.Close()
			return err
		}
		if expressions, err = loadExpressionNet(path); err != nil {
			backend.Close()
			return err
		}
	}

	fd.mu.Lock()
	fd.backend = backend
	fd.expressions = expressions
	fd.mu.Unlock()

	log.Println("✅ Face detector initialized")
	log.Printf("   Backend: %s", backend.name())
	log.Printf("   Min face size: %dx%d", fd.Config.MinFaceSize, fd.Config.MinFaceSize)
	if expressions != nil {
		log.Printf("   Expressions: %s", fd.Config.ExpressionModel)
	} else {
		log.Println("   Expressions: disabled (neutral only)")
	}
	return nil
}

func (fd *FaceDetector) loadBackend(ctx context.Context) (faceBackend, error) {
	switch fd.Config.Backend {
	case models.DetectorBackendHaar:
		path, err := fd.store.Path(ctx, fd.Config.CascadeModel)
		if err != nil {
			return nil, err
		}
		return newHaarBackend(path, fd.Config.MinFaceSize)
	case models.DetectorBackendYuNet, "":
		path, err := fd.store.Path(ctx, fd.Config.FaceModel)
		if err != nil {
			return nil, err
		}
		return newYuNetBackend(path, fd.Config.ScoreThreshold), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", fd.Config.Backend)
	}
}

// Detect runs the face models on one frame.
func (fd *FaceDetector) Detect(ctx context.Context, frame camera.Frame) (models.DetectionResult, error) {
	if !fd.Loaded() {
		return models.DetectionResult{}, fmt.Errorf("models not loaded")
	}
	if err := ctx.Err(); err != nil {
		return models.DetectionResult{}, err
	}

	img, release, err := matOf(frame)
	if err != nil {
		return models.DetectionResult{}, err
	}
	defer release()
	if img.Empty() {
		return models.DetectionResult{}, fmt.Errorf("empty frame")
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	faces := fd.backend.detect(img)
	for i := range faces {
		if fd.expressions == nil {
			faces[i].Expressions = neutralOnly()
			continue
		}
		box := faces[i].Box.Rounded()
		scores, err := fd.expressions.classify(img, image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height))
		if err != nil {
			return models.DetectionResult{}, fmt.Errorf("expression: %w", err)
		}
		faces[i].Expressions = scores
	}

	return models.DetectionResult{
		FrameWidth:  img.Cols(),
		FrameHeight: img.Rows(),
		Faces:       faces,
	}, nil
}

// Close releases resources used by the detector
func (fd *FaceDetector) Close() {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.backend != nil {
		fd.backend.Close()
		fd.backend = nil
	}
	if fd.expressions != nil {
		fd.expressions.Close()
		fd.expressions = nil
	}
	fd.loaded.Store(false)
}

// matOf borrows the frame's matrix when it has one, otherwise converts.
func matOf(frame camera.Frame) (gocv.Mat, func(), error) {
	if mf, ok := frame.(interface{ Mat() gocv.Mat }); ok {
		return mf.Mat(), func() {}, nil
	}
	img, err := frame.ToImage()
	if err != nil {
		return gocv.Mat{}, nil, err
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, nil, fmt.Errorf("image to mat: %w", err)
	}
	return mat, func() { mat.Close() }, nil
}
