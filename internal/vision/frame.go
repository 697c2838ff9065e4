package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ============================================================
// MAT FRAME
// ============================================================

// MatFrame is a camera.Frame backed by an OpenCV BGR matrix.
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat.
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

// CloneMatFrame copies mat; the caller keeps ownership of the original.
func CloneMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat.Clone()}
}

// Mat exposes the underlying matrix for detectors. It stays owned by the
// frame.
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

func (f *MatFrame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

func (f *MatFrame) ToImage() (image.Image, error) {
	if f.mat.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	img, err := f.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return img, nil
}

func (f *MatFrame) Close() {
	f.mat.Close()
}

// ============================================================
// LATEST FRAME SLOT
// ============================================================

// Slot keeps the most recent frame of a stream, replacing the previous one.
// It is the equivalent of a video element: readers always see the newest
// picture and never a queue.
type Slot struct {
	ch chan gocv.Mat
}

func NewSlot() *Slot {
	return &Slot{ch: make(chan gocv.Mat, 1)}
}

// Put stores a copy of mat, dropping the previous frame.
func (s *Slot) Put(mat gocv.Mat) {
	clone := mat.Clone()
	for {
		select {
		case s.ch <- clone:
			return
		default:
		}
		select {
		case old := <-s.ch:
			old.Close()
		default:
		}
	}
}

// Peek returns a copy of the latest frame without consuming it.
func (s *Slot) Peek() (*MatFrame, bool) {
	select {
	case m := <-s.ch:
		frame := CloneMatFrame(m)
		s.restore(m)
		return frame, true
	default:
		return nil, false
	}
}

func (s *Slot) restore(m gocv.Mat) {
	select {
	case s.ch <- m:
	default:
		// a newer frame landed meanwhile
		m.Close()
	}
}

// Drain closes any stored frame.
func (s *Slot) Drain() {
	for {
		select {
		case m := <-s.ch:
			m.Close()
		default:
			return
		}
	}
}
