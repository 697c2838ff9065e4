package webrtc

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"time"

	"gocv.io/x/gocv"
)

// ============================================================
// VP8 KEYFRAME HEADER
// ============================================================

const (
	vp8HeaderLen = 10
	vp8MaxWidth  = 3840
	vp8MaxHeight = 2160
)

var vp8StartCode = [3]byte{0x9d, 0x01, 0x2a}

// parseVP8Keyframe reads the uncompressed keyframe header: a 3-byte frame
// tag whose low bit is 0 for keyframes, the start code, then 14-bit width
// and height (the top two bits are the scaling mode).
func parseVP8Keyframe(frame []byte) (width, height int, err error) {
	if len(frame) < vp8HeaderLen {
		return 0, 0, fmt.Errorf("frame too small: %d bytes", len(frame))
	}
	if frame[0]&0x1 != 0 {
		return 0, 0, fmt.Errorf("not a keyframe (tag: 0x%02x)", frame[0])
	}
	if [3]byte(frame[3:6]) != vp8StartCode {
		return 0, 0, fmt.Errorf("invalid start code: % x", frame[3:6])
	}

	width = int(binary.LittleEndian.Uint16(frame[6:8]) & 0x3fff)
	height = int(binary.LittleEndian.Uint16(frame[8:10]) & 0x3fff)

	switch {
	case width == 0 || height == 0:
		return 0, 0, fmt.Errorf("zero dimension: %dx%d", width, height)
	case width > vp8MaxWidth || height > vp8MaxHeight:
		return 0, 0, fmt.Errorf("dimension too large: %dx%d", width, height)
	}
	return width, height, nil
}

// isVP8Keyframe only checks the tag bit and start code.
func isVP8Keyframe(frame []byte) bool {
	return len(frame) >= vp8HeaderLen && frame[0]&0x1 == 0 && [3]byte(frame[3:6]) == vp8StartCode
}

// ============================================================
// DECODER
// ============================================================

// vp8Decoder turns single VP8 keyframes into BGR matrices through ffmpeg.
type vp8Decoder struct {
	maxWidth   int
	maxHeight  int
	timeout    time.Duration
	bufferPool *bufferPool
}

func newVP8Decoder(cfg Config, pool *bufferPool) *vp8Decoder {
	timeout := cfg.DecodeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &vp8Decoder{
		maxWidth:   cfg.MaxDecodeWidth,
		maxHeight:  cfg.MaxDecodeHeight,
		timeout:    timeout,
		bufferPool: pool,
	}
}

// decodeSize keeps the native size unless it exceeds the configured bounds,
// in which case it scales down preserving aspect ratio to even dimensions.
func (d *vp8Decoder) decodeSize(origWidth, origHeight int) (int, int) {
	maxW, maxH := d.maxWidth, d.maxHeight
	if maxW <= 0 || maxH <= 0 || (origWidth <= maxW && origHeight <= maxH) {
		return origWidth, origHeight
	}

	scaleW := float64(maxW) / float64(origWidth)
	scaleH := float64(maxH) / float64(origHeight)

	scale := scaleW
	if scaleH < scaleW {
		scale = scaleH
	}

	newWidth := int(float64(origWidth) * scale)
	newHeight := int(float64(origHeight) * scale)

	// Round to even numbers
	newWidth = (newWidth / 2) * 2
	newHeight = (newHeight / 2) * 2

	if newWidth < 2 {
		newWidth = 2
	}
	if newHeight < 2 {
		newHeight = 2
	}

	return newWidth, newHeight
}

// ============================================================
// IVF DATA CREATION
// ============================================================

const (
	ivfFileHeaderLen  = 32
	ivfFrameHeaderLen = 12
)

// createIVFData wraps one frame in a single-frame IVF container so ffmpeg
// can demux it from a pipe.
func createIVFData(frameData []byte, width, height int) []byte {
	out := make([]byte, ivfFileHeaderLen+ivfFrameHeaderLen, ivfFileHeaderLen+ivfFrameHeaderLen+len(frameData))

	h := out[:ivfFileHeaderLen]
	copy(h[0:4], "DKIF")
	binary.LittleEndian.PutUint16(h[6:8], ivfFileHeaderLen)
	copy(h[8:12], "VP80")
	binary.LittleEndian.PutUint16(h[12:14], uint16(width))
	binary.LittleEndian.PutUint16(h[14:16], uint16(height))
	binary.LittleEndian.PutUint32(h[16:20], 30) // timebase denominator
	binary.LittleEndian.PutUint32(h[20:24], 1)  // timebase numerator
	binary.LittleEndian.PutUint32(h[24:28], 1)  // frame count

	// frame header: size, then a zero timestamp
	binary.LittleEndian.PutUint32(out[ivfFileHeaderLen:], uint32(len(frameData)))

	return append(out, frameData...)
}

// ============================================================
// VP8 TO GOCV MAT
// ============================================================

func ffmpegArgs(origWidth, origHeight, decodeWidth, decodeHeight int) []string {
	args := []string{
		"-loglevel", "error",
		"-nostdin",
		"-f", "ivf",
		"-i", "pipe:0",
	}

	if decodeWidth != origWidth || decodeHeight != origHeight {
		args = append(args,
			"-vf", fmt.Sprintf("scale=%d:%d:flags=fast_bilinear", decodeWidth, decodeHeight),
		)
	}

	return append(args,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-threads", "1",
		"pipe:1",
	)
}

func (d *vp8Decoder) decode(parent context.Context, frameData []byte) (*gocv.Mat, error) {
	origWidth, origHeight, err := parseVP8Keyframe(frameData)
	if err != nil {
		return nil, fmt.Errorf("parse dims: %w", err)
	}

	decodeWidth, decodeHeight := d.decodeSize(origWidth, origHeight)
	ivfData := createIVFData(frameData, origWidth, origHeight)

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(origWidth, origHeight, decodeWidth, decodeHeight)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	buf := d.bufferPool.Get()
	defer d.bufferPool.Put(buf)

	var stderrBuf bytes.Buffer
	cmd.Stdout = buf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(ivfData); err != nil {
			writeErr <- fmt.Errorf("write: %w", err)
			return
		}
		writeErr <- nil
	}()

	cmdErr := cmd.Wait()

	if err := <-writeErr; err != nil {
		return nil, err
	}

	if cmdErr != nil {
		stderr := stderrBuf.String()
		if len(stderr) > 200 {
			stderr = stderr[:200] + "..."
		}
		return nil, fmt.Errorf("decode: %w (%s)", cmdErr, stderr)
	}

	expectedSize := decodeWidth * decodeHeight * 3
	if buf.Len() < expectedSize {
		return nil, fmt.Errorf("short frame: %d < %d", buf.Len(), expectedSize)
	}

	// Copy data for buffer reuse
	frameBytes := make([]byte, expectedSize)
	copy(frameBytes, buf.Bytes()[:expectedSize])

	mat, err := gocv.NewMatFromBytes(decodeHeight, decodeWidth, gocv.MatTypeCV8UC3, frameBytes)
	if err != nil {
		return nil, fmt.Errorf("NewMatFromBytes: %w", err)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("empty mat")
	}

	return &mat, nil
}
