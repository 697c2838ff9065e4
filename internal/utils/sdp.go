package utils

import (
	"fmt"
	"strings"
)

// BitrateHints are the video bandwidth hints written into an SDP answer, in
// kbps. Zero disables the matching hint.
type BitrateHints struct {
	AS  int
	Min int
	Max int
}

// PatchSDPBitrate adds a b=AS line to every video section and an fmtp line
// with x-google bitrate bounds after the first VP8 rtpmap of each. Line
// endings are preserved.
func PatchSDPBitrate(sdp string, h BitrateHints) string {
	eol := "\n"
	if strings.Contains(sdp, "\r\n") {
		eol = "\r\n"
	}
	lines := strings.Split(strings.TrimSuffix(sdp, eol), eol)

	out := make([]string, 0, len(lines)+4)
	inVideo := false
	patched := false

	for _, line := range lines {
		out = append(out, line)

		switch {
		case strings.HasPrefix(line, "m=video"):
			inVideo = true
			patched = false
			if h.AS > 0 {
				out = append(out, fmt.Sprintf("b=AS:%d", h.AS))
			}

		case strings.HasPrefix(line, "m="):
			inVideo = false

		case inVideo && !patched && h.Min > 0 && h.Max > 0:
			pt, ok := vp8PayloadType(line)
			if !ok {
				continue
			}
			out = append(out, fmt.Sprintf(
				"a=fmtp:%s x-google-min-bitrate=%d;x-google-max-bitrate=%d;x-google-start-bitrate=%d;max-fr=30;max-fs=3600",
				pt, h.Min, h.Max, (h.Min+h.Max)/2))
			patched = true
		}
	}

	result := strings.Join(out, eol)
	if strings.HasSuffix(sdp, eol) {
		result += eol
	}
	return result
}

// vp8PayloadType extracts "96" from "a=rtpmap:96 VP8/90000".
func vp8PayloadType(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "a=rtpmap:")
	if !ok || !strings.Contains(rest, "VP8/90000") {
		return "", false
	}
	pt, _, _ := strings.Cut(rest, " ")
	pt = strings.TrimSpace(pt)
	return pt, pt != ""
}
