package webrtc

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// ============================================================
// VIDEO RECEIVE PIPELINE
// ============================================================

// receiveVideo depacketizes the track, decodes every keyframe and publishes
// it to the stream's latest-frame slot.
func (w *Manager) receiveVideo(ctx context.Context, track *webrtc.TrackRemote, stream *peerStream) {
	log.Printf("📸 Receiving video from %s...", stream.clientID)

	sampleBuilder := samplebuilder.New(
		w.config.SampleBufferMax,
		&codecs.VP8Packet{},
		track.Codec().ClockRate,
	)

	rs := &receiveState{startTime: time.Now()}

	defer func() {
		log.Printf("   🧹 Video receive stopped for %s (samples: %d, decoded: %d, %v)",
			stream.clientID, rs.sampleCount, rs.decodedCount, time.Since(rs.startTime).Round(time.Second))
	}()

	sampleChan := make(chan *media.Sample, 10)

	rtpCtx, rtpCancel := context.WithCancel(ctx)
	defer rtpCancel()

	go func() {
		defer close(sampleChan)
		for {
			select {
			case <-rtpCtx.Done():
				log.Println("   🛑 RTP reader stopped")
				return
			default:
				pkt, _, err := track.ReadRTP()
				if err != nil {
					if !strings.Contains(err.Error(), "closed") {
						log.Printf("   ⚠️  RTP error: %v", err)
					}
					return
				}

				sampleBuilder.Push(pkt)
				for sample := sampleBuilder.Pop(); sample != nil; sample = sampleBuilder.Pop() {
					select {
					case sampleChan <- sample:
					case <-rtpCtx.Done():
						return
					}
				}
			}
		}
	}()

	keyframeTimeout := time.After(w.config.KeyframeTimeout)

	for {
		select {
		case <-ctx.Done():
			return

		case <-keyframeTimeout:
			if !rs.firstKeyframeReceived {
				log.Printf("   ⚠️  No keyframe after %v, still waiting", w.config.KeyframeTimeout)
			}

		case sample, ok := <-sampleChan:
			if !ok {
				log.Println("   📡 Stream ended")
				return
			}
			rs.sampleCount++

			if !isVP8Keyframe(sample.Data) {
				continue
			}
			if !rs.firstKeyframeReceived {
				rs.firstKeyframeReceived = true
				log.Println("   ✅ Keyframe received!")
			}

			mat, err := w.decoder.decode(ctx, sample.Data)
			if err != nil {
				log.Printf("   ⚠️  Decode failed: %v", err)
				continue
			}
			stream.put(*mat)
			mat.Close()
			rs.decodedCount++
		}
	}
}
