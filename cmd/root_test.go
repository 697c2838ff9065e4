package cmd

import (
	"testing"

	"selfie-capture-kiosk/internal/eventlog"
	"selfie-capture-kiosk/internal/events"
	"selfie-capture-kiosk/internal/transport/ws"
	"selfie-capture-kiosk/internal/ui"
	"selfie-capture-kiosk/internal/webrtc"
	"selfie-capture-kiosk/models"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsed(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	flagOpts = flagOverrides{}
	cmd := &cobra.Command{Use: "test"}
	bindConfigFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	c := models.DefaultConfig()
	c.Detector.Backend = models.DetectorBackendHaar

	require.NoError(t, applyFlags(parsed(t, "--source", "webrtc", "-v"), &c))

	assert.Equal(t, models.CameraSourceWebRTC, c.Camera.Source)
	assert.True(t, c.Session.Verbose)
	// untouched flags keep the loaded value
	assert.Equal(t, models.DetectorBackendHaar, c.Detector.Backend)
	assert.Equal(t, models.StrictnessStrict, c.Validation.Strictness)
}

func TestApplyFlagsStrictnessSwapsPreset(t *testing.T) {
	c := models.DefaultConfig()

	require.NoError(t, applyFlags(parsed(t, "--strictness", "lenient"), &c))

	assert.Equal(t, models.LenientValidationConfig(), c.Validation)
}

func TestApplyFlagsRejectsBadValues(t *testing.T) {
	c := models.DefaultConfig()
	assert.Error(t, applyFlags(parsed(t, "--strictness", "paranoid"), &c))

	c = models.DefaultConfig()
	assert.Error(t, applyFlags(parsed(t, "--source", "floppy"), &c))

	c = models.DefaultConfig()
	assert.Error(t, applyFlags(parsed(t, "--backend", "dlib"), &c))
}

func TestNewSource(t *testing.T) {
	bus := events.New()
	hub := ws.NewHub(ui.NewBoard(bus), eventlog.New(bus), nil)
	defer hub.Close()

	c := models.DefaultConfig()
	c.Camera.Source = models.CameraSourceWebRTC
	src, closeSource, err := newSource(c, hub)
	require.NoError(t, err)
	defer closeSource()
	assert.IsType(t, &webrtc.Manager{}, src)

	c.Camera.Source = "floppy"
	_, _, err = newSource(c, hub)
	assert.Error(t, err)
}
