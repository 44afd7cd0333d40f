package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanchriswhite/SplitScreen/internal/config"
)

func TestSessionOptions_CameraDriverWhenDisabled(t *testing.T) {
	for _, driver := range []string{config.DriverV4L2, config.DriverGStreamer} {
		cfg := config.Defaults()
		cfg.Camera.Driver = driver
		cfg.Camera.Enabled = false

		opts := sessionOptions(cfg, nil, nil, nil)
		assert.NotNil(t, opts.Camera, driver)
		assert.Same(t, cfg, opts.Config)
		assert.Nil(t, opts.Logo, "no logo image configured")
	}
}
