//go:build !gstreamer

package playback

import "errors"

// GstDriver is a stub when gstreamer tag is not enabled.
type GstDriver struct{}

// NewGstDriver returns an error when gstreamer build tag is missing.
func NewGstDriver(pipeline string, device string) (*GstDriver, error) {
	return nil, errors.New("gstreamer build tag not enabled")
}

func (d *GstDriver) Play(url string, positionMS int64) error {
	return errors.New("gstreamer build tag not enabled")
}
func (d *GstDriver) Pause() error                { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Resume() error               { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Stop() error                 { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Seek(positionMS int64) error { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) SetVolume(volume float64) error {
	return errors.New("gstreamer build tag not enabled")
}
func (d *GstDriver) SetMute(mute bool) error { return errors.New("gstreamer build tag not enabled") }
func (d *GstDriver) Position() (int64, int64, bool) {
	return 0, 0, false
}
