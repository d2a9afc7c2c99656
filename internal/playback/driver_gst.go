//go:build gstreamer

package playback

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// GstDriver implements a GStreamer-backed playback driver using Go
// bindings. The pipeline template is expanded per item with {url},
// {device}, {start_ms} and {volume} placeholders.
type GstDriver struct {
	mu       sync.Mutex
	pipeline string
	device   string
	volume   float64
	muted    bool
	current  *gst.Element
}

var gstInitOnce sync.Once

// NewGstDriver creates a GStreamer driver using a pipeline template.
func NewGstDriver(pipeline string, device string) (*GstDriver, error) {
	if strings.TrimSpace(pipeline) == "" {
		return nil, errors.New("pipeline template required")
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})

	return &GstDriver{pipeline: pipeline, device: device, volume: 1.0}, nil
}

// Play starts playback for the URL.
func (d *GstDriver) Play(url string, positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipeline, err := d.buildPipeline(url, d.currentVolumeLocked(), positionMS)
	if err != nil {
		return err
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return err
	}

	_ = d.stopCurrentLocked()
	d.current = pipeline
	return nil
}

// Pause pauses playback.
func (d *GstDriver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePaused)
}

// Resume resumes playback.
func (d *GstDriver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePlaying)
}

// Stop stops playback.
func (d *GstDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stopCurrentLocked()
}

// Seek seeks within the current pipeline.
func (d *GstDriver) Seek(positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	positionNS := positionMS * int64(time.Millisecond)
	return d.current.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit, positionNS)
}

// SetVolume sets volume (0..1).
func (d *GstDriver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.volume = volume
	if d.current != nil {
		_ = d.current.SetProperty("volume", d.currentVolumeLocked())
	}
	return nil
}

// SetMute sets mute state.
func (d *GstDriver) SetMute(mute bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.muted = mute
	if d.current != nil {
		_ = d.current.SetProperty("volume", d.currentVolumeLocked())
	}
	return nil
}

// Position queries the current pipeline for stream position and
// duration in milliseconds.
func (d *GstDriver) Position() (int64, int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return 0, 0, false
	}
	okPos, posNS := d.current.QueryPosition(gst.FormatTime)
	okDur, durNS := d.current.QueryDuration(gst.FormatTime)
	if !okPos {
		return 0, 0, false
	}
	posMS := posNS / int64(time.Millisecond)
	durMS := int64(0)
	if okDur {
		durMS = durNS / int64(time.Millisecond)
	}
	return posMS, durMS, true
}

func (d *GstDriver) buildPipeline(url string, volume float64, positionMS int64) (*gst.Element, error) {
	pipeline := d.pipeline
	pipeline = strings.ReplaceAll(pipeline, "{url}", url)
	pipeline = strings.ReplaceAll(pipeline, "{device}", d.device)
	pipeline = strings.ReplaceAll(pipeline, "{start_ms}", fmt.Sprintf("%d", positionMS))
	pipeline = strings.ReplaceAll(pipeline, "{volume}", fmt.Sprintf("%0.2f", volume))

	el, err := gst.ParseLaunch(pipeline)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (d *GstDriver) stopCurrentLocked() error {
	if d.current == nil {
		return nil
	}
	_ = d.current.SetState(gst.StateNull)
	d.current = nil
	return nil
}

func (d *GstDriver) currentVolumeLocked() float64 {
	if d.muted {
		return 0
	}
	return d.volume
}
