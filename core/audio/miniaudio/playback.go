package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/Till-X/xiaozhi-sever-DIY/core/audio"
)

type playbackDevice struct {
	device *malgo.Device
	config malgo.DeviceConfig

	queued []byte
	// marks are kept sorted by position; advanceMarks relies on it.
	marks []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (d *playbackDevice) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sampleRate := uint32(encoding.SampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	d.config = malgo.DefaultDeviceConfig(malgo.Playback)
	d.config.SampleRate = sampleRate
	d.config.Playback.Format = format
	d.config.Playback.Channels = uint32(channels)
	d.config.Alsa.NoMMap = 1
	d.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	d.config.Periods = 4

	var err error
	if d.device, err = malgo.InitDevice(
		audioContext.Context,
		d.config,
		malgo.DeviceCallbacks{Data: d.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (d *playbackDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (d *playbackDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	d.Clear()
	return nil
}

func (d *playbackDevice) Play(pcm []byte) error {
	if d.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !d.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	d.audioMu.Lock()
	defer d.audioMu.Unlock()
	d.queued = append(d.queued, pcm...)
	return nil
}

func (d *playbackDevice) Clear() {
	d.audioMu.Lock()
	defer d.audioMu.Unlock()
	d.queued = nil
	d.marks = nil
}

func (d *playbackDevice) Mark(name string, callback func(string)) error {
	d.audioMu.Lock()
	defer d.audioMu.Unlock()
	d.marks = append(d.marks, playbackMark{
		name:     name,
		position: len(d.queued),
		callback: callback,
	})
	return nil
}

func (d *playbackDevice) AwaitPlayed() error {
	wg := sync.WaitGroup{}
	wg.Add(1)
	if err := d.Mark("", func(string) { wg.Done() }); err != nil {
		return err
	}
	wg.Wait()
	return nil
}

func (d *playbackDevice) Uninit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return fmt.Errorf("device not initialized")
	}

	d.device.Uninit()
	d.device = nil

	return nil
}

func (d *playbackDevice) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		d.audioMu.Lock()
		d.advanceMarks(need)

		n := copy(pOutput, d.queued)
		if n >= len(d.queued) {
			d.queued = nil
		} else {
			d.queued = d.queued[n:]
		}
		d.audioMu.Unlock()
	}
}

// advanceMarks retires marks the device is about to play past. Callbacks
// run on their own goroutine so a slow one cannot starve the device.
// Callers hold audioMu.
func (d *playbackDevice) advanceMarks(played int) {
	passed := 0
	for i, mark := range d.marks {
		if mark.position >= played {
			d.marks[i].position -= played
		} else {
			passed++
		}
	}
	if passed == 0 {
		return
	}

	toCall := append([]playbackMark(nil), d.marks[:passed]...)
	d.marks = d.marks[passed:]
	go func() {
		for _, mark := range toCall {
			mark.callback(mark.name)
		}
	}()
}
