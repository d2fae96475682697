package gateway

import (
	"encoding/json"
	"slices"
)

// FrameType identifies messages pushed to the page
type FrameType string

const (
	FrameTypeDisplay FrameType = "display"
)

// Frame is the wire form of the display element's text and classes
type Frame struct {
	Type    FrameType `json:"type"`
	Text    string    `json:"text"`
	Classes []string  `json:"classes"`
}

// FrameDisplay implements usagetimer.Display for a remote page. Writes made
// during one tick are collected and pushed as a single frame on Flush, and
// only when the element actually changed.
type FrameDisplay struct {
	send    func([]byte) error
	text    string
	classes []string
	dirty   bool
}

// NewFrameDisplay creates a display that hands encoded frames to send
func NewFrameDisplay(send func([]byte) error) *FrameDisplay {
	return &FrameDisplay{
		send:    send,
		classes: []string{},
	}
}

func (d *FrameDisplay) SetText(text string) error {
	if text != d.text {
		d.text = text
		d.dirty = true
	}
	return nil
}

func (d *FrameDisplay) AddClass(class string) error {
	if !slices.Contains(d.classes, class) {
		d.classes = append(d.classes, class)
		d.dirty = true
	}
	return nil
}

func (d *FrameDisplay) Flush() error {
	if !d.dirty {
		return nil
	}

	data, err := json.Marshal(Frame{
		Type:    FrameTypeDisplay,
		Text:    d.text,
		Classes: d.classes,
	})
	if err != nil {
		return err
	}

	d.dirty = false
	return d.send(data)
}
