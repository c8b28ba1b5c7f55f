// Package mux adapts a source's natural video rate, audio rate and field
// order to a channel's fixed frame rate and audio cadence. Video and audio
// arrive demultiplexed and are reassembled into composite-ready write-frames,
// with flush markers separating same-format epochs so a source
// reconfiguration never mixes formats inside one output.
package mux

// cadenceRing cycles through the per-frame audio sample counts of the
// channel format. The ring starts one step rotated (1602,1602,1601,...) so
// the short slot lands where the downstream audio mixer expects it.
type cadenceRing struct {
	slots []int
	pos   int
}

func newCadenceRing(cadence []int) *cadenceRing {
	slots := make([]int, len(cadence))
	// Rotate one step right: the last entry becomes the first.
	for i, v := range cadence {
		slots[(i+1)%len(cadence)] = v
	}
	return &cadenceRing{slots: slots}
}

// Front returns the sample count of the current slot.
func (r *cadenceRing) Front() int {
	return r.slots[r.pos]
}

// Rotate advances to the next slot.
func (r *cadenceRing) Rotate() {
	r.pos = (r.pos + 1) % len(r.slots)
}
