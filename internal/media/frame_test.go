package media

import "testing"

func TestTransformOver(t *testing.T) {
	t.Parallel()

	child := Identity()
	child.Alpha = 0.5
	child.TranslateX = 0.25
	child.Volume = 128

	parent := Identity()
	parent.Alpha = 0.5
	parent.TranslateX = 0.1
	parent.Volume = 255

	got := child.Over(parent)
	if got.Alpha != 0.25 {
		t.Errorf("Alpha: got %v, want 0.25", got.Alpha)
	}
	if got.TranslateX != 0.35 {
		t.Errorf("TranslateX: got %v, want 0.35", got.TranslateX)
	}
	if got.Volume != 128 {
		t.Errorf("Volume: got %d, want 128", got.Volume)
	}
}

func TestTransformOverInheritsTexCoord(t *testing.T) {
	t.Parallel()

	parent := Identity()
	parent.TexCoord = Rect{X0: 0.5, Y0: 0, X1: 1, Y1: 1}

	got := Identity().Over(parent)
	if got.TexCoord != parent.TexCoord {
		t.Errorf("TexCoord: got %+v, want parent window", got.TexCoord)
	}
}

func TestEmptyFrame(t *testing.T) {
	t.Parallel()

	if !NewEmpty().IsEmpty() {
		t.Error("NewEmpty().IsEmpty() = false")
	}
	var f *Frame
	if !f.IsEmpty() {
		t.Error("nil frame should report empty")
	}
	if (&Frame{}).IsEmpty() {
		t.Error("zero frame is not the empty sentinel")
	}
}

func TestWithTransformShares(t *testing.T) {
	t.Parallel()

	inner := &Frame{Image: Image{Format: PixelFormatBGRA, Width: 2, Height: 2, Stride: 8, Data: make([]byte, 16)}}
	tr := Identity()
	tr.Alpha = 0.5
	wrapped := WithTransform(inner, tr)

	if len(wrapped.Children) != 1 || wrapped.Children[0] != inner {
		t.Fatal("wrapped frame must hold the original as its only child")
	}
	if wrapped.Transform.Alpha != 0.5 {
		t.Errorf("Transform.Alpha: got %v, want 0.5", wrapped.Transform.Alpha)
	}
}

func TestHostBufferReadback(t *testing.T) {
	t.Parallel()

	gpu := &GPUContext{}
	b := NewHostBuffer(16, ReadOnly)
	if b.Ready() {
		t.Error("Ready before BeginRead should be false")
	}
	b.BeginRead(2, 2, PixelFormatBGRA)
	if !b.Ready() {
		t.Error("Ready after completed readback should be true")
	}
	b.Wait(gpu) // must not block once ready
	if got := len(b.Map()); got != 16 {
		t.Errorf("mapped size: got %d, want 16", got)
	}
	b.Unmap()
}
