package capture

// GateConfig holds the diff-gate thresholds.
type GateConfig struct {
	DownsampleWidth int     // wider frame dimension is reduced to at most this many pixels
	PixelThreshold  int     // per-channel intensity delta (0-255) that counts as a change
	ChangeRatio     float64 // fraction of changed pixels required to evaluate
}

// DiffGate compares consecutive downsampled frames and reports whether enough
// pixels changed to make a vision call worthwhile. One gate per job; not safe
// for concurrent use (a job has at most one evaluation in flight).
type DiffGate struct {
	cfg           GateConfig
	prev          *Frame // previous downsampled frame
	lastDiffRatio float64
}

// NewDiffGate creates a gate with the given thresholds.
func NewDiffGate(cfg GateConfig) *DiffGate {
	if cfg.DownsampleWidth <= 0 {
		cfg.DownsampleWidth = 320
	}
	if cfg.PixelThreshold <= 0 {
		cfg.PixelThreshold = 10
	}
	if cfg.ChangeRatio <= 0 {
		cfg.ChangeRatio = 0.01
	}
	return &DiffGate{cfg: cfg}
}

// ShouldEvaluate downsamples frame, compares it against the previous frame,
// and returns true when the changed-pixel ratio exceeds the configured
// threshold. The first frame and any frame whose downsampled dimensions
// differ from the previous one (window resize) always evaluate.
func (g *DiffGate) ShouldEvaluate(frame *Frame) bool {
	small := downsample(frame, g.cfg.DownsampleWidth)

	if g.prev == nil || g.prev.Width != small.Width || g.prev.Height != small.Height {
		g.prev = small
		g.lastDiffRatio = 1.0
		return true
	}

	changed := 0
	total := small.Width * small.Height
	threshold := g.cfg.PixelThreshold
	for i := 0; i < len(small.Pix); i += 4 {
		if absDiff(small.Pix[i], g.prev.Pix[i]) > threshold ||
			absDiff(small.Pix[i+1], g.prev.Pix[i+1]) > threshold ||
			absDiff(small.Pix[i+2], g.prev.Pix[i+2]) > threshold {
			changed++
		}
	}

	g.prev = small
	g.lastDiffRatio = float64(changed) / float64(total)
	return g.lastDiffRatio > g.cfg.ChangeRatio
}

// LastDiffRatio returns the changed-pixel ratio of the most recent comparison.
func (g *DiffGate) LastDiffRatio() float64 {
	return g.lastDiffRatio
}

// Reset clears the stored frame so the next call always evaluates.
func (g *DiffGate) Reset() {
	g.prev = nil
	g.lastDiffRatio = 0
}

// downsample samples frame at an integer stride chosen so the wider dimension
// ends up at or below maxWidth. Stride 1 copies the frame.
func downsample(frame *Frame, maxWidth int) *Frame {
	wider := frame.Width
	if frame.Height > wider {
		wider = frame.Height
	}
	stride := (wider + maxWidth - 1) / maxWidth
	if stride < 1 {
		stride = 1
	}

	outW := (frame.Width + stride - 1) / stride
	outH := (frame.Height + stride - 1) / stride
	out := &Frame{Width: outW, Height: outH, Pix: make([]byte, 4*outW*outH)}

	di := 0
	for y := 0; y < frame.Height; y += stride {
		row := y * frame.Width * 4
		for x := 0; x < frame.Width; x += stride {
			si := row + x*4
			copy(out.Pix[di:di+4], frame.Pix[si:si+4])
			di += 4
		}
	}
	return out
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
