package scene

const DefaultMinGap = 10

type Step int

const (
	StepSkip Step = iota
	StepFirst
	StepCompare
)

// Policy decides which frame indices are candidates. The first frame is
// always kept; later frames are only scored once more than MinGap frames
// have passed since the last keyframe.
type Policy struct {
	minGap int
	last   int
}

func NewPolicy(minGap int) *Policy {
	if minGap < 0 {
		minGap = 0
	}
	return &Policy{minGap: minGap, last: -1}
}

func (p *Policy) Step(index int) Step {
	if index == 0 {
		return StepFirst
	}
	if index-p.last > p.minGap {
		return StepCompare
	}
	return StepSkip
}

func (p *Policy) Accept(index int) {
	p.last = index
}

// Tail returns the index of the final frame when it lies far enough from the
// last keyframe to be kept as well.
func (p *Policy) Tail(total int) (int, bool) {
	if total <= 0 || p.last < 0 || p.last == total-1 {
		return 0, false
	}
	if total-p.last > p.minGap {
		return total - 1, true
	}
	return 0, false
}

func (p *Policy) LastKeyframe() int {
	return p.last
}
