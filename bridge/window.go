package bridge

// Direction tells which way the bytes accounted by a Window flow.
type Direction uint8

const (
	// DirInbound windows account response bytes pushed by the transport. The
	// transport is flow controlled by the same ceiling, so exceeding it is
	// fatal.
	DirInbound Direction = iota
	// DirOutbound windows account request bytes emitted by the producer. The
	// ceiling is where the bridge stops asking for more; the producer picks
	// chunk sizes, so one chunk may cross it.
	DirOutbound
)

func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Window counts bytes queued in a bridge against a ceiling. It has no lock of
// its own; the owning bridge serializes access.
type Window struct {
	dir     Direction
	ceiling int
	queued  int
}

func NewWindow(dir Direction, ceiling int) *Window {
	if ceiling <= 0 {
		panic("assertion error")
	}
	return &Window{dir: dir, ceiling: ceiling}
}

// Reserve panics with *OverrunError when an inbound window would exceed its
// ceiling.
func (w *Window) Reserve(n int) {
	if err := w.reserve(n); err != nil {
		panic(err)
	}
}

// Release panics with *UnderrunError when n is more than is queued.
func (w *Window) Release(n int) {
	if err := w.release(n); err != nil {
		panic(err)
	}
}

// reserve and release leave the count unchanged on error, so a bridge can
// drop its lock before panicking.
func (w *Window) reserve(n int) error {
	if n < 0 {
		panic("assertion error")
	}
	if w.dir == DirInbound && w.queued+n > w.ceiling {
		return &OverrunError{w.dir, w.queued, n, w.ceiling}
	}
	w.queued += n
	return nil
}

func (w *Window) release(n int) error {
	if n < 0 || n > w.queued {
		return &UnderrunError{w.dir, w.queued, n}
	}
	w.queued -= n
	return nil
}

func (w *Window) Queued() int  { return w.queued }
func (w *Window) Ceiling() int { return w.ceiling }
func (w *Window) Below() bool  { return w.queued < w.ceiling }

func (w *Window) Available() int {
	return max(0, w.ceiling-w.queued)
}
