// Package panel renders an interactive settings panel in the terminal.
// Drawing goes through a Backend so tests can run against an in-memory
// implementation.
package panel

// Style selects the visual treatment of a cell. The backend maps styles
// to whatever the display supports.
type Style int

const (
	StyleDefault Style = iota
	StyleTitle
	StyleSelected
	StyleMuted
	StyleError
	StyleSaving
	StyleSaved
	StyleDanger
	StyleDialog
)

// EventType identifies the type of terminal event.
type EventType int

const (
	EventNone EventType = iota
	EventKey
	EventResize
)

// Key represents a keyboard key.
type Key int

const (
	KeyNone Key = iota
	KeyRune     // Regular character (use Rune field)
	KeyEscape
	KeyEnter
	KeyTab
	KeyBackspace
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
	KeyCtrlC
)

// Event represents a terminal event.
type Event struct {
	Type EventType

	// Key event fields
	Key  Key
	Rune rune

	// Resize event fields
	Width, Height int
}

// Backend defines the interface for panel display surfaces.
type Backend interface {
	// Init initializes the backend for use.
	Init() error

	// Fini releases backend resources and restores terminal state.
	Fini()

	// Size returns the current dimensions.
	Size() (width, height int)

	// SetCell sets a single cell. Out-of-range positions are ignored.
	SetCell(x, y int, r rune, style Style)

	// Clear clears the entire surface.
	Clear()

	// Show flushes pending changes to the display.
	Show()

	// PollEvent waits for and returns the next event. Blocking.
	PollEvent() Event

	// Interrupt unblocks a pending PollEvent with an EventNone.
	Interrupt()
}

// NullBackend is an in-memory backend for testing.
type NullBackend struct {
	width, height int
	runes         [][]rune
	styles        [][]Style
	events        chan Event
}

// NewNullBackend creates a null backend with the given dimensions.
func NewNullBackend(width, height int) *NullBackend {
	return &NullBackend{
		width:  width,
		height: height,
		events: make(chan Event, 100),
	}
}

func (b *NullBackend) Init() error {
	b.runes = make([][]rune, b.height)
	b.styles = make([][]Style, b.height)
	for y := range b.runes {
		b.runes[y] = make([]rune, b.width)
		b.styles[y] = make([]Style, b.width)
		for x := range b.runes[y] {
			b.runes[y][x] = ' '
		}
	}
	return nil
}

func (b *NullBackend) Fini() {}

func (b *NullBackend) Size() (int, int) {
	return b.width, b.height
}

func (b *NullBackend) SetCell(x, y int, r rune, style Style) {
	if x >= 0 && x < b.width && y >= 0 && y < b.height {
		b.runes[y][x] = r
		b.styles[y][x] = style
	}
}

func (b *NullBackend) Clear() {
	for y := range b.runes {
		for x := range b.runes[y] {
			b.runes[y][x] = ' '
			b.styles[y][x] = StyleDefault
		}
	}
}

func (b *NullBackend) Show() {}

func (b *NullBackend) PollEvent() Event {
	return <-b.events
}

func (b *NullBackend) Interrupt() {
	b.post(Event{Type: EventNone})
}

// PostKey queues a key event for testing.
func (b *NullBackend) PostKey(key Key, r rune) {
	b.post(Event{Type: EventKey, Key: key, Rune: r})
}

func (b *NullBackend) post(ev Event) {
	select {
	case b.events <- ev:
	default:
		// Event dropped if queue is full (non-blocking for testing)
	}
}

// Line returns the text of row y for testing.
func (b *NullBackend) Line(y int) string {
	if y < 0 || y >= b.height {
		return ""
	}
	return string(b.runes[y])
}

// Contents returns the whole surface as one string for testing.
func (b *NullBackend) Contents() string {
	out := make([]rune, 0, (b.width+1)*b.height)
	for y := range b.runes {
		out = append(out, b.runes[y]...)
		out = append(out, '\n')
	}
	return string(out)
}
