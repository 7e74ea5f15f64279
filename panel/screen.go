package panel

import (
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Screen implements Backend over a tcell terminal screen.
type Screen struct {
	screen tcell.Screen
	mu     sync.Mutex
}

// NewScreen creates a terminal backend.
func NewScreen() (*Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return &Screen{screen: screen}, nil
}

func (s *Screen) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.screen.Init(); err != nil {
		return err
	}
	s.screen.HideCursor()
	return nil
}

func (s *Screen) Fini() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen.Fini()
}

func (s *Screen) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen.Size()
}

func (s *Screen) SetCell(x, y int, r rune, style Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen.SetContent(x, y, r, nil, convertStyle(style))
}

func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen.Clear()
}

func (s *Screen) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen.Show()
}

func (s *Screen) PollEvent() Event {
	for {
		switch ev := s.screen.PollEvent().(type) {
		case *tcell.EventKey:
			return convertKeyEvent(ev)
		case *tcell.EventResize:
			w, h := ev.Size()
			return Event{Type: EventResize, Width: w, Height: h}
		case *tcell.EventInterrupt:
			return Event{Type: EventNone}
		case nil:
			// Screen finalized.
			return Event{Type: EventNone}
		default:
			// Mouse, paste, focus events are not used by the panel.
			continue
		}
	}
}

func (s *Screen) Interrupt() {
	_ = s.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

func convertStyle(style Style) tcell.Style {
	base := tcell.StyleDefault
	switch style {
	case StyleTitle:
		return base.Bold(true)
	case StyleSelected:
		return base.Reverse(true)
	case StyleMuted:
		return base.Foreground(tcell.ColorGray)
	case StyleError:
		return base.Foreground(tcell.ColorRed)
	case StyleSaving:
		return base.Foreground(tcell.ColorYellow)
	case StyleSaved:
		return base.Foreground(tcell.ColorGreen)
	case StyleDanger:
		return base.Foreground(tcell.ColorRed).Bold(true)
	case StyleDialog:
		return base.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	default:
		return base
	}
}

func convertKeyEvent(ev *tcell.EventKey) Event {
	switch ev.Key() {
	case tcell.KeyRune:
		return Event{Type: EventKey, Key: KeyRune, Rune: ev.Rune()}
	case tcell.KeyEscape:
		return Event{Type: EventKey, Key: KeyEscape}
	case tcell.KeyEnter:
		return Event{Type: EventKey, Key: KeyEnter}
	case tcell.KeyTab:
		return Event{Type: EventKey, Key: KeyTab}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return Event{Type: EventKey, Key: KeyBackspace}
	case tcell.KeyUp:
		return Event{Type: EventKey, Key: KeyUp}
	case tcell.KeyDown:
		return Event{Type: EventKey, Key: KeyDown}
	case tcell.KeyLeft:
		return Event{Type: EventKey, Key: KeyLeft}
	case tcell.KeyRight:
		return Event{Type: EventKey, Key: KeyRight}
	case tcell.KeyPgUp:
		return Event{Type: EventKey, Key: KeyPageUp}
	case tcell.KeyPgDn:
		return Event{Type: EventKey, Key: KeyPageDown}
	case tcell.KeyHome:
		return Event{Type: EventKey, Key: KeyHome}
	case tcell.KeyEnd:
		return Event{Type: EventKey, Key: KeyEnd}
	case tcell.KeyCtrlC:
		return Event{Type: EventKey, Key: KeyCtrlC}
	default:
		return Event{Type: EventNone}
	}
}
