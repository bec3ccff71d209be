package telnet

type MouseButton int

const (
	ButtonUnknown MouseButton = 0 + iota
	ButtonLeft
	ButtonRight
	ButtonMiddle
	ButtonScrollUp
	ButtonScrollDown
)

func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	case ButtonScrollUp:
		return "scroll-up"
	case ButtonScrollDown:
		return "scroll-down"
	default:
		return "unknown"
	}
}

type MouseEventType int

const (
	MouseUnknown MouseEventType = 0 + iota
	MouseDown
	MouseUp
	MouseDrag
)

func (t MouseEventType) String() string {
	switch t {
	case MouseDown:
		return "down"
	case MouseUp:
		return "up"
	case MouseDrag:
		return "drag"
	default:
		return "unknown"
	}
}

// mouseOffset is added to every byte of an X10 report so it stays printable.
const mouseOffset = 33

// decodeMouse builds an event from the three bytes following ESC [ M. A
// release report does not say which button went up.
func decodeMouse(cb, cx, cy byte) MouseEvent {
	ev := MouseEvent{X: int(cx) - mouseOffset, Y: int(cy) - mouseOffset}
	switch cb {
	case 32:
		ev.Button, ev.EventType = ButtonLeft, MouseDown
	case 33:
		ev.Button, ev.EventType = ButtonMiddle, MouseDown
	case 34:
		ev.Button, ev.EventType = ButtonRight, MouseDown
	case 35:
		ev.Button, ev.EventType = ButtonUnknown, MouseUp
	case 96:
		ev.Button, ev.EventType = ButtonScrollUp, MouseDown
	case 97:
		ev.Button, ev.EventType = ButtonScrollDown, MouseDown
	case 64:
		ev.Button, ev.EventType = ButtonLeft, MouseDrag
	case 65:
		ev.Button, ev.EventType = ButtonMiddle, MouseDrag
	case 66:
		ev.Button, ev.EventType = ButtonRight, MouseDrag
	}
	return ev
}
