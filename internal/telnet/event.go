package telnet

// Event is one unit of decoded client input. The concrete types are value
// types; a consumer switches on them.
type Event interface {
	isEvent()
}

// CommandEvent is an option negotiation (DO, DONT, WILL or WONT).
type CommandEvent struct {
	Command byte
	Option  byte
}

// SubNegotiationEvent carries the unescaped payload between IAC SB <option>
// and IAC SE.
type SubNegotiationEvent struct {
	Option byte
	Data   []byte
}

type StringEvent struct {
	Text string
}

// CsiEvent is an ESC [ sequence. Altered is set when the sequence was
// prefixed by a second ESC, which is how terminals report Alt.
type CsiEvent struct {
	Params  string
	Suffix  byte
	Altered bool
}

// Ss3Event is an ESC O sequence.
type Ss3Event struct {
	Params  string
	Suffix  byte
	Altered bool
}

type MouseEvent struct {
	Button    MouseButton
	EventType MouseEventType
	X, Y      int
}

// CloseEvent is queued once the underlying connection has ended.
type CloseEvent struct{}

func (CommandEvent) isEvent()        {}
func (SubNegotiationEvent) isEvent() {}
func (StringEvent) isEvent()         {}
func (CsiEvent) isEvent()            {}
func (Ss3Event) isEvent()            {}
func (MouseEvent) isEvent()          {}
func (CloseEvent) isEvent()          {}
