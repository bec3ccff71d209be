package telnet

// OptionState is the RFC 1143 negotiation state of one option, for both
// sides of the connection. Enabling or disabling sends the matching command
// to the peer; the peer's answer arrives later through Session.Negotiate.
type OptionState interface {
	Allow(them, us bool) OptionState
	AllowThem(bool) OptionState
	AllowUs(bool) OptionState
	DisableBoth() OptionState
	DisableThem() OptionState
	DisableUs() OptionState
	EnableBoth() OptionState
	EnableThem() OptionState
	EnableUs() OptionState

	Enabled() (them, us bool)
	EnabledForThem() bool
	EnabledForUs() bool
	Option() byte
}

// OptionData reports an option whose state changed while handling a
// negotiation.
type OptionData struct {
	OptionState
	ChangedThem bool
	ChangedUs   bool
}

// commandSender writes the IAC command an option transition calls for.
// Session implements it; a failed write is logged there, since the Q method
// treats a sent command as sent.
type commandSender interface {
	sendCommand(cmd, opt byte)
}

// optionMap holds one Q-method state per option byte. Local calls such as
// EnableUs and replies to the peer both leave through the same sender.
type optionMap struct {
	m [256]*optionState
}

func newOptionMap(sender commandSender) *optionMap {
	result := &optionMap{}
	for i := range result.m {
		result.m[i] = &optionState{opt: byte(i), sender: sender}
	}
	return result
}

func (m *optionMap) get(opt byte) *optionState {
	return m.m[opt]
}

// receive applies a negotiation command from the peer. ok is false when the
// option state did not change.
func (m *optionMap) receive(cmd, opt byte) (data OptionData, ok bool) {
	o := m.m[opt]
	themBefore, usBefore := o.them, o.us
	o.receive(cmd)
	data = OptionData{
		OptionState: o,
		ChangedThem: themBefore != o.them,
		ChangedUs:   usBefore != o.us,
	}
	return data, data.ChangedThem || data.ChangedUs
}

type qState int

const (
	qNo qState = 0 + iota
	qYes
	qWantNoEmpty
	qWantNoOpposite
	qWantYesEmpty
	qWantYesOpposite
)

type optionState struct {
	opt       byte
	allowThem bool
	them      qState
	allowUs   bool
	us        qState
	sender    commandSender
}

func (o *optionState) Allow(them, us bool) OptionState {
	o.AllowThem(them)
	o.AllowUs(us)
	return o
}

func (o *optionState) AllowThem(allow bool) OptionState {
	o.allowThem = allow
	return o
}

func (o *optionState) AllowUs(allow bool) OptionState {
	o.allowUs = allow
	return o
}

func (o *optionState) DisableBoth() OptionState {
	o.DisableThem()
	o.DisableUs()
	return o
}

func (o *optionState) DisableThem() OptionState {
	o.disable(&o.them, DONT)
	return o
}

func (o *optionState) DisableUs() OptionState {
	o.disable(&o.us, WONT)
	return o
}

func (o *optionState) EnableBoth() OptionState {
	o.EnableThem()
	o.EnableUs()
	return o
}

func (o *optionState) EnableThem() OptionState {
	o.enable(&o.them, DO)
	return o
}

func (o *optionState) EnableUs() OptionState {
	o.enable(&o.us, WILL)
	return o
}

func (o *optionState) Enabled() (them, us bool) { return o.EnabledForThem(), o.EnabledForUs() }
func (o *optionState) EnabledForThem() bool     { return o.them == qYes }
func (o *optionState) EnabledForUs() bool       { return o.us == qYes }

func (o *optionState) Option() byte { return o.opt }

func (o *optionState) disable(state *qState, b byte) {
	switch *state {
	case qNo:
		// ignore
	case qYes:
		*state = qWantNoEmpty
		o.send(b)
	case qWantNoEmpty:
		// ignore
	case qWantNoOpposite:
		*state = qWantNoEmpty
	case qWantYesEmpty:
		*state = qWantYesOpposite
	case qWantYesOpposite:
		// ignore
	}
}

func (o *optionState) enable(state *qState, b byte) {
	switch *state {
	case qNo:
		*state = qWantYesEmpty
		o.send(b)
	case qYes:
		// ignore
	case qWantNoEmpty:
		*state = qWantNoOpposite
	case qWantNoOpposite:
		// ignore
	case qWantYesEmpty:
		// ignore
	case qWantYesOpposite:
		*state = qWantYesEmpty
	}
}

// receive runs the RFC 1143 transition for a DO, DONT, WILL or WONT from the
// peer, answering through the sender when the table says to.
func (o *optionState) receive(b byte) {
	var allow *bool
	var state *qState
	var accept byte
	var reject byte
	switch b {
	case DO, DONT:
		allow = &o.allowUs
		state = &o.us
		accept = WILL
		reject = WONT
	case WILL, WONT:
		allow = &o.allowThem
		state = &o.them
		accept = DO
		reject = DONT
	}
	switch b {
	case DO, WILL:
		switch *state {
		case qNo:
			if *allow {
				*state = qYes
				o.send(accept)
			} else {
				o.send(reject)
			}
		case qYes:
			// ignore
		case qWantNoEmpty:
			*state = qNo
		case qWantNoOpposite:
			*state = qYes
		case qWantYesEmpty:
			*state = qYes
		case qWantYesOpposite:
			*state = qWantNoEmpty
			o.send(reject)
		}
	case DONT, WONT:
		switch *state {
		case qNo:
			// ignore
		case qYes:
			*state = qNo
			o.send(reject)
		case qWantNoEmpty:
			*state = qNo
		case qWantNoOpposite:
			*state = qWantYesEmpty
			o.send(accept)
		case qWantYesEmpty:
			*state = qNo
		case qWantYesOpposite:
			*state = qNo
		}
	}
}

func (o *optionState) send(cmd byte) {
	if o.sender != nil {
		o.sender.sendCommand(cmd, o.opt)
	}
}
