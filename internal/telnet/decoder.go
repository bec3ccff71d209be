package telnet

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type telnetState int

const (
	telnetCharacter telnetState = 0 + iota
	telnetEscaped
	telnetNegotiation
	telnetSbInitial
	telnetSbData
	telnetSbEscaped
)

type ansiState int

const (
	ansiCharacter ansiState = 0 + iota
	ansiEscaped
	ansiCsi
	ansiSs3
	ansiMouseButton
	ansiMouseX
	ansiMouseY
)

// transition consumes one byte. more reports whether the chunk being decoded
// has bytes after this one.
type transition func(d *Decoder, b byte, more bool)

var telnetTransitions = [...]transition{
	telnetCharacter:   (*Decoder).telnetCharacter,
	telnetEscaped:     (*Decoder).telnetEscaped,
	telnetNegotiation: (*Decoder).telnetNegotiation,
	telnetSbInitial:   (*Decoder).telnetSbInitial,
	telnetSbData:      (*Decoder).telnetSbData,
	telnetSbEscaped:   (*Decoder).telnetSbEscaped,
}

var ansiTransitions = [...]transition{
	ansiCharacter:   (*Decoder).ansiCharacter,
	ansiEscaped:     (*Decoder).ansiEscaped,
	ansiCsi:         (*Decoder).ansiSequence,
	ansiSs3:         (*Decoder).ansiSequence,
	ansiMouseButton: (*Decoder).ansiMouse,
	ansiMouseX:      (*Decoder).ansiMouse,
	ansiMouseY:      (*Decoder).ansiMouse,
}

// Decoder turns a client byte stream into Events. Telnet framing is decoded
// first; bytes that are not part of a Telnet command go through an inner
// ANSI state machine. State survives between calls to Decode, so a stream
// may be split anywhere. A Decoder is not safe for concurrent use.
type Decoder struct {
	ts      telnetState
	as      ansiState
	buf     []byte
	altered bool
	cmd     byte
	opt     byte
	dec     transform.Transformer
	c1      bool
	out     []Event
}

// SetEncoding sets the charset used for StringEvent text. A nil encoding
// means the bytes are passed through as UTF-8. A lone 0x9B starts an 8-bit
// CSI only where the charset reads it as the C1 control, so multi-byte
// charsets such as Shift_JIS keep it as text.
func (d *Decoder) SetEncoding(enc encoding.Encoding) {
	d.dec, d.c1 = nil, false
	if enc == nil {
		return
	}
	d.dec = enc.NewDecoder()
	if cm, ok := enc.(*charmap.Charmap); ok {
		d.c1 = cm.DecodeByte(CSI) == rune(CSI)
	}
}

// Decode consumes p and appends the events it completes to events.
func (d *Decoder) Decode(p []byte, events []Event) []Event {
	d.out = events
	for i, b := range p {
		telnetTransitions[d.ts](d, b, i < len(p)-1)
	}
	if d.ts == telnetCharacter && d.as == ansiCharacter {
		d.flushText(true)
	}
	events, d.out = d.out, nil
	return events
}

func (d *Decoder) emit(ev Event) {
	d.out = append(d.out, ev)
}

// flushText emits the buffered text. At a chunk boundary an incomplete
// trailing character stays buffered for the next chunk.
func (d *Decoder) flushText(atBoundary bool) {
	if len(d.buf) == 0 {
		return
	}
	var text string
	var n int
	if d.dec == nil {
		n = len(d.buf)
		if atBoundary {
			n -= incompleteSuffix(d.buf)
		}
		text = string(d.buf[:n])
	} else {
		text, n = d.transformText(d.buf, !atBoundary)
	}
	if text != "" {
		d.emit(StringEvent{Text: text})
	}
	d.buf = append(d.buf[:0], d.buf[n:]...)
}

// transformText decodes p with the charset's transformer and reports how
// many bytes it consumed. Unless atEOF, a character cut off at the end of p
// is left unconsumed.
func (d *Decoder) transformText(p []byte, atEOF bool) (string, int) {
	out := make([]byte, 0, 2*len(p))
	dst := make([]byte, 4*len(p)+utf8.UTFMax)
	src := p
	for len(src) > 0 {
		nDst, nSrc, err := d.dec.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch err {
		case nil, transform.ErrShortSrc:
			return string(out), len(p) - len(src)
		case transform.ErrShortDst:
			if nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		default:
			out = append(out, src...)
			d.dec.Reset()
			return string(out), len(p)
		}
	}
	return string(out), len(p)
}

// is8BitCSI reports whether 0x9B at this point starts a CSI sequence rather
// than continuing a character.
func (d *Decoder) is8BitCSI() bool {
	if d.dec == nil {
		return incompleteSuffix(d.buf) == 0
	}
	return d.c1
}

func (d *Decoder) reset() {
	d.buf = d.buf[:0]
	d.as = ansiCharacter
}

func (d *Decoder) telnetCharacter(b byte, more bool) {
	if b != IAC {
		ansiTransitions[d.as](d, b, more)
		return
	}
	if d.as != ansiCharacter {
		// a Telnet command pre-empts a half-read ANSI sequence
		d.reset()
	}
	d.flushText(false)
	d.ts = telnetEscaped
}

func (d *Decoder) telnetEscaped(b byte, _ bool) {
	switch b {
	case DO, DONT, WILL, WONT:
		d.cmd = b
		d.ts = telnetNegotiation
	case IAC:
		d.buf = append(d.buf, IAC)
		d.ts = telnetCharacter
	case SB:
		d.ts = telnetSbInitial
	default:
		d.ts = telnetCharacter
	}
}

func (d *Decoder) telnetNegotiation(b byte, _ bool) {
	d.emit(CommandEvent{Command: d.cmd, Option: b})
	d.ts = telnetCharacter
}

func (d *Decoder) telnetSbInitial(b byte, _ bool) {
	d.opt = b
	d.buf = d.buf[:0]
	d.ts = telnetSbData
}

func (d *Decoder) telnetSbData(b byte, _ bool) {
	if b == IAC {
		d.ts = telnetSbEscaped
		return
	}
	d.buf = append(d.buf, b)
}

func (d *Decoder) telnetSbEscaped(b byte, _ bool) {
	if b == IAC {
		d.buf = append(d.buf, IAC)
		d.ts = telnetSbData
		return
	}
	data := make([]byte, len(d.buf))
	copy(data, d.buf)
	d.emit(SubNegotiationEvent{Option: d.opt, Data: data})
	d.buf = d.buf[:0]
	d.ts = telnetCharacter
}

func (d *Decoder) ansiCharacter(b byte, _ bool) {
	switch {
	case b == ESC:
		d.flushText(false)
		d.altered = false
		d.as = ansiEscaped
	case b == CSI && d.is8BitCSI():
		d.flushText(false)
		d.altered = false
		d.as = ansiCsi
	default:
		d.buf = append(d.buf, b)
	}
}

func (d *Decoder) ansiEscaped(b byte, more bool) {
	switch {
	case b == '[':
		d.as = ansiCsi
	case b == 'O':
		d.as = ansiSs3
	case b == ESC && more:
		d.altered = true
	default:
		d.buf = append(d.buf, ESC)
		if b != ESC {
			d.buf = append(d.buf, b)
		}
		d.as = ansiCharacter
	}
}

func (d *Decoder) ansiSequence(b byte, _ bool) {
	switch {
	case d.isTerminator(b):
		params := string(d.buf)
		if d.as == ansiSs3 {
			d.emit(Ss3Event{Params: params, Suffix: b, Altered: d.altered})
		} else {
			d.emit(CsiEvent{Params: params, Suffix: b, Altered: d.altered})
		}
		d.reset()
	case b == 'M':
		// ESC [ M is an X10 mouse report, three raw bytes follow
		d.buf = d.buf[:0]
		d.as = ansiMouseButton
	default:
		d.buf = append(d.buf, b)
	}
}

func (d *Decoder) isTerminator(b byte) bool {
	if b == '~' {
		return true
	}
	return isLetter(b) && (b != 'M' || d.as == ansiSs3 || len(d.buf) > 1)
}

func (d *Decoder) ansiMouse(b byte, _ bool) {
	d.buf = append(d.buf, b)
	switch d.as {
	case ansiMouseButton:
		d.as = ansiMouseX
	case ansiMouseX:
		d.as = ansiMouseY
	case ansiMouseY:
		d.emit(decodeMouse(d.buf[0], d.buf[1], d.buf[2]))
		d.reset()
	}
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// incompleteSuffix returns the length of a UTF-8 sequence at the end of p that
// has been started but not finished.
func incompleteSuffix(p []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(p); i++ {
		if utf8.RuneStart(p[len(p)-i]) {
			if utf8.FullRune(p[len(p)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
