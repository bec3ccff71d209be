package telnet

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	CharsetRequest = 1 + iota
	CharsetAccepted
	CharsetRejected
	CharsetTTableIs
	CharsetTTableRejected
	CharsetTTableAck
	CharsetTTableNak
)

var ErrCharsetDisabled = errors.New("charset option not enabled")

// LookupEncoding resolves an IANA charset name. UTF-8 resolves to nil, the
// decoder's native pass-through.
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", name)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

// RequestCharset offers the client a list of charsets (RFC 2066). The answer
// arrives as a SubNegotiationEvent for Charset; pass it to HandleCharset.
func (s *Session) RequestCharset(encodings ...encoding.Encoding) error {
	if !s.Option(Charset).EnabledForUs() {
		return ErrCharsetDisabled
	}
	data := []byte{CharsetRequest}
	for _, enc := range encodings {
		name, err := ianaindex.IANA.Name(enc)
		if err != nil {
			return err
		}
		data = append(data, ";"+name...)
	}
	return s.SendSubnegotiation(Charset, data)
}

// HandleCharset applies a charset sub-negotiation from the client and
// returns the encoding now in use when it changed.
func (s *Session) HandleCharset(ev SubNegotiationEvent) (enc encoding.Encoding, changed bool, err error) {
	if ev.Option != Charset || len(ev.Data) == 0 {
		return nil, false, nil
	}
	if !s.Option(Charset).EnabledForUs() {
		return nil, false, ErrCharsetDisabled
	}
	switch cmd, data := ev.Data[0], ev.Data[1:]; cmd {
	case CharsetAccepted:
		if enc, err = LookupEncoding(string(data)); err != nil {
			return nil, false, err
		}
		s.SetEncoding(enc)
		return enc, true, nil
	case CharsetRejected:
		s.logger.Debug().Msg("charset rejected")
	case CharsetRequest:
		return s.handleCharsetRequest(data)
	case CharsetTTableIs:
		err = s.SendSubnegotiation(Charset, []byte{CharsetTTableRejected})
	}
	return nil, false, err
}

func (s *Session) handleCharsetRequest(data []byte) (encoding.Encoding, bool, error) {
	const ttable = "[TTABLE]"
	if len(data) > len(ttable)+2 && bytes.HasPrefix(data, []byte(ttable)) {
		// TTABLE is not supported; skip its version byte and use the list
		data = data[len(ttable)+1:]
	}
	if len(data) > 1 {
		for _, name := range bytes.Split(data[1:], data[0:1]) {
			enc, err := LookupEncoding(string(name))
			if err != nil {
				continue
			}
			reply := append([]byte{CharsetAccepted}, name...)
			if err := s.SendSubnegotiation(Charset, reply); err != nil {
				return nil, false, err
			}
			s.SetEncoding(enc)
			return enc, true, nil
		}
	}
	return nil, false, s.SendSubnegotiation(Charset, []byte{CharsetRejected})
}
