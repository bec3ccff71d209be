package telnet

import "encoding/binary"

// ParseWindowSize decodes the payload of a NAWS sub-negotiation (RFC 1073).
func ParseWindowSize(data []byte) (cols, rows int, ok bool) {
	if len(data) != 4 {
		return 0, 0, false
	}
	cols = int(binary.BigEndian.Uint16(data[0:2]))
	rows = int(binary.BigEndian.Uint16(data[2:4]))
	return cols, rows, true
}
