package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelope(t *testing.T) {
	type draw struct {
		X     int    `json:"x"`
		Y     int    `json:"y"`
		Glyph string `json:"glyph"`
	}
	body, err := encodeEnvelope(header{ID: 3, Type: TypeRequest, Command: "draw"}, draw{1, 2, "@"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":3,"type":"request","command":"draw","x":1,"y":2,"glyph":"@"}`, string(body))

	body, err = encodeEnvelope(header{ID: 3, Type: TypeResponse, Result: "ok"}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":3,"type":"response","result":"ok"}`, string(body))

	_, err = encodeEnvelope(header{ID: 1, Type: TypeRequest}, []int{1, 2})
	require.ErrorIs(t, err, ErrNotObject)
}

func TestParseHeader(t *testing.T) {
	h, err := parseHeader([]byte(`{"id":9,"type":"request","command":"resize","rows":24}`))
	require.NoError(t, err)
	require.Equal(t, header{ID: 9, Type: TypeRequest, Command: "resize"}, h)

	h, err = parseHeader([]byte(`{"type":"response","result":"error","id":4}`))
	require.NoError(t, err)
	require.Equal(t, header{ID: 4, Type: TypeResponse, Result: "error"}, h)

	_, err = parseHeader([]byte(`{"type":"request"}`))
	require.Error(t, err)
	_, err = parseHeader([]byte(`{"id":"seven"}`))
	require.Error(t, err)
	_, err = parseHeader([]byte(`not json`))
	require.Error(t, err)
}
