package request

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func decode(t *testing.T, body string) (payload, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	var p payload
	err := DecodeJSON(httptest.NewRecorder(), req, &p)
	return p, err
}

func TestDecodeJSON(t *testing.T) {
	p, err := decode(t, `{"name":"soil"}`)
	require.NoError(t, err)
	assert.Equal(t, "soil", p.Name)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	_, err := decode(t, `{"name":"soil","extra":1}`)
	assert.Error(t, err)
}

func TestDecodeJSONRejectsTrailingContent(t *testing.T) {
	_, err := decode(t, `{"name":"soil"}{"name":"water"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single JSON value")
}
