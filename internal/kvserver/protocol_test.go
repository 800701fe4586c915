package kvserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseSerializeShapes(t *testing.T) {
	assert.Equal(t, "+OK done\r\n", OK("done").Serialize())
	assert.Equal(t, "+VALUE bar\r\n", OKWithValue("bar").Serialize())
	assert.Equal(t, "-ERR NOT_FOUND\r\n", NotFound().Serialize())
	assert.Equal(t, "-ERR boom\r\n", ErrorResponse("boom").Serialize())
}

func TestOKWithValuePrefersValueOverMessage(t *testing.T) {
	resp := OKWithValue("")
	assert.Equal(t, "+VALUE \r\n", resp.Serialize())
}
