package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage("order", []byte(`{"topic":"order"}`))

	assert.Equal(t, []byte("order"), msg.Key)
	assert.JSONEq(t, `{"topic":"order"}`, string(msg.Value))
	assert.Empty(t, msg.Topic)
	if assert.Len(t, msg.Headers, 2) {
		assert.Equal(t, "content-type", msg.Headers[0].Key)
		assert.Equal(t, "application/json", string(msg.Headers[0].Value))
	}
}
