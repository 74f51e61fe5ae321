package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypePing, map[string]string{"test": "data"})

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, MessageTypePing, msg.Type)
	assert.NotNil(t, msg.Data)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("boom")

	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "boom", msg.Error)
}

func TestFromJSONReadsFields(t *testing.T) {
	msg, err := FromJSON([]byte(`{"id":"m1","type":"subscribe","data":{"channel":"world"}}`))
	require.NoError(t, err)

	channel, ok := msg.stringField("channel")
	assert.True(t, ok)
	assert.Equal(t, "world", channel)

	_, ok = msg.stringField("user_id")
	assert.False(t, ok)

	r := reply(msg, MessageTypeSubscribe, SubscribeData{Channel: channel})
	assert.Equal(t, "m1", r.RequestID)
}

func TestFromJSONInvalid(t *testing.T) {
	_, err := FromJSON([]byte("{"))
	assert.Error(t, err)
}
