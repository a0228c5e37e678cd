package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaylabs/chatrelay/internal/server"
	"github.com/relaylabs/chatrelay/internal/testutil"
)

func TestClientTable_AddSendRemove(t *testing.T) {
	table := NewClientTable(testutil.TestLogger(t))

	c := &Client{
		connID: "c1",
		send:   make(chan *server.ServerEvent, 1),
		log:    testutil.TestLogger(t),
	}
	table.Add(c)
	assert.Equal(t, 1, table.Len())

	assert.True(t, table.Send("c1", &server.ServerEvent{}), "expected send to a known connection to succeed")
	assert.False(t, table.Send("c1", &server.ServerEvent{}), "expected send to report a full queue")
	assert.False(t, table.Send("missing", &server.ServerEvent{}), "expected send to an unknown connection to fail")

	table.Remove("c1")
	assert.Equal(t, 0, table.Len())
	assert.False(t, table.Send("c1", &server.ServerEvent{}), "expected send after removal to fail")
}

func TestClientTable_CloseUnknownIsNoOp(t *testing.T) {
	table := NewClientTable(testutil.TestLogger(t))
	table.Close("missing", "whatever")
}
