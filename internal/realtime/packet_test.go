package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePacketVariants(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		typ       PacketType
		namespace string
		id        *uint64
		data      string
	}{
		{name: "connect with auth", raw: `0{"token":"abc"}`, typ: PacketConnect, namespace: "/", data: `{"token":"abc"}`},
		{name: "disconnect", raw: `1`, typ: PacketDisconnect, namespace: "/"},
		{name: "event with ack", raw: `212["task:get",{"taskId":"t1"}]`, typ: PacketEvent, namespace: "/", id: ptr(12), data: `["task:get",{"taskId":"t1"}]`},
		{name: "ack", raw: `37[{"success":true}]`, typ: PacketAck, namespace: "/", id: ptr(7), data: `[{"success":true}]`},
		{name: "namespaced event", raw: `2/admin,["ping"]`, typ: PacketEvent, namespace: "/admin", data: `["ping"]`},
		{name: "namespace only", raw: `0/admin`, typ: PacketConnect, namespace: "/admin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := DecodePacket(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, p.Type)
			assert.Equal(t, tc.namespace, p.Namespace)
			assert.Equal(t, tc.id, p.ID)
			assert.Equal(t, tc.data, string(p.Data))
		})
	}
}

func TestDecodePacketRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "9", `2["unterminated"`, `51-["bin",{"_placeholder":true,"num":0}]`} {
		_, err := DecodePacket(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestEncodePacketOmitsDefaultNamespace(t *testing.T) {
	id := uint64(3)
	assert.Equal(t, `23["tool:list",{}]`, EncodePacket(Packet{Type: PacketEvent, Namespace: "/", ID: &id, Data: json.RawMessage(`["tool:list",{}]`)}))
	assert.Equal(t, `0/admin,{"token":"k"}`, EncodePacket(Packet{Type: PacketConnect, Namespace: "/admin", Data: json.RawMessage(`{"token":"k"}`)}))
	assert.Equal(t, `1`, EncodePacket(Packet{Type: PacketDisconnect}))
}

func TestEventArgs(t *testing.T) {
	name, args, err := eventArgs(json.RawMessage(`["task_updated",{"id":"t1"},2]`))
	require.NoError(t, err)
	assert.Equal(t, "task_updated", name)
	require.Len(t, args, 2)
	assert.JSONEq(t, `{"id":"t1"}`, string(args[0]))

	_, _, err = eventArgs(json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("https://mcp.example.com/base/", "")
	require.NoError(t, err)
	assert.Equal(t, "wss://mcp.example.com/base/socket.io/?EIO=4&transport=websocket", got)

	_, err = websocketURL("ftp://example.com", "")
	assert.Error(t, err)
}

func ptr(v uint64) *uint64 { return &v }
