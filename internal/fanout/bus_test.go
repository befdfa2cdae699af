package fanout

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		channel  string
		expected string
	}{
		{ChannelMessages, "chat.fanout.messages"},
		{ChannelTyping, "chat.fanout.typing"},
		{ChannelStatus, "chat.fanout.status"},
		{ChannelUserEvents, "chat.fanout.user_events"},
	}

	for _, tt := range tests {
		if got := SubjectFor(tt.channel); got != tt.expected {
			t.Errorf("SubjectFor(%s): expected %s, got %s", tt.channel, tt.expected, got)
		}
	}
}

func TestChannelsFixed(t *testing.T) {
	// channel 集合是固定的，消费方启动时全量订阅
	if len(Channels) != 4 {
		t.Fatalf("Expected 4 channels, got %d", len(Channels))
	}
}

func TestDispatch(t *testing.T) {
	bus := &Bus{nodeID: "node-1", logger: slog.Default()}

	var got *Envelope
	bus.OnEnvelope(func(env *Envelope) {
		got = env
	})

	env := Envelope{
		Channel:   ChannelMessages,
		Room:      "c1",
		Event:     "message:new",
		Payload:   json.RawMessage(`{"id":42}`),
		Origin:    "node-2",
		Timestamp: 1700000000000,
	}
	data, err := json.Marshal(&env)
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	bus.dispatch(data)

	if got == nil {
		t.Fatal("Handler was not invoked")
	}
	if got.Channel != ChannelMessages || got.Room != "c1" || got.Event != "message:new" {
		t.Errorf("Envelope fields mismatch: %+v", got)
	}
	if got.Origin != "node-2" {
		t.Errorf("Expected origin node-2, got %s", got.Origin)
	}
	if string(got.Payload) != `{"id":42}` {
		t.Errorf("Payload mismatch: %s", got.Payload)
	}
}

func TestDispatch_MalformedEnvelope(t *testing.T) {
	bus := &Bus{nodeID: "node-1", logger: slog.Default()}

	invoked := false
	bus.OnEnvelope(func(env *Envelope) {
		invoked = true
	})

	bus.dispatch([]byte("not json"))

	if invoked {
		t.Error("Handler should not be invoked for malformed envelopes")
	}
}
