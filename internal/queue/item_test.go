package queue

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr error
	}{
		{"share", NewShareItem(ShareArgs{Address: "1Foo", Shares: 1}), nil},
		{"block", NewBlockItem(BlockArgs{HexHash: "abc"}), nil},
		{"agent", NewAgentItem(AgentArgs{Type: "status"}), nil},
		{"minute", NewMinuteItem(MinuteArgs{Minute: 60}), nil},
		{"unknown kind", Item{Kind: "bogus", Share: &ShareArgs{}}, ErrUnknownKind},
		{"empty kind", Item{}, ErrUnknownKind},
		{"missing payload", Item{Kind: KindAddBlock}, ErrMissingPayload},
		{"mismatched payload", Item{Kind: KindAddBlock, Share: &ShareArgs{}}, ErrMissingPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	item := NewAgentItem(AgentArgs{
		Address: "1Foo",
		Worker:  "rig1",
		Type:    "hashrate",
		Data:    json.RawMessage(`[1.5,2.5]`),
		Stamp:   1700000000,
	})

	data, err := Encode(item)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Kind != KindAgentSend || got.Agent == nil {
		t.Fatalf("Decode() = %+v", got)
	}
	if got.Agent.Worker != "rig1" || got.Agent.Stamp != 1700000000 {
		t.Errorf("Decode() agent = %+v", got.Agent)
	}

	var values []float64
	if err := json.Unmarshal(got.Agent.Data, &values); err != nil {
		t.Fatalf("agent data: %v", err)
	}
	if len(values) != 2 || values[1] != 2.5 {
		t.Errorf("agent data = %v", values)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Error("Decode() should fail on garbage")
	}
}
