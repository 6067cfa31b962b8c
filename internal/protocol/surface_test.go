package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPromptWireFormat(t *testing.T) {
	req := DecisionRequest{
		RequestID:  "0b6f4c1e-3f3a-4f7e-9a51-5c1f0f0b2a11",
		DeviceName: "Pixel Buds",
		Passkey:    FormatPasskey(482931),
	}

	data, err := json.Marshal(NewPrompt(req))
	if err != nil {
		t.Fatalf("marshal prompt: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal prompt: %v", err)
	}
	want := map[string]any{
		"kind":        "prompt",
		"request_id":  req.RequestID,
		"device_name": "Pixel Buds",
		"passkey":     "482931",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("prompt wire fields mismatch (-want +got):\n%s", diff)
	}

	var decoded Prompt
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode prompt: %v", err)
	}
	if diff := cmp.Diff(req, decoded.DecisionRequest()); diff != "" {
		t.Errorf("decision request mismatch (-want +got):\n%s", diff)
	}
}

func TestAnswerWireFormat(t *testing.T) {
	data, err := json.Marshal(&Answer{Kind: MessageKindAnswer, RequestID: "req-7", Accept: false})
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal answer: %v", err)
	}
	want := map[string]any{"kind": "answer", "request_id": "req-7", "accept": false}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("answer wire fields mismatch (-want +got):\n%s", diff)
	}
}
