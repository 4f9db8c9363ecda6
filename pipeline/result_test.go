package pipeline

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestResultMarshalFlattensData(t *testing.T) {
	result := Result{
		Success:   true,
		SessionID: "sess-1",
		Data: map[string]interface{}{
			"report": "digest text",
			"count":  3,
		},
	}

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["success"] != true {
		t.Errorf("success = %v, want true", decoded["success"])
	}
	if decoded["sessionId"] != "sess-1" {
		t.Errorf("sessionId = %v", decoded["sessionId"])
	}
	if decoded["report"] != "digest text" {
		t.Errorf("report = %v, want it at the top level", decoded["report"])
	}
	if _, ok := decoded["data"]; ok {
		t.Error("data key present, want flattened keys only")
	}
	if _, ok := decoded["reason"]; ok {
		t.Error("reason key present for a success")
	}
}

func TestResultMarshalEnvelopeWinsOverData(t *testing.T) {
	result := Result{
		Success: true,
		Data:    map[string]interface{}{"success": "overwritten"},
	}

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["success"] != true {
		t.Errorf("success = %v, want the envelope value", decoded["success"])
	}
}

func TestResultRoundTrip(t *testing.T) {
	in := Result{
		Success:   false,
		Reason:    "model returned invalid JSON",
		SessionID: "sess-4",
		Data: map[string]interface{}{
			"status": "awaiting_approval",
			"count":  float64(2),
		},
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
