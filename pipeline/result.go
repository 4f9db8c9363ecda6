package pipeline

import "encoding/json"

// Result is the in-band outcome envelope of one run. Failures are
// reported inside the envelope; the HTTP layer returns 200 either way.
//
// Data keys are flattened into the top level of the JSON object, next
// to success, reason and sessionId, so a curation run marshals as
// `{"success":true,"sessionId":"...","articles":[...],"report":"..."}`.
// The envelope fields win over colliding Data keys.
type Result struct {
	Success   bool
	Reason    string
	SessionID string
	Data      map[string]interface{}
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Data)+3)
	for key, value := range r.Data {
		out[key] = value
	}
	out["success"] = r.Success
	if r.Reason != "" {
		out["reason"] = r.Reason
	}
	if r.SessionID != "" {
		out["sessionId"] = r.SessionID
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{}
	if v, ok := raw["success"]; ok {
		if err := json.Unmarshal(v, &r.Success); err != nil {
			return err
		}
		delete(raw, "success")
	}
	if v, ok := raw["reason"]; ok {
		if err := json.Unmarshal(v, &r.Reason); err != nil {
			return err
		}
		delete(raw, "reason")
	}
	if v, ok := raw["sessionId"]; ok {
		if err := json.Unmarshal(v, &r.SessionID); err != nil {
			return err
		}
		delete(raw, "sessionId")
	}
	if len(raw) == 0 {
		return nil
	}
	r.Data = make(map[string]interface{}, len(raw))
	for key, value := range raw {
		var decoded interface{}
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		r.Data[key] = decoded
	}
	return nil
}
