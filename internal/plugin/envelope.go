package plugin

import "encoding/json"

// callEnvelope is the byte-in contract every isolation backend feeds to a
// plugin process: which export to invoke, and its raw input bytes.
type callEnvelope struct {
	Export string          `json:"export"`
	Input  json.RawMessage `json:"input"`
}

func encodeCall(export string, input []byte) ([]byte, error) {
	if len(input) == 0 {
		input = []byte("{}")
	}
	return json.Marshal(callEnvelope{Export: export, Input: input})
}
