package strategy

import "encoding/json"

func decodePayload(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}
