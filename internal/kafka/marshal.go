package kafka

import "encoding/json"

// MustMarshal is for payloads built from our own types; a marshal failure
// there is a programming error.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
