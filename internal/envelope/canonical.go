package envelope

import "encoding/json"

// canonicalize produces a deterministic JSON representation: marshal v,
// then unmarshal into interface{} (decoding nested objects as
// map[string]interface{}) and re-marshal. Go's encoding/json sorts map
// keys alphabetically when marshaling, so the recursive round trip yields
// sorted keys at every nesting level without any bespoke key-sorting code.
func canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// canonicalizeExcluding canonicalizes v as a JSON object with the named
// top-level fields removed before hashing. Used for envelope_hash (excludes
// timestamp and envelope_hash itself); the rebanker diagnostic hash uses
// canonicalize directly.
func canonicalizeExcluding(v interface{}, exclude ...string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	for _, field := range exclude {
		delete(asMap, field)
	}
	return json.Marshal(asMap)
}
