package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/stevemurr/hawk/typedesc"
)

// JSON encodes values with encoding/json. Dynamic decoding, including into
// []any and map[string]any, keeps numbers as json.Number so integers survive
// without a detour through float64.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(data []byte, info typedesc.Descriptor, target any) error {
	if isDynamic(target) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		return assignDynamic(raw, info, target)
	}
	return json.Unmarshal(data, target)
}
