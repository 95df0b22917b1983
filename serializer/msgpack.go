package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/stevemurr/hawk/typedesc"
)

// Msgpack encodes values as MessagePack, which is more compact than JSON and
// keeps byte slices binary.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Deserialize(data []byte, info typedesc.Descriptor, target any) error {
	if isDynamic(target) {
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		// Sets of non-string members are written as maps with typed keys.
		dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
			return d.DecodeUntypedMap()
		})
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		return assignDynamic(raw, info, target)
	}
	return msgpack.Unmarshal(data, target)
}
