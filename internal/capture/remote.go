package capture

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// jsFunction marks a remote function; SafeSerialize renders it as a func.
var jsFunction = func() {}

// RemoteValue maps a Runtime.RemoteObject to the Go value it stands for, so
// it can be passed through SafeSerialize.
func RemoteValue(obj *proto.RuntimeRemoteObject) any {
	if obj == nil {
		return Undefined
	}
	switch obj.Type {
	case proto.RuntimeRemoteObjectTypeUndefined:
		return Undefined
	case proto.RuntimeRemoteObjectTypeFunction:
		return jsFunction
	case proto.RuntimeRemoteObjectTypeSymbol:
		return Symbol{Description: obj.Description}
	case proto.RuntimeRemoteObjectTypeBigint:
		digits := strings.TrimSuffix(string(obj.UnserializableValue), "n")
		if digits == "" {
			digits = strings.TrimSuffix(obj.Description, "n")
		}
		if n, ok := new(big.Int).SetString(digits, 10); ok {
			return n
		}
	}

	if !obj.Value.Nil() {
		data, err := json.Marshal(obj.Value)
		if err == nil {
			var v any
			if err := json.Unmarshal(data, &v); err == nil {
				return v
			}
		}
		return obj.Value.Val()
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if obj.Type == proto.RuntimeRemoteObjectTypeObject && obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil
	}
	if obj.Description != "" {
		return obj.Description
	}
	return obj
}
