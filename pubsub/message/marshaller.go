package message

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/runtime/scheme"
)

type DecoderErr struct {
	error
}

func WithDecoderErr(err error) error {
	return DecoderErr{err}
}

type Marshaller interface {
	Marshal(obj Object) ([]byte, error)
	Unmarshal(b []byte) (Object, error)
}

func NewJsonMarshaller(knownTypes scheme.KnownTypesRegistry) Marshaller {
	return &jsonMarshaller{knownTypes: knownTypes}
}

type jsonMarshaller struct {
	knownTypes scheme.KnownTypesRegistry
}

func (j jsonMarshaller) Marshal(obj Object) ([]byte, error) {
	if obj.GroupKind().Empty() {
		gk, err := j.knownTypes.ObjectKind(obj)

		if err != nil {
			return nil, errors.Wrap(err, "resolving object kind before marshalling")
		}

		obj.SetGroupKind(gk)
	}

	return json.Marshal(obj)
}

// Unmarshal decodes raw payload bytes into the concrete registered type. The
// wire format carries group and kind inline, so first the envelope is parsed
// into a generic map, then the target type is allocated from the scheme and
// filled via mapstructure.
func (j jsonMarshaller) Unmarshal(b []byte) (Object, error) {
	unstructured := make(map[string]interface{})

	if err := json.Unmarshal(b, &unstructured); err != nil {
		return nil, WithDecoderErr(err)
	}

	gk := scheme.GroupKind{}

	if groupVal, ok := unstructured["group"].(string); ok {
		gk.Group = scheme.Group(groupVal)
	}

	if kindVal, ok := unstructured["kind"].(string); ok {
		gk.Kind = kindVal
	}

	if gk.Empty() {
		return nil, WithDecoderErr(errors.New("payload carries no group or kind, can't decode it"))
	}

	obj, err := j.knownTypes.NewObject(gk)

	if err != nil {
		return nil, WithDecoderErr(errors.Wrapf(err, "decoding payload of kind %s", gk))
	}

	decoderConf := mapstructure.DecoderConfig{
		Squash:  true,
		TagName: "json",
		Result:  obj,
	}

	decoder, err := mapstructure.NewDecoder(&decoderConf)

	if err != nil {
		return nil, WithDecoderErr(errors.WithStack(err))
	}

	if err := decoder.Decode(unstructured); err != nil {
		return nil, WithDecoderErr(errors.Wrapf(err, "decoding payload into %s", gk))
	}

	msgObj, ok := obj.(Object)

	if !ok {
		return nil, WithDecoderErr(errors.Errorf("type %s does not embed ObjectMeta", gk))
	}

	return msgObj, nil
}
