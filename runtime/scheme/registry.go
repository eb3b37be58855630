package scheme

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// KnownTypesRegistryInstance is the default registry most callers share.
var KnownTypesRegistryInstance = NewKnownTypesRegistry()

type KnownTypesRegistry interface {
	AddKnownTypes(g Group, types ...Object)
	AddKnownTypeWithName(gk GroupKind, obj Object)
	// NewObject returns a zero value of the type registered under gk
	NewObject(gk GroupKind) (Object, error)
	// ObjectKind resolves the GroupKind a type was registered under
	ObjectKind(object Object) (*GroupKind, error)
}

func NewKnownTypesRegistry() KnownTypesRegistry {
	return &knownTypesRegistry{gkToType: map[GroupKind]reflect.Type{}, typeToGK: map[reflect.Type]GroupKind{}}
}

type knownTypesRegistry struct {
	gkToType map[GroupKind]reflect.Type
	typeToGK map[reflect.Type]GroupKind
}

func (r *knownTypesRegistry) AddKnownTypes(g Group, types ...Object) {
	for _, obj := range types {
		structType := GetStructType(obj)
		r.addKnownTypeWithName(GroupKind{
			Group: g,
			Kind:  structType.Name(),
		}, obj, structType)
	}
}

func (r *knownTypesRegistry) AddKnownTypeWithName(gk GroupKind, obj Object) {
	r.addKnownTypeWithName(gk, obj, GetStructType(obj))
}

func (r *knownTypesRegistry) NewObject(gk GroupKind) (Object, error) {
	t, exists := r.gkToType[gk]

	if !exists {
		return nil, errors.Errorf("type %s is not registered in KnownTypes", gk.String())
	}

	return reflect.New(t).Interface().(Object), nil
}

func (r *knownTypesRegistry) ObjectKind(obj Object) (*GroupKind, error) {
	structType := GetStructType(obj)
	gk, ok := r.typeToGK[structType]
	if !ok {
		return nil, errors.Errorf("no kind is registered in schema for the type %s", structType.Name())
	}

	if gk.Empty() {
		return nil, errors.Errorf("empty GK returned")
	}

	return &gk, nil
}

func (r *knownTypesRegistry) addKnownTypeWithName(gk GroupKind, obj Object, structType reflect.Type) {
	if len(gk.Group) == 0 {
		panic(fmt.Sprintf("group is required on all types: %s %v", gk, structType))
	}

	if oldT, found := r.gkToType[gk]; found && oldT != structType {
		panic(fmt.Sprintf("double registration of different types for %v: old=%v.%v, new=%v.%v", gk, oldT.PkgPath(), oldT.Name(), structType.PkgPath(), structType.Name()))
	}

	r.gkToType[gk] = structType
	r.typeToGK[structType] = gk
	obj.SetGroupKind(&gk)
}

// GetStructType returns the underlying struct type of obj, panicking on anything
// that is not a struct or a pointer to one.
func GetStructType(obj Object) reflect.Type {
	structType := reflect.TypeOf(obj)

	if structType.Kind() != reflect.Ptr {
		structType = reflect.PtrTo(structType)
	}

	structType = structType.Elem()
	if structType.Kind() != reflect.Struct {
		panic("all types must be pointers to structs")
	}

	return structType
}
