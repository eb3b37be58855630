package endpoint

import (
	"reflect"

	"github.com/orderwise/orderwise/pubsub/message"
	"github.com/orderwise/orderwise/runtime/scheme"
)

// Router maps message types to the endpoints they publish through. One type
// may fan out to several endpoints. Registration happens at startup, Route is
// read-only after that, so no locking is needed.
type Router interface {
	RegisterEndpoint(endpoint Endpoint, objects ...message.Object)
	// Route returns the endpoints registered for the object's type, empty when
	// the type was never registered
	Route(obj message.Object) []Endpoint
}

func NewRouter() Router {
	return &router{routes: make(map[reflect.Type][]Endpoint)}
}

type router struct {
	routes map[reflect.Type][]Endpoint
}

func (r *router) RegisterEndpoint(endpoint Endpoint, objects ...message.Object) {
	for _, obj := range objects {
		structType := scheme.GetStructType(obj)
		r.routes[structType] = append(r.routes[structType], endpoint)
	}
}

func (r *router) Route(obj message.Object) []Endpoint {
	return r.routes[scheme.GetStructType(obj)]
}
