package request

import (
	"sync"
)

// proxyEntryKey identifies the codec triple shared by all proxy requests:
// two proxy registrations for one uuid are interchangeable.
const proxyEntryKey = uintptr(1)

// Catalog is a named group of uuid registrations, populated once at
// initialization from sample requests. Closing the catalog retires its
// registrations, the path taken when a dynamically loaded plugin goes away.
type Catalog struct {
	name string
	reg  *Registry

	mu     sync.Mutex
	uuids  []string
	closed bool
}

// NewCatalog creates an empty catalog registering into reg.
func NewCatalog(name string, reg *Registry) *Catalog {
	return &Catalog{name: name, reg: reg}
}

// Name returns the catalog name.
func (c *Catalog) Name() string {
	return c.name
}

// RegisterResolver registers the request class of a sample request so that
// serialized requests of that class can be deserialized and resolved. The
// sample's arguments are placeholders; only its uuid, properties and
// function binding matter.
func (c *Catalog) RegisterResolver(sample Request) error {
	var entry Entry
	uuid := sample.Uuid().Str()
	switch t := sample.(type) {
	case *Function:
		props := t.props
		fn := t.fn
		entry = Entry{
			Key: fnKey(fn),
			Save: func(_ *Registry, req Request) ([]byte, error) {
				return Serialize(req)
			},
			Load: func(reg *Registry, data []byte) (Request, error) {
				jr, err := decodeNode(data)
				if err != nil {
					return nil, err
				}
				args := make([]Request, len(jr.Args))
				for i, raw := range jr.Args {
					arg, err := deserializeArg(reg, raw)
					if err != nil {
						return nil, err
					}
					args[i] = arg
				}
				p := props
				p.Title = jr.Title
				p.Introspective = props.Introspective && jr.Title != ""
				// props already carry the finalized uuid
				return &Function{props: p, fn: fn, args: args}, nil
			},
		}
	case *Proxy:
		props := t.props
		entry = Entry{
			Key: proxyEntryKey,
			Save: func(_ *Registry, req Request) ([]byte, error) {
				return Serialize(req)
			},
			Load: func(_ *Registry, data []byte) (Request, error) {
				jr, err := decodeNode(data)
				if err != nil {
					return nil, err
				}
				p := props
				p.Title = jr.Title
				return &Proxy{props: p}, nil
			},
		}
	default:
		return &UuidError{Msg: "only function and proxy requests can be registered"}
	}
	if err := c.reg.Register(uuid, entry); err != nil {
		return err
	}
	c.mu.Lock()
	c.uuids = append(c.uuids, uuid)
	c.mu.Unlock()
	return nil
}

// MustRegisterResolver is RegisterResolver panicking on error, for use in
// startup wiring.
func (c *Catalog) MustRegisterResolver(sample Request) {
	if err := c.RegisterResolver(sample); err != nil {
		panic(err)
	}
}

// Uuids returns the uuids registered through this catalog.
func (c *Catalog) Uuids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.uuids))
	copy(out, c.uuids)
	return out
}

// Close removes this catalog's registrations from the registry.
// Idempotent.
func (c *Catalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, u := range c.uuids {
		c.reg.Unregister(u)
	}
	c.uuids = nil
	c.closed = true
}
