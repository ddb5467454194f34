package sim

// EntityID identifies an entity within one Simulator. IDs start at 1.
type EntityID int

// NoEntity owns kernel-level callbacks that belong to no entity.
const NoEntity EntityID = 0

// Handler reacts to an event. A non-nil error aborts the run.
type Handler interface {
	OnEvent(s *Simulator, ev *Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s *Simulator, ev *Event) error

func (f HandlerFunc) OnEvent(s *Simulator, ev *Event) error { return f(s, ev) }

// Entity is an independent actor registered with a Simulator.
type Entity interface {
	Handler
	ID() EntityID
	Name() string
}

// BaseEntity carries the identity part of Entity and is meant to be embedded.
type BaseEntity struct {
	id   EntityID
	name string
}

// NewBaseEntity allocates the next ID from s.
func NewBaseEntity(s *Simulator, name string) BaseEntity {
	return BaseEntity{id: s.NextEntityID(), name: name}
}

func (b BaseEntity) ID() EntityID { return b.id }
func (b BaseEntity) Name() string { return b.name }
