package area

// Entity is anything addressed by a 16-bit id inside one classification's
// namespace.
type Entity interface {
	Class() Classification
	EntityID() uint16
}

// Partitioned keeps one map per classification. It is not safe for
// concurrent use: mutation must finish, or be externally locked, before
// readers share it.
type Partitioned[T Entity] struct {
	urban map[uint16]T
	extra map[uint16]T
}

func NewPartitioned[T Entity]() *Partitioned[T] {
	return &Partitioned[T]{
		urban: make(map[uint16]T),
		extra: make(map[uint16]T),
	}
}

// Insert stores e under its own classification, replacing any entity with the
// same id.
func (p *Partitioned[T]) Insert(e T) {
	p.GetMut(e.Class())[e.EntityID()] = e
}

// Get returns the map for c. Callers must not modify it.
func (p *Partitioned[T]) Get(c Classification) map[uint16]T {
	return p.GetMut(c)
}

// GetMut returns the live map for c.
func (p *Partitioned[T]) GetMut(c Classification) map[uint16]T {
	switch c {
	case Urban:
		if p.urban == nil {
			p.urban = make(map[uint16]T)
		}
		return p.urban
	case ExtraUrban:
		if p.extra == nil {
			p.extra = make(map[uint16]T)
		}
		return p.extra
	default:
		panic("area: partitioned lookup on invalid classification " + c.String())
	}
}

// Lookup finds id in the c partition.
func (p *Partitioned[T]) Lookup(c Classification, id uint16) (T, bool) {
	v, ok := p.Get(c)[id]
	return v, ok
}

// Len counts entities across both partitions.
func (p *Partitioned[T]) Len() int {
	return len(p.urban) + len(p.extra)
}
