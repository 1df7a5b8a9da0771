package simulation

// Catalog exposes simulation lookup for handlers and the chat service.
type Catalog interface {
	List() []Simulation
	Lookup(id string) (Simulation, bool)
}

// MemoryCatalog implements Catalog over a fixed slice.
type MemoryCatalog struct {
	items []Simulation
}

// NewMemoryCatalog returns a MemoryCatalog preloaded with the supplied simulations.
func NewMemoryCatalog(items []Simulation) *MemoryCatalog {
	return &MemoryCatalog{items: append([]Simulation(nil), items...)}
}

// List returns the catalog in display order.
func (c *MemoryCatalog) List() []Simulation {
	return append([]Simulation(nil), c.items...)
}

// Lookup resolves an identifier. Unknown identifiers return (Unknown, false).
func (c *MemoryCatalog) Lookup(id string) (Simulation, bool) {
	for _, item := range c.items {
		if string(item.ID) == id {
			return item, true
		}
	}
	return Unknown, false
}
