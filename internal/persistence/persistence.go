package persistence

// Persistence bundles the two store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Machines   MachineStore
	Schematics SchematicStore
}

// FromStore returns a Persistence whose stores are both backed by s.
func FromStore(s Store) Persistence {
	return Persistence{Machines: s, Schematics: s}
}
