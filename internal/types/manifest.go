package types

// Dependency is one entry of a manifest's [dependencies] table.
type Dependency struct {
	Key string
	Git string
	Tag string
}

// RemoveOutcome reports what happened to one requested name.
type RemoveOutcome struct {
	Name    string
	Key     string
	Removed bool
	Err     error
	Warning string
}
