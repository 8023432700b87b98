package migration

// Key identifies a migration by app label and name. It is a value type with
// value equality, usable as a map key, and carries the ordering used for
// deterministic tie-breaks.
type Key struct {
	App  string `json:"app" yaml:"app"`
	Name string `json:"name" yaml:"name"`
}

// NewKey builds a Key.
func NewKey(app, name string) Key {
	return Key{App: app, Name: name}
}

// String returns the "app.name" form.
func (k Key) String() string {
	return k.App + "." + k.Name
}

// Less orders keys by app label, then name.
func (k Key) Less(other Key) bool {
	if k.App != other.App {
		return k.App < other.App
	}
	return k.Name < other.Name
}

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool {
	return k.App == "" && k.Name == ""
}
