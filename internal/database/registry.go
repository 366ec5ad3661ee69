package database

import (
	"sort"
	"sync"
)

var (
	postgresAliases = []string{
		"psql",
		"postgres",
		"postgresql",
		"django.db.backends.postgresql_psycopg2",
		"django.db.backends.postgresql",
	}
	mysqlAliases = []string{
		"mysql",
		"django.db.backends.mysql",
	}
	sqliteAliases = []string{
		"sqlite3",
		"sqlite",
		"django.db.backends.sqlite3",
	}
)

// Registry maps engine names to driver factories. The first factory
// registered under an alias keeps it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry seeded with the built in drivers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// RegisterDefaults adds the Postgres, MySQL and SQLite drivers. Aliases
// already claimed are left alone, so registering a fake first overrides a
// default.
func RegisterDefaults(r *Registry) {
	r.Register(NewPostgres, postgresAliases...)
	r.Register(NewMySQL, mysqlAliases...)
	r.Register(NewSQLite, sqliteAliases...)
}

func (r *Registry) Register(f Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, alias := range aliases {
		if _, ok := r.factories[alias]; ok {
			continue
		}
		r.factories[alias] = f
	}
}

func (r *Registry) Resolve(engine string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[engine]
	if !ok {
		return nil, &NoDBDriverError{Engine: engine}
	}
	return f, nil
}

// Driver resolves info.Engine and binds the driver to info.
func (r *Registry) Driver(info Info, run Runner) (Driver, error) {
	f, err := r.Resolve(info.Engine)
	if err != nil {
		return nil, err
	}
	return f(info, run), nil
}

// Engines lists every registered alias.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for alias := range r.factories {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
