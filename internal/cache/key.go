package cache

import (
	"fmt"
	"strings"

	"github.com/lexdesk/tiercache/pkg/errors"
)

// Namespace classifies a cache key. Strategies dispatch on it instead of
// matching string prefixes.
type Namespace int

const (
	NamespaceGeneric Namespace = iota
	NamespaceSearch
	NamespaceMetadata
	NamespaceConfig
	NamespaceUser
	NamespaceComponent
)

var namespaceNames = map[Namespace]string{
	NamespaceGeneric:   "generic",
	NamespaceSearch:    "search",
	NamespaceMetadata:  "metadata",
	NamespaceConfig:    "config",
	NamespaceUser:      "user",
	NamespaceComponent: "component",
}

// String returns the namespace name used in rendered keys and configuration
func (n Namespace) String() string {
	if name, ok := namespaceNames[n]; ok {
		return name
	}
	return fmt.Sprintf("namespace(%d)", int(n))
}

// ParseNamespace resolves a namespace name (case-insensitive)
func ParseNamespace(name string) (Namespace, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ns, n := range namespaceNames {
		if n == name {
			return ns, true
		}
	}
	return NamespaceGeneric, false
}

// Key identifies a cache entry
type Key struct {
	Namespace Namespace
	ID        string
}

// NewKey creates a key in the given namespace
func NewKey(ns Namespace, id string) Key {
	return Key{Namespace: ns, ID: id}
}

// SearchKey creates a key for cached search results
func SearchKey(id string) Key { return NewKey(NamespaceSearch, id) }

// MetadataKey creates a key for document/procedure metadata
func MetadataKey(id string) Key { return NewKey(NamespaceMetadata, id) }

// ConfigKey creates a key for configuration records
func ConfigKey(id string) Key { return NewKey(NamespaceConfig, id) }

// UserKey creates a key for user-scoped data
func UserKey(id string) Key { return NewKey(NamespaceUser, id) }

// ComponentKey creates a key for loaded UI components
func ComponentKey(id string) Key { return NewKey(NamespaceComponent, id) }

// Valid reports whether the key can be cached
func (k Key) Valid() bool {
	_, known := namespaceNames[k.Namespace]
	return known && k.ID != ""
}

// String renders the key as "namespace:id". Generic keys render as the bare id.
func (k Key) String() string {
	if k.Namespace == NamespaceGeneric {
		return k.ID
	}
	return k.Namespace.String() + ":" + k.ID
}

// flightKey is unambiguous across namespaces, unlike String for generic ids
// that happen to contain a namespace prefix.
func (k Key) flightKey() string {
	return fmt.Sprintf("%d|%s", int(k.Namespace), k.ID)
}

// ParseKey parses the "namespace:id" form. Unknown prefixes yield a generic
// key holding the whole string.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, errors.NewError(errors.ErrCodeInvalidKey, "empty cache key").
			WithComponent("cache").WithOperation("parse_key")
	}

	if prefix, id, found := strings.Cut(s, ":"); found && id != "" {
		if ns, ok := ParseNamespace(prefix); ok && ns != NamespaceGeneric {
			return NewKey(ns, id), nil
		}
	}

	return NewKey(NamespaceGeneric, s), nil
}
