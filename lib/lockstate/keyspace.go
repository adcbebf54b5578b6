package lockstate

import "strings"

// DefaultNamespace is the key prefix of all lock records if nothing else is configured.
const DefaultNamespace = "server_coordinator:"

// Keyspace maps resource ids to store keys and back.
// The key of a resource is the namespace followed by the resource id.
type Keyspace struct {
	namespace string
}

// NewKeyspace creates a key space for namespace. An empty namespace selects DefaultNamespace.
func NewKeyspace(namespace string) Keyspace {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Keyspace{namespace: namespace}
}

// Prefix returns the common prefix of all keys, used to enumerate lock records.
func (k Keyspace) Prefix() string {
	return k.namespace
}

// Key returns the store key of a resource.
func (k Keyspace) Key(resource string) string {
	return k.namespace + resource
}

// Resource returns the resource id of a store key. The boolean return value is false
// if the key does not belong to this key space.
func (k Keyspace) Resource(key string) (string, bool) {
	resource, found := strings.CutPrefix(key, k.namespace)
	if !found || resource == "" {
		return "", false
	}
	return resource, true
}

// HashTagged returns namespace with its name enclosed in a redis cluster hash tag, so all
// keys of the namespace hash to the same cluster slot. "server_coordinator:" becomes
// "{server_coordinator}:". A namespace that already contains a hash tag is returned unchanged.
func HashTagged(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if hasHashTag(namespace) {
		return namespace
	}
	name := strings.TrimRight(namespace, ":")
	if name == "" {
		return "{" + namespace + "}"
	}
	return "{" + name + "}" + namespace[len(name):]
}

// hasHashTag reports whether redis would hash only a part of key: the first "{" is
// followed by a "}" with at least one character in between.
func hasHashTag(key string) bool {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return false
	}
	end := strings.IndexByte(key[start+1:], '}')
	return end > 0
}
