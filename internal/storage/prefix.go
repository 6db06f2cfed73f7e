package storage

type prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix scopes every key of s under prefix. Watch is forwarded when s
// supports it.
func WithPrefix(s Store, prefix string) WatchableStore {
	return &prefixed{inner: s, prefix: prefix}
}

func (p *prefixed) Get(key string) ([]byte, error) {
	return p.inner.Get(p.prefix + key)
}

func (p *prefixed) Put(key string, value []byte) error {
	return p.inner.Put(p.prefix+key, value)
}

func (p *prefixed) Delete(key string) error {
	return p.inner.Delete(p.prefix + key)
}

func (p *prefixed) Watch(key string) (<-chan Event, func()) {
	if w, ok := p.inner.(Watcher); ok {
		return w.Watch(p.prefix + key)
	}
	// Never fires; callers fall back to polling.
	ch := make(chan Event)
	return ch, func() {}
}
