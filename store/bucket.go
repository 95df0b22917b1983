package store

// Bucket is a Store bound to a single collection. It is how components that
// own one namespace (such as key material) see the store.
type Bucket struct {
	store      Store
	collection string
}

// Scope returns a Bucket for collection on s.
func Scope(s Store, collection string) Bucket {
	return Bucket{store: s, collection: collection}
}

func (b Bucket) Collection() string { return b.collection }

func (b Bucket) Get(key string) (string, bool, error) {
	return b.store.Get(b.collection, key)
}

func (b Bucket) Put(key, value string) error {
	return b.store.Put(b.collection, key, value)
}

func (b Bucket) PutBatch(entries []Entry) error {
	return b.store.PutBatch(b.collection, entries)
}

func (b Bucket) Delete(key string) (bool, error) {
	return b.store.Delete(b.collection, key)
}

func (b Bucket) Contains(key string) (bool, error) {
	return b.store.Contains(b.collection, key)
}

func (b Bucket) Count() (int, error) {
	return b.store.Count(b.collection)
}

func (b Bucket) Clear() error {
	return b.store.Clear(b.collection)
}

func (b Bucket) Keys() ([]string, error) {
	return b.store.Keys(b.collection)
}
