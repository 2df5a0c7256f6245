package registry

// QueryEngine serves the read-only projections. No authorization applies.
type QueryEngine struct {
	store *IntentStore
}

func NewQueryEngine(store *IntentStore) QueryEngine {
	return QueryEngine{store: store}
}

// ListOpenIntents returns every unfulfilled intent in creation order. The
// result is unbounded.
func (q QueryEngine) ListOpenIntents() []PaymentIntent {
	return q.store.SnapshotOpen()
}

// GetIntent returns the first intent with id. A miss is a normal outcome.
func (q QueryEngine) GetIntent(id string) (PaymentIntent, bool) {
	return q.store.Get(id)
}
