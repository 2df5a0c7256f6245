package registry

import "encoding/json"

// IntentStore is the ordered collection of intents. Order is insertion
// order. Lookups scan linearly and the first matching id wins, since ids
// are not required to be unique.
type IntentStore struct {
	intents []PaymentIntent
}

// Append adds intent to the end of the store.
func (s *IntentStore) Append(intent PaymentIntent) {
	s.intents = append(s.intents, intent.Clone())
}

// FindByID returns the index of the first intent with the given id.
func (s *IntentStore) FindByID(id string) (int, bool) {
	for i := range s.intents {
		if s.intents[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// TransitionToFulfilled marks the first intent with id as fulfilled. A miss
// leaves the store untouched; the boolean only reports whether anything
// changed.
func (s *IntentStore) TransitionToFulfilled(id, payoutTxHash string) bool {
	idx, ok := s.FindByID(id)
	if !ok {
		return false
	}
	hash := payoutTxHash
	s.intents[idx].Fulfilled = true
	s.intents[idx].PayoutTxHash = &hash
	return true
}

// SnapshotOpen returns copies of every unfulfilled intent in insertion order.
func (s *IntentStore) SnapshotOpen() []PaymentIntent {
	open := make([]PaymentIntent, 0, len(s.intents))
	for _, intent := range s.intents {
		if !intent.Fulfilled {
			open = append(open, intent.Clone())
		}
	}
	return open
}

// Get returns a copy of the first intent with id.
func (s *IntentStore) Get(id string) (PaymentIntent, bool) {
	idx, ok := s.FindByID(id)
	if !ok {
		return PaymentIntent{}, false
	}
	return s.intents[idx].Clone(), true
}

func (s *IntentStore) Len() int {
	return len(s.intents)
}

// All returns copies of every intent in insertion order.
func (s *IntentStore) All() []PaymentIntent {
	out := make([]PaymentIntent, 0, len(s.intents))
	for _, intent := range s.intents {
		out = append(out, intent.Clone())
	}
	return out
}

func (s *IntentStore) clone() IntentStore {
	return IntentStore{intents: s.All()}
}

func (s IntentStore) MarshalJSON() ([]byte, error) {
	if s.intents == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.intents)
}

func (s *IntentStore) UnmarshalJSON(data []byte) error {
	var intents []PaymentIntent
	if err := json.Unmarshal(data, &intents); err != nil {
		return err
	}
	s.intents = intents
	return nil
}
