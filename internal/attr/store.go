// internal/attr/store.go
package attr

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const rulePrefix = "attr:"

// Store persists attribute rules in badger. Rules keep the sequence
// number they were first added with, so precedence survives restarts.
type Store struct {
	db *badger.DB
}

type storedRule struct {
	Seq     uint64           `json:"seq"`
	Pattern string           `json:"pattern"`
	Attrs   map[string]Value `json:"attrs"`
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func ruleKey(pattern string) []byte {
	return []byte(fmt.Sprintf("%s%s", rulePrefix, pattern))
}

// Put stores attrs for pattern. An existing rule for the same pattern is
// replaced in place and keeps its position; a new pattern goes last.
func (s *Store) Put(pattern string, attrs map[string]Value) error {
	if pattern == "" {
		return fmt.Errorf("rule pattern cannot be empty")
	}
	// Compile up front so a bad pattern never reaches the database.
	probe := NewRuleSet()
	if err := probe.Add(pattern, attrs); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		rule := storedRule{Pattern: pattern, Attrs: attrs}

		item, err := txn.Get(ruleKey(pattern))
		switch {
		case err == nil:
			var existing storedRule
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); verr != nil {
				return fmt.Errorf("decoding existing rule: %w", verr)
			}
			rule.Seq = existing.Seq
		case err == badger.ErrKeyNotFound:
			max, merr := maxSeq(txn)
			if merr != nil {
				return merr
			}
			rule.Seq = max + 1
		default:
			return err
		}

		data, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("marshaling rule: %w", err)
		}
		return txn.Set(ruleKey(pattern), data)
	})
}

// Delete removes the rule for pattern.
func (s *Store) Delete(pattern string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(ruleKey(pattern))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("no rule for pattern: %s", pattern)
		}
		if err != nil {
			return err
		}
		return txn.Delete(ruleKey(pattern))
	})
}

// List returns all stored rules in precedence order.
func (s *Store) List() ([]Rule, error) {
	var stored []storedRule

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(rulePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var r storedRule
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				stored = append(stored, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing attribute rules: %w", err)
	}

	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })

	rules := make([]Rule, len(stored))
	for i, r := range stored {
		rules[i] = Rule{Pattern: r.Pattern, Attrs: r.Attrs}
	}
	return rules, nil
}

// Load builds a RuleSet from the stored rules.
func (s *Store) Load() (*RuleSet, error) {
	rules, err := s.List()
	if err != nil {
		return nil, err
	}

	rs := NewRuleSet()
	for _, r := range rules {
		if err := rs.Add(r.Pattern, r.Attrs); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func maxSeq(txn *badger.Txn) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(rulePrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var max uint64
	for it.Rewind(); it.Valid(); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			var r storedRule
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			if r.Seq > max {
				max = r.Seq
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return max, nil
}
