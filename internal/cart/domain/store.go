package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxItemQuantity = 1000

// Store owns one session's cart. It loads on Open, saves after every
// mutation and deletes on Clear.
type Store struct {
	kv   KV
	now  func() time.Time
	cart Cart
}

func Key(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func Open(ctx context.Context, kv KV, sessionID string, now func() time.Time) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > 128 {
		return nil, ErrInvalidSession
	}
	if now == nil {
		now = time.Now
	}

	s := &Store{kv: kv, now: now, cart: Cart{SessionID: sessionID, Items: []Item{}}}
	raw, err := kv.Get(ctx, Key(sessionID))
	if errors.Is(err, ErrMiss) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var loaded Cart
	if err := json.Unmarshal(raw, &loaded); err != nil {
		// A corrupt entry is treated as an empty cart.
		return s, nil
	}
	loaded.SessionID = sessionID
	if loaded.Items == nil {
		loaded.Items = []Item{}
	}
	s.cart = loaded
	return s, nil
}

func (s *Store) Cart() Cart {
	items := make([]Item, len(s.cart.Items))
	copy(items, s.cart.Items)
	out := s.cart
	out.Items = items
	return out
}

func (s *Store) Add(ctx context.Context, offeringID int64, quantity int) error {
	if offeringID <= 0 {
		return ErrInvalidOffering
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range s.cart.Items {
		if s.cart.Items[i].OfferingID == offeringID {
			next := s.cart.Items[i].Quantity + quantity
			if next > maxItemQuantity {
				return ErrInvalidQuantity
			}
			s.cart.Items[i].Quantity = next
			return s.save(ctx)
		}
	}
	if quantity > maxItemQuantity {
		return ErrInvalidQuantity
	}
	s.cart.Items = append(s.cart.Items, Item{OfferingID: offeringID, Quantity: quantity})
	return s.save(ctx)
}

func (s *Store) SetQuantity(ctx context.Context, offeringID int64, quantity int) error {
	if offeringID <= 0 {
		return ErrInvalidOffering
	}
	if quantity < 1 || quantity > maxItemQuantity {
		return ErrInvalidQuantity
	}
	for i := range s.cart.Items {
		if s.cart.Items[i].OfferingID == offeringID {
			s.cart.Items[i].Quantity = quantity
			return s.save(ctx)
		}
	}
	s.cart.Items = append(s.cart.Items, Item{OfferingID: offeringID, Quantity: quantity})
	return s.save(ctx)
}

func (s *Store) Remove(ctx context.Context, offeringID int64) error {
	kept := s.cart.Items[:0]
	for _, item := range s.cart.Items {
		if item.OfferingID != offeringID {
			kept = append(kept, item)
		}
	}
	s.cart.Items = kept
	return s.save(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	s.cart.Items = []Item{}
	s.cart.UpdatedAt = time.Time{}
	return s.kv.Delete(ctx, Key(s.cart.SessionID))
}

// Subtotal sums display prices for known offerings. Unknown ids contribute nothing.
func (s *Store) Subtotal(prices map[int64]int64) int64 {
	var total int64
	for _, item := range s.cart.Items {
		total += prices[item.OfferingID] * int64(item.Quantity)
	}
	return total
}

func (s *Store) save(ctx context.Context) error {
	s.cart.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(s.cart)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, Key(s.cart.SessionID), raw)
}
