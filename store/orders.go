package store

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
)

const (
	orderKeyPrefix   = "order:"
	sessionKeyPrefix = "session:"
	paymentKeyPrefix = "payment:"
)

// OrderStore owns the primary order records plus the session-id and
// payment-id secondary indexes. Both indexes hold the order id, never a
// copy of the record.
type OrderStore struct {
	db  Backends
	ttl time.Duration // retention for primary records on the durable backend
}

func NewOrderStore(db Backends, ttl time.Duration) *OrderStore {
	return &OrderStore{db: db, ttl: ttl}
}

// OrderUpdate is a partial order: nil fields are left untouched, Metadata
// entries are merged in (the bag is additive only).
type OrderUpdate struct {
	SessionID     *string
	PaymentID     *string
	Status        *string
	PaidAt        *time.Time
	CustomerEmail *string
	CustomerName  *string
	Metadata      map[string]string
}

// Create stores a fully formed order and its index entries. The id is
// generated when absent; calling Create twice with the same id overwrites.
//
// The primary record and the two index entries are three separate writes
// with no transaction around them: a crash in between can leave a dangling
// index, which lookups surface as "not found".
func (s *OrderStore) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = model.StatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	if s.db.Durable != nil {
		err := s.commit(ctx, s.db.Durable, order, true)
		if err == nil || err == ErrConflict {
			if err == nil {
				log.Printf("💾 Order saved: %s (%d item(s), %s)", order.ID, len(order.Items), order.CustomerEmail)
			}
			return order, err
		}
		log.Printf("⚠️ durable backend error on create, falling back to memory: %v", err)
	}

	if err := s.commit(ctx, s.db.Fallback, order, false); err != nil {
		return nil, err
	}
	log.Printf("💾 Order saved to memory: %s", order.ID)
	return order, nil
}

// commit writes the primary record first, then the indexes. withTTL applies
// the retention window; the fallback store keeps records for the process
// lifetime instead.
func (s *OrderStore) commit(ctx context.Context, st Store, order *model.Order, withTTL bool) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	if err := st.Set(ctx, orderKeyPrefix+order.ID, string(raw)); err != nil {
		return err
	}
	if order.SessionID != "" {
		if err := st.Set(ctx, sessionKeyPrefix+order.SessionID, order.ID); err != nil {
			return err
		}
	}
	if order.PaymentID != "" {
		if err := s.bindPaymentID(ctx, st, order.PaymentID, order.ID); err != nil {
			return err
		}
	}
	if withTTL && s.ttl > 0 {
		if err := st.Expire(ctx, orderKeyPrefix+order.ID, s.ttl); err != nil {
			return err
		}
	}
	return nil
}

// bindPaymentID writes the payment index entry, rejecting a payment id
// already owned by a different order.
func (s *OrderStore) bindPaymentID(ctx context.Context, st Store, paymentID, orderID string) error {
	owner, err := st.Get(ctx, paymentKeyPrefix+paymentID)
	if err == nil && owner != orderID {
		return ErrConflict
	}
	if err != nil && err != ErrNotFound {
		return err
	}
	return st.Set(ctx, paymentKeyPrefix+paymentID, orderID)
}

// FindByID returns the order, or nil when absent. A missing order is an
// expected outcome, not an error.
func (s *OrderStore) FindByID(ctx context.Context, id string) (*model.Order, error) {
	return s.load(ctx, orderKeyPrefix+id, false)
}

// FindBySessionID resolves the session index, then the primary record.
func (s *OrderStore) FindBySessionID(ctx context.Context, sessionID string) (*model.Order, error) {
	return s.load(ctx, sessionKeyPrefix+sessionID, true)
}

// FindByPaymentID resolves the payment index, then the primary record.
func (s *OrderStore) FindByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	return s.load(ctx, paymentKeyPrefix+paymentID, true)
}

func (s *OrderStore) load(ctx context.Context, key string, indexed bool) (*model.Order, error) {
	if s.db.Durable != nil {
		order, err := loadOrder(ctx, s.db.Durable, key, indexed)
		if err == nil {
			return order, nil
		}
		log.Printf("⚠️ durable backend error on lookup, falling back to memory: %v", err)
	}
	return loadOrder(ctx, s.db.Fallback, key, indexed)
}

func loadOrder(ctx context.Context, st Store, key string, indexed bool) (*model.Order, error) {
	if indexed {
		id, err := st.Get(ctx, key)
		if err == ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		key = orderKeyPrefix + id
	}

	raw, err := st.Get(ctx, key)
	if err == ErrNotFound {
		// Covers a dangling index entry whose primary record is gone.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order model.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Update merges the partial fields into the existing record and rewrites
// the indexes for any session or payment id present afterwards, so a record
// created with only a session id is promoted into the payment index once
// the gateway id is attached. Returns ErrNotFound when the order does not
// exist; callers must treat that as a hard failure, never create. Once a
// session or payment id is set it cannot be replaced with a different
// value; such updates return ErrConflict.
//
// Update is idempotent for identical payloads.
func (s *OrderStore) Update(ctx context.Context, id string, updates OrderUpdate) (*model.Order, error) {
	if s.db.Durable != nil {
		order, err := s.updateOn(ctx, s.db.Durable, id, updates, true)
		if err == nil || err == ErrNotFound || err == ErrConflict {
			return order, err
		}
		log.Printf("⚠️ durable backend error on update, falling back to memory: %v", err)
	}
	return s.updateOn(ctx, s.db.Fallback, id, updates, false)
}

func (s *OrderStore) updateOn(ctx context.Context, st Store, id string, updates OrderUpdate, withTTL bool) (*model.Order, error) {
	order, err := loadOrder(ctx, st, orderKeyPrefix+id, false)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}

	// Lookup keys are write-once: rebinding them would strand the old
	// index entry and let one order shadow another's payment.
	if updates.SessionID != nil && order.SessionID != "" && *updates.SessionID != order.SessionID {
		return nil, ErrConflict
	}
	if updates.PaymentID != nil && order.PaymentID != "" && *updates.PaymentID != order.PaymentID {
		return nil, ErrConflict
	}

	before := order.Status
	applyUpdate(order, updates)

	if err := s.commit(ctx, st, order, withTTL); err != nil {
		return nil, err
	}
	if before != order.Status {
		log.Printf("🟢 Order %s updated: %s → %s", order.ID, before, order.Status)
	}
	return order, nil
}

func applyUpdate(order *model.Order, updates OrderUpdate) {
	if updates.SessionID != nil {
		order.SessionID = *updates.SessionID
	}
	if updates.PaymentID != nil {
		order.PaymentID = *updates.PaymentID
	}
	if updates.Status != nil {
		order.Status = *updates.Status
	}
	if updates.PaidAt != nil {
		order.PaidAt = updates.PaidAt
	}
	if updates.CustomerEmail != nil {
		order.CustomerEmail = *updates.CustomerEmail
	}
	if updates.CustomerName != nil {
		order.CustomerName = *updates.CustomerName
	}
	if len(updates.Metadata) > 0 {
		if order.Metadata == nil {
			order.Metadata = make(map[string]string, len(updates.Metadata))
		}
		for k, v := range updates.Metadata {
			order.Metadata[k] = v
		}
	}
}

// FindByCustomerEmail returns the customer's orders, newest first. This is
// a scan over the primary records; order volumes per customer are small.
func (s *OrderStore) FindByCustomerEmail(ctx context.Context, email string) ([]model.Order, error) {
	orders, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	matched := orders[:0]
	for _, order := range orders {
		if strings.EqualFold(order.CustomerEmail, email) {
			matched = append(matched, order)
		}
	}
	return matched, nil
}

// All returns every order, newest first.
func (s *OrderStore) All(ctx context.Context) ([]model.Order, error) {
	return s.list(ctx)
}

func (s *OrderStore) list(ctx context.Context) ([]model.Order, error) {
	if s.db.Durable != nil {
		orders, err := listOrders(ctx, s.db.Durable)
		if err == nil {
			return orders, nil
		}
		log.Printf("⚠️ durable backend error on scan, falling back to memory: %v", err)
	}
	return listOrders(ctx, s.db.Fallback)
}

func listOrders(ctx context.Context, st Store) ([]model.Order, error) {
	keys, err := st.Keys(ctx, orderKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(keys))
	for _, key := range keys {
		// Skip secondary keys sharing the prefix, e.g. "order:<id>:number".
		if strings.Count(key, ":") > 1 {
			continue
		}
		raw, err := st.Get(ctx, key)
		if err != nil {
			continue
		}
		var order model.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			log.Printf("⚠️ skipping unparseable order record %s: %v", key, err)
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// HasPurchased reports whether the customer holds a fulfilled order
// containing the product.
func (s *OrderStore) HasPurchased(ctx context.Context, email string, productID int) (bool, error) {
	orders, err := s.FindByCustomerEmail(ctx, email)
	if err != nil {
		return false, err
	}
	for i := range orders {
		if orders[i].Fulfilled() && orders[i].HasProduct(productID) {
			return true, nil
		}
	}
	return false, nil
}
