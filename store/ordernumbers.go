package store

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	orderCountKeyFmt  = "customer:%s:orderCount"
	orderNumberPrefix = "orderNumber:"
	numberByIDKeyFmt  = "order:%s:number"
)

// Canonical format: <email>-<zero-padded sequence, at least 3 digits>.
// The availability fallback produces "<email>-T<millis>" instead, which this
// pattern deliberately rejects; fallback-mode orders are looked up by id.
var orderNumberPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+-\d{3,}$`)

// OrderNumberAllocator issues per-customer sequential display numbers and
// keeps the bidirectional number <-> order id mapping.
type OrderNumberAllocator struct {
	db Backends
}

func NewOrderNumberAllocator(db Backends) *OrderNumberAllocator {
	return &OrderNumberAllocator{db: db}
}

// Allocate increments the customer's counter with a single atomic INCR and
// formats the result. Two concurrent checkouts by the same customer can
// never draw the same number; sequences are monotonic and unique but not
// gap-free (a crash between Allocate and Link burns a number).
//
// When the increment cannot reach the backend the allocator degrades to a
// timestamp suffix: still unique, no longer sequential, and rejected by
// ValidOrderNumber so downstream can tell the two modes apart.
func (a *OrderNumberAllocator) Allocate(ctx context.Context, customerEmail string) (string, error) {
	st := a.db.Durable
	if st == nil {
		// A process-local counter would restart from 1 and reissue
		// numbers; only the durable counter is trusted to be unique.
		return a.fallbackNumber(customerEmail, nil), nil
	}

	counterKey := fmt.Sprintf(orderCountKeyFmt, customerEmail)
	count, err := st.Incr(ctx, counterKey)
	if err != nil {
		return a.fallbackNumber(customerEmail, err), nil
	}

	number := fmt.Sprintf("%s-%03d", customerEmail, count)
	log.Printf("🔢 Generated order number %s", number)
	return number, nil
}

func (a *OrderNumberAllocator) fallbackNumber(customerEmail string, cause error) string {
	number := fmt.Sprintf("%s-T%d", customerEmail, time.Now().UnixMilli())
	log.Printf("⚠️ order counter unavailable, using fallback number %s: %v", number, cause)
	return number
}

// Link stores both directions of the number <-> id mapping. Call it right
// after Allocate, before the number is shown to the customer.
func (a *OrderNumberAllocator) Link(ctx context.Context, orderNumber, orderID string) error {
	if s := a.db.Durable; s != nil {
		err := linkNumber(ctx, s, orderNumber, orderID)
		if err == nil {
			return nil
		}
		log.Printf("⚠️ durable backend error on link, falling back to memory: %v", err)
	}
	return linkNumber(ctx, a.db.Fallback, orderNumber, orderID)
}

func linkNumber(ctx context.Context, st Store, orderNumber, orderID string) error {
	if err := st.Set(ctx, orderNumberPrefix+orderNumber, orderID); err != nil {
		return err
	}
	return st.Set(ctx, fmt.Sprintf(numberByIDKeyFmt, orderID), orderNumber)
}

// Resolve maps an order number to the internal order id; empty on miss.
func (a *OrderNumberAllocator) Resolve(ctx context.Context, orderNumber string) (string, error) {
	return a.lookup(ctx, orderNumberPrefix+orderNumber)
}

// ResolveReverse maps an order id back to its display number; empty on miss.
func (a *OrderNumberAllocator) ResolveReverse(ctx context.Context, orderID string) (string, error) {
	return a.lookup(ctx, fmt.Sprintf(numberByIDKeyFmt, orderID))
}

func (a *OrderNumberAllocator) lookup(ctx context.Context, key string) (string, error) {
	if s := a.db.Durable; s != nil {
		val, err := s.Get(ctx, key)
		if err == nil {
			return val, nil
		}
		if err == ErrNotFound {
			return "", nil
		}
		log.Printf("⚠️ durable backend error on number lookup, falling back to memory: %v", err)
	}
	val, err := a.db.Fallback.Get(ctx, key)
	if err == ErrNotFound {
		return "", nil
	}
	return val, err
}

// CustomerOrderCount returns the current value of the customer's counter.
func (a *OrderNumberAllocator) CustomerOrderCount(ctx context.Context, customerEmail string) (int64, error) {
	raw, err := a.lookup(ctx, fmt.Sprintf(orderCountKeyFmt, customerEmail))
	if err != nil || raw == "" {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ValidOrderNumber reports whether the number matches the canonical
// <email>-<digits> format. Run it before Resolve to reject malformed input.
func ValidOrderNumber(orderNumber string) bool {
	return orderNumberPattern.MatchString(orderNumber)
}

// ExtractEmail returns the customer email embedded in a well-formed order
// number, or empty when the format does not hold.
func ExtractEmail(orderNumber string) string {
	if !ValidOrderNumber(orderNumber) {
		return ""
	}
	idx := strings.LastIndex(orderNumber, "-")
	if idx < 0 {
		return ""
	}
	return orderNumber[:idx]
}
