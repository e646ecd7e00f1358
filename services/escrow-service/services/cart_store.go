package services

import (
	"sync"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
)

// CartStore is a buyer's in-memory cart. One control flow owns it; the mutex
// only makes reads from other goroutines safe.
type CartStore struct {
	mu      sync.RWMutex
	lines   []models.CartLine
	version uint64
}

func NewCartStore() *CartStore {
	return &CartStore{}
}

// NewCartStoreFrom seeds a store with previously persisted lines.
func NewCartStoreFrom(lines []models.CartLine) *CartStore {
	s := &CartStore{lines: make([]models.CartLine, len(lines))}
	copy(s.lines, lines)
	return s
}

// AddItem merges quantity into the line for product, or appends a new line.
// An existing line keeps its name and price. Quantity is not validated.
func (s *CartStore) AddItem(product models.Product, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].ProductID == product.ID {
			s.lines[i].Quantity += quantity
			s.version++
			return
		}
	}
	s.lines = append(s.lines, models.CartLine{
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.Price,
		Quantity:    quantity,
		ImageURL:    product.ImageURL,
	})
	s.version++
}

// UpdateQuantity sets the quantity of a line in place. n <= 0 removes it.
func (s *CartStore) UpdateQuantity(productID string, n int) {
	if n <= 0 {
		s.RemoveItem(productID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			if s.lines[i].Quantity != n {
				s.lines[i].Quantity = n
				s.version++
			}
			return
		}
	}
}

func (s *CartStore) RemoveItem(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			s.version++
			return
		}
	}
}

func (s *CartStore) TotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.LinesTotal(s.lines)
}

func (s *CartStore) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Lines returns a copy of the lines in insertion order.
func (s *CartStore) Lines() []models.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *CartStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return
	}
	s.lines = nil
	s.version++
}

// Version changes on every mutation that altered the cart.
func (s *CartStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
