package services

import (
	"context"
	"errors"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"go.uber.org/zap"
)

// CartSessionStore persists cart snapshots between requests.
type CartSessionStore interface {
	GetCart(ctx context.Context, buyerID string) (*models.CartSnapshot, error)
	SaveCart(ctx context.Context, snap *models.CartSnapshot) error
	DeleteCart(ctx context.Context, buyerID string) error
}

// CartService loads a buyer's session cart into a CartStore, applies one
// change and writes it back.
type CartService struct {
	sessions CartSessionStore
	products repository.ProductRepository
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartService(sessions CartSessionStore, products repository.ProductRepository, timeout time.Duration, logger *zap.Logger) *CartService {
	return &CartService{sessions: sessions, products: products, timeout: timeout, logger: logger}
}

// Load returns the buyer's cart; a buyer without a stored cart gets an empty one.
func (s *CartService) Load(ctx context.Context, buyerID string) (*CartStore, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.sessions.GetCart(pctx, buyerID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.String("buyer_id", buyerID), zap.Error(err))
		return nil, persistenceError("Failed to load cart", err)
	}
	if snap == nil {
		return NewCartStore(), nil
	}
	return NewCartStoreFrom(snap.Lines), nil
}

// Save writes store back, or deletes the session when the cart is empty.
func (s *CartService) Save(ctx context.Context, buyerID string, store *CartStore) error {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lines := store.Lines()
	var err error
	if len(lines) == 0 {
		err = s.sessions.DeleteCart(pctx, buyerID)
	} else {
		err = s.sessions.SaveCart(pctx, &models.CartSnapshot{BuyerID: buyerID, Lines: lines})
	}
	if err != nil {
		s.logger.Error("Failed to save cart", zap.String("buyer_id", buyerID), zap.Error(err))
		return persistenceError("Failed to save cart", err)
	}
	return nil
}

func (s *CartService) AddItem(ctx context.Context, buyerID, productID string, quantity int) (*CartStore, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	product, err := s.products.FindByID(pctx, productID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, persistenceError("Failed to load product", err)
	}
	if !product.InStock {
		return nil, ErrProductOutOfStock
	}

	return s.mutate(ctx, buyerID, func(c *CartStore) { c.AddItem(*product, quantity) })
}

func (s *CartService) UpdateQuantity(ctx context.Context, buyerID, productID string, quantity int) (*CartStore, error) {
	return s.mutate(ctx, buyerID, func(c *CartStore) { c.UpdateQuantity(productID, quantity) })
}

func (s *CartService) RemoveItem(ctx context.Context, buyerID, productID string) (*CartStore, error) {
	return s.mutate(ctx, buyerID, func(c *CartStore) { c.RemoveItem(productID) })
}

func (s *CartService) Clear(ctx context.Context, buyerID string) error {
	store := NewCartStore()
	return s.Save(ctx, buyerID, store)
}

func (s *CartService) mutate(ctx context.Context, buyerID string, apply func(*CartStore)) (*CartStore, error) {
	store, err := s.Load(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	before := store.Version()
	apply(store)
	if store.Version() == before {
		return store, nil
	}
	if err := s.Save(ctx, buyerID, store); err != nil {
		return nil, err
	}
	return store, nil
}
