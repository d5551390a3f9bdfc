package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flicky/telegram-shop-bot/internal/model"
	"github.com/flicky/telegram-shop-bot/internal/repository"
)

var ErrProductNotFound = errors.New("product not found")

const catalogCacheKey = "catalog:active"

// CatalogService reads products through a short-lived redis cache. Listings
// and product cards may lag admin edits by the TTL; FindActiveFresh does not.
type CatalogService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
	ttl         time.Duration
}

func NewCatalogService(productRepo repository.ProductRepository, redisClient *redis.Client, ttl time.Duration) *CatalogService {
	return &CatalogService{productRepo: productRepo, redisClient: redisClient, ttl: ttl}
}

func (s *CatalogService) ListActive(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if s.cacheGet(ctx, catalogCacheKey, &products) {
		return products, nil
	}

	products, err := s.productRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	s.cacheSet(ctx, catalogCacheKey, products)
	return products, nil
}

// FindActive returns ErrProductNotFound for missing and deactivated products.
func (s *CatalogService) FindActive(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// FindActiveFresh reads the product from the database, bypassing the cache,
// and refreshes the cached copy. Checkout and cart totals use it so prices
// and the active flag are current.
func (s *CatalogService) FindActiveFresh(ctx context.Context, id int64) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		s.cacheDel(ctx, productCacheKey(id))
		return nil, ErrProductNotFound
	}
	s.cacheSet(ctx, productCacheKey(id), product)
	if !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// Resolve looks a product up by id including deactivated ones, for
// displaying historical order items.
func (s *CatalogService) Resolve(ctx context.Context, id int64) (*model.Product, error) {
	cacheKey := productCacheKey(id)

	var cached model.Product
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	s.cacheSet(ctx, cacheKey, product)
	return product, nil
}

func productCacheKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

func (s *CatalogService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.redisClient == nil || s.ttl <= 0 {
		return false
	}
	cached, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(cached), dst) == nil
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, v any) {
	if s.redisClient == nil || s.ttl <= 0 {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		s.redisClient.Set(ctx, key, data, s.ttl)
	}
}

func (s *CatalogService) cacheDel(ctx context.Context, key string) {
	if s.redisClient == nil || s.ttl <= 0 {
		return
	}
	s.redisClient.Del(ctx, key)
}
