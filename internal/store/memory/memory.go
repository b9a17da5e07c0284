// Package memory is an in-process implementation of the store repositories.
// It offers the same conditional stock update as Postgres. By default it has
// no multi-document transactions, so the coordinator runs it in degraded
// mode. WithTransactions adds serialized snapshot transactions.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"

	"github.com/shopspring/decimal"
)

type Store struct {
	// txMu serializes transactions when they are enabled
	txMu          sync.Mutex
	transactional bool

	mu             sync.RWMutex
	products       map[string]*models.Product
	orders         map[string]*models.Order
	purchaseOrders map[string]*models.PurchaseOrder
	movements      []models.StockMovement
	sequences      map[string]int64
	suppliers      map[string]*models.Supplier
}

type Option func(*Store)

// WithTransactions makes Begin open a transaction. Transactions run one at a
// time and Rollback restores the state seen by Begin. Reads outside a
// transaction may observe uncommitted writes.
func WithTransactions() Option {
	return func(s *Store) { s.transactional = true }
}

// New creates an empty in-memory store
func New(opts ...Option) *Store {
	s := &Store{
		products:       make(map[string]*models.Product),
		orders:         make(map[string]*models.Order),
		purchaseOrders: make(map[string]*models.PurchaseOrder),
		sequences:      make(map[string]int64),
		suppliers:      make(map[string]*models.Supplier),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repositories returns the store itself; every repository shares the mutex
func (s *Store) Repositories() store.Repositories {
	return s
}

// Begin opens a transaction, or fails with TransactionsUnsupported when
// the store was created without WithTransactions.
func (s *Store) Begin(ctx context.Context) (store.Scope, error) {
	if !s.transactional {
		return nil, apperr.Wrap(apperr.KindTransactionsUnsupported, nil, "memory store does not support transactions")
	}

	s.txMu.Lock()
	if err := ctx.Err(); err != nil {
		s.txMu.Unlock()
		return nil, err
	}
	return &scope{s: s, snap: s.snapshot()}, nil
}

// SupportsTransactions reports whether the store was created WithTransactions
func (s *Store) SupportsTransactions(ctx context.Context) (bool, error) {
	return s.transactional, nil
}

type state struct {
	products       map[string]*models.Product
	orders         map[string]*models.Order
	purchaseOrders map[string]*models.PurchaseOrder
	movements      []models.StockMovement
	sequences      map[string]int64
	suppliers      map[string]*models.Supplier
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &state{
		products:       make(map[string]*models.Product, len(s.products)),
		orders:         make(map[string]*models.Order, len(s.orders)),
		purchaseOrders: make(map[string]*models.PurchaseOrder, len(s.purchaseOrders)),
		movements:      append([]models.StockMovement(nil), s.movements...),
		sequences:      make(map[string]int64, len(s.sequences)),
		suppliers:      make(map[string]*models.Supplier, len(s.suppliers)),
	}
	for id, p := range s.products {
		snap.products[id] = cloneProduct(p)
	}
	for id, o := range s.orders {
		snap.orders[id] = cloneOrder(o)
	}
	for id, po := range s.purchaseOrders {
		snap.purchaseOrders[id] = clonePurchaseOrder(po)
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	for id, sup := range s.suppliers {
		snap.suppliers[id] = cloneSupplier(sup)
	}
	return snap
}

func (s *Store) restore(snap *state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products = snap.products
	s.orders = snap.orders
	s.purchaseOrders = snap.purchaseOrders
	s.movements = snap.movements
	s.sequences = snap.sequences
	s.suppliers = snap.suppliers
}

type scope struct {
	s    *Store
	snap *state
	done bool
}

func (sc *scope) Repositories() store.Repositories {
	return sc.s
}

func (sc *scope) Commit() error {
	if sc.done {
		return nil
	}
	sc.done = true
	sc.s.txMu.Unlock()
	return nil
}

// Rollback after Commit is a no-op
func (sc *scope) Rollback() error {
	if sc.done {
		return nil
	}
	sc.done = true
	sc.s.restore(sc.snap)
	sc.s.txMu.Unlock()
	return nil
}

func (s *Store) Ledger() store.Ledger                          { return ledger{s} }
func (s *Store) Products() store.ProductRepository             { return productRepo{s} }
func (s *Store) Orders() store.OrderRepository                 { return orderRepo{s} }
func (s *Store) PurchaseOrders() store.PurchaseOrderRepository { return purchaseOrderRepo{s} }
func (s *Store) Movements() store.MovementRepository           { return movementRepo{s} }
func (s *Store) Sequences() store.SequenceRepository           { return sequenceRepo{s} }
func (s *Store) Suppliers() store.SupplierRepository           { return supplierRepo{s} }

// Stock returns the current stock of a variant, for inspection
func (s *Store) Stock(productID, sku string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, false
	}
	v := p.FindVariant(sku)
	if v == nil {
		return 0, false
	}
	return v.Stock, true
}

type ledger struct{ s *Store }

func (l ledger) Reserve(ctx context.Context, tenantID, productID, sku string, quantity int) (*models.StockLevel, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	p, v := l.s.variant(tenantID, productID, sku)
	if v == nil || v.Stock < quantity {
		return nil, apperr.InsufficientStock("insufficient stock for %s", sku)
	}
	v.Stock -= quantity
	return stockLevel(p, v), nil
}

func (l ledger) Release(ctx context.Context, tenantID, productID, sku string, quantity int) (*models.StockLevel, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	p, v := l.s.variant(tenantID, productID, sku)
	if v == nil {
		return nil, apperr.NotFound("product %s variant %s not found", productID, sku)
	}
	v.Stock += quantity
	return stockLevel(p, v), nil
}

// variant must be called with the lock held
func (s *Store) variant(tenantID, productID, sku string) (*models.Product, *models.Variant) {
	p, ok := s.products[productID]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	return p, p.FindVariant(sku)
}

func stockLevel(p *models.Product, v *models.Variant) *models.StockLevel {
	return &models.StockLevel{
		ProductID:         p.ID,
		ProductName:       p.Name,
		SKU:               v.SKU,
		Stock:             v.Stock,
		LowStockThreshold: p.LowStockThreshold,
	}
}

type productRepo struct{ s *Store }

func (r productRepo) Create(ctx context.Context, product *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.products[product.ID]; exists {
		return apperr.Validation("product %s already exists", product.ID)
	}
	for i := range product.Variants {
		product.Variants[i].ProductID = product.ID
	}
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r productRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, apperr.NotFound("product not found: %s", id)
	}
	return cloneProduct(p), nil
}

func (r productRepo) List(ctx context.Context, tenantID, category string, page models.Page) ([]models.Product, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []models.Product
	for _, p := range r.s.products {
		if p.TenantID != tenantID || (category != "" && p.Category != category) {
			continue
		}
		matched = append(matched, *cloneProduct(p))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, page), len(matched), nil
}

func (r productRepo) ListAll(ctx context.Context, tenantID string) ([]models.Product, error) {
	products, _, err := r.List(ctx, tenantID, "", models.Page{})
	return products, err
}

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.orders {
		if existing.TenantID == order.TenantID && existing.OrderNumber == order.OrderNumber {
			return apperr.Wrap(apperr.KindTransientConflict, nil, "duplicate order number %s", order.OrderNumber)
		}
	}
	if order.Version == 0 {
		order.Version = 1
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, apperr.NotFound("order not found: %s", id)
	}
	return cloneOrder(o), nil
}

func (r orderRepo) Update(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.orders[order.ID]
	if !ok || current.TenantID != order.TenantID {
		return apperr.NotFound("order not found: %s", order.ID)
	}
	if current.Version != order.Version {
		return apperr.Wrap(apperr.KindTransientConflict, nil, "order %s was modified concurrently", order.ID)
	}
	order.Version++
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) List(ctx context.Context, tenantID, status string, page models.Page) ([]models.Order, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []models.Order
	for _, o := range r.s.orders {
		if o.TenantID != tenantID || (status != "" && o.Status != status) {
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OrderNumber > matched[j].OrderNumber
	})
	return paginate(matched, page), len(matched), nil
}

func (r orderRepo) TopSellers(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.TopSeller, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byProduct := make(map[string]*models.TopSeller)
	for _, o := range r.s.orders {
		if o.TenantID != tenantID || o.CreatedAt.Before(since) {
			continue
		}
		if o.Status != models.OrderStatusConfirmed && o.Status != models.OrderStatusFulfilled {
			continue
		}
		for _, item := range o.Items {
			p, ok := r.s.products[item.ProductID]
			if !ok || p.TenantID != tenantID {
				continue
			}
			seller, ok := byProduct[item.ProductID]
			if !ok {
				seller = &models.TopSeller{ProductID: p.ID, ProductName: p.Name}
				byProduct[item.ProductID] = seller
			}
			seller.TotalQuantity += item.Quantity
			seller.TotalRevenue = seller.TotalRevenue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	sellers := make([]models.TopSeller, 0, len(byProduct))
	for _, seller := range byProduct {
		sellers = append(sellers, *seller)
	}
	sort.Slice(sellers, func(i, j int) bool {
		if sellers[i].TotalQuantity != sellers[j].TotalQuantity {
			return sellers[i].TotalQuantity > sellers[j].TotalQuantity
		}
		return sellers[i].ProductID < sellers[j].ProductID
	})
	if limit > 0 && len(sellers) > limit {
		sellers = sellers[:limit]
	}
	return sellers, nil
}

type purchaseOrderRepo struct{ s *Store }

func (r purchaseOrderRepo) Create(ctx context.Context, po *models.PurchaseOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.purchaseOrders {
		if existing.TenantID == po.TenantID && existing.PONumber == po.PONumber {
			return apperr.Wrap(apperr.KindTransientConflict, nil, "duplicate purchase order number %s", po.PONumber)
		}
	}
	if po.Version == 0 {
		po.Version = 1
	}
	for i := range po.Items {
		po.Items[i].PurchaseOrderID = po.ID
		po.Items[i].Position = i
	}
	r.s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	return nil
}

func (r purchaseOrderRepo) GetByID(ctx context.Context, tenantID, id string) (*models.PurchaseOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	po, ok := r.s.purchaseOrders[id]
	if !ok || po.TenantID != tenantID {
		return nil, apperr.NotFound("purchase order not found: %s", id)
	}
	return clonePurchaseOrder(po), nil
}

func (r purchaseOrderRepo) Update(ctx context.Context, po *models.PurchaseOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.purchaseOrders[po.ID]
	if !ok || current.TenantID != po.TenantID {
		return apperr.NotFound("purchase order not found: %s", po.ID)
	}
	if current.Version != po.Version {
		return apperr.Wrap(apperr.KindTransientConflict, nil, "purchase order %s was modified concurrently", po.ID)
	}
	po.Version++
	r.s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	return nil
}

func (r purchaseOrderRepo) List(ctx context.Context, tenantID, status string, page models.Page) ([]models.PurchaseOrder, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []models.PurchaseOrder
	for _, po := range r.s.purchaseOrders {
		if po.TenantID != tenantID || (status != "" && po.Status != status) {
			continue
		}
		matched = append(matched, *clonePurchaseOrder(po))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PONumber > matched[j].PONumber
	})
	return paginate(matched, page), len(matched), nil
}

func (r purchaseOrderRepo) PendingQuantities(ctx context.Context, tenantID string) (map[models.VariantKey]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	pending := make(map[models.VariantKey]int)
	for _, po := range r.s.purchaseOrders {
		if po.TenantID != tenantID {
			continue
		}
		if po.Status != models.POStatusSent && po.Status != models.POStatusConfirmed {
			continue
		}
		for _, item := range po.Items {
			if remaining := item.Remaining(); remaining > 0 {
				pending[models.VariantKey{ProductID: item.ProductID, SKU: item.VariantSKU}] += remaining
			}
		}
	}
	return pending, nil
}

func (r purchaseOrderRepo) CountOpen(ctx context.Context, tenantID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, po := range r.s.purchaseOrders {
		if po.TenantID == tenantID && (po.Status == models.POStatusSent || po.Status == models.POStatusConfirmed) {
			n++
		}
	}
	return n, nil
}

type movementRepo struct{ s *Store }

func (r movementRepo) Create(ctx context.Context, m *models.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.movements = append(r.s.movements, *m)
	return nil
}

func (r movementRepo) List(ctx context.Context, tenantID, movementType string, page models.Page) ([]models.StockMovement, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []models.StockMovement
	for i := len(r.s.movements) - 1; i >= 0; i-- {
		m := r.s.movements[i]
		if m.TenantID != tenantID || (movementType != "" && m.Type != movementType) {
			continue
		}
		matched = append(matched, m)
	}
	return paginate(matched, page), len(matched), nil
}

func (r movementRepo) ListByProduct(ctx context.Context, tenantID, productID string) ([]models.StockMovement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []models.StockMovement
	for i := len(r.s.movements) - 1; i >= 0; i-- {
		m := r.s.movements[i]
		if m.TenantID == tenantID && m.ProductID == productID {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

func (r movementRepo) DailyTotals(ctx context.Context, tenantID string, since time.Time) ([]models.MovementDay, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byDay := make(map[string]*models.MovementDay)
	for _, m := range r.s.movements {
		if m.TenantID != tenantID || m.CreatedAt.Before(since) {
			continue
		}
		key := m.CreatedAt.UTC().Format("2006-01-02")
		day, ok := byDay[key]
		if !ok {
			day = &models.MovementDay{Date: key}
			byDay[key] = day
		}
		if m.Quantity > 0 {
			day.In += m.Quantity
		} else {
			day.Out -= m.Quantity
		}
	}

	days := make([]models.MovementDay, 0, len(byDay))
	for _, day := range byDay {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

type sequenceRepo struct{ s *Store }

func (r sequenceRepo) Next(ctx context.Context, tenantID, name string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := tenantID + "/" + name
	r.s.sequences[key]++
	return r.s.sequences[key], nil
}

type supplierRepo struct{ s *Store }

func (r supplierRepo) Create(ctx context.Context, supplier *models.Supplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.suppliers[supplier.ID] = cloneSupplier(supplier)
	return nil
}

func (r supplierRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sup, ok := r.s.suppliers[id]
	if !ok || sup.TenantID != tenantID {
		return nil, apperr.NotFound("supplier not found: %s", id)
	}
	return cloneSupplier(sup), nil
}

func (r supplierRepo) List(ctx context.Context, tenantID, search string, page models.Page) ([]models.Supplier, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search = strings.ToLower(search)
	var matched []models.Supplier
	for _, sup := range r.s.suppliers {
		if sup.TenantID != tenantID || !strings.Contains(strings.ToLower(sup.Name), search) {
			continue
		}
		matched = append(matched, *cloneSupplier(sup))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name < matched[j].Name
	})
	return paginate(matched, page), len(matched), nil
}

func (r supplierRepo) Update(ctx context.Context, supplier *models.Supplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.suppliers[supplier.ID]
	if !ok || current.TenantID != supplier.TenantID {
		return apperr.NotFound("supplier not found: %s", supplier.ID)
	}
	r.s.suppliers[supplier.ID] = cloneSupplier(supplier)
	return nil
}

func (r supplierRepo) Delete(ctx context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sup, ok := r.s.suppliers[id]
	if !ok || sup.TenantID != tenantID {
		return apperr.NotFound("supplier not found: %s", id)
	}
	delete(r.s.suppliers, id)
	return nil
}

func paginate[T any](items []T, page models.Page) []T {
	if page.Limit <= 0 {
		return items
	}
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func cloneProduct(p *models.Product) *models.Product {
	c := *p
	c.Variants = make([]models.Variant, len(p.Variants))
	for i, v := range p.Variants {
		c.Variants[i] = v
		if v.Attributes != nil {
			c.Variants[i].Attributes = make(models.Attributes, len(v.Attributes))
			for k, val := range v.Attributes {
				c.Variants[i].Attributes[k] = val
			}
		}
	}
	return &c
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func clonePurchaseOrder(po *models.PurchaseOrder) *models.PurchaseOrder {
	c := *po
	c.Items = append([]models.PurchaseOrderItem(nil), po.Items...)
	if po.ActualDeliveryDate != nil {
		t := *po.ActualDeliveryDate
		c.ActualDeliveryDate = &t
	}
	return &c
}

func cloneSupplier(sup *models.Supplier) *models.Supplier {
	c := *sup
	c.Pricing = append(models.SupplierPricing(nil), sup.Pricing...)
	return &c
}
