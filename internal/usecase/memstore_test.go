package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gaojie/internal/domain/model"
	repo "gaojie/internal/repository"
)

// memData は1つのDBに見立てた状態。Tx中は memStore.mu で直列化する
type memData struct {
	users       map[int64]model.User
	products    map[int64]model.Product
	orders      map[int64]model.Order
	items       map[int64][]model.OrderItem
	audits      []model.AuditLog
	adjustments []model.InventoryAdjustment
	recons      []model.PaymentReconciliation
	nextID      int64

	// 障害注入
	failOrderCreate error
	// Exists では見えないが Create で衝突する番号（同時挿入の再現）
	takenOnCreate map[string]bool
}

func (d *memData) clone() *memData {
	c := *d
	c.users = make(map[int64]model.User, len(d.users))
	for k, v := range d.users {
		c.users[k] = v
	}
	c.products = make(map[int64]model.Product, len(d.products))
	for k, v := range d.products {
		c.products[k] = v
	}
	c.orders = make(map[int64]model.Order, len(d.orders))
	for k, v := range d.orders {
		c.orders[k] = v
	}
	c.items = make(map[int64][]model.OrderItem, len(d.items))
	for k, v := range d.items {
		c.items[k] = append([]model.OrderItem(nil), v...)
	}
	c.audits = append([]model.AuditLog(nil), d.audits...)
	c.adjustments = append([]model.InventoryAdjustment(nil), d.adjustments...)
	c.recons = append([]model.PaymentReconciliation(nil), d.recons...)
	return &c
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

type memStore struct {
	mu sync.Mutex
	d  *memData
	// WithinTx の呼び出し回数
	txCount int
}

func newMemStore() *memStore {
	return &memStore{d: &memData{
		users:         map[int64]model.User{},
		products:      map[int64]model.Product{},
		orders:        map[int64]model.Order{},
		items:         map[int64][]model.OrderItem{},
		takenOnCreate: map[string]bool{},
		nextID:        100,
	}}
}

// エラーなら開始前の状態に戻す
func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	before := s.d.clone()
	if err := fn(memTx{d: s.d}); err != nil {
		s.d = before
		return err
	}
	return nil
}

// Tx外から使う（1呼び出し=1Tx）
func (s *memStore) do(fn func(t memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(memTx{d: s.d})
}

func (s *memStore) addProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.d.id()
	}
	s.d.products[p.ID] = p
	return p
}

func (s *memStore) addUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.d.id()
	}
	s.d.users[u.ID] = u
	return u
}

func (s *memStore) addOrder(o model.Order, items []model.OrderItem) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.d.id()
	}
	for i := range items {
		items[i].OrderID = o.ID
	}
	s.d.orders[o.ID] = o
	s.d.items[o.ID] = items
	return o
}

func (s *memStore) product(id int64) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.products[id]
}

func (s *memStore) order(id int64) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.orders[id]
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.orders)
}

func (s *memStore) userByEmail(email string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.d.users {
		if u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}

func (s *memStore) reconciliations() []model.PaymentReconciliation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PaymentReconciliation(nil), s.d.recons...)
}

func (s *memStore) auditLogs() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.d.audits...)
}

func (s *memStore) userRepo() repo.UserRepository            { return lockedUsers{s} }
func (s *memStore) productRepo() repo.ProductRepository      { return lockedProducts{s} }
func (s *memStore) auditRepo() repo.AuditLogRepository       { return lockedAudits{s} }
func (s *memStore) reconRepo() repo.ReconciliationRepository { return lockedRecons{s} }

// ---- TxRepos（ロックは WithinTx / do が持つ）----

type memTx struct{ d *memData }

func (t memTx) Orders() repo.OrderRepository         { return memOrders(t) }
func (t memTx) OrderItems() repo.OrderItemRepository { return memOrderItems(t) }
func (t memTx) Inventory() repo.InventoryRepository  { return memInventory(t) }
func (t memTx) Products() repo.ProductRepository     { return memProducts(t) }
func (t memTx) AuditLogs() repo.AuditLogRepository   { return memAudits(t) }
func (t memTx) Users() repo.UserRepository           { return memUsers(t) }

type memOrders memTx

func (r memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := r.d.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r memOrders) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	for _, o := range r.d.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r memOrders) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	_, err := r.FindByOrderNumber(ctx, orderNumber)
	return err == nil, nil
}

func (r memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.d.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r memOrders) Create(ctx context.Context, order model.Order) (int64, error) {
	if r.d.failOrderCreate != nil {
		return 0, r.d.failOrderCreate
	}
	if r.d.takenOnCreate[order.OrderNumber] {
		return 0, repo.ErrOrderNumberTaken
	}
	for _, o := range r.d.orders {
		if o.OrderNumber == order.OrderNumber {
			return 0, repo.ErrOrderNumberTaken
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil &&
			o.UserID == order.UserID && *o.IdempotencyKey == *order.IdempotencyKey {
			return 0, repo.ErrIdempotencyKeyTaken
		}
	}
	order.ID = r.d.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	r.d.orders[order.ID] = order
	return order.ID, nil
}

func (r memOrders) UpdateState(ctx context.Context, o model.Order) error {
	cur, ok := r.d.orders[o.ID]
	if !ok {
		return repo.ErrNotFound
	}
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.ShippedAt = o.ShippedAt
	cur.DeliveredAt = o.DeliveredAt
	cur.AdminNotes = o.AdminNotes
	cur.PaymentReference = o.PaymentReference
	cur.RefundedAmount = o.RefundedAmount
	r.d.orders[o.ID] = cur
	return nil
}

func (r memOrders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	for _, o := range r.d.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range r.d.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.PaymentStatus != "" && string(o.PaymentStatus) != f.PaymentStatus {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Search != "" && !strings.Contains(o.OrderNumber, strings.ToUpper(f.Search)) {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

func paginate[T any](all []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

type memOrderItems memTx

func (r memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	out := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		it.ID = r.d.id()
		it.OrderID = orderID
		out = append(out, it)
	}
	r.d.items[orderID] = out
	return nil
}

func (r memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return append([]model.OrderItem{}, r.d.items[orderID]...), nil
}

type memInventory memTx

func (r memInventory) SetStock(ctx context.Context, productID int64, newStock int64) error {
	p, ok := r.d.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.StockQuantity = newStock
	r.d.products[productID] = p
	return nil
}

// 条件付き減算（gorm実装の WHERE と同じ条件）
func (r memInventory) ReserveStock(ctx context.Context, productID int64, qty int64) (bool, error) {
	p, ok := r.d.products[productID]
	if !ok || !p.IsActive {
		return false, nil
	}
	if p.TrackInventory {
		if p.StockQuantity < qty {
			return false, nil
		}
		p.StockQuantity -= qty
	}
	p.SalesCount += qty
	r.d.products[productID] = p
	return true, nil
}

func (r memInventory) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	p, ok := r.d.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	if p.TrackInventory {
		p.StockQuantity += qty
	}
	p.SalesCount -= qty
	r.d.products[productID] = p
	return nil
}

func (r memInventory) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	adj.ID = r.d.id()
	r.d.adjustments = append(r.d.adjustments, adj)
	return nil
}

type memProducts memTx

func (r memProducts) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var all []model.Product
	for _, p := range r.d.products {
		if !q.IncludeInactive && !p.IsActive {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if (q.Featured && !p.IsFeatured) || (q.Bestseller && !p.IsBestseller) || (q.New && !p.IsNew) {
			continue
		}
		if s := strings.ToLower(strings.TrimSpace(q.Q)); s != "" &&
			!strings.Contains(strings.ToLower(p.Name+" "+p.Description+" "+p.Tags), s) {
			continue
		}
		all = append(all, p)
	}
	switch q.Sort {
	case "price_asc":
		sort.Slice(all, func(i, j int) bool { return all[i].Price.LessThan(all[j].Price) })
	case "price_desc":
		sort.Slice(all, func(i, j int) bool { return all[i].Price.GreaterThan(all[j].Price) })
	case "bestseller":
		sort.Slice(all, func(i, j int) bool { return all[i].SalesCount > all[j].SalesCount })
	case "name":
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	default:
		sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	}
	return paginate(all, q.Page, q.Limit), int64(len(all)), nil
}

func (r memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := r.d.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memProducts) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := r.d.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProducts) FindBySlug(ctx context.Context, slug string) (model.Product, error) {
	for _, p := range r.d.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return model.Product{}, repo.ErrNotFound
}

func (r memProducts) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := r.FindBySlug(ctx, slug)
	return err == nil, nil
}

func (r memProducts) Categories(ctx context.Context) ([]repo.CategoryCount, error) {
	counts := map[string]int64{}
	for _, p := range r.d.products {
		if p.IsActive {
			counts[p.Category]++
		}
	}
	out := make([]repo.CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, repo.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (r memProducts) IncrementViewCount(ctx context.Context, id int64) error {
	p, ok := r.d.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.ViewCount++
	r.d.products[id] = p
	return nil
}

func (r memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = r.d.id()
	r.d.products[p.ID] = p
	return p, nil
}

func (r memProducts) Update(ctx context.Context, p model.Product) error {
	if _, ok := r.d.products[p.ID]; !ok {
		return repo.ErrNotFound
	}
	r.d.products[p.ID] = p
	return nil
}

func (r memProducts) SoftDelete(ctx context.Context, id int64) error {
	p, ok := r.d.products[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.IsActive = false
	r.d.products[id] = p
	return nil
}

type memAudits memTx

func (r memAudits) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = r.d.id()
	r.d.audits = append(r.d.audits, log)
	return nil
}

func (r memAudits) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	var all []model.AuditLog
	for i := len(r.d.audits) - 1; i >= 0; i-- {
		l := r.d.audits[i]
		if f.Action != nil && l.Action != *f.Action {
			continue
		}
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		all = append(all, l)
	}
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

type memUsers memTx

func (r memUsers) Create(ctx context.Context, user *model.User) error {
	for _, u := range r.d.users {
		if u.Email == user.Email {
			return repo.ErrEmailTaken
		}
	}
	user.ID = r.d.id()
	r.d.users[user.ID] = *user
	return nil
}

func (r memUsers) CreateGuestIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	for _, u := range r.d.users {
		if u.Email == user.Email {
			*user = u
			return false, nil
		}
	}
	user.ID = r.d.id()
	r.d.users[user.ID] = *user
	return true, nil
}

func (r memUsers) FindByID(ctx context.Context, userID int64) (model.User, error) {
	u, ok := r.d.users[userID]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (model.User, error) {
	for _, u := range r.d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r memUsers) Update(ctx context.Context, user model.User) error {
	if _, ok := r.d.users[user.ID]; !ok {
		return repo.ErrNotFound
	}
	r.d.users[user.ID] = user
	return nil
}

func (r memUsers) IncrementTokenVersion(ctx context.Context, userID int64) error {
	u, ok := r.d.users[userID]
	if !ok {
		return repo.ErrNotFound
	}
	u.TokenVersion++
	r.d.users[userID] = u
	return nil
}

type memRecons memTx

func (r memRecons) Create(ctx context.Context, rec *model.PaymentReconciliation) error {
	rec.ID = r.d.id()
	rec.CreatedAt = time.Now()
	r.d.recons = append(r.d.recons, *rec)
	return nil
}

func (r memRecons) FindByID(ctx context.Context, id int64) (model.PaymentReconciliation, error) {
	for _, rec := range r.d.recons {
		if rec.ID == id {
			return rec, nil
		}
	}
	return model.PaymentReconciliation{}, repo.ErrNotFound
}

func (r memRecons) List(ctx context.Context, resolved *bool, page int, limit int) ([]model.PaymentReconciliation, int64, error) {
	var all []model.PaymentReconciliation
	for _, rec := range r.d.recons {
		if resolved != nil && rec.Resolved != *resolved {
			continue
		}
		all = append(all, rec)
	}
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r memRecons) MarkResolved(ctx context.Context, id int64, at time.Time) error {
	for i, rec := range r.d.recons {
		if rec.ID == id {
			r.d.recons[i].Resolved = true
			r.d.recons[i].ResolvedAt = &at
			return nil
		}
	}
	return repo.ErrNotFound
}

// ---- Tx外のリポジトリ ----

type lockedUsers struct{ s *memStore }

func (l lockedUsers) Create(ctx context.Context, user *model.User) error {
	return l.s.do(func(t memTx) error { return t.Users().Create(ctx, user) })
}

func (l lockedUsers) CreateGuestIfAbsent(ctx context.Context, user *model.User) (created bool, err error) {
	err = l.s.do(func(t memTx) error { created, err = t.Users().CreateGuestIfAbsent(ctx, user); return err })
	return created, err
}

func (l lockedUsers) FindByID(ctx context.Context, id int64) (u model.User, err error) {
	err = l.s.do(func(t memTx) error { u, err = t.Users().FindByID(ctx, id); return err })
	return u, err
}

func (l lockedUsers) FindByEmail(ctx context.Context, email string) (u model.User, err error) {
	err = l.s.do(func(t memTx) error { u, err = t.Users().FindByEmail(ctx, email); return err })
	return u, err
}

func (l lockedUsers) Update(ctx context.Context, user model.User) error {
	return l.s.do(func(t memTx) error { return t.Users().Update(ctx, user) })
}

func (l lockedUsers) IncrementTokenVersion(ctx context.Context, id int64) error {
	return l.s.do(func(t memTx) error { return t.Users().IncrementTokenVersion(ctx, id) })
}

type lockedProducts struct{ s *memStore }

func (l lockedProducts) List(ctx context.Context, q repo.ProductListQuery) (ps []model.Product, n int64, err error) {
	err = l.s.do(func(t memTx) error { ps, n, err = t.Products().List(ctx, q); return err })
	return ps, n, err
}

func (l lockedProducts) FindByID(ctx context.Context, id int64) (p model.Product, err error) {
	err = l.s.do(func(t memTx) error { p, err = t.Products().FindByID(ctx, id); return err })
	return p, err
}

func (l lockedProducts) FindByIDs(ctx context.Context, ids []int64) (ps []model.Product, err error) {
	err = l.s.do(func(t memTx) error { ps, err = t.Products().FindByIDs(ctx, ids); return err })
	return ps, err
}

func (l lockedProducts) FindBySlug(ctx context.Context, slug string) (p model.Product, err error) {
	err = l.s.do(func(t memTx) error { p, err = t.Products().FindBySlug(ctx, slug); return err })
	return p, err
}

func (l lockedProducts) SlugExists(ctx context.Context, slug string) (ok bool, err error) {
	err = l.s.do(func(t memTx) error { ok, err = t.Products().SlugExists(ctx, slug); return err })
	return ok, err
}

func (l lockedProducts) Categories(ctx context.Context) (cs []repo.CategoryCount, err error) {
	err = l.s.do(func(t memTx) error { cs, err = t.Products().Categories(ctx); return err })
	return cs, err
}

func (l lockedProducts) IncrementViewCount(ctx context.Context, id int64) error {
	return l.s.do(func(t memTx) error { return t.Products().IncrementViewCount(ctx, id) })
}

func (l lockedProducts) Create(ctx context.Context, p model.Product) (out model.Product, err error) {
	err = l.s.do(func(t memTx) error { out, err = t.Products().Create(ctx, p); return err })
	return out, err
}

func (l lockedProducts) Update(ctx context.Context, p model.Product) error {
	return l.s.do(func(t memTx) error { return t.Products().Update(ctx, p) })
}

func (l lockedProducts) SoftDelete(ctx context.Context, id int64) error {
	return l.s.do(func(t memTx) error { return t.Products().SoftDelete(ctx, id) })
}

type lockedAudits struct{ s *memStore }

func (l lockedAudits) Create(ctx context.Context, log model.AuditLog) error {
	return l.s.do(func(t memTx) error { return t.AuditLogs().Create(ctx, log) })
}

func (l lockedAudits) List(ctx context.Context, f repo.AuditLogFilter) (ls []model.AuditLog, n int64, err error) {
	err = l.s.do(func(t memTx) error { ls, n, err = t.AuditLogs().List(ctx, f); return err })
	return ls, n, err
}

type lockedRecons struct{ s *memStore }

func (l lockedRecons) Create(ctx context.Context, rec *model.PaymentReconciliation) error {
	return l.s.do(func(t memTx) error { return memRecons(t).Create(ctx, rec) })
}

func (l lockedRecons) FindByID(ctx context.Context, id int64) (r model.PaymentReconciliation, err error) {
	err = l.s.do(func(t memTx) error { r, err = memRecons(t).FindByID(ctx, id); return err })
	return r, err
}

func (l lockedRecons) List(ctx context.Context, resolved *bool, page int, limit int) (rs []model.PaymentReconciliation, n int64, err error) {
	err = l.s.do(func(t memTx) error { rs, n, err = memRecons(t).List(ctx, resolved, page, limit); return err })
	return rs, n, err
}

func (l lockedRecons) MarkResolved(ctx context.Context, id int64, at time.Time) error {
	return l.s.do(func(t memTx) error { return memRecons(t).MarkResolved(ctx, id, at) })
}

// セッションカート
type memCartStore struct {
	mu    sync.Mutex
	carts map[string]model.Cart
}

func newMemCartStore() *memCartStore {
	return &memCartStore{carts: map[string]model.Cart{}}
}

func (s *memCartStore) Get(ctx context.Context, sessionID string) (model.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[sessionID]
	if !ok {
		return model.Cart{SessionID: sessionID, Items: []model.CartItem{}}, nil
	}
	c.Items = append([]model.CartItem{}, c.Items...)
	return c, nil
}

func (s *memCartStore) Save(ctx context.Context, cart model.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Items = append([]model.CartItem{}, cart.Items...)
	s.carts[cart.SessionID] = cart
	return nil
}

func (s *memCartStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}
