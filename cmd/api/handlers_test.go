package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/zayyarwin/mmshop/internal/config"
	"github.com/zayyarwin/mmshop/internal/order"
	"github.com/zayyarwin/mmshop/internal/payment"
	"github.com/zayyarwin/mmshop/internal/product"
	"github.com/zayyarwin/mmshop/internal/user"
)

const testCallbackKey = "handler-test-callback-key"

//
// ===== in-memory stubs (implement product.Repository / order.Repository) =====
//

type memProducts struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]*product.Product
}

func newMemProducts() *memProducts {
	return &memProducts{items: make(map[int64]*product.Product)}
}

func (m *memProducts) Create(ctx context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = m.seq
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *memProducts) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) List(ctx context.Context, q product.Query) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]product.Product, 0, len(m.items))
	for _, p := range m.items {
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memProducts) Update(ctx context.Context, p *product.Product, updatePrice bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Name != "" {
		cur.Name = p.Name
	}
	if p.Description != "" {
		cur.Description = p.Description
	}
	if p.ImageURL != "" {
		cur.ImageURL = p.ImageURL
	}
	if updatePrice {
		cur.Price = p.Price
	}
	cur.Stock = p.Stock
	if p.Status != "" {
		cur.Status = p.Status
	}
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memProducts) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return false, nil
	}
	delete(m.items, id)
	return true, nil
}

func (m *memProducts) stock(t *testing.T, id int64) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		t.Fatalf("product %d missing from stub", id)
	}
	return p.Stock
}

type memOrders struct {
	mu       sync.Mutex
	products *memProducts
	seq      int64
	orders   map[string]*order.Order // keyed by external order_id
	items    map[int64][]order.Item
}

func newMemOrders(products *memProducts) *memOrders {
	return &memOrders{
		products: products,
		orders:   make(map[string]*order.Order),
		items:    make(map[int64][]order.Item),
	}
}

// Create mirrors the real repository's transaction: every decrement passes or
// nothing is written.
func (m *memOrders) Create(ctx context.Context, o *order.Order, items []order.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products.mu.Lock()
	defer m.products.mu.Unlock()

	for _, it := range items {
		p, ok := m.products.items[it.ProductID]
		if !ok || p.Status != product.StatusActive || p.Stock < it.Quantity {
			return order.ErrInsufficientStock
		}
	}
	for _, it := range items {
		m.products.items[it.ProductID].Stock -= it.Quantity
	}

	m.seq++
	o.ID = m.seq
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.orders[o.OrderID] = &cp
	for i := range items {
		items[i].ID = int64(i + 1)
		items[i].OrderID = o.ID
	}
	m.items[o.ID] = append([]order.Item(nil), items...)
	return nil
}

func (m *memOrders) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) GetByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByOrderIDAndUser(ctx context.Context, orderID string, userID int64) (*order.Order, error) {
	o, err := m.GetByOrderID(ctx, orderID)
	if err != nil || o.UserID != userID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) GetItems(ctx context.Context, orderID int64) ([]order.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Item(nil), m.items[orderID]...), nil
}

func (m *memOrders) List(ctx context.Context, q order.Query) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if q.UserID != 0 && o.UserID != q.UserID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			o.Status = status
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return order.ErrNotFound
}

func (m *memOrders) ApplyPayment(ctx context.Context, orderID string, upd order.PaymentUpdate) (*order.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false, order.ErrNotFound
	}
	if !order.PaymentTransitionAllowed(o.PaymentStatus, upd.PaymentStatus) {
		cp := *o
		return &cp, false, nil
	}
	o.PaymentStatus = upd.PaymentStatus
	if upd.Status != "" {
		o.Status = upd.Status
	}
	if upd.CompletedAt != nil {
		o.CompletedAt = upd.CompletedAt
	}
	if upd.FailedAt != nil {
		o.FailedAt = upd.FailedAt
	}
	if upd.PaymentStatus == order.PaymentSuccess {
		o.FailedAt = nil
		o.FailureReason = nil
	}
	if upd.FailureReason != "" {
		o.FailureReason = &upd.FailureReason
	}
	if upd.TransactionID != "" {
		o.TransactionID = &upd.TransactionID
	}
	if upd.ProviderName != "" {
		o.ProviderName = &upd.ProviderName
	}
	if upd.MethodName != "" {
		o.MethodName = &upd.MethodName
	}
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	return &cp, true, nil
}

type memUsers struct {
	mu    sync.Mutex
	seq   int64
	users map[string]*user.User // keyed by email
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*user.User)}
}

func (m *memUsers) Create(ctx context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return user.ErrAlreadyExist
	}
	m.seq++
	u.ID = m.seq
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.Email] = &cp
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

//
// ===== router wired like main =====
//

type testEnv struct {
	router   *gin.Engine
	products *memProducts
	orders   *memOrders
	users    *memUsers
	orderSvc *order.Service
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)

	products := newMemProducts()
	orders := newMemOrders(products)
	users := newMemUsers()
	orderSvc := order.NewService(products, orders, nil)

	// The gateway is never reached in these tests; token requests fail
	// before the handshake and callbacks bypass it entirely.
	gateway := payment.NewGateway(config.Dinger{}, nil)
	paymentSvc := payment.NewService(gateway, orderSvc, nil, nil, testCallbackKey, nil)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.GET("/products", listProductsHandler(products))
	v1.GET("/products/:id", getProductHandler(products))
	v1.POST("/products", createProductHandler(products))
	v1.PUT("/products/:id", updateProductHandler(products))
	v1.DELETE("/products/:id", deleteProductHandler(products))
	v1.POST("/users", registerUserHandler(users))
	v1.GET("/orders", listOrdersHandler(orderSvc))
	v1.POST("/orders", createOrderHandler(orderSvc))
	v1.GET("/orders/:orderId", getOrderHandler(orderSvc))
	v1.PATCH("/admin/orders/:id/status", updateOrderStatusHandler(orderSvc))
	v1.POST("/payment/token", paymentTokenHandler(paymentSvc))
	v1.GET("/payment/order/:orderId", paymentOrderDetailHandler(orderSvc))
	v1.POST("/payment/callback", paymentCallbackHandler(paymentSvc))

	return &testEnv{router: r, products: products, orders: orders, users: users, orderSvc: orderSvc}
}

func (e *testEnv) seedProduct(t *testing.T, name, price string, stock int) int64 {
	t.Helper()
	d, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("bad price %q: %v", price, err)
	}
	p := &product.Product{Name: name, Price: d, Stock: stock, Status: product.StatusActive}
	if err := e.products.Create(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p.ID
}

func (e *testEnv) do(t *testing.T, method, path string, userID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid response json: %v body=%s", err, w.Body.String())
	}
	return env
}

//
// ===== orders =====
//

func TestCreateOrder_ComputesTotalAndDecrementsStock(t *testing.T) {
	e := newTestEnv()
	pid := e.seedProduct(t, "Keyboard", "10.00", 5)

	w := e.do(t, http.MethodPost, "/api/v1/orders", 7,
		fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":2}]}`, pid))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	env := decodeEnvelope(t, w)
	var got struct {
		Order order.Order  `json:"order"`
		Items []order.Item `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got.Order.OrderID == "" || got.Order.UserID != 7 {
		t.Fatalf("unexpected order: %+v", got.Order)
	}
	if got.Order.TotalAmount.StringFixed(2) != "20.00" {
		t.Fatalf("total=%s, want 20.00", got.Order.TotalAmount.StringFixed(2))
	}
	if got.Order.Status != order.StatusPending || got.Order.PaymentStatus != order.PaymentPending {
		t.Fatalf("fresh order must be pending/pending, got %s/%s", got.Order.Status, got.Order.PaymentStatus)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
	if s := e.products.stock(t, pid); s != 3 {
		t.Fatalf("stock=%d, want 3", s)
	}
}

func TestCreateOrder_InsufficientStockLeavesNothingBehind(t *testing.T) {
	e := newTestEnv()
	cheap := e.seedProduct(t, "Sticker", "1.00", 10)
	rare := e.seedProduct(t, "Console", "500.00", 1)

	w := e.do(t, http.MethodPost, "/api/v1/orders", 7, fmt.Sprintf(
		`{"items":[{"product_id":%d,"quantity":3},{"product_id":%d,"quantity":2}]}`, cheap, rare))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if s := e.products.stock(t, cheap); s != 10 {
		t.Fatalf("first line's stock must be untouched, got %d", s)
	}
	if len(e.orders.orders) != 0 {
		t.Fatalf("no order row may exist after a failed creation")
	}
}

func TestCreateOrder_RequiresForwardedUser(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodPost, "/api/v1/orders", 0, `{"items":[{"product_id":1,"quantity":1}]}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCreateOrder_RejectsEmptyAndBadQuantity(t *testing.T) {
	e := newTestEnv()
	pid := e.seedProduct(t, "Mug", "5.00", 5)

	for _, body := range []string{
		`{"items":[]}`,
		fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":0}]}`, pid),
		fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":-1}]}`, pid),
	} {
		w := e.do(t, http.MethodPost, "/api/v1/orders", 7, body)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body=%s: expected 422, got %d", body, w.Code)
		}
	}
}

func TestGetOrder_ScopedToUser(t *testing.T) {
	e := newTestEnv()
	pid := e.seedProduct(t, "Lamp", "30.00", 2)
	o, _, err := e.orderSvc.CreateOrder(context.Background(), 7,
		[]order.CreateOrderItem{{ProductID: pid, Quantity: 1}})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if w := e.do(t, http.MethodGet, "/api/v1/orders/"+o.OrderID, 7, ""); w.Code != http.StatusOK {
		t.Fatalf("owner read: status=%d body=%s", w.Code, w.Body.String())
	}
	// another user must not see it
	if w := e.do(t, http.MethodGet, "/api/v1/orders/"+o.OrderID, 8, ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign read: expected 404, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/orders/ORDER-nope", 7, ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing order: expected 404, got %d", w.Code)
	}
}

func TestUpdateOrderStatus_ValidatesStatus(t *testing.T) {
	e := newTestEnv()
	pid := e.seedProduct(t, "Desk", "80.00", 2)
	o, _, err := e.orderSvc.CreateOrder(context.Background(), 7,
		[]order.CreateOrderItem{{ProductID: pid, Quantity: 1}})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	path := fmt.Sprintf("/api/v1/admin/orders/%d/status", o.ID)

	if w := e.do(t, http.MethodPatch, path, 0, `{"status":"completed"}`); w.Code != http.StatusOK {
		t.Fatalf("valid transition: status=%d body=%s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPatch, path, 0, `{"status":"shipped"}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown status: expected 422, got %d", w.Code)
	}
}

//
// ===== products =====
//

func TestCreateProduct_ValidationAndRead(t *testing.T) {
	e := newTestEnv()

	// negative price rejected before the repo is touched
	if w := e.do(t, http.MethodPost, "/api/v1/products", 0,
		`{"name":"Bad","price":"-1.00","stock":1}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative price: expected 422, got %d", w.Code)
	}

	w := e.do(t, http.MethodPost, "/api/v1/products", 0,
		`{"name":"Headset","description":"wireless","price":"149.90","stock":7}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var got struct {
		Product product.Product `json:"product"`
	}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got.Product.Status != product.StatusActive {
		t.Fatalf("status must default to active, got %q", got.Product.Status)
	}

	if w := e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", got.Product.ID), 0, ""); w.Code != http.StatusOK {
		t.Fatalf("read back: status=%d body=%s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/api/v1/products/9999", 0, ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing product: expected 404, got %d", w.Code)
	}
}

func TestDeleteProduct_NotFound(t *testing.T) {
	e := newTestEnv()
	if w := e.do(t, http.MethodDelete, "/api/v1/products/42", 0, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

//
// ===== users =====
//

func TestRegisterUser_HashesPasswordAndRejectsDuplicates(t *testing.T) {
	e := newTestEnv()

	w := e.do(t, http.MethodPost, "/api/v1/users", 0,
		`{"name":"Aung Aung","email":"aung@example.com","phone":"+959123456789","password":"s3cret-pass"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("s3cret-pass")) {
		t.Fatalf("response must never echo the password: %s", w.Body.String())
	}

	stored, err := e.users.GetByEmail(context.Background(), "aung@example.com")
	if err != nil {
		t.Fatalf("stored user missing: %v", err)
	}
	if stored.Phone != "09123456789" {
		t.Fatalf("phone not normalized: %q", stored.Phone)
	}
	if stored.PasswordHash == "s3cret-pass" || !user.CheckPassword(stored.PasswordHash, "s3cret-pass") {
		t.Fatalf("password must be stored as a verifiable hash")
	}
	if user.CheckPassword(stored.PasswordHash, "wrong-pass") {
		t.Fatalf("wrong password must not verify")
	}

	// same email again
	w = e.do(t, http.MethodPost, "/api/v1/users", 0,
		`{"name":"Aung Aung","email":"aung@example.com","password":"s3cret-pass"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", w.Code)
	}
}

func TestRegisterUser_Validation(t *testing.T) {
	e := newTestEnv()
	// missing name, missing email, weak password, bad phone
	for _, body := range []string{
		`{"email":"a@b.com","password":"longenough"}`,
		`{"name":"A","password":"longenough"}`,
		`{"name":"A","email":"a@b.com","password":"short"}`,
		`{"name":"A","email":"a@b.com","password":"longenough","phone":"123"}`,
	} {
		w := e.do(t, http.MethodPost, "/api/v1/users", 0, body)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body=%s: expected 422, got %d", body, w.Code)
		}
	}
}

//
// ===== payment =====
//

func TestPaymentToken_RejectsBadProviderMethod(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodPost, "/api/v1/payment/token", 7,
		`{"order_id":"ORDER-x","providerName":"CB Pay","methodName":"PIN"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestPaymentToken_UnknownOrder(t *testing.T) {
	e := newTestEnv()
	w := e.do(t, http.MethodPost, "/api/v1/payment/token", 7,
		`{"order_id":"ORDER-nope","providerName":"AYA Pay","methodName":"QR"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", w.Code, w.Body.String())
	}
}

// encryptCallback builds a provider-shaped callback body for the given
// plaintext: AES-256-ECB over a PKCS7-padded payload plus a sha256 checksum.
func encryptCallback(t *testing.T, key string, plaintext []byte) string {
	t.Helper()
	k := make([]byte, 32)
	copy(k, key)
	block, err := aes.NewCipher(k)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	bs := block.BlockSize()
	pad := bs - len(plaintext)%bs
	padded := append(append([]byte(nil), plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	ct := make([]byte, len(padded))
	for i := 0; i < len(padded); i += bs {
		block.Encrypt(ct[i:i+bs], padded[i:i+bs])
	}
	sum := sha256.Sum256(plaintext)
	body, err := json.Marshal(map[string]string{
		"paymentResult": base64.StdEncoding.EncodeToString(ct),
		"checksum":      hex.EncodeToString(sum[:]),
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return string(body)
}

func TestPaymentCallback_SettlesOrder(t *testing.T) {
	e := newTestEnv()
	pid := e.seedProduct(t, "Phone", "300.00", 3)
	o, _, err := e.orderSvc.CreateOrder(context.Background(), 7,
		[]order.CreateOrderItem{{ProductID: pid, Quantity: 1}})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	plaintext := []byte(fmt.Sprintf(
		`{"transactionStatus":"SUCCESS","merchantOrderId":"%s","transactionId":"TXN-1"}`, o.OrderID))
	w := e.do(t, http.MethodPost, "/api/v1/payment/callback", 0,
		encryptCallback(t, testCallbackKey, plaintext))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	settled, err := e.orders.GetByOrderID(context.Background(), o.OrderID)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if settled.PaymentStatus != order.PaymentSuccess || settled.Status != order.StatusProcessing {
		t.Fatalf("order not settled: %s/%s", settled.Status, settled.PaymentStatus)
	}
	if settled.TransactionID == nil || *settled.TransactionID != "TXN-1" {
		t.Fatalf("transaction id not stamped: %+v", settled.TransactionID)
	}
	if settled.CompletedAt == nil {
		t.Fatalf("payment_completed_at must be set")
	}
}

func TestPaymentCallback_BadChecksumRejected(t *testing.T) {
	e := newTestEnv()
	pid := e.seedProduct(t, "Tablet", "200.00", 3)
	o, _, err := e.orderSvc.CreateOrder(context.Background(), 7,
		[]order.CreateOrderItem{{ProductID: pid, Quantity: 1}})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	plaintext := []byte(fmt.Sprintf(
		`{"transactionStatus":"SUCCESS","merchantOrderId":"%s","transactionId":"TXN-2"}`, o.OrderID))
	body := encryptCallback(t, testCallbackKey, plaintext)
	tampered := bytes.Replace([]byte(body), []byte(`"checksum":"`), []byte(`"checksum":"0`), 1)

	w := e.do(t, http.MethodPost, "/api/v1/payment/callback", 0, string(tampered))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	after, _ := e.orders.GetByOrderID(context.Background(), o.OrderID)
	if after.PaymentStatus != order.PaymentPending {
		t.Fatalf("rejected callback must not change the order, got %s", after.PaymentStatus)
	}
}

func TestPaymentCallback_MalformedRejected(t *testing.T) {
	e := newTestEnv()
	for _, body := range []string{`{}`, `not-json`, `{"paymentResult":"x"}`} {
		w := e.do(t, http.MethodPost, "/api/v1/payment/callback", 0, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body=%s: expected 400, got %d", body, w.Code)
		}
	}
}
