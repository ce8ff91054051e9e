package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ibarbylev/go-shop-orders/internal/orders"
	"github.com/ibarbylev/go-shop-orders/internal/redisx"
)

// ShopHandler is the thin delivery layer over the ledger, the settlement
// engine and the minter. No business rules live here.
type ShopHandler struct {
	Store      orders.Store
	Ledger     *orders.Ledger
	Engine     *orders.Engine
	Minter     *orders.Minter
	Redis      *redis.Client // optional, status cache + idempotency
	PubPayment orders.Publisher
	Service    string
}

func (h *ShopHandler) Register(r *chi.Mux) {
	r.Post("/carts", h.createCart)
	r.Post("/carts/{id}/items", h.addItem)
	r.Put("/carts/{id}/items/{productID}", h.setItemQty)
	r.Delete("/carts/{id}/items/{productID}", h.removeItem)

	r.Post("/orders/{id}/checkout", h.checkout)
	r.Post("/orders/{id}/payments", h.requestPayment)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)

	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Delete("/products/{id}", h.deleteProduct)

	r.Post("/users/{id}/deposit", h.deposit)
	r.Post("/users/{id}/drain", h.drainUser)
	r.Get("/users/{id}/balance", h.getBalance)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrProfileNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidState),
		errors.Is(err, orders.ErrProductInUse):
		code = http.StatusConflict
	case errors.Is(err, orders.ErrInsufficientFunds):
		code = http.StatusPaymentRequired
	case errors.Is(err, orders.ErrInvalidQty):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// cacheStatus best-effort caches an order's status; misses and failures
// fall through to the store.
func (h *ShopHandler) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, st), redisx.TTLStatusCache).Err()
}

// ---- carts ----

type createCartReq struct {
	UserID string `json:"user_id"`
}

func (h *ShopHandler) createCart(w http.ResponseWriter, r *http.Request) {
	var req createCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Ledger.CreateCart(ctx, req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusCreated, orderView(o, nil, nil))
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func (h *ShopHandler) addItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.AddItem(ctx, orderID, req.ProductID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	h.respondOrder(ctx, w, orderID, http.StatusOK)
}

type setQtyReq struct {
	Qty int `json:"qty"`
}

func (h *ShopHandler) setItemQty(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	productID := chi.URLParam(r, "productID")
	var req setQtyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.SetItemQty(ctx, orderID, productID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	h.respondOrder(ctx, w, orderID, http.StatusOK)
}

func (h *ShopHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	productID := chi.URLParam(r, "productID")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.RemoveItem(ctx, orderID, productID); err != nil {
		writeErr(w, err)
		return
	}
	h.respondOrder(ctx, w, orderID, http.StatusOK)
}

// ---- checkout / payments ----

func (h *ShopHandler) checkout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// fast path: a repeated checkout returns the current state instead
	// of a state-machine conflict
	if h.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, orderID)
		if seen, err := redisx.Exists(ctx, h.Redis, idemKey); err == nil && seen {
			h.respondOrder(ctx, w, orderID, http.StatusOK)
			return
		}
	}

	o, err := h.Ledger.ToPending(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, orderID)
		_ = h.Redis.Set(ctx, idemKey, o.Number, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, orderView(o, nil, nil))
}

// requestPayment records a pending payment for a pending order and
// publishes payment.pending; the reconciler picks it up and re-runs the
// owner's drain.
func (h *ShopHandler) requestPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		pay   orders.Payment
		owner string
	)
	err := h.Store.WithinTx(ctx, func(tx orders.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != orders.StatusPending {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, orders.ErrInvalidState)
		}
		owner = o.UserID
		p, ok, err := tx.GetPaymentByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if ok {
			pay = p
			return nil
		}
		pay = orders.Payment{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			Status:    orders.PaymentPending,
			CreatedAt: time.Now().UTC(),
		}
		return tx.InsertPayment(ctx, pay)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	if pay.Status == orders.PaymentPending {
		orders.Emit(h.PubPayment, orders.EventPaymentPending, h.Service, orderID,
			orders.PaymentPendingPayload{PaymentID: pay.ID, OrderID: orderID, UserID: owner})
	}
	writeJSON(w, http.StatusAccepted, paymentView(pay))
}

func (h *ShopHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respondOrder(ctx, w, orderID, http.StatusOK)
}

// getOrderStatus serves the status alone, from the redis cache when it
// is warm, falling back to the store on a miss.
func (h *ShopHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if v, err := h.Redis.Get(ctx, key).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(v))
			return
		}
	}
	o, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(o.Status)})
}

func (h *ShopHandler) respondOrder(ctx context.Context, w http.ResponseWriter, orderID string, code int) {
	o, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	items, err := h.Store.ListItems(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	var pay *orders.Payment
	if p, ok, err := h.Store.GetPaymentByOrder(ctx, orderID); err == nil && ok {
		pay = &p
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, code, orderView(o, items, pay))
}

// ---- products ----

type createProductReq struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func (h *ShopHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing name"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s, err := h.Minter.ProductSlug(ctx, req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	now := time.Now().UTC()
	p := orders.Product{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Slug:      s,
		Price:     req.Price,
		Stock:     req.Stock,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.CreateProduct(ctx, p); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ShopHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ShopHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- balances ----

type depositReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *ShopHandler) deposit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req depositReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var balance decimal.Decimal
	err := h.Store.WithinTx(ctx, func(tx orders.Tx) error {
		if err := tx.EnsureProfile(ctx, userID); err != nil {
			return err
		}
		p, err := tx.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		balance = p.Balance.Add(req.Amount)
		return tx.SetBalance(ctx, userID, balance)
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (h *ShopHandler) drainUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := h.Engine.DrainPending(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "settled": n})
}

func (h *ShopHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.Store.GetBalance(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": b})
}

// ---- views ----

type itemView struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
}

type payView struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type orderResp struct {
	ID      string          `json:"id"`
	Number  string          `json:"number,omitempty"`
	UserID  string          `json:"user_id"`
	Status  orders.Status   `json:"status"`
	Total   decimal.Decimal `json:"total"`
	Items   []itemView      `json:"items,omitempty"`
	Payment *payView        `json:"payment,omitempty"`
}

func orderView(o orders.Order, items []orders.OrderItem, pay *orders.Payment) orderResp {
	resp := orderResp{
		ID:     o.ID,
		Number: o.Number,
		UserID: o.UserID,
		Status: o.Status,
		Total:  o.Total,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, itemView{ProductID: it.ProductID, Qty: it.Qty, Price: it.Price})
	}
	if pay != nil {
		v := paymentView(*pay)
		resp.Payment = &v
	}
	return resp
}

func paymentView(p orders.Payment) payView {
	return payView{ID: p.ID, Status: string(p.Status), CreatedAt: p.CreatedAt}
}
