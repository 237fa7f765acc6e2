package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/zayyarwin/mmshop/internal/httpx"
	"github.com/zayyarwin/mmshop/internal/order"
	"github.com/zayyarwin/mmshop/internal/payment"
	"github.com/zayyarwin/mmshop/internal/product"
	"github.com/zayyarwin/mmshop/internal/user"
)

func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, gin.H{"success": code < 400, "message": message, "data": data})
}

func respondErr(c *gin.Context, err error, message string) {
	respond(c, statusFor(err), message+": "+err.Error(), nil)
}

// statusFor maps the error taxonomy onto HTTP statuses. Callers match on
// error kind, never on message text.
func statusFor(err error) int {
	switch {
	case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrNotFound), errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrAlreadyExist):
		return http.StatusConflict
	case errors.Is(err, payment.ErrValidation),
		errors.Is(err, order.ErrNoItems),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, order.ErrProductUnavailable),
		errors.Is(err, payment.ErrAlreadyPaid):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrMalformedCallback),
		errors.Is(err, payment.ErrDecryptionFailed),
		errors.Is(err, payment.ErrChecksumMismatch),
		errors.Is(err, payment.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrPaymentInitiation),
		errors.Is(err, payment.ErrPaymentExecution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requireUser(c *gin.Context) (int64, bool) {
	uid, ok := httpx.UserID(c)
	if !ok {
		respond(c, http.StatusUnauthorized, "missing or invalid X-User-ID", nil)
		return 0, false
	}
	return uid, true
}

// ---------- products ----------

func listProductsHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		q := product.Query{
			Search: c.Query("search"),
			Status: c.Query("status"),
			Limit:  limit,
			Offset: offset,
		}
		items, err := repo.List(c.Request.Context(), q)
		if err != nil {
			respondErr(c, err, "list products failed")
			return
		}
		respond(c, http.StatusOK, "Products retrieved successfully", product.ListResponse{
			Search: q.Search, Status: q.Status, Limit: q.Limit, Offset: q.Offset, Items: items,
		})
	}
}

func getProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid product id", nil)
			return
		}
		p, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err, "get product failed")
			return
		}
		respond(c, http.StatusOK, "Product retrieved successfully", gin.H{"product": p})
	}
}

func createProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid json: "+err.Error(), nil)
			return
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			respond(c, http.StatusUnprocessableEntity, "price must be a non-negative decimal", nil)
			return
		}
		if req.Name == "" || req.Stock < 0 {
			respond(c, http.StatusUnprocessableEntity, "name is required and stock must be non-negative", nil)
			return
		}
		status := req.Status
		if status == "" {
			status = product.StatusActive
		}
		p := &product.Product{
			Name:        req.Name,
			Description: req.Description,
			ImageURL:    req.ImageURL,
			Price:       price.Round(2),
			Stock:       req.Stock,
			Status:      status,
		}
		if err := repo.Create(c.Request.Context(), p); err != nil {
			respondErr(c, err, "create product failed")
			return
		}
		respond(c, http.StatusCreated, "Product created successfully", gin.H{"product": p})
	}
}

func updateProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid product id", nil)
			return
		}
		var req product.UpdateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid json: "+err.Error(), nil)
			return
		}
		current, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err, "get product failed")
			return
		}

		updatePrice := false
		if req.Price != "" {
			price, err := decimal.NewFromString(req.Price)
			if err != nil || price.IsNegative() {
				respond(c, http.StatusUnprocessableEntity, "price must be a non-negative decimal", nil)
				return
			}
			current.Price = price.Round(2)
			updatePrice = true
		}
		if req.Stock != nil {
			if *req.Stock < 0 {
				respond(c, http.StatusUnprocessableEntity, "stock must be non-negative", nil)
				return
			}
			current.Stock = *req.Stock
		}
		current.Name = req.Name
		current.Description = req.Description
		current.ImageURL = req.ImageURL
		current.Status = req.Status

		if err := repo.Update(c.Request.Context(), current, updatePrice); err != nil {
			respondErr(c, err, "update product failed")
			return
		}
		fresh, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err, "get product failed")
			return
		}
		respond(c, http.StatusOK, "Product updated successfully", gin.H{"product": fresh})
	}
}

func deleteProductHandler(repo product.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid product id", nil)
			return
		}
		ok, err := repo.Delete(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err, "delete product failed")
			return
		}
		if !ok {
			respond(c, http.StatusNotFound, "product not found", nil)
			return
		}
		respond(c, http.StatusOK, "Product deleted successfully", nil)
	}
}

// ---------- users ----------

func registerUserHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid json: "+err.Error(), nil)
			return
		}
		if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
			respond(c, http.StatusUnprocessableEntity, "name, email and a password of at least 8 characters are required", nil)
			return
		}
		phone := payment.NormalizePhone(req.Phone)
		if phone != "" && !payment.ValidLocalPhone(phone) {
			respond(c, http.StatusUnprocessableEntity, "phone must normalize to 11 digits starting with 09", nil)
			return
		}
		if _, err := repo.GetByEmail(c.Request.Context(), req.Email); err == nil {
			respondErr(c, user.ErrAlreadyExist, "registration failed")
			return
		}
		hash, err := user.HashPassword(req.Password)
		if err != nil {
			respondErr(c, err, "registration failed")
			return
		}
		u := &user.User{Name: req.Name, Email: req.Email, Phone: phone, PasswordHash: hash}
		if err := repo.Create(c.Request.Context(), u); err != nil {
			respondErr(c, err, "registration failed")
			return
		}
		respond(c, http.StatusCreated, "User registered successfully", gin.H{"user": u})
	}
}

// ---------- orders ----------

func listOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUser(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		orders, err := svc.List(c.Request.Context(), order.Query{
			UserID:        uid,
			Status:        c.Query("status"),
			PaymentStatus: c.Query("payment_status"),
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			respondErr(c, err, "list orders failed")
			return
		}
		respond(c, http.StatusOK, "Orders retrieved successfully", gin.H{"orders": orders})
	}
}

func createOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUser(c)
		if !ok {
			return
		}
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid json: "+err.Error(), nil)
			return
		}
		o, items, err := svc.CreateOrder(c.Request.Context(), uid, req.Items)
		if err != nil {
			respondErr(c, err, "order creation failed")
			return
		}
		respond(c, http.StatusCreated, "Order created successfully", gin.H{"order": o, "items": items})
	}
}

func getOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUser(c)
		if !ok {
			return
		}
		o, err := svc.GetByOrderIDAndUser(c.Request.Context(), c.Param("orderId"), uid)
		if err != nil {
			respondErr(c, err, "get order failed")
			return
		}
		items, err := svc.GetItems(c.Request.Context(), o.ID)
		if err != nil {
			respondErr(c, err, "get order items failed")
			return
		}
		respond(c, http.StatusOK, "Order retrieved successfully", gin.H{"order": o, "items": items})
	}
}

func updateOrderStatusHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid order id", nil)
			return
		}
		var req order.UpdateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid json: "+err.Error(), nil)
			return
		}
		o, err := svc.UpdateOrderStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			respondErr(c, err, "update order status failed")
			return
		}
		respond(c, http.StatusOK, "Order status updated successfully", gin.H{"order": o})
	}
}

// ---------- payment ----------

func paymentTokenHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUser(c)
		if !ok {
			return
		}
		var req payment.TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusUnprocessableEntity, "invalid json: "+err.Error(), nil)
			return
		}
		o, resp, err := svc.Initiate(c.Request.Context(), uid, req)
		if err != nil {
			respondErr(c, err, "payment initiation failed")
			return
		}
		respond(c, http.StatusOK, "Payment initiated successfully", gin.H{
			"order":            o,
			"payment_response": resp,
		})
	}
}

func paymentOrderDetailHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := requireUser(c)
		if !ok {
			return
		}
		o, err := svc.GetByOrderIDAndUser(c.Request.Context(), c.Param("orderId"), uid)
		if err != nil {
			respondErr(c, err, "get order failed")
			return
		}
		respond(c, http.StatusOK, "Order detail retrieved successfully", gin.H{"order": o})
	}
}

// paymentCallbackHandler is the public webhook. Authenticity lives inside
// payment.Service.Callback (decrypt + checksum); here we only hand over the
// raw body. Any error answers non-2xx so the provider keeps retrying.
func paymentCallbackHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			respond(c, http.StatusBadRequest, "unreadable body", nil)
			return
		}
		o, err := svc.Callback(c.Request.Context(), raw)
		if err != nil {
			respondErr(c, err, "callback processing failed")
			return
		}
		respond(c, http.StatusOK, "Callback processed successfully", gin.H{"order": o})
	}
}
