package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zayyarwin/mmshop/internal/cache"
	"github.com/zayyarwin/mmshop/internal/config"
	"github.com/zayyarwin/mmshop/internal/events"
	"github.com/zayyarwin/mmshop/internal/httpx"
	"github.com/zayyarwin/mmshop/internal/logging"
	"github.com/zayyarwin/mmshop/internal/order"
	"github.com/zayyarwin/mmshop/internal/payment"
	"github.com/zayyarwin/mmshop/internal/postgres"
	"github.com/zayyarwin/mmshop/internal/product"
	"github.com/zayyarwin/mmshop/internal/user"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres connect: %v", err)
	}
	defer pool.Close()

	rdb := cache.NewClient(cfg.RedisAddr)
	idem := cache.NewIdempotencyStore(rdb, 24*time.Hour)

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	auditLog := logging.NewPaymentLogger(cfg.PaymentLogPath)

	productRepo := product.NewPGRepo(pool)
	orderRepo := order.NewPGRepo(pool)
	userRepo := user.NewPGRepo(pool)

	orderSvc := order.NewService(productRepo, orderRepo, publisher)
	gateway := payment.NewGateway(cfg.Dinger, auditLog)
	paymentSvc := payment.NewService(gateway, orderSvc, userRepo, idem, cfg.Dinger.CallbackKey, auditLog)

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	v1 := r.Group("/api/v1")
	{
		// public catalog
		v1.GET("/products", listProductsHandler(productRepo))
		v1.GET("/products/:id", getProductHandler(productRepo))

		// admin catalog CRUD (authorization handled upstream)
		v1.POST("/products", createProductHandler(productRepo))
		v1.PUT("/products/:id", updateProductHandler(productRepo))
		v1.DELETE("/products/:id", deleteProductHandler(productRepo))

		// account creation; session issuance lives in the upstream gateway
		v1.POST("/users", registerUserHandler(userRepo))

		// orders, scoped to the forwarded user
		v1.GET("/orders", listOrdersHandler(orderSvc))
		v1.POST("/orders", createOrderHandler(orderSvc))
		v1.GET("/orders/:orderId", getOrderHandler(orderSvc))
		v1.PATCH("/admin/orders/:id/status", updateOrderStatusHandler(orderSvc))

		// payment
		v1.POST("/payment/token", paymentTokenHandler(paymentSvc))
		v1.GET("/payment/order/:orderId", paymentOrderDetailHandler(orderSvc))

		// public webhook: the provider authenticates via payload checksum
		v1.POST("/payment/callback", paymentCallbackHandler(paymentSvc))
	}

	log.Printf("api listening on %s", cfg.APIAddr)
	log.Fatal(r.Run(cfg.APIAddr))
}
