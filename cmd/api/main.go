package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	qrcode "github.com/skip2/go-qrcode"

	"kidcheck/internal/apperr"
	"kidcheck/internal/attendance"
	"kidcheck/internal/auth"
	"kidcheck/internal/config"
	"kidcheck/internal/envelope"
	"kidcheck/internal/httpmiddleware"
	"kidcheck/internal/metrics"
	"kidcheck/internal/queue"
	"kidcheck/internal/report"
	"kidcheck/internal/roster"
	"kidcheck/internal/scan"
	"kidcheck/internal/store"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "kidcheck:events")
	}

	codec, err := envelope.New(cfg.EnvelopeKey)
	if err != nil {
		return err
	}

	rosterRepo := roster.NewRepository(db.Client)
	attRepo := attendance.NewRepository(db.Client)
	engine := attendance.NewService(attRepo, rosterRepo, cfg.SameDayCheckout)
	resolver := scan.NewResolver(rosterRepo)
	denylist := auth.NewDenylist(redisClient.Client)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The health probe stays outside the envelope group: liveness checks
	// run before a client has any key material.
	r.GET("/health", func(c *gin.Context) {
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
	})

	api := r.Group("/api",
		httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute).Middleware(),
		httpmiddleware.Envelope(codec),
	)

	api.POST("/auth/register", func(c *gin.Context) {
		var req struct {
			FirstName string `json:"firstName" binding:"required"`
			LastName  string `json:"lastName" binding:"required"`
			Email     string `json:"email" binding:"required"`
			Password  string `json:"password" binding:"required,min=8"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
			return
		}
		staff, err := rosterRepo.CreateStaff(c.Request.Context(), roster.Staff{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			PasswordHash: hash,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		token, err := auth.Issue(staff.ID, staff.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token.Value, "user": staff})
	})

	api.POST("/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		staff, err := rosterRepo.StaffByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if staff == nil || !staff.Active || !auth.CheckPassword(staff.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		token, err := auth.Issue(staff.ID, staff.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token.Value, "user": staff})
	})

	authed := api.Group("", auth.StaffAuth(cfg.JWTSigningKey, cfg.JWTIssuer, denylist))

	authed.POST("/auth/logout", func(c *gin.Context) {
		tokenAny, _ := c.Get("token")
		tokenStr, _ := tokenAny.(string)
		claimsAny, _ := c.Get("claims")
		claims, _ := claimsAny.(auth.Claims)
		exp := time.Now().Add(cfg.AccessTTL)
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		if err := denylist.Revoke(c.Request.Context(), tokenStr, exp); err != nil {
			log.Printf("token revoke failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	authed.POST("/scan", func(c *gin.Context) {
		var req struct {
			QRData string `json:"qrData" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		payload, err := scan.ParsePayload(req.QRData)
		if err != nil {
			metrics.ScanRejections.Inc()
			writeError(c, err)
			return
		}
		result, err := resolver.Resolve(c.Request.Context(), payload)
		if err != nil {
			metrics.ScanRejections.Inc()
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	authed.POST("/parents", func(c *gin.Context) {
		var req roster.Parent
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		parent, err := rosterRepo.CreateParent(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, parent)
	})

	authed.POST("/parents/list", func(c *gin.Context) {
		parents, err := rosterRepo.ListParents(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if parents == nil {
			parents = []roster.Parent{}
		}
		c.JSON(http.StatusOK, parents)
	})

	// QR PNG for printing a family card. The image is not an envelope:
	// non-JSON bodies pass through the codec middleware untouched.
	authed.POST("/parents/qr", func(c *gin.Context) {
		var req struct {
			ID string `json:"id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		parent, err := rosterRepo.GetParent(c.Request.Context(), req.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		payload, err := scan.EncodePayload(scan.Payload{Family: parent.ID, Secret: parent.QRSecret})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode payload failed"})
			return
		}
		png, err := qrcode.Encode(payload, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	authed.POST("/parents/:id/children", func(c *gin.Context) {
		var req roster.Child
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		child, err := rosterRepo.CreateChild(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, child)
	})

	authed.POST("/children/list", func(c *gin.Context) {
		children, err := rosterRepo.ListChildren(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if children == nil {
			children = []roster.Child{}
		}
		c.JSON(http.StatusOK, children)
	})

	authed.POST("/attendance/checkin", func(c *gin.Context) {
		var req struct {
			ChildID string `json:"childId" binding:"required"`
			Notes   string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := engine.CheckIn(c.Request.Context(), req.ChildID, auth.StaffID(c), req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		metrics.CheckIns.Inc()
		publish(ctx, q, "checkin", rec)
		c.JSON(http.StatusCreated, rec)
	})

	authed.POST("/attendance/checkout", func(c *gin.Context) {
		var req struct {
			RecordID string `json:"recordId"`
			ChildID  string `json:"childId"`
			ParentID string `json:"parentId"`
			Notes    string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sel := attendance.Selector{RecordID: req.RecordID, ChildID: req.ChildID, ParentID: req.ParentID}
		recs, err := engine.CheckOut(c.Request.Context(), sel, auth.StaffID(c), req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		for _, rec := range recs {
			metrics.CheckOuts.Inc()
			publish(ctx, q, "checkout", rec)
		}
		c.JSON(http.StatusOK, recs)
	})

	authed.POST("/attendance/mark", func(c *gin.Context) {
		var req struct {
			ChildIDs []string `json:"childIds" binding:"required"`
			Action   string   `json:"action" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recs, err := engine.Mark(c.Request.Context(), req.ChildIDs, attendance.Action(req.Action), auth.StaffID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recs)
	})

	authed.POST("/attendance/open", func(c *gin.Context) {
		var req struct {
			ParentID string `json:"parentId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recs, err := engine.ListOpenFor(c.Request.Context(), req.ParentID)
		if err != nil {
			writeError(c, err)
			return
		}
		if recs == nil {
			recs = []attendance.Record{}
		}
		c.JSON(http.StatusOK, recs)
	})

	authed.POST("/attendance/list", func(c *gin.Context) {
		recs, err := engine.List(c.Request.Context(), attendance.Filter{})
		if err != nil {
			writeError(c, err)
			return
		}
		if recs == nil {
			recs = []attendance.Record{}
		}
		c.JSON(http.StatusOK, recs)
	})

	authed.POST("/attendance/reports/session", func(c *gin.Context) {
		recs, rows, err := dayReport(c, engine, rosterRepo)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": rows, "summary": report.Summarize(recs)})
	})

	// CSV leaves as text/csv, outside the envelope like the QR PNG.
	authed.POST("/attendance/reports/export", func(c *gin.Context) {
		_, rows, err := dayReport(c, engine, rosterRepo)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="attendance.csv"`)
		c.Status(http.StatusOK)
		if err := report.WriteCSV(c.Writer, rows); err != nil {
			log.Printf("csv export failed: %v", err)
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

// dayReport parses the requested date and builds the enriched record set.
func dayReport(c *gin.Context, engine *attendance.Service, rosterRepo *roster.Repository) ([]attendance.Record, []report.Row, error) {
	var req struct {
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, &apperr.ValidationError{Field: "date", Reason: "required"}
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		return nil, nil, &apperr.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	recs, err := engine.List(c.Request.Context(), attendance.Filter{
		From: day,
		To:   day.AddDate(0, 0, 1).Add(-time.Nanosecond),
	})
	if err != nil {
		return nil, nil, err
	}
	children, err := rosterRepo.ListChildren(c.Request.Context())
	if err != nil {
		return nil, nil, err
	}
	parents, err := rosterRepo.ListParents(c.Request.Context())
	if err != nil {
		return nil, nil, err
	}
	return recs, report.Enrich(recs, children, parents), nil
}

// publish fires an attendance event; queue failures are logged, not fatal.
func publish(ctx context.Context, q queue.Queue, kind string, rec attendance.Record) {
	evt := queue.Event{Kind: kind, RecordID: rec.ID, Date: rec.Date}
	if err := q.Publish(ctx, evt); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		validation *apperr.ValidationError
		authErr    *apperr.AuthError
		notFound   *apperr.NotFoundError
		conflict   *apperr.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// corsMiddleware allows browser frontends on other origins.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Bypass-Encryption")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeaders sets conservative browser protections.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
