// Package admin exposes a read-mostly HTTP view of a running transport
// server: health, metrics, live connections, groups and registered commands.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/danmuck/netcore/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const Version = "0.1.0"

type Admin struct {
	Addr    string
	Started time.Time

	server     *transport.Server
	dispatcher *command.Dispatcher
	router     *gin.Engine
}

// New builds the router. dispatcher may be nil, in which case /commands
// reports an empty list.
func New(addr string, server *transport.Server, dispatcher *command.Dispatcher, corsOrigins []string) *Admin {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestObserver(logging.For("admin")))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		Addr:       addr,
		Started:    time.Now(),
		server:     server,
		dispatcher: dispatcher,
		router:     r,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

func (a *Admin) registerRoutes() {
	r := a.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(a.Started).String(),
			"connections": a.server.Len(),
			"version":     Version,
		})
	})

	r.GET("/metrics", gin.WrapH(observability.Handler()))

	r.GET("/connections", func(c *gin.Context) {
		group := strings.TrimSpace(c.Query("group"))
		conns := a.server.Conns()
		if group != "" {
			conns = a.server.Group(group)
		}
		out := make([]transport.Info, 0, len(conns))
		for _, conn := range conns {
			out = append(out, conn.Info())
		}
		c.JSON(http.StatusOK, gin.H{"connections": out})
	})

	r.GET("/connections/:id", func(c *gin.Context) {
		conn, ok := a.server.Conn(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": transport.ErrNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, conn.Info())
	})

	r.DELETE("/connections/:id", func(c *gin.Context) {
		if err := a.server.Disconnect(c.Param("id")); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, transport.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
	})

	r.GET("/groups", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"groups": a.server.Groups()})
	})

	r.GET("/commands", func(c *gin.Context) {
		names := []string{}
		if a.dispatcher != nil {
			names = a.dispatcher.Registry().Names()
		}
		c.JSON(http.StatusOK, gin.H{"commands": names})
	})

	r.POST("/broadcast", a.broadcast)
}

type broadcastRequest struct {
	Group   string `json:"group"`
	Message string `json:"message" binding:"required"`
}

// broadcast wraps the message as {message: <text>} and sends it to every
// connection, or to one group when group is set.
func (a *Admin) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := value.NewMap()
	m.SetString("message", req.Message)
	payload, err := value.Marshal(m)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sent int
	if group := strings.TrimSpace(req.Group); group != "" {
		sent, err = a.server.BroadcastGroup(c.Request.Context(), group, payload)
	} else {
		sent, err = a.server.Broadcast(c.Request.Context(), payload)
	}
	body := gin.H{"sent": sent}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// Serve listens on Addr until ctx ends, then shuts down gracefully.
func (a *Admin) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		l := logging.For("admin")
		l.Info().Str("addr", a.Addr).Msg("admin.Serve listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
