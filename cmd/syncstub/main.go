// Command syncstub runs a development stand-in for the remote observation
// registry. It accepts record pushes, assigns server identifiers, serves a
// changes feed, and exposes Prometheus metrics.
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldlog/internal/logging"
	"fieldlog/pkg/domain"
)

func main() {
	_ = godotenv.Load()
	addr := flag.String("addr", envOr("FIELDLOG_SYNCSTUB_ADDR", ":8787"), "listen address")
	flag.Parse()

	log := logging.New()
	reg := newRegistry()
	router := newRouter(reg)

	log.Info("syncstub listening", "addr", *addr)
	if err := router.Run(*addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRouter(reg *registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/records", func(c *gin.Context) {
			var obs domain.Observation
			if err := c.ShouldBindJSON(&obs); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record body"})
				return
			}
			if obs.ID == "" {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "record missing local id"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"serverId": reg.create(obs)})
		})
		api.GET("/records", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"records": reg.list()})
		})
		api.PUT("/records/:id", func(c *gin.Context) {
			var obs domain.Observation
			if err := c.ShouldBindJSON(&obs); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record body"})
				return
			}
			if !reg.update(c.Param("id"), obs) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown record"})
				return
			}
			c.Status(http.StatusNoContent)
		})
		api.DELETE("/records/:id", func(c *gin.Context) {
			if !reg.delete(c.Param("id")) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown record"})
				return
			}
			c.Status(http.StatusNoContent)
		})
		api.GET("/records/changes", func(c *gin.Context) {
			var cursor time.Time
			if since := c.Query("since"); since != "" {
				parsed, err := time.Parse(time.RFC3339Nano, since)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since cursor"})
					return
				}
				cursor = parsed
			}
			entries, next := reg.changesSince(cursor)
			records := make([]gin.H, 0, len(entries))
			for _, entry := range entries {
				records = append(records, gin.H{
					"serverId":  entry.ServerID,
					"localId":   entry.LocalID,
					"updatedAt": entry.At,
				})
			}
			resp := gin.H{"records": records}
			if next.After(cursor) || !next.IsZero() {
				resp["next"] = next.UTC().Format(time.RFC3339Nano)
			}
			c.JSON(http.StatusOK, resp)
		})
	}
	return r
}
