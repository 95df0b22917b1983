package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/stevemurr/hawk"
	"github.com/stevemurr/hawk/handler"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// corsMiddleware wraps an http.Handler with CORS headers.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range allowedOrigins {
				if strings.TrimSpace(o) == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loadConfig starts from HAWK_CONFIG (or the defaults) and applies the
// environment on top.
func loadConfig() (hawk.Config, error) {
	cfg := hawk.DefaultConfig()
	if path := os.Getenv("HAWK_CONFIG"); path != "" {
		loaded, err := hawk.LoadConfig(path)
		if err != nil {
			return hawk.Config{}, err
		}
		cfg = *loaded
	}

	cfg.Merge(&hawk.Config{
		Password:          os.Getenv("HAWK_PASSWORD"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		DisableEncryption: env("HAWK_DISABLE_ENCRYPTION", "false") == "true",
		Serializer:        os.Getenv("HAWK_SERIALIZER"),
		KDF:               os.Getenv("HAWK_KDF"),
		Store: hawk.StoreConfig{
			Backend: os.Getenv("STORE_BACKEND"),
			DataDir: os.Getenv("DATA_DIR"),
		},
	})
	return cfg, nil
}

func main() {
	host := env("HOST", "127.0.0.1")
	port := env("PORT", "8080")
	origins := env("ALLOWED_ORIGINS", "*")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hawkd: %v\n", err)
		os.Exit(1)
	}
	level, err := hawk.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hawkd: %v\n", err)
		os.Exit(1)
	}
	logger := hclog.New(&hclog.LoggerOptions{Name: "hawkd", Level: level})
	cfg.Logger = logger

	h, err := hawk.Open(cfg)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer h.Close()

	wrapped := corsMiddleware(handler.New(h, logger), strings.Split(origins, ","))

	addr := fmt.Sprintf("%s:%s", host, port)
	logger.Info("hawkd starting", "addr", addr, "store", cfg.Store.Backend, "data", cfg.Store.DataDir, "state", h.State())
	if err := http.ListenAndServe(addr, wrapped); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

