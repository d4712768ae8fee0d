package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/shuuro/go/internal/config"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.Get("/ws", services.Gateway.ServeHTTP)
	setupHealthCheck(r)
	setupStats(r, services)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           h2c.NewHandler(c.Handler(r), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupHealthCheck(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

type statsResponse struct {
	Connections int `json:"connections"`
	Players     int `json:"players"`
	Rooms       int `json:"rooms"`
	Challenges  int `json:"challenges"`
	ChatRooms   int `json:"chat_rooms"`
	Games       int `json:"games"`
}

func setupStats(r chi.Router, services *Services) {
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		hs := services.Hub.Stats()
		stats := statsResponse{
			Connections: hs.Connections,
			Players:     hs.Players,
			Rooms:       hs.Rooms,
			Challenges:  hs.Challenges,
			ChatRooms:   hs.ChatRooms,
			Games:       services.Registry.Count(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Error().Err(err).Msg("failed to write stats response")
		}
	})
}
