package main

import (
	"log"
	"net/http"

	"github.com/zenwell/roomchat/internal/config"
	"github.com/zenwell/roomchat/internal/server"
	"github.com/zenwell/roomchat/internal/store"
)

func main() {
	cfg := config.Load()

	s, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer s.Close()

	h, err := server.New(s, cfg.MaxHistory)
	if err != nil {
		log.Fatalf("hub: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.Health())
	mux.HandleFunc("/rooms", server.Rooms(h))
	mux.HandleFunc("/ws", server.ServeWS(h))

	wrapped := server.Logging(server.CORS(mux))

	addr := ":" + cfg.Port
	log.Printf("roomchat dev server listening on %s", addr)
	if err := http.ListenAndServe(addr, wrapped); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
