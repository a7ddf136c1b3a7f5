package server

import (
	"context"
	"net/http"
	"strings"

	"savoro/internal/handlers"
	applog "savoro/internal/log"
	"savoro/internal/storage"
)

func newRouter(files *storage.Local) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	mux.HandleFunc("/login", handlers.Login)
	mux.HandleFunc("/signup", handlers.Signup)
	mux.HandleFunc("/logout", handlers.Logout)
	mux.HandleFunc("/guest-login", handlers.GuestLogin)
	mux.Handle("/recipes", handlers.RequireAuthentication(http.HandlerFunc(handlers.RecipeResource)))
	mux.Handle("/recipes/", handlers.RequireAuthentication(http.HandlerFunc(handlers.RecipeResource)))
	applog.Debug(context.Background(), "route registered", "path", "/recipes", "protected", true)

	if files != nil {
		prefix := strings.TrimRight(files.BaseURL(), "/") + "/"
		mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(files.Root()))))
		applog.Debug(context.Background(), "route registered", "path", prefix, "static", true)
	}
	return mux
}
