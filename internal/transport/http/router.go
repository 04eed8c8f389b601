package http

import (
	"net/http"
)

// NewRouter mounts the health check, chat socket, operator status and local media.
func NewRouter(ws *WSHandler, admin *AdminHandler, mediaRoot string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServeWS)
	mux.HandleFunc("/admin/status", admin.ServeStatus)
	if mediaRoot != "" {
		mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaRoot))))
	}
	return mux
}
