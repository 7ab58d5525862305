package www

import (
	"encoding/json"
	"net/http"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

// Handle wraps an httprouter handler so that a panic'ed HTTPError turns
// into the corresponding HTTP response, and any other panic becomes a 500.
func Handle(log logs.Log, handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		defer func() {
			if rec := recover(); rec != nil {
				if httpErr, ok := rec.(HTTPError); ok {
					http.Error(w, httpErr.Message, httpErr.Code)
				} else {
					log.Errorf("Panic in HTTP handler %v: %v", r.URL.Path, rec)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}
		}()
		handler(w, r, params)
	}
}

// SendJSON encodes obj and writes it as the response body.
func SendJSON(w http.ResponseWriter, obj any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
