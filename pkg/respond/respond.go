package respond

import (
	"encoding/json"
	"net/http"

	"github.com/benningd54/Anlab/internal/platform/log"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error("failed to encode json", log.Err(err))
	}
}

func Error(w http.ResponseWriter, status int, msg string) {
	type e struct {
		Error string `json:"error"`
	}
	JSON(w, status, e{Error: msg})
}
