package ws

import (
	"net/http"

	"gopkg.in/yaml.v3"

	"tankarena.gg/internal/sim/tuning"
)

// ConfigHandler serves the tuning document clients predict with. The bytes
// are the ones the server loaded, so a client-side digest matches the one in
// playerJoined.
func ConfigHandler(t tuning.Tuning) http.HandlerFunc {
	raw := t.Raw()
	if raw == nil {
		raw, _ = yaml.Marshal(t)
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/yaml")
		if d := t.Digest(); d != "" {
			rw.Header().Set("ETag", `"`+d+`"`)
		}
		_, _ = rw.Write(raw)
	}
}
