package api

import (
	"log/slog"

	"github.com/redlinekit/redline/internal/store"
)

// Config holds server configuration. A nil Store keeps conversions in the
// in-memory rendering cache only.
type Config struct {
	Addr      string       // listen address, e.g. ":8080"
	CacheSize int          // rendering cache entries (0 = default)
	Store     *store.Store // optional persistent conversion store
	Logger    *slog.Logger // nil = slog.Default()
}
