package exchange

import (
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger overrides the package-level logger used by the exchange. Tests
// and embedding services can call this to redirect or silence output.
// NewExchange copies this logger at construction, so an Exchange built
// before the call keeps the logger it already had.
func SetLogger(l *slog.Logger) {
	logger = l
}
