package gateway

import (
	"log"
	"net/http"
	"strings"
	"time"

	"signalopt/internal/metrics"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPHeader carries the operator's one-time code on mutating requests.
const TOTPHeader = "X-TOTP-Code"

// TOTPGuard rejects requests without a valid time-based code.
// An empty secret disables the check.
type TOTPGuard struct {
	secret  string
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewTOTPGuard creates a guard for the base32 secret.
func NewTOTPGuard(secret string, m *metrics.Metrics) *TOTPGuard {
	return &TOTPGuard{secret: strings.TrimSpace(secret), metrics: m, now: time.Now}
}

// Enabled reports whether codes are checked.
func (g *TOTPGuard) Enabled() bool { return g.secret != "" }

// Valid reports whether code is accepted at the current time, allowing
// one period of clock skew either way.
func (g *TOTPGuard) Valid(code string) bool {
	if !g.Enabled() {
		return true
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), g.secret, g.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		log.Printf("[gateway] totp validate: %v", err)
		return false
	}
	return ok
}

// Wrap guards next.
func (g *TOTPGuard) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Valid(r.Header.Get(TOTPHeader)) {
			g.count("rejected")
			writeError(w, http.StatusUnauthorized, "invalid or missing "+TOTPHeader)
			return
		}
		next(w, r)
	}
}

func (g *TOTPGuard) count(result string) {
	if g.metrics != nil {
		g.metrics.OverrideTotal.WithLabelValues(result).Inc()
	}
}
