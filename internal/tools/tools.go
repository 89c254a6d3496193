package tools

import (
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	layoutInput = "2006-01-02T15:04"
	LayoutDB    = "2006-01-02 15:04:05"
)

// Prevent out-of-network requests to dashboard endpoints
func CheckInNetwork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		parsedIP := net.ParseIP(ip)
		if parsedIP == nil {
			http.Error(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if !isLocalAddress(parsedIP) {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isLocalAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate()
}

// Get the start and end dates from the request, format them for comparison with the DB.
// Form values are read in loc; missing values select the span ending now.
func ParseStartAndEndDate(r *http.Request, loc *time.Location, span time.Duration) (string, string) {
	r.ParseForm()
	now := time.Now().UTC()
	startDate := now.Add(-span).Format(LayoutDB)
	endDate := now.Format(LayoutDB)
	if start := r.FormValue("start"); start != "" {
		if t, err := time.ParseInLocation(layoutInput, start, loc); err != nil {
			logrus.WithError(err).Warn("Error parsing start date")
		} else {
			startDate = t.UTC().Format(LayoutDB)
		}
	}
	if end := r.FormValue("end"); end != "" {
		if t, err := time.ParseInLocation(layoutInput, end, loc); err != nil {
			logrus.WithError(err).Warn("Error parsing end date")
		} else {
			endDate = t.UTC().Format(LayoutDB)
		}
	}
	return startDate, endDate
}
