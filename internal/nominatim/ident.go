package nominatim

import "net/http"

// DefaultUserAgent is sent when no Identification is configured.
// The public Nominatim instance rejects requests from generic or missing user agents:
// https://operations.osmfoundation.org/policies/nominatim/
const DefaultUserAgent = "Cartographer-Geocoding-Client/1.0 (https://github.com/UnknownOlympus/cartographer)"

// Identification tells the Nominatim server who is making requests.
type Identification struct {
	header string
	value  string
}

// UserAgent identifies the application through the User-Agent header.
func UserAgent(agent string) Identification {
	return Identification{header: "User-Agent", value: agent}
}

// Referer identifies a web application through the Referer header.
func Referer(referer string) Identification {
	return Identification{header: "Referer", value: referer}
}

// Header returns the HTTP header name used for identification.
func (i Identification) Header() string { return i.header }

// Value returns the header value.
func (i Identification) Value() string { return i.value }

func (i Identification) apply(h http.Header) {
	if i.header == "" || i.value == "" {
		h.Set("User-Agent", DefaultUserAgent)
		return
	}
	h.Set(i.header, i.value)
	if i.header != "User-Agent" {
		h.Set("User-Agent", DefaultUserAgent)
	}
}
