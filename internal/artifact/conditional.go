package artifact

import (
	"net/http"
	"strings"
	"time"
)

// Conditional carries the validators a client sent with its request.
type Conditional struct {
	IfNoneMatch     string
	IfModifiedSince string
}

// FromRequest extracts the conditional headers from r.
func FromRequest(r *http.Request) Conditional {
	return Conditional{
		IfNoneMatch:     r.Header.Get("If-None-Match"),
		IfModifiedSince: r.Header.Get("If-Modified-Since"),
	}
}

// NotModified reports whether the client already holds e. If-None-Match
// takes precedence: when it is present If-Modified-Since is ignored.
func (e Entry) NotModified(c Conditional) bool {
	if inm := strings.TrimSpace(c.IfNoneMatch); inm != "" {
		return etagMatches(inm, e.ContentHash)
	}
	if ims := strings.TrimSpace(c.IfModifiedSince); ims != "" {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		// HTTP dates carry whole seconds only.
		return !e.LastModified.Truncate(time.Second).After(since)
	}
	return false
}

// etagMatches uses weak comparison over a comma separated If-None-Match list.
func etagMatches(header, hash string) bool {
	if hash == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		if tag == "*" {
			return true
		}
		tag = strings.TrimPrefix(tag, "W/")
		if strings.Trim(tag, `"`) == hash {
			return true
		}
	}
	return false
}
