package guard

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/gatewarden/gatewarden/engine"
	"github.com/gatewarden/gatewarden/policy"
	"github.com/gatewarden/gatewarden/session"
)

// Class discriminates how denials are rendered: API requests get machine-
// readable JSON errors, page requests get redirects a browser can follow.
type Class int

const (
	// ClassPage renders denials as 302 redirects.
	ClassPage Class = iota
	// ClassAPI renders denials as JSON error bodies.
	ClassAPI
)

func (c Class) String() string {
	if c == ClassAPI {
		return "api"
	}
	return "page"
}

// Classifier derives the request class from the path alone. It is a fixed
// prefix convention, not content negotiation: a browser hitting an API path
// still gets the JSON shape.
type Classifier struct {
	apiPrefixes []string
}

// NewClassifier builds a Classifier. With no prefixes given, everything
// under /api is API class.
func NewClassifier(apiPrefixes ...string) *Classifier {
	if len(apiPrefixes) == 0 {
		apiPrefixes = []string{"/api"}
	}
	return &Classifier{apiPrefixes: apiPrefixes}
}

// Classify returns the class for path.
func (cl *Classifier) Classify(path string) Class {
	for _, prefix := range cl.apiPrefixes {
		if policy.MatchesPrefix(path, prefix) {
			return ClassAPI
		}
	}
	return ClassPage
}

// Error bodies for API-class denials. Clients match on these strings.
const (
	msgAuthenticationRequired  = "authentication required"
	msgInsufficientPermissions = "insufficient permissions"
)

// Query parameters attached to page-class redirects.
const (
	paramCallback = "callbackUrl"
	paramRequired = "required"
	paramCurrent  = "current"
)

// Dispatcher renders decisions at the HTTP boundary. It holds only the two
// redirect targets; everything else it needs arrives per request.
type Dispatcher struct {
	signInURL string
	deniedURL string
}

// NewDispatcher builds a Dispatcher. Empty targets default to /signin and
// /denied.
func NewDispatcher(signInURL, deniedURL string) *Dispatcher {
	if signInURL == "" {
		signInURL = "/signin"
	}
	if deniedURL == "" {
		deniedURL = "/denied"
	}
	return &Dispatcher{signInURL: signInURL, deniedURL: deniedURL}
}

// Dispatch renders decision for the request. It reports whether it wrote a
// response: Allow writes nothing and returns false so the caller passes the
// request on.
//
// Unauthenticated API calls get 401, unauthorized ones 403. Unauthenticated
// page loads redirect to sign-in with the original URL in callbackUrl;
// unauthorized ones redirect to the denied page annotated with the required
// and current roles, which exist for display only and carry no authority.
func (d *Dispatcher) Dispatch(c echo.Context, decision engine.Decision, class Class, entry *policy.Entry, sess *session.Session) (bool, error) {
	switch decision {
	case engine.Allow:
		return false, nil
	case engine.DenyUnauthenticated:
		if class == ClassAPI {
			return true, c.JSON(http.StatusUnauthorized, map[string]string{"error": msgAuthenticationRequired})
		}
		return true, c.Redirect(http.StatusFound, d.signInTarget(c.Request().URL))
	case engine.DenyUnauthorized:
		if class == ClassAPI {
			return true, c.JSON(http.StatusForbidden, map[string]string{"error": msgInsufficientPermissions})
		}
		return true, c.Redirect(http.StatusFound, d.deniedTarget(entry, sess))
	}
	return false, nil
}

// signInTarget appends the originally requested URL so the sign-in flow can
// come back.
func (d *Dispatcher) signInTarget(reqURL *url.URL) string {
	target, err := url.Parse(d.signInURL)
	if err != nil {
		return d.signInURL
	}
	q := target.Query()
	q.Set(paramCallback, reqURL.RequestURI())
	target.RawQuery = q.Encode()
	return target.String()
}

// deniedTarget annotates the denied page with what was required and what
// the caller had.
func (d *Dispatcher) deniedTarget(entry *policy.Entry, sess *session.Session) string {
	target, err := url.Parse(d.deniedURL)
	if err != nil {
		return d.deniedURL
	}
	q := target.Query()
	if entry != nil {
		if label := entry.Requirement.String(); label != "" {
			q.Set(paramRequired, label)
		}
	}
	if sess != nil && sess.Role != "" {
		q.Set(paramCurrent, string(sess.Role))
	}
	target.RawQuery = q.Encode()
	return target.String()
}
