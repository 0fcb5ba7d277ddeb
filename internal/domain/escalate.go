package domain

import (
	"net/http"
	"strings"
)

// Reason is a machine-readable classification of a failed or unusable
// fetch attempt. Reasons feed the feedback recorder's behavior flags.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonHTTPDenied   Reason = "http_denied"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonBotChallenge Reason = "bot_challenge"
	ReasonCaptcha      Reason = "captcha"
	ReasonJSShell      Reason = "js_shell"
	ReasonEnableJS     Reason = "enable_javascript"
	ReasonThinBody     Reason = "thin_body"
	ReasonTransport    Reason = "transport_error"
	ReasonTimeout      Reason = "timeout"
)

// Heuristics classifies a transport-successful response body as usable
// content or a soft failure requiring tier escalation. All checks are
// substring scans; no DOM parse.
type Heuristics struct {
	// MinBodyBytes is the boundary between "legitimately thin content"
	// and a body worth escalating over. Tunable, not a constant.
	MinBodyBytes int
}

var challengeMarkers = []string{
	"checking your browser",
	"just a moment",
	"cf-browser-verification",
	"cf_chl_",
	"attention required",
	"verifying you are human",
	"ddos protection by",
}

var captchaMarkers = []string{
	"g-recaptcha",
	"recaptcha",
	"hcaptcha",
	"captcha",
}

var shellMarkers = []string{
	`id="root"`,
	`id="app"`,
	"__next",
	"data-reactroot",
	"ng-version",
}

var enableJSMarkers = []string{
	"enable javascript",
	"javascript is required",
	"please enable cookies",
	"you need to enable javascript",
}

// Classify decides whether a result must escalate to the next tier even
// though the transport succeeded. Hard access-denial statuses always
// escalate; otherwise the body is scanned for challenge, captcha,
// JS-shell, and enable-JS markers in that order.
func (h Heuristics) Classify(statusCode int, body []byte) (bool, Reason) {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusProxyAuthRequired, http.StatusUnavailableForLegalReasons:
		return true, ReasonHTTPDenied
	case http.StatusTooManyRequests:
		return true, ReasonRateLimited
	case http.StatusServiceUnavailable:
		// 503 is how challenge interstitials usually present.
		return true, ReasonBotChallenge
	}

	lower := strings.ToLower(string(body))

	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true, ReasonBotChallenge
		}
	}
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return true, ReasonCaptcha
		}
	}
	for _, m := range shellMarkers {
		if strings.Contains(lower, m) && visibleTextLen(lower) < 200 {
			return true, ReasonJSShell
		}
	}
	for _, m := range enableJSMarkers {
		if strings.Contains(lower, m) {
			return true, ReasonEnableJS
		}
	}
	if strings.Contains(lower, "loading...") && visibleTextLen(lower) < 100 {
		return true, ReasonEnableJS
	}

	// Measured on visible text, not raw bytes, so tag-heavy but
	// content-thin pages still escalate.
	if visibleTextLen(lower) < h.MinBodyBytes {
		return true, ReasonThinBody
	}
	return false, ReasonNone
}

// visibleTextLen counts bytes outside tags and outside script/style
// blocks. Cheap single pass; good enough to tell a framework shell from
// a rendered page.
func visibleTextLen(lower string) int {
	n := 0
	inTag := false
	inScript := false
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c == '<' {
			inTag = true
			if strings.HasPrefix(lower[i:], "<script") || strings.HasPrefix(lower[i:], "<style") {
				inScript = true
			}
			if strings.HasPrefix(lower[i:], "</script") || strings.HasPrefix(lower[i:], "</style") {
				inScript = false
			}
			continue
		}
		if c == '>' {
			inTag = false
			continue
		}
		if !inTag && !inScript && c != ' ' && c != '\n' && c != '\t' && c != '\r' {
			n++
		}
	}
	return n
}
