// Package audit gates audit starts: ValidateURL checks a target before a
// credit is spent and Planner turns a valid target into a started audit.
package audit

import (
	"net/url"
	"strings"

	"github.com/dmitrijs2005/aivedhaguard/internal/netx"
)

const (
	MsgInvalidFormat = "Invalid URL format. Enter a full address such as https://example.com"
	MsgProtocol      = "Only HTTP and HTTPS URLs can be audited"
	MsgPrivateHost   = "Cannot audit localhost or private/local network addresses"
	MsgNoTLD         = "Domain name must include a top-level domain (for example example.com)"
	MsgInsecureHTTP  = "The site uses HTTP; HTTPS is recommended and some checks will report it"
	MsgIPLiteral     = "Auditing an IP address directly; certificate checks may not match a domain"
)

// ValidationResult is produced per audit attempt and never persisted.
type ValidationResult struct {
	IsValid       bool     `json:"isValid"`
	Hostname      string   `json:"hostname,omitempty"`
	Protocol      string   `json:"protocol,omitempty"`
	NormalizedURL string   `json:"normalizedUrl,omitempty"`
	Warnings      []string `json:"warnings"`
	Errors        []string `json:"errors"`
}

// CanProceed gates the start action: a validated target with no errors,
// warnings allowed.
func (r ValidationResult) CanProceed() bool {
	return r.IsValid && len(r.Errors) == 0 && r.NormalizedURL != ""
}

// ValidateURL checks raw without touching the network. It never panics;
// every failure is reported in the result. Input without a scheme is read
// as https.
func ValidateURL(raw string) ValidationResult {
	res := ValidationResult{Warnings: []string{}, Errors: []string{}}

	s := strings.TrimSpace(raw)
	if s != "" && !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if s == "" || err != nil || u.Hostname() == "" {
		res.Errors = append(res.Errors, MsgInvalidFormat)
		return res
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	res.Protocol = scheme + ":"
	res.Hostname = host

	if scheme != "http" && scheme != "https" {
		res.Errors = append(res.Errors, MsgProtocol)
	}

	switch netx.ClassifyHost(host) {
	case netx.HostLocal, netx.HostPrivate:
		res.Errors = append(res.Errors, MsgPrivateHost)
	default:
		if netx.IsIPLiteral(host) {
			res.Warnings = append(res.Warnings, MsgIPLiteral)
		} else if !strings.Contains(host, ".") {
			res.Errors = append(res.Errors, MsgNoTLD)
		}
	}

	if scheme == "http" {
		res.Warnings = append(res.Warnings, MsgInsecureHTTP)
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	res.NormalizedURL = u.String()
	res.IsValid = len(res.Errors) == 0
	return res
}
