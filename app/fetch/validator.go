package fetch

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/research-comb/app/metrics"
	"golang.org/x/net/idna"
)

// Reason is the human readable explanation attached to a rejected URL.
type Reason string

const (
	ReasonInvalidFormat  Reason = "Invalid URL format"
	ReasonScheme         Reason = "Only HTTP and HTTPS URLs are allowed"
	ReasonLoopback       Reason = "Localhost URLs are not allowed"
	ReasonMetadata       Reason = "Cloud metadata URLs are not allowed"
	ReasonPrivateNetwork Reason = "Private network URLs are not allowed"
	ReasonPrivateIPv6    Reason = "Private IPv6 addresses are not allowed"
)

// ErrRejected is wrapped by every error produced for a URL that failed validation.
var ErrRejected = errors.New("url rejected")

// RejectedError carries the rejection reason of a URL that must not be fetched.
type RejectedError struct {
	URL    string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return string(e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// Outcome is the verdict of Validate. URL is only populated for valid URLs.
type Outcome struct {
	Valid  bool
	Reason Reason
	URL    *url.URL
}

// Err converts a negative outcome into an error, nil otherwise.
func (o Outcome) Err() error {
	if o.Valid {
		return nil
	}
	return &RejectedError{Reason: o.Reason}
}

var blockedHostnames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"::1":       true,
}

var metadataHosts = map[string]bool{
	"169.254.169.254": true, // AWS, GCP, Azure
	"169.254.170.2":   true, // AWS ECS task metadata
	"fd00:ec2::254":   true, // AWS IPv6
}

var privateIPPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^10\.\d{1,3}\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^172\.(1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^192\.168\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^169\.254\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^127\.\d{1,3}\.\d{1,3}\.\d{1,3}$`),
	regexp.MustCompile(`^0\.\d{1,3}\.\d{1,3}\.\d{1,3}$`),
}

// Validate decides whether rawURL may be dereferenced by the server. It only
// looks at the literal host; names that resolve to private addresses pass.
func Validate(rawURL string) Outcome {
	outcome := validate(rawURL)
	if !outcome.Valid {
		metrics.URLRejections.WithLabelValues(string(outcome.Reason)).Inc()
	}
	return outcome
}

func validate(rawURL string) Outcome {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return reject(ReasonInvalidFormat)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return reject(ReasonScheme)
	}

	host, bracketed, err := canonicalHost(parsed)
	if err != nil {
		return reject(ReasonInvalidFormat)
	}

	if blockedHostnames[host] {
		return reject(ReasonLoopback)
	}

	if metadataHosts[host] {
		return reject(ReasonMetadata)
	}

	for _, pattern := range privateIPPatterns {
		if pattern.MatchString(host) {
			return reject(ReasonPrivateNetwork)
		}
	}

	// IPv4-mapped (::ffff:a.b.c.d) and unspecified (::) literals pass, as do
	// hostnames that resolve to private addresses.
	if bracketed {
		if strings.HasPrefix(host, "fe80:") ||
			strings.HasPrefix(host, "fc") ||
			strings.HasPrefix(host, "fd") ||
			host == "::1" {
			return reject(ReasonPrivateIPv6)
		}
	}

	return Outcome{Valid: true, URL: parsed}
}

func reject(reason Reason) Outcome {
	return Outcome{Valid: false, Reason: reason}
}

// canonicalHost returns the lower-cased host in the form a browser would
// serialize it: IPv4 shorthand expanded to dotted-quad and IPv6 literals
// compressed. The bool reports whether the host was a bracketed IPv6 literal.
func canonicalHost(parsed *url.URL) (string, bool, error) {
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", false, fmt.Errorf("empty host")
	}

	if strings.HasPrefix(parsed.Host, "[") {
		addr, err := netip.ParseAddr(host)
		if err != nil || !addr.Is6() || addr.Zone() != "" {
			return "", true, fmt.Errorf("invalid IPv6 literal %q", host)
		}
		return addr.String(), true, nil
	}

	if !isASCII(host) {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	}

	ipv4, ok, err := parseIPv4Host(host)
	if err != nil {
		return "", false, err
	}
	if ok {
		return ipv4, false, nil
	}

	return host, false, nil
}

// parseIPv4Host applies the WHATWG IPv4 host rules: a host whose last label is
// numeric is an IPv4 address in decimal, octal or hex notation with one to four
// parts. ok is false for ordinary domain names.
func parseIPv4Host(host string) (string, bool, error) {
	parts := strings.Split(host, ".")
	if parts[len(parts)-1] == "" && len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}

	if _, err := parseIPv4Number(parts[len(parts)-1]); err != nil {
		return "", false, nil
	}

	if len(parts) > 4 {
		return "", false, fmt.Errorf("too many IPv4 parts in %q", host)
	}

	numbers := make([]uint64, len(parts))
	for i, part := range parts {
		n, err := parseIPv4Number(part)
		if err != nil {
			return "", false, fmt.Errorf("invalid IPv4 part %q: %w", part, err)
		}
		if i < len(parts)-1 && n > 255 {
			return "", false, fmt.Errorf("IPv4 part %q out of range", part)
		}
		numbers[i] = n
	}

	last := numbers[len(numbers)-1]
	if last >= 1<<(8*(5-len(numbers))) {
		return "", false, fmt.Errorf("IPv4 address %q out of range", host)
	}

	value := last
	for i, n := range numbers[:len(numbers)-1] {
		value += n << (8 * (3 - i))
	}

	addr := netip.AddrFrom4([4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)})
	return addr.String(), true, nil
}

func parseIPv4Number(part string) (uint64, error) {
	if part == "" {
		return 0, fmt.Errorf("empty part")
	}

	base := 10
	switch {
	case strings.HasPrefix(part, "0x") || strings.HasPrefix(part, "0X"):
		part = part[2:]
		base = 16
		if part == "" {
			return 0, nil
		}
	case len(part) > 1 && part[0] == '0':
		part = part[1:]
		base = 8
	}

	for _, r := range part {
		if !isDigitInBase(r, base) {
			return 0, fmt.Errorf("not a base %d number", base)
		}
	}

	return strconv.ParseUint(part, base, 64)
}

func isDigitInBase(r rune, base int) bool {
	switch base {
	case 8:
		return r >= '0' && r <= '7'
	case 16:
		return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	default:
		return r >= '0' && r <= '9'
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
