package util

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var asinPathRegex = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d|product)/([A-Z0-9]{10})(?:[/?]|$)`)

// ExtractASIN returns the ASIN embedded in an Amazon product URL path, or ""
// when none is present. Sponsored redirect links carry the real target in the
// "url" query parameter, which is inspected as well.
func ExtractASIN(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if m := asinPathRegex.FindStringSubmatch(parsed.EscapedPath()); m != nil {
		return m[1]
	}
	if inner := parsed.Query().Get("url"); inner != "" {
		if m := asinPathRegex.FindStringSubmatch(inner); m != nil {
			return m[1]
		}
	}
	return ""
}

// RegistrableDomain returns the eTLD+1 of the URL's host, e.g. "amazon.co.uk".
func RegistrableDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return publicsuffix.EffectiveTLDPlusOne(host)
}

// NormalizeProductURL resolves href against base and, when the link points at
// a product, rewrites it to the canonical "{base}/dp/{ASIN}" form so the same
// product reached through different tracking links compares equal. Links to
// other registrable domains are rejected.
func NormalizeProductURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL %s: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("failed to parse href %s: %w", href, err)
	}
	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("invalid URL scheme %s: only http and https allowed", abs.Scheme)
	}

	baseDomain, err := RegistrableDomain(baseURL.String())
	if err != nil {
		return "", err
	}
	linkDomain, err := RegistrableDomain(abs.String())
	if err != nil {
		return "", err
	}
	if linkDomain != baseDomain {
		return "", fmt.Errorf("link domain %s is outside %s", linkDomain, baseDomain)
	}

	if asin := ExtractASIN(abs.String()); asin != "" {
		return fmt.Sprintf("%s://%s/dp/%s", baseURL.Scheme, baseURL.Host, asin), nil
	}

	abs.Fragment = ""
	queryParams := abs.Query()
	trackingParams := []string{"ref", "ref_", "pf_rd_r", "pf_rd_p", "pd_rd_r", "pd_rd_w", "pd_rd_wg", "qid", "sr", "sprefix", "crid", "content-id"}
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	abs.RawQuery = queryParams.Encode()
	return abs.String(), nil
}
