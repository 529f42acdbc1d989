package util

import (
	"net/url"
	"strings"
)

// AddAffiliateTag sets the Amazon associate tag on an Amazon URL. It returns
// the resulting URL and whether it changed. Non-Amazon URLs and an empty tag
// leave the input untouched.
func AddAffiliateTag(rawURL, tag string) (string, bool) {
	if tag == "" {
		return rawURL, false
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, false
	}
	if !strings.Contains(parsedURL.Host, "amazon.") {
		return rawURL, false
	}

	queryParams := parsedURL.Query()
	if queryParams.Get("tag") == tag {
		return rawURL, false
	}
	queryParams.Set("tag", tag)
	parsedURL.RawQuery = queryParams.Encode()
	return parsedURL.String(), true
}
