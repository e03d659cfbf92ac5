// Package fetch downloads remote images and encodes them as data URIs.
package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/singleflight"
)

const (
	maxImageSize = 10 << 20 // 10MB
	maxPageSize  = 2 << 20  // 2MB
	fetchTimeout = 15 * time.Second
)

// UserMessage is what the user sees for any failed fetch.
const UserMessage = "Image fetch failed. Remote source may block direct access."

// Error reports a failed retrieval of URL.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errNotImage  = errors.New("response is not an image")
	errTooLarge  = errors.New("response exceeds size limit")
	errBadScheme = errors.New("only http and https URLs are supported")
	errNoOGImage = errors.New("page has no og:image")
)

// Fetcher retrieves images over HTTP(S). Concurrent requests for the same URL
// share one download.
type Fetcher struct {
	httpClient *http.Client
	group      singleflight.Group
}

// New returns a Fetcher using httpClient. A nil client gets a 15s timeout.
func New(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{httpClient: httpClient}
}

// Fetch downloads rawURL and returns it as a data URI. When the URL points
// at an HTML page, its og:image is followed once.
//
// The shared download is detached from any one caller: a caller whose ctx is
// cancelled returns early, while the others keep waiting for the result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	ch := f.group.DoChan(rawURL, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return f.fetch(dctx, rawURL, true)
	})
	select {
	case <-ctx.Done():
		return "", &Error{URL: rawURL, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, followPage bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &Error{URL: rawURL, Err: errBadScheme}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "image/*,text/html;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/html" {
		if !followPage {
			return "", &Error{URL: rawURL, Err: errNotImage}
		}
		page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
		if err != nil {
			return "", &Error{URL: rawURL, Err: err}
		}
		img := ogImage(page)
		if img == "" {
			return "", &Error{URL: rawURL, Err: errNoOGImage}
		}
		ref, err := u.Parse(img)
		if err != nil {
			return "", &Error{URL: rawURL, Err: err}
		}
		return f.fetch(ctx, ref.String(), false)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return "", &Error{URL: rawURL, Err: err}
	}
	if len(body) > maxImageSize {
		return "", &Error{URL: rawURL, Err: errTooLarge}
	}

	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(body)
		if !strings.HasPrefix(mediaType, "image/") {
			return "", &Error{URL: rawURL, Err: errNotImage}
		}
	}

	return EncodeDataURI(mediaType, body), nil
}

// EncodeDataURI returns data as a base64 data URI of the given media type.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ogImage returns the content of the first og:image (or twitter:image) meta tag.
func ogImage(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			var key, val string
			for _, a := range n.Attr {
				switch a.Key {
				case "property", "name":
					key = strings.ToLower(a.Val)
				case "content":
					val = strings.TrimSpace(a.Val)
				}
			}
			if (key == "og:image" || key == "twitter:image") && val != "" {
				found = val
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
