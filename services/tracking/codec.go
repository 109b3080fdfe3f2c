package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const (
	OpenPath  = "/t/open"
	ClickPath = "/t/click"

	ParamCampaign  = "c"
	ParamTracking  = "t"
	ParamURL       = "url"
	ParamSignature = "sig"
)

var (
	existingPixelRegex = regexp.MustCompile(`(?i)<img[^>]*src=["'][^"']*` + regexp.QuoteMeta(OpenPath) + `\?[^"']*["'][^>]*>`)
	closingBodyRegex   = regexp.MustCompile(`(?i)</body\s*>`)

	untrackedPrefixes = []string{"mailto:", "tel:", "javascript:", "#"}
)

// Codec builds and verifies open pixel and click redirect URLs.
type Codec struct {
	secret         []byte
	defaultBaseURL string
}

func NewCodec(defaultBaseURL, secret string) *Codec {
	return &Codec{
		secret:         []byte(secret),
		defaultBaseURL: strings.TrimRight(defaultBaseURL, "/"),
	}
}

func (c *Codec) base(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return c.defaultBaseURL
	}
	return baseURL
}

func (c *Codec) OpenPixelURL(baseURL, campaignID, trackingID string) string {
	q := url.Values{}
	q.Set(ParamCampaign, campaignID)
	q.Set(ParamTracking, trackingID)
	return c.base(baseURL) + OpenPath + "?" + q.Encode()
}

func (c *Codec) ClickURL(baseURL, campaignID, trackingID, target string) string {
	q := url.Values{}
	q.Set(ParamCampaign, campaignID)
	q.Set(ParamTracking, trackingID)
	q.Set(ParamURL, target)
	q.Set(ParamSignature, c.Sign(campaignID, trackingID, target))
	return c.base(baseURL) + ClickPath + "?" + q.Encode()
}

// Sign returns the hex HMAC-SHA256 of "campaignId:trackingId:target".
func (c *Codec) Sign(campaignID, trackingID, target string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(fmt.Sprintf("%s:%s:%s", campaignID, trackingID, target)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Codec) VerifyClick(campaignID, trackingID, target, signature string) bool {
	if signature == "" {
		return false
	}
	expected := c.Sign(campaignID, trackingID, target)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// InjectOpenPixel drops any previous pixel and inserts a fresh one before the last </body>.
func (c *Codec) InjectOpenPixel(body, baseURL, campaignID, trackingID string) string {
	body = existingPixelRegex.ReplaceAllString(body, "")
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;border:0" />`,
		html.EscapeString(c.OpenPixelURL(baseURL, campaignID, trackingID)))

	matches := closingBodyRegex.FindAllStringIndex(body, -1)
	if len(matches) == 0 {
		return body + pixel
	}
	at := matches[len(matches)-1][0]
	return body[:at] + pixel + body[at:]
}

// WrapClickTracking rewrites anchor hrefs to the signed redirect endpoint.
func (c *Codec) WrapClickTracking(body, baseURL, campaignID, trackingID string) string {
	var out strings.Builder
	out.Grow(len(body) + 256)

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return out.String()
			}
			// unparseable remainder is kept verbatim
			out.Write(z.Raw())
			return out.String()
		}

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(z.Raw())
			continue
		}

		raw := string(z.Raw())
		tok := z.Token()
		if tok.Data != "a" {
			out.WriteString(raw)
			continue
		}

		changed := false
		for i, attr := range tok.Attr {
			if !strings.EqualFold(attr.Key, "href") || !c.isTrackable(attr.Val, baseURL) {
				continue
			}
			tok.Attr[i].Val = c.ClickURL(baseURL, campaignID, trackingID, strings.TrimSpace(attr.Val))
			changed = true
		}
		if changed {
			out.WriteString(tok.String())
		} else {
			out.WriteString(raw)
		}
	}
}

// isTrackable skips non-web schemes and links already pointing at this
// codec's click endpoint.
func (c *Codec) isTrackable(href, baseURL string) bool {
	href = strings.TrimSpace(href)
	if href == "" {
		return false
	}
	lower := strings.ToLower(href)
	for _, prefix := range untrackedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	for _, base := range []string{c.base(baseURL), c.defaultBaseURL} {
		if base != "" && strings.HasPrefix(lower, strings.ToLower(base+ClickPath)) {
			return false
		}
	}
	return true
}

type ClickParams struct {
	CampaignID string
	TrackingID string
	URL        string
	Signature  string
}

// ParseClickQuery extracts click parameters from a redirect request query.
func ParseClickQuery(query url.Values) (ClickParams, error) {
	params := ClickParams{
		CampaignID: query.Get(ParamCampaign),
		TrackingID: query.Get(ParamTracking),
		URL:        query.Get(ParamURL),
		Signature:  query.Get(ParamSignature),
	}
	if params.CampaignID == "" || params.TrackingID == "" || params.URL == "" || params.Signature == "" {
		return params, fmt.Errorf("missing click tracking parameters")
	}
	return params, nil
}
