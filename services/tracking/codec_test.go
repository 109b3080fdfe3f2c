package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const testBase = "https://track.example.com"

func newTestCodec() *Codec {
	return NewCodec("https://default.example.com/", "s3cret")
}

func clickParamsFrom(t *testing.T, raw string) ClickParams {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	params, err := ParseClickQuery(u.Query())
	require.NoError(t, err)
	return params
}

func TestOpenPixelURL(t *testing.T) {
	codec := newTestCodec()

	assert.Equal(t, "https://track.example.com/t/open?c=camp1&t=trk1", codec.OpenPixelURL(testBase, "camp1", "trk1"))
	assert.Equal(t, "https://default.example.com/t/open?c=camp1&t=trk1", codec.OpenPixelURL("", "camp1", "trk1"))
}

func TestClickURL_RoundTripVerifies(t *testing.T) {
	codec := newTestCodec()

	raw := codec.ClickURL(testBase, "camp1", "trk1", "https://example.org/pricing?plan=pro")
	params := clickParamsFrom(t, raw)

	assert.Equal(t, "camp1", params.CampaignID)
	assert.Equal(t, "trk1", params.TrackingID)
	assert.Equal(t, "https://example.org/pricing?plan=pro", params.URL)
	assert.True(t, codec.VerifyClick(params.CampaignID, params.TrackingID, params.URL, params.Signature))
}

func TestVerifyClick_RejectsTamperedTarget(t *testing.T) {
	codec := newTestCodec()

	params := clickParamsFrom(t, codec.ClickURL(testBase, "camp1", "trk1", "https://example.org"))

	assert.False(t, codec.VerifyClick(params.CampaignID, params.TrackingID, "https://evil.example", params.Signature))
	assert.False(t, codec.VerifyClick(params.CampaignID, "trk2", params.URL, params.Signature))
	assert.False(t, codec.VerifyClick(params.CampaignID, params.TrackingID, params.URL, ""))
	assert.False(t, NewCodec(testBase, "other").VerifyClick(params.CampaignID, params.TrackingID, params.URL, params.Signature))
}

func TestWrapClickTracking(t *testing.T) {
	codec := newTestCodec()
	body := `<p>Hi <a href="https://example.org/a" class="btn">go</a>` +
		`<a href="mailto:me@example.org">mail</a>` +
		`<a href="tel:+123">call</a>` +
		`<a href="javascript:void(0)">js</a>` +
		`<a href="#top">top</a>` +
		`<a href="">empty</a></p>`

	out := codec.WrapClickTracking(body, testBase, "camp1", "trk1")

	assert.Equal(t, 1, strings.Count(out, "/t/click?"))
	assert.Contains(t, out, `href="mailto:me@example.org"`)
	assert.Contains(t, out, `href="tel:+123"`)
	assert.Contains(t, out, `href="javascript:void(0)"`)
	assert.Contains(t, out, `href="#top"`)
	assert.Contains(t, out, `class="btn"`)
	assert.NotContains(t, out, `href="https://example.org/a"`)
}

func TestWrapClickTracking_AlreadyTrackedIsUntouched(t *testing.T) {
	codec := newTestCodec()

	once := codec.WrapClickTracking(`<a href="https://example.org">x</a>`, testBase, "camp1", "trk1")
	twice := codec.WrapClickTracking(once, testBase, "camp1", "trk1")

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "/t/click?"))
}

func TestWrapClickTracking_OtherHostsClickPathIsTracked(t *testing.T) {
	codec := newTestCodec()

	out := codec.WrapClickTracking(`<a href="https://partner.example.org/t/click?id=7">x</a>`, testBase, "camp1", "trk1")

	href := extractHref(t, out)
	assert.True(t, strings.HasPrefix(href, testBase+ClickPath+"?"))
	assert.Equal(t, "https://partner.example.org/t/click?id=7", clickParamsFrom(t, href).URL)
}

func TestWrapClickTracking_PreservesNonAnchorMarkup(t *testing.T) {
	codec := newTestCodec()
	body := `<div style="color:red">Hello &amp; welcome<br/><img src="logo.png"></div>`

	assert.Equal(t, body, codec.WrapClickTracking(body, testBase, "camp1", "trk1"))
}

func TestInjectOpenPixel(t *testing.T) {
	codec := newTestCodec()

	out := codec.InjectOpenPixel("<html><body><p>Hi</p></BODY></html>", testBase, "camp1", "trk1")
	pixelAt := strings.Index(out, "/t/open?")
	bodyAt := strings.Index(out, "</BODY>")
	require.True(t, pixelAt > 0)
	assert.True(t, pixelAt < bodyAt)

	plain := codec.InjectOpenPixel("<p>no body tag</p>", testBase, "camp1", "trk1")
	assert.True(t, strings.HasPrefix(plain, "<p>no body tag</p><img"))
}

func TestInjectOpenPixel_Idempotent(t *testing.T) {
	codec := newTestCodec()

	once := codec.InjectOpenPixel("<body>Hi</body>", testBase, "camp1", "trk1")
	twice := codec.InjectOpenPixel(once, testBase, "camp1", "trk1")

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "/t/open?"))
}

func TestParseClickQuery_MissingParams(t *testing.T) {
	_, err := ParseClickQuery(url.Values{"c": {"camp1"}})
	assert.Error(t, err)
}

func extractHref(t *testing.T, body string) string {
	t.Helper()
	start := strings.Index(body, `href="`)
	require.GreaterOrEqual(t, start, 0)
	rest := body[start+len(`href="`):]
	end := strings.Index(rest, `"`)
	require.GreaterOrEqual(t, end, 0)
	return html.UnescapeString(rest[:end])
}
