package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/enrich-cli/internal/domain"
)

func TestPlainFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "CellarworksBot")
		_, _ = w.Write([]byte("<html><head><title>Ardbeg 10</title></head><body>peat</body></html>"))
	}))
	defer srv.Close()

	f := NewPlainFetcher("")
	content, title, status, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, "Ardbeg 10", title)
	assert.Contains(t, content, "peat")
	assert.Equal(t, domain.TierPlain, f.Tier())
}

func TestPlainFetcher_TimeoutIsDeadlineExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewPlainFetcher("")
	_, _, _, err := f.Fetch(context.Background(), srv.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>p{color:red}</style><script>var x=1;</script></head>
<body><nav>menu</nav><p>Aged 12 years &amp; bottled at 46%.</p><footer>legal</footer></body></html>`
	text := StripHTML(html)
	assert.Contains(t, text, "Aged 12 years & bottled at 46%.")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "legal")
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Taylor's 20 Year Old Tawny",
		ExtractTitle([]byte(`<html><head><TITLE> Taylor's 20 Year Old Tawny </TITLE></head></html>`)))
	assert.Empty(t, ExtractTitle([]byte("<html></html>")))
}

func TestStripHTML_CollapsesWhitespace(t *testing.T) {
	text := StripHTML("<p>a</p>" + strings.Repeat(" ", 30) + "<p>b</p>")
	assert.Equal(t, "a b", text)
}
