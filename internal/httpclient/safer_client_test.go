package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaferClient(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, 10, client.maxRedirects)
	assert.True(t, client.blockPrivateIP)
}

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{"wiki API", "https://en.wikipedia.org/w/api.php", ""},
		{"event stream", "https://stream.wikimedia.org/v2/stream/recentchange", ""},
		{"file scheme", "file:///etc/passwd", "scheme"},
		{"userinfo", "http://en.wikipedia.org@127.0.0.1/", "userinfo"},
		{"localhost", "http://localhost:8080/", "localhost"},
		{"subdomain of localhost", "http://api.localhost/", "localhost"},
		{"loopback IP", "http://127.0.0.1/", "private IP"},
		{"RFC 1918", "http://10.1.2.3/", "private IP"},
		{"IPv6 loopback", "http://[::1]/", "private IP"},
		{"no host", "http:///path", "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.0.0.1", "172.16.5.4", "192.168.1.1", "127.0.0.1", "169.254.1.1", "::1", "fe80::1", "fd00::1"}
	public := []string{"208.80.154.224", "8.8.8.8", "2620:0:861:ed1a::1"}

	for _, s := range private {
		assert.True(t, isPrivateIP(net.ParseIP(s)), s)
	}
	for _, s := range public {
		assert.False(t, isPrivateIP(net.ParseIP(s)), s)
	}
}

func TestAllowPrivateIP(t *testing.T) {
	client := New(time.Second, Options{AllowPrivateIP: true})

	_, err := client.ValidateURL("http://127.0.0.1:8080/w/api.php")
	assert.NoError(t, err)
}

func TestDoBlocksLocalhost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = NewSaferClient(time.Second).Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF")
}

func TestUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := WrapClient(server.Client(), "SDZeroBot/test")
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "SDZeroBot/test", got)
}

func TestMaxRedirects(t *testing.T) {
	hops := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, server.URL+"/next", http.StatusFound)
	}))
	defer server.Close()

	client := New(time.Second, Options{AllowPrivateIP: true, MaxRedirects: 3})
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 3 redirects")
	assert.Equal(t, 3, hops)
}
