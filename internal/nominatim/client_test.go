package nominatim_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/UnknownOlympus/cartographer/internal/nominatim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient is a mock implementation of HTTPClient for testing.
type mockHTTPClient struct {
	calls  atomic.Int32
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls.Add(1)
	return m.doFunc(req)
}

func respond(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		}, nil
	}
}

func newClient(t *testing.T, mock *mockHTTPClient, opts ...nominatim.ClientOption) *nominatim.Client {
	t.Helper()
	client, err := nominatim.NewClient(append([]nominatim.ClientOption{nominatim.WithHTTPClient(mock)}, opts...)...)
	require.NoError(t, err)
	return client
}

func requireKind(t *testing.T, err error, kind nominatim.ErrorKind) *nominatim.APIError {
	t.Helper()
	var apiErr *nominatim.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, kind, apiErr.Kind, "unexpected error: %v", err)
	return apiErr
}

func TestClient_LookupReverse(t *testing.T) {
	ctx := t.Context()

	t.Run("successful reverse geocoding", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodGet, req.Method)
				assert.Equal(t, "/reverse", req.URL.Path)
				assert.Equal(t, "json", req.URL.Query().Get("format"))
				assert.Equal(t, "52.52", req.URL.Query().Get("lat"))
				assert.Equal(t, "13.405", req.URL.Query().Get("lon"))
				assert.Equal(t, "1", req.URL.Query().Get("addressdetails"))
				assert.Empty(t, req.URL.Query().Get("zoom"))
				assert.Equal(t, nominatim.DefaultUserAgent, req.Header.Get("User-Agent"))

				return respond(http.StatusOK,
					`{"display_name":"Berlin, Germany","lat":"52.5200","lon":"13.4050"}`)(req)
			},
		}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(52.52, 13.405))

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "Berlin, Germany", result.DisplayName)
		assert.InEpsilon(t, 52.52, result.Latitude, 0.0001)
		assert.InEpsilon(t, 13.405, result.Longitude, 0.0001)
		assert.Empty(t, result.Address)
		assert.JSONEq(t, `{"display_name":"Berlin, Germany","lat":"52.5200","lon":"13.4050"}`, string(result.Raw))
		assert.Equal(t, int32(1), mock.calls.Load())
	})

	t.Run("full place with address details", func(t *testing.T) {
		body := `{
			"place_id": 134140761,
			"licence": "Data © OpenStreetMap contributors, ODbL 1.0.",
			"osm_type": "way",
			"osm_id": 280940520,
			"lat": "-34.4391708",
			"lon": "-58.7064573",
			"class": "highway",
			"type": "motorway",
			"importance": 0.1,
			"name": "Autopista Pedro Eugenio Aramburu",
			"display_name": "Autopista Pedro Eugenio Aramburu, El Triángulo, Partido de Malvinas Argentinas, Argentina",
			"address": {"road": "Autopista Pedro Eugenio Aramburu", "village": "El Triángulo", "country": "Argentina", "country_code": "ar"},
			"extratags": {"surface": "asphalt"},
			"boundingbox": ["-34.44159", "-34.4370994", "-58.7086067", "-58.7036213"]
		}`
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, body)}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(-34.44076, -58.70521))

		require.NoError(t, err)
		assert.Equal(t, int64(134140761), result.PlaceID)
		assert.Equal(t, "way", result.OSMType)
		assert.Equal(t, int64(280940520), result.OSMID)
		assert.Equal(t, "highway", result.Class)
		assert.Equal(t, "motorway", result.Type)
		assert.Equal(t, "ar", result.Address["country_code"])
		assert.Equal(t, "El Triángulo", result.Address["village"])
		assert.Equal(t, "asphalt", result.ExtraTags["surface"])
		assert.Equal(t, []float64{-34.44159, -34.4370994, -58.7086067, -58.7036213}, result.BoundingBox)
	})

	t.Run("zoom and language are sent", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "10", req.URL.Query().Get("zoom"))
				assert.Equal(t, "uk,en", req.URL.Query().Get("accept-language"))
				return respond(http.StatusOK, `{"display_name":"Київ","lat":"50.45","lon":"30.52"}`)(req)
			},
		}

		result, err := newClient(t, mock).Lookup(ctx,
			nominatim.ReverseQuery(50.45, 30.52, nominatim.WithZoom(10), nominatim.WithLanguage("uk,en")))

		require.NoError(t, err)
		assert.Equal(t, "Київ", result.DisplayName)
	})

	t.Run("coordinates keep full precision", func(t *testing.T) {
		pairs := [][2]float64{{0, 0}, {-90, 180}, {90, -180}, {37.4224764, -122.0842499}, {1e-7, -1e-7}}
		for _, pair := range pairs {
			mock := &mockHTTPClient{
				doFunc: func(req *http.Request) (*http.Response, error) {
					lat, err := strconv.ParseFloat(req.URL.Query().Get("lat"), 64)
					require.NoError(t, err)
					lon, err := strconv.ParseFloat(req.URL.Query().Get("lon"), 64)
					require.NoError(t, err)
					assert.InDelta(t, pair[0], lat, 1e-12)
					assert.InDelta(t, pair[1], lon, 1e-12)
					return respond(http.StatusOK, `{"display_name":"x","lat":"0","lon":"0"}`)(req)
				},
			}

			_, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(pair[0], pair[1]))
			require.NoError(t, err)
		}
	})

	t.Run("unable to geocode is not found", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `{"error":"Unable to geocode"}`)}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(0, -150))

		require.Nil(t, result)
		apiErr := requireKind(t, err, nominatim.KindService)
		assert.Equal(t, http.StatusOK, apiErr.StatusCode)
		require.ErrorIs(t, err, nominatim.ErrNotFound)
		require.ErrorIs(t, err, nominatim.ErrService)
		assert.False(t, nominatim.IsRetryable(err))
	})
}

func TestClient_LookupInvalidInput(t *testing.T) {
	ctx := t.Context()

	cases := map[string]nominatim.Query{
		"latitude above range":   nominatim.ReverseQuery(90.0001, 0),
		"latitude below range":   nominatim.ReverseQuery(-91, 0),
		"longitude above range":  nominatim.ReverseQuery(0, 180.5),
		"longitude below range":  nominatim.ReverseQuery(0, -181),
		"latitude is NaN":        nominatim.ReverseQuery(math.NaN(), 0),
		"longitude is infinite":  nominatim.ReverseQuery(0, math.Inf(1)),
		"zoom out of range":      nominatim.ReverseQuery(10, 10, nominatim.WithZoom(19)),
		"empty search text":      nominatim.SearchQuery(""),
		"whitespace search text": nominatim.SearchQuery(" \t\n "),
		"zero value query":       {},
	}

	for name, query := range cases {
		t.Run(name, func(t *testing.T) {
			mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `{}`)}

			result, err := newClient(t, mock).Lookup(ctx, query)

			require.Nil(t, result)
			requireKind(t, err, nominatim.KindInvalidInput)
			require.ErrorIs(t, err, nominatim.ErrInvalidInput)
			assert.False(t, nominatim.IsRetryable(err))
			assert.Equal(t, int32(0), mock.calls.Load(), "no request may be sent for invalid input")
		})
	}
}

func TestClient_LookupErrors(t *testing.T) {
	ctx := t.Context()

	t.Run("service error keeps status and body", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusNotFound, "Unable to geocode")}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(52.52, 13.405))

		require.Nil(t, result)
		apiErr := requireKind(t, err, nominatim.KindService)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "Unable to geocode", apiErr.Body)
		assert.NotErrorIs(t, err, nominatim.ErrNotFound)
		assert.Contains(t, err.Error(), "nominatim API returned status 404")
		assert.False(t, nominatim.IsRetryable(err))
	})

	t.Run("rate limited response is retryable", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusTooManyRequests, `{"error":"Rate limit exceeded"}`)}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("Kyiv"))

		apiErr := requireKind(t, err, nominatim.KindService)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.True(t, nominatim.IsRetryable(err))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusBadGateway, "bad gateway")}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("Kyiv"))

		requireKind(t, err, nominatim.KindService)
		assert.True(t, nominatim.IsRetryable(err))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, "not json")}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(52.52, 13.405))

		require.Nil(t, result)
		requireKind(t, err, nominatim.KindDeserialization)
		require.ErrorIs(t, err, nominatim.ErrDeserialization)
		assert.Contains(t, err.Error(), "invalid character")
		assert.False(t, nominatim.IsRetryable(err))
	})

	t.Run("array where object expected", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `[]`)}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(52.52, 13.405))

		requireKind(t, err, nominatim.KindDeserialization)
	})

	t.Run("null where array expected", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `null`)}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("Kyiv"))

		require.Nil(t, result)
		requireKind(t, err, nominatim.KindDeserialization)
		assert.NotErrorIs(t, err, nominatim.ErrNotFound)
	})

	t.Run("null where object expected", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `null`)}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(52.52, 13.405))

		requireKind(t, err, nominatim.KindDeserialization)
	})

	t.Run("object where array expected", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `{"lat":"1","lon":"2"}`)}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("Kyiv"))

		requireKind(t, err, nominatim.KindDeserialization)
	})

	t.Run("invalid latitude in response", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `[{"lat":"invalid","lon":"-122.0842499"}]`)}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("somewhere"))

		requireKind(t, err, nominatim.KindDeserialization)
		assert.Contains(t, err.Error(), "invalid latitude")
	})

	t.Run("missing coordinates in response", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `{"display_name":"nowhere"}`)}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(1, 1))

		requireKind(t, err, nominatim.KindDeserialization)
	})

	t.Run("HTTP client returns error", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return nil, assert.AnError
			},
		}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(1, 1))

		require.Nil(t, result)
		requireKind(t, err, nominatim.KindNetwork)
		require.ErrorIs(t, err, nominatim.ErrNetwork)
		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "failed to execute geocoding request")
		assert.True(t, nominatim.IsRetryable(err))
	})

	t.Run("context cancellation", func(t *testing.T) {
		newCtx, cancel := context.WithCancel(context.Background())
		cancel()

		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, req.Context().Err()
			},
		}

		_, err := newClient(t, mock).Lookup(newCtx, nominatim.ReverseQuery(1, 1))

		requireKind(t, err, nominatim.KindNetwork)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("body read failure", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(failingReader{})}, nil
			},
		}

		_, err := newClient(t, mock).Lookup(ctx, nominatim.ReverseQuery(1, 1))

		requireKind(t, err, nominatim.KindNetwork)
		assert.Contains(t, err.Error(), "failed to read response body")
	})
}

type failingReader struct{}

func (failingReader) Read(_ []byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestClient_LookupSearch(t *testing.T) {
	ctx := t.Context()

	t.Run("first result is returned", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "/search", req.URL.Path)
				assert.Equal(t, "1600 Amphitheatre Parkway, Mountain View, CA", req.URL.Query().Get("q"))
				assert.Equal(t, "1", req.URL.Query().Get("limit"))
				return respond(http.StatusOK,
					`[{"display_name":"Google","lat":"37.4224764","lon":"-122.0842499","address":{"city":"Mountain View"}}]`)(req)
			},
		}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("1600 Amphitheatre Parkway, Mountain View, CA"))

		require.NoError(t, err)
		assert.InEpsilon(t, 37.4224764, result.Latitude, 0.0001)
		assert.InEpsilon(t, -122.0842499, result.Longitude, 0.0001)
		assert.Equal(t, "Mountain View", result.Address["city"])
	})

	t.Run("empty array is not found", func(t *testing.T) {
		mock := &mockHTTPClient{doFunc: respond(http.StatusOK, `[]`)}

		result, err := newClient(t, mock).Lookup(ctx, nominatim.SearchQuery("invalid address"))

		require.Nil(t, result)
		require.ErrorIs(t, err, nominatim.ErrNotFound)
	})
}

func TestClient_QueryRoundTrip(t *testing.T) {
	texts := []string{
		"1600 Pennsylvania Ave, Washington DC",
		"с. Грабовець, вул. Польова, 3",
		"Straße & Gasse #7 ?a=b+c/d%20e;f",
		"東京都 千代田区",
	}

	var mu sync.Mutex
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r.URL.Query().Get("q"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"display_name":"somewhere","lat":"1.5","lon":"2.5"}]`))
	}))
	defer server.Close()

	client, err := nominatim.NewClient(nominatim.WithBaseURL(server.URL), nominatim.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	for _, text := range texts {
		_, err = client.Lookup(t.Context(), nominatim.SearchQuery(text))
		require.NoError(t, err)
	}

	assert.Equal(t, texts, received)
}

func TestClient_ConcurrentLookups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lat := r.URL.Query().Get("lat")
		_, _ = w.Write([]byte(`{"display_name":"` + lat + `","lat":"` + lat + `","lon":"0"}`))
	}))
	defer server.Close()

	client, err := nominatim.NewClient(nominatim.WithBaseURL(server.URL))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(lat float64) {
			defer wg.Done()
			result, errLookup := client.Lookup(t.Context(), nominatim.ReverseQuery(lat, 0))
			if assert.NoError(t, errLookup) {
				assert.InDelta(t, lat, result.Latitude, 1e-9)
			}
		}(float64(i))
	}
	wg.Wait()
}

func TestClient_Identification(t *testing.T) {
	t.Run("custom user agent and email", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "my-app/2.0 (ops@example.com)", req.Header.Get("User-Agent"))
				assert.Equal(t, "ops@example.com", req.URL.Query().Get("email"))
				return respond(http.StatusOK, `{"lat":"1","lon":"1"}`)(req)
			},
		}

		client := newClient(t, mock,
			nominatim.WithIdentification(nominatim.UserAgent("my-app/2.0 (ops@example.com)")),
			nominatim.WithEmail("ops@example.com"))
		_, err := client.Lookup(t.Context(), nominatim.ReverseQuery(1, 1))

		require.NoError(t, err)
	})

	t.Run("referer keeps default user agent", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "https://maps.example.com", req.Header.Get("Referer"))
				assert.Equal(t, nominatim.DefaultUserAgent, req.Header.Get("User-Agent"))
				return respond(http.StatusOK, `{"lat":"1","lon":"1"}`)(req)
			},
		}

		client := newClient(t, mock, nominatim.WithIdentification(nominatim.Referer("https://maps.example.com")))
		_, err := client.Lookup(t.Context(), nominatim.ReverseQuery(1, 1))

		require.NoError(t, err)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		client, err := nominatim.NewClient()

		require.NoError(t, err)
		assert.Equal(t, nominatim.DefaultBaseURL, client.BaseURL())
	})

	t.Run("base URL with path prefix", func(t *testing.T) {
		mock := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "/nominatim/reverse", req.URL.Path)
				assert.Equal(t, "geo.internal", req.URL.Host)
				return respond(http.StatusOK, `{"lat":"1","lon":"1"}`)(req)
			},
		}

		client := newClient(t, mock, nominatim.WithBaseURL("http://geo.internal/nominatim/"))
		_, err := client.Lookup(t.Context(), nominatim.ReverseQuery(1, 1))

		require.NoError(t, err)
	})

	invalid := map[string][]nominatim.ClientOption{
		"unparsable base URL": {nominatim.WithBaseURL("http://[::1")},
		"unsupported scheme":  {nominatim.WithBaseURL("ftp://example.com")},
		"missing host":        {nominatim.WithBaseURL("https://")},
		"nil http client":     {nominatim.WithHTTPClient(nil)},
		"negative timeout":    {nominatim.WithTimeout(-1)},
		"limit too large":     {nominatim.WithLimit(100)},
	}
	for name, opts := range invalid {
		t.Run(name, func(t *testing.T) {
			client, err := nominatim.NewClient(opts...)

			require.Error(t, err)
			assert.Nil(t, client)
		})
	}
}
