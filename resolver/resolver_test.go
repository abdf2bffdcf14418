package resolver_test

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain/entity"
	"ticketchain/resolver"
)

type recordingGateways struct {
	lock     sync.Mutex
	attempts []string
}

func (g *recordingGateways) record(name string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.attempts = append(g.attempts, name)
}

func (g *recordingGateways) Attempts() []string {
	g.lock.Lock()
	defer g.lock.Unlock()
	return append([]string(nil), g.attempts...)
}

func (g *recordingGateways) server(t *testing.T, name string, handler http.HandlerFunc) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.record(name)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv.URL + "/ipfs/"
}

func failing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusBadGateway)
}

func TestResolve_falls_back_in_order(t *testing.T) {
	g := &recordingGateways{}

	var requestedPath, accept string
	gateways := []string{
		g.server(t, "g1", failing),
		g.server(t, "g2", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"name":"no image"}`))
		}),
		g.server(t, "g3", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}),
		g.server(t, "g4", func(w http.ResponseWriter, r *http.Request) {
			requestedPath = r.URL.Path
			accept = r.Header.Get("Accept")
			_, _ = w.Write([]byte(`{"name":"Ticket","image":"ipfs://img","attributes":[{"trait_type":"Seat","value":"A-1"}]}`))
		}),
	}

	r := resolver.NewResolver(nil, gateways, time.Second)

	doc, err := r.Resolve(context.Background(), "ipfs://bafymeta")
	require.NoError(t, err)

	assert.Equal(t, "Ticket", doc.Name)
	assert.Equal(t, "ipfs://img", doc.Image)
	require.Len(t, doc.Attributes, 1)
	assert.Equal(t, []string{"g1", "g2", "g3", "g4"}, g.Attempts())
	assert.Equal(t, "/ipfs/bafymeta", requestedPath)
	assert.Equal(t, "application/json", accept)
}

func TestResolve_first_success_wins(t *testing.T) {
	g := &recordingGateways{}
	ok := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Ticket","image":"ipfs://img"}`))
	}
	gateways := []string{g.server(t, "g1", ok), g.server(t, "g2", ok)}

	_, err := resolver.NewResolver(nil, gateways, time.Second).Resolve(context.Background(), "ipfs://bafymeta")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, g.Attempts())
}

func TestResolve_attempt_timeout(t *testing.T) {
	g := &recordingGateways{}
	gateways := []string{
		g.server(t, "slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}),
		g.server(t, "fast", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"name":"Ticket","image":"ipfs://img"}`))
		}),
	}

	doc, err := resolver.NewResolver(nil, gateways, 50*time.Millisecond).Resolve(context.Background(), "bafymeta")
	require.NoError(t, err)
	assert.Equal(t, "Ticket", doc.Name)
	assert.Equal(t, []string{"slow", "fast"}, g.Attempts())
}

func TestResolve_all_gateways_fail(t *testing.T) {
	g := &recordingGateways{}
	gateways := []string{
		g.server(t, "g1", failing),
		g.server(t, "g2", failing),
		g.server(t, "g3", failing),
		g.server(t, "g4", failing),
	}
	r := resolver.NewResolver(nil, gateways, time.Second)

	_, err := r.Resolve(context.Background(), "ipfs://bafymeta")
	require.ErrorIs(t, err, entity.ErrResolutionFailed)
	assert.ErrorIs(t, err, entity.ErrGatewayUnavailable)
	assert.Len(t, g.Attempts(), 4)

	doc := r.ResolveOrPlaceholder(context.Background(), "ipfs://bafymeta", big.NewInt(42))
	assert.Contains(t, doc.Name, "42")
	assert.Equal(t, resolver.PlaceholderImage, doc.Image)
	assert.Empty(t, doc.Attributes)
	assert.NotNil(t, doc.Attributes)
}

func TestResolve_tolerates_non_minimal_fields(t *testing.T) {
	testCases := []struct {
		Name       string
		Body       string
		Attributes []entity.Attribute
	}{
		{
			Name:       "numeric_description",
			Body:       `{"name":"Ticket","image":"ipfs://img","description":42}`,
			Attributes: nil,
		},
		{
			Name: "boolean_attribute_value",
			Body: `{"name":"Ticket","image":"ipfs://img","attributes":[{"trait_type":"VIP","value":true},{"trait_type":"Seat","value":"A-1"}]}`,
			Attributes: []entity.Attribute{
				{TraitType: "VIP", Value: entity.StringValue("true")},
				{TraitType: "Seat", Value: entity.StringValue("A-1")},
			},
		},
		{
			Name: "null_attribute_value",
			Body: `{"name":"Ticket","image":"ipfs://img","attributes":[{"trait_type":"Seat","value":null},{"trait_type":"Row","value":3}]}`,
			Attributes: []entity.Attribute{
				{TraitType: "Row", Value: entity.NumberValue(3)},
			},
		},
		{
			Name:       "attributes_not_a_list",
			Body:       `{"name":"Ticket","image":"ipfs://img","attributes":"none","external_url":7}`,
			Attributes: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			g := &recordingGateways{}
			gateways := []string{
				g.server(t, "g1", func(w http.ResponseWriter, _ *http.Request) {
					_, _ = w.Write([]byte(tc.Body))
				}),
			}
			r := resolver.NewResolver(nil, gateways, time.Second)

			doc := r.ResolveOrPlaceholder(context.Background(), "ipfs://bafymeta", big.NewInt(5))
			assert.NotEqual(t, "Ticket #5", doc.Name)
			assert.Equal(t, "Ticket", doc.Name)
			assert.Equal(t, "ipfs://img", doc.Image)
			assert.Empty(t, doc.Description)
			assert.Empty(t, doc.ExternalURL)
			assert.Equal(t, tc.Attributes, doc.Attributes)
			assert.Equal(t, []string{"g1"}, g.Attempts())
		})
	}
}

func TestResolve_direct_url_is_fetched_once(t *testing.T) {
	g := &recordingGateways{}
	gateways := []string{
		g.server(t, "g1", failing),
		g.server(t, "g2", failing),
		g.server(t, "g3", failing),
	}
	direct := g.server(t, "direct", failing) + "meta.json"
	r := resolver.NewResolver(nil, gateways, time.Second)

	_, err := r.Resolve(context.Background(), direct)
	require.ErrorIs(t, err, entity.ErrResolutionFailed)
	assert.Equal(t, []string{"direct"}, g.Attempts())

	ok := g.server(t, "direct-ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Ticket","image":"ipfs://img"}`))
	}) + "meta.json"

	doc, err := r.Resolve(context.Background(), "ipfs://"+ok)
	require.NoError(t, err)
	assert.Equal(t, "Ticket", doc.Name)
	assert.Equal(t, []string{"direct", "direct-ok"}, g.Attempts())
}

func TestResolve_empty_locator(t *testing.T) {
	g := &recordingGateways{}
	r := resolver.NewResolver(nil, []string{g.server(t, "g1", failing)}, time.Second)

	_, err := r.Resolve(context.Background(), "")
	require.ErrorIs(t, err, entity.ErrResolutionFailed)
	assert.Empty(t, g.Attempts())
}

func TestGatewayURL(t *testing.T) {
	testCases := []struct {
		Locator  string
		Expected string
	}{
		{Locator: "ipfs://bafy", Expected: "https://ipfs.io/ipfs/bafy"},
		{Locator: "ipfs://ipfs/bafy", Expected: "https://ipfs.io/ipfs/bafy"},
		{Locator: "bafy", Expected: "https://ipfs.io/ipfs/bafy"},
		{Locator: "https://example.com/meta.json", Expected: "https://example.com/meta.json"},
		{Locator: "ipfs://https://example.com/meta.json", Expected: "https://example.com/meta.json"},
	}

	for _, tc := range testCases {
		t.Run(tc.Locator, func(t *testing.T) {
			assert.Equal(t, tc.Expected, resolver.GatewayURL("https://ipfs.io/ipfs/", tc.Locator))
		})
	}
}

func TestPlaceholder_is_deterministic(t *testing.T) {
	assert.Equal(t, resolver.Placeholder(big.NewInt(7)), resolver.Placeholder(big.NewInt(7)))
	assert.Equal(t, "Ticket #7", resolver.Placeholder(big.NewInt(7)).Name)
}
