package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ticketchain/entity"
	"ticketchain/metrics"
)

const (
	DefaultAttemptTimeout = 10 * time.Second
	PlaceholderImage      = "/placeholder-ticket.png"

	maxDocumentSize = 1 << 20
	// directGateway labels attempts made against an http(s) locator.
	directGateway   = "direct"
)

var DefaultGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
	"https://dweb.link/ipfs/",
}

// Resolver fetches metadata documents through an ordered list of gateways.
// Gateways are tried one at a time; the first one that returns a usable document wins.
type Resolver struct {
	client         *http.Client
	gateways       []string
	attemptTimeout time.Duration
}

func NewResolver(client *http.Client, gateways []string, attemptTimeout time.Duration) *Resolver {
	if len(gateways) == 0 {
		panic("at least one gateway must be configured")
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	return &Resolver{
		client:         client,
		gateways:       append([]string(nil), gateways...),
		attemptTimeout: attemptTimeout,
	}
}

// Resolve returns the document of the first gateway that serves it.
// When every gateway fails, the error wraps entity.ErrResolutionFailed and
// every individual attempt error.
func (r *Resolver) Resolve(ctx context.Context, locator string) (doc entity.MetadataDocument, err error) {
	ctx, span := otel.Tracer("").Start(ctx, "resolver.Resolve")
	span.SetAttributes(attribute.String("locator", locator))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(locator) == "" {
		return entity.MetadataDocument{}, fmt.Errorf("%w: empty locator", entity.ErrResolutionFailed)
	}

	logger := log.FromContext(ctx).WithField("locator", locator)

	gateways := r.gateways
	if IsDirectURL(locator) {
		// every gateway would request the same URL
		gateways = []string{directGateway}
	}

	var errs []error
	for _, gateway := range gateways {
		doc, err := r.fetch(ctx, gateway, locator)
		if err == nil {
			metrics.GatewayAttempts.WithLabelValues(gateway, "success").Inc()
			span.SetAttributes(attribute.String("gateway", gateway))
			return doc, nil
		}

		metrics.GatewayAttempts.WithLabelValues(gateway, "failure").Inc()
		logger.WithFields(logrus.Fields{
			"gateway": gateway,
			"error":   err.Error(),
		}).Warn("Gateway failed to serve metadata")

		errs = append(errs, fmt.Errorf("%s: %w", gateway, err))

		if ctx.Err() != nil {
			break
		}
	}

	return entity.MetadataDocument{}, fmt.Errorf("%w: %s: %w", entity.ErrResolutionFailed, locator, errors.Join(errs...))
}

// ResolveOrPlaceholder never fails: when resolution fails it returns Placeholder(tokenID).
func (r *Resolver) ResolveOrPlaceholder(ctx context.Context, locator string, tokenID *big.Int) entity.MetadataDocument {
	doc, err := r.Resolve(ctx, locator)
	if err != nil {
		metrics.PlaceholdersServed.Inc()
		log.FromContext(ctx).WithError(err).WithField("token_id", tokenID.String()).Error("Serving placeholder metadata")
		return Placeholder(tokenID)
	}

	return doc
}

func (r *Resolver) fetch(ctx context.Context, gateway, locator string) (entity.MetadataDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.GatewayAttemptDuration.WithLabelValues(gateway).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GatewayURL(gateway, locator), nil)
	if err != nil {
		return entity.MetadataDocument{}, fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if correlationID := log.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("Correlation-ID", correlationID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return entity.MetadataDocument{}, fmt.Errorf("%w: %w", entity.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entity.MetadataDocument{}, fmt.Errorf("%w: unexpected status code %d", entity.ErrGatewayUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return entity.MetadataDocument{}, fmt.Errorf("%w: could not read body: %w", entity.ErrGatewayUnavailable, err)
	}

	return decodeMinimal(body)
}

// decodeMinimal accepts any JSON object carrying non-empty name and image.
// Other fields are best effort: a string field of the wrong type is left empty
// and an attribute that does not decode is dropped.
func decodeMinimal(body []byte) (entity.MetadataDocument, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return entity.MetadataDocument{}, fmt.Errorf("%w: %s", entity.ErrMalformedJSON, err)
	}

	doc := entity.MetadataDocument{
		Name:            stringField(fields, "name"),
		Description:     stringField(fields, "description"),
		Image:           stringField(fields, "image"),
		ExternalURL:     stringField(fields, "external_url"),
		AnimationURL:    stringField(fields, "animation_url"),
		BackgroundColor: stringField(fields, "background_color"),
	}
	if doc.Name == "" || doc.Image == "" {
		return entity.MetadataDocument{}, errors.New("document is missing name or image")
	}
	doc.Attributes = decodeAttributes(fields["attributes"])

	return doc, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// decodeAttributes keeps the attributes that decode. Boolean values are kept as "true"/"false".
func decodeAttributes(raw json.RawMessage) []entity.Attribute {
	if len(raw) == 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	attrs := make([]entity.Attribute, 0, len(items))
	for _, item := range items {
		var attr entity.Attribute
		if err := json.Unmarshal(item, &attr); err == nil {
			attrs = append(attrs, attr)
			continue
		}

		var loose struct {
			TraitType   string             `json:"trait_type"`
			Value       any                `json:"value"`
			DisplayType entity.DisplayType `json:"display_type"`
		}
		if err := json.Unmarshal(item, &loose); err != nil {
			continue
		}
		b, ok := loose.Value.(bool)
		if !ok {
			continue
		}
		attrs = append(attrs, entity.Attribute{
			TraitType:   loose.TraitType,
			Value:       entity.StringValue(strconv.FormatBool(b)),
			DisplayType: loose.DisplayType,
		})
	}

	return attrs
}

// IsDirectURL reports whether the locator is already an http(s) URL that no gateway rewrites.
func IsDirectURL(locator string) bool {
	cid := strings.TrimPrefix(locator, "ipfs://")
	cid = strings.TrimPrefix(cid, "ipfs/")
	return strings.HasPrefix(cid, "https://") || strings.HasPrefix(cid, "http://")
}

// GatewayURL rewrites a content locator into a URL on the given gateway.
// "ipfs://<cid>", "ipfs/<cid>" and a bare "<cid>" all map to "<gateway><cid>".
func GatewayURL(gateway, locator string) string {
	cid := strings.TrimPrefix(locator, "ipfs://")
	cid = strings.TrimPrefix(cid, "ipfs/")
	if IsDirectURL(cid) {
		return cid
	}

	return gateway + cid
}

// Placeholder is the deterministic document served when metadata cannot be resolved.
func Placeholder(tokenID *big.Int) entity.MetadataDocument {
	id := "unknown"
	if tokenID != nil {
		id = tokenID.String()
	}

	return entity.MetadataDocument{
		Name:        fmt.Sprintf("Ticket #%s", id),
		Description: "Metadata is currently unavailable for this ticket.",
		Image:       PlaceholderImage,
		Attributes:  []entity.Attribute{},
	}
}
