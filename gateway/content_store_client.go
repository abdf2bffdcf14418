package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ticketchain/entity"
)

const DefaultPinataAPIURL = "https://api.pinata.cloud"

// ContentStoreClient pins content through the Pinata pinning API. Everything is pinned as CID v1.
type ContentStoreClient struct {
	client *http.Client
	apiURL string
	jwt    string
}

func NewContentStoreClient(client *http.Client, apiURL, jwt string) ContentStoreClient {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if apiURL == "" {
		apiURL = DefaultPinataAPIURL
	}

	return ContentStoreClient{
		client: client,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		jwt:    jwt,
	}
}

type pinataMetadata struct {
	Name string `json:"name"`
}

type pinataOptions struct {
	CIDVersion int `json:"cidVersion"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

func (c ContentStoreClient) PublishBinary(ctx context.Context, content []byte, name string) (entity.PublishResult, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	file, err := form.CreateFormFile("file", name)
	if err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := file.Write(content); err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not write form file: %w", err)
	}

	metadata, err := json.Marshal(pinataMetadata{Name: name})
	if err != nil {
		return entity.PublishResult{}, err
	}
	if err := form.WriteField("pinataMetadata", string(metadata)); err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not write pinata metadata: %w", err)
	}

	options, err := json.Marshal(pinataOptions{CIDVersion: 1})
	if err != nil {
		return entity.PublishResult{}, err
	}
	if err := form.WriteField("pinataOptions", string(options)); err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not write pinata options: %w", err)
	}

	if err := form.Close(); err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not close form: %w", err)
	}

	return c.pin(ctx, "/pinning/pinFileToIPFS", form.FormDataContentType(), body)
}

func (c ContentStoreClient) PublishJSON(ctx context.Context, doc any, name string) (entity.PublishResult, error) {
	payload, err := json.Marshal(struct {
		PinataContent  any            `json:"pinataContent"`
		PinataMetadata pinataMetadata `json:"pinataMetadata"`
		PinataOptions  pinataOptions  `json:"pinataOptions"`
	}{
		PinataContent:  doc,
		PinataMetadata: pinataMetadata{Name: name},
		PinataOptions:  pinataOptions{CIDVersion: 1},
	})
	if err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not marshal document: %w", err)
	}

	return c.pin(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(payload))
}

func (c ContentStoreClient) pin(ctx context.Context, path, contentType string, body io.Reader) (entity.PublishResult, error) {
	if c.jwt == "" {
		return entity.PublishResult{}, fmt.Errorf("content store JWT is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, body)
	if err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Correlation-ID", log.CorrelationIDFromContext(ctx))

	resp, err := c.client.Do(req)
	if err != nil {
		return entity.PublishResult{}, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return entity.PublishResult{}, fmt.Errorf("unexpected status code from %s: %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not decode pin response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return entity.PublishResult{}, fmt.Errorf("pin response has no IpfsHash")
	}

	return entity.PublishResult{
		CID:     pinned.IpfsHash,
		Locator: "ipfs://" + pinned.IpfsHash,
	}, nil
}
