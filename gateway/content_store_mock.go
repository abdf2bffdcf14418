package gateway

import (
	"context"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"ticketchain/entity"
)

const (
	multicodecRaw     = 0x55
	multicodecJSON    = 0x0200
	multihashBlake3   = 0x1e
	blake3DigestBytes = 32
)

var cidEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ContentStoreMock keeps published content in memory under BLAKE3 CIDs.
// Its Handler serves the stored content like a public gateway does.
type ContentStoreMock struct {
	lock    sync.Mutex
	objects map[string][]byte
	names   map[string]string

	PublishBinaryErr error
	PublishJSONErr   error
}

func (c *ContentStoreMock) PublishBinary(_ context.Context, content []byte, name string) (entity.PublishResult, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.PublishBinaryErr != nil {
		return entity.PublishResult{}, c.PublishBinaryErr
	}

	return c.store(multicodecRaw, content, name), nil
}

func (c *ContentStoreMock) PublishJSON(_ context.Context, doc any, name string) (entity.PublishResult, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.PublishJSONErr != nil {
		return entity.PublishResult{}, c.PublishJSONErr
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return entity.PublishResult{}, fmt.Errorf("could not marshal document: %w", err)
	}

	return c.store(multicodecJSON, payload, name), nil
}

func (c *ContentStoreMock) store(codec uint64, content []byte, name string) entity.PublishResult {
	if c.objects == nil {
		c.objects = make(map[string][]byte)
		c.names = make(map[string]string)
	}

	cid := ContentID(codec, content)
	c.objects[cid] = append([]byte(nil), content...)
	c.names[cid] = name

	return entity.PublishResult{CID: cid, Locator: "ipfs://" + cid}
}

func (c *ContentStoreMock) Get(cid string) ([]byte, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	content, ok := c.objects[cid]
	return content, ok
}

func (c *ContentStoreMock) Count() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return len(c.objects)
}

// Handler serves GET /ipfs/<cid>.
func (c *ContentStoreMock) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := strings.TrimPrefix(r.URL.Path, "/ipfs/")
		content, ok := c.Get(cid)
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	})
}

// ContentID builds a base32 CID v1 with a BLAKE3 multihash.
func ContentID(codec uint64, content []byte) string {
	digest := blake3.Sum256(content)

	raw := binary.AppendUvarint(nil, 1)
	raw = binary.AppendUvarint(raw, codec)
	raw = binary.AppendUvarint(raw, multihashBlake3)
	raw = binary.AppendUvarint(raw, blake3DigestBytes)
	raw = append(raw, digest[:]...)

	return "b" + strings.ToLower(cidEncoding.EncodeToString(raw))
}
