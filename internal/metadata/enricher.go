package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mintWatch/internal/model"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 2 << 20
)

// URIResolver returns the metadata locator of a token.
type URIResolver interface {
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
}

// Metrics records metadata lookups.
type Metrics interface {
	ObserveFetch(err error, started time.Time)
}

// Config controls how metadata documents are fetched.
type Config struct {
	IPFSGateway  string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Enricher resolves token metadata documents. Lookups are not cached.
type Enricher struct {
	uris    URIResolver
	client  *http.Client
	cfg     Config
	metrics Metrics
	logger  *zap.Logger
}

// NewEnricher builds an Enricher. A nil client gets one bounded by cfg.Timeout.
func NewEnricher(uris URIResolver, cfg Config, client *http.Client, metrics Metrics, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.IPFSGateway == "" {
		cfg.IPFSGateway = DefaultIPFSGateway
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Enricher{uris: uris, client: client, cfg: cfg, metrics: metrics, logger: logger}
}

// Enrich returns the token's metadata, or the defaults when any step fails.
func (e *Enricher) Enrich(ctx context.Context, tokenID *big.Int) model.TokenMetadata {
	meta, err := e.Resolve(ctx, tokenID)
	if err != nil {
		e.logger.Warn("metadata lookup failed, using defaults",
			zap.String("token_id", tokenID.String()),
			zap.Error(err),
		)
	}
	return meta
}

// Resolve looks up the token's metadata. On failure it returns the default
// metadata together with an *Error naming the failed stage.
func (e *Enricher) Resolve(ctx context.Context, tokenID *big.Int) (meta model.TokenMetadata, err error) {
	started := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveFetch(err, started)
		}
	}()

	meta = model.DefaultTokenMetadata(tokenID)

	uri, err := e.uris.TokenURI(ctx, tokenID)
	if err != nil {
		return meta, &Error{TokenID: tokenID, Stage: StageTokenURI, Err: err}
	}

	body, err := e.load(ctx, uri)
	if err != nil {
		return meta, &Error{TokenID: tokenID, Stage: StageFetch, Err: err}
	}

	doc, err := parseDocument(body)
	if err != nil {
		return meta, &Error{TokenID: tokenID, Stage: StageDecode, Err: err}
	}

	if doc.Name != "" {
		meta.Name = doc.Name
	}
	image := doc.Image
	if image == "" {
		image = doc.ImageURL
	}
	if image != "" {
		meta.ImageURI = GatewayURL(image, e.cfg.IPFSGateway)
	}
	for _, attr := range doc.Attributes {
		meta.Attributes = append(meta.Attributes, model.Attribute{
			TraitType: attr.TraitType,
			Value:     attributeValue(attr.Value),
		})
	}
	return meta, nil
}

func (e *Enricher) load(ctx context.Context, uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("empty token uri")
	}
	if isDataURI(uri) {
		return decodeDataURI(uri)
	}

	target := GatewayURL(uri, e.cfg.IPFSGateway)
	if !hasPrefixFold(target, "http://") && !hasPrefixFold(target, "https://") {
		return nil, fmt.Errorf("unsupported uri scheme: %q", uri)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > e.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("metadata document exceeds %d bytes", e.cfg.MaxBodyBytes)
	}
	return body, nil
}

type document struct {
	Name       string `json:"name"`
	Image      string `json:"image"`
	ImageURL   string `json:"image_url"`
	Attributes []struct {
		TraitType string      `json:"trait_type"`
		Value     interface{} `json:"value"`
	} `json:"attributes"`
}

func parseDocument(body []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

func attributeValue(v interface{}) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(data)
	}
}
