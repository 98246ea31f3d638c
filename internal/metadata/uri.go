package metadata

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultIPFSGateway = "https://ipfs.io/ipfs/"
	arweaveGateway     = "https://arweave.net/"
)

// GatewayURL rewrites ipfs:// and ar:// locators to HTTP gateway URLs.
// Other values are returned trimmed but otherwise unchanged.
func GatewayURL(uri, ipfsGateway string) string {
	uri = strings.TrimSpace(uri)
	if ipfsGateway == "" {
		ipfsGateway = DefaultIPFSGateway
	}
	if !strings.HasSuffix(ipfsGateway, "/") {
		ipfsGateway += "/"
	}

	switch {
	case hasPrefixFold(uri, "ipfs://"):
		path := uri[len("ipfs://"):]
		path = strings.TrimPrefix(path, "ipfs/")
		return ipfsGateway + path
	case hasPrefixFold(uri, "ar://"):
		return arweaveGateway + uri[len("ar://"):]
	default:
		return uri
	}
}

// isDataURI reports whether uri carries its document inline.
func isDataURI(uri string) bool {
	return hasPrefixFold(uri, "data:")
}

// decodeDataURI returns the payload of a data: URI, base64 or percent encoded.
func decodeDataURI(uri string) ([]byte, error) {
	rest := uri[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("data uri without payload")
	}
	header, payload := rest[:comma], rest[comma+1:]

	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(payload)
		}
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("unescape payload: %w", err)
	}
	return []byte(decoded), nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
