// Package catalog fetches and parses the remote repository index.
package catalog

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/omaps-oss/resman/internal/model"
	"github.com/omaps-oss/resman/internal/utils"
	"github.com/omaps-oss/resman/internal/webclient"
)

var (
	ErrEmptyIndex = errors.New("repository index is empty")
	ErrIndexXML   = errors.New("repository index is not well-formed XML")
)

const (
	indexPath    = "/get_indexes.php"
	downloadPath = "/download.php"
)

// Client fetches the repository index and turns it into remote resource
// descriptors keyed by name.
type Client struct {
	baseURL string
	web     webclient.Client
}

func New(baseURL string, web webclient.Client) *Client {
	return &Client{baseURL: baseURL, web: web}
}

// Fetch downloads and parses the index. On any failure the returned map is
// nil and the caller must leave its registry untouched.
func (c *Client) Fetch(ctx context.Context) (map[string]model.RemoteResource, error) {
	data, err := c.web.DownloadBytes(ctx, c.baseURL+indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyIndex
	}
	return Parse(ctx, data, c.baseURL)
}

// DownloadURL composes the container download URL for a resource name as it
// appears in the index (i.e. before the ".zip" strip).
func DownloadURL(baseURL, name string) string {
	return baseURL + downloadPath + "?file=" + url.QueryEscape(name)
}

// Parse scans the index body for start elements carrying the attributes
// type, name, timestamp, containerSize and contentSize. The element name does
// not matter. Elements with unknown type or unparseable numbers are skipped
// with a warning; an XML-level error fails the whole parse.
func Parse(ctx context.Context, data []byte, baseURL string) (map[string]model.RemoteResource, error) {
	log := utils.GetLogger(ctx, "catalog")

	resources := map[string]model.RemoteResource{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexXML, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		attrs := attrMap(se)
		typeValue, ok := attrs["type"]
		if !ok {
			continue
		}
		name, ok := attrs["name"]
		if !ok {
			continue
		}
		timestampValue, ok := attrs["timestamp"]
		if !ok {
			continue
		}
		containerSizeValue, ok := attrs["containerSize"]
		if !ok {
			continue
		}
		contentSizeValue, ok := attrs["contentSize"]
		if !ok {
			continue
		}

		typ := model.ParseResourceType(typeValue)
		if typ == model.ResourceTypeUnknown {
			log.Warn("unknown resource type in index", "type", typeValue, "name", name)
			continue
		}
		timestamp, err := strconv.ParseUint(timestampValue, 10, 64)
		if err != nil {
			log.Warn("invalid timestamp in index", "value", timestampValue, "name", name)
			continue
		}
		containerSize, err := strconv.ParseUint(containerSizeValue, 10, 64)
		if err != nil {
			log.Warn("invalid container size in index", "value", containerSizeValue, "name", name)
			continue
		}
		contentSize, err := strconv.ParseUint(contentSizeValue, 10, 64)
		if err != nil {
			log.Warn("invalid content size in index", "value", contentSizeValue, "name", name)
			continue
		}

		res, err := model.NewRemoteResource(
			model.StripContainerExt(name),
			typ,
			timestamp,
			contentSize,
			containerSize,
			DownloadURL(baseURL, name),
		)
		if err != nil {
			log.Warn("skipping index entry", "name", name, "error", err)
			continue
		}
		resources[res.Name] = res
	}
	return resources, nil
}

func attrMap(se xml.StartElement) map[string]string {
	m := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		m[a.Name.Local] = a.Value
	}
	return m
}
