package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
)

// Media types understood by the default codecs.
const (
	MediaTypeJSON = "application/json"
	MediaTypeYAML = "application/yaml"
	MediaTypeText = "text/plain"
)

// Codec converts request bodies into values and values into response bodies
// for one family of media types.
type Codec interface {
	// MediaTypes lists the accepted media types, canonical first.
	MediaTypes() []string
	Decode(data []byte, v any) error
	Encode(w io.Writer, v any, tag language.Tag) error
}

// Codecs selects a codec by media type.
type Codecs struct {
	ordered []Codec
	byType  map[string]Codec
}

// NewCodecs indexes codecs by their media types. The first codec is the
// response default when the client accepts anything.
func NewCodecs(codecs ...Codec) (*Codecs, error) {
	c := &Codecs{byType: make(map[string]Codec)}
	for _, codec := range codecs {
		if codec == nil {
			return nil, fmt.Errorf("codec is required")
		}
		types := codec.MediaTypes()
		if len(types) == 0 {
			return nil, fmt.Errorf("codec %T declares no media types", codec)
		}
		for _, mediaType := range types {
			mediaType = strings.ToLower(mediaType)
			if _, exists := c.byType[mediaType]; exists {
				return nil, fmt.Errorf("media type %s already registered", mediaType)
			}
			c.byType[mediaType] = codec
		}
		c.ordered = append(c.ordered, codec)
	}
	if len(c.ordered) == 0 {
		return nil, fmt.Errorf("at least one codec is required")
	}
	return c, nil
}

// DefaultCodecs returns JSON, YAML and plain text codecs, in that order.
func DefaultCodecs() *Codecs {
	codecs, err := NewCodecs(JSONCodec{}, YAMLCodec{}, TextCodec{})
	if err != nil {
		panic(err)
	}
	return codecs
}

// ForRequest returns the codec for a Content-Type header value. Requests
// without one are read as plain text.
func (c *Codecs) ForRequest(contentType string) (Codec, string, error) {
	if strings.TrimSpace(contentType) == "" {
		contentType = MediaTypeText
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, "", apperrors.Application(apperrors.CodeUnsupportedMediaType, "invalid content type: "+contentType, err)
	}
	codec, ok := c.byType[mediaType]
	if !ok {
		return nil, "", apperrors.Application(apperrors.CodeUnsupportedMediaType, "no codec for content type "+mediaType, nil)
	}
	return codec, mediaType, nil
}

// ForResponse negotiates a codec from an Accept header value and returns it
// with the media type to answer with.
func (c *Codecs) ForResponse(accept string) (Codec, string, error) {
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return c.ordered[0], c.ordered[0].MediaTypes()[0], nil
	}
	for _, r := range ranges {
		if r.quality <= 0 {
			continue
		}
		switch {
		case r.mediaType == "*/*":
			return c.ordered[0], c.ordered[0].MediaTypes()[0], nil
		case strings.HasSuffix(r.mediaType, "/*"):
			prefix := strings.TrimSuffix(r.mediaType, "*")
			for _, codec := range c.ordered {
				for _, mediaType := range codec.MediaTypes() {
					if strings.HasPrefix(mediaType, prefix) {
						return codec, mediaType, nil
					}
				}
			}
		default:
			if codec, ok := c.byType[r.mediaType]; ok {
				return codec, r.mediaType, nil
			}
		}
	}
	return nil, "", apperrors.Application(apperrors.CodeNotAcceptable, "no codec for accepted types "+accept, nil)
}

type mediaRange struct {
	mediaType string
	quality   float64
}

// parseAccept returns the media ranges of an Accept header ordered by
// descending quality, keeping the client's order among equals.
func parseAccept(accept string) []mediaRange {
	var ranges []mediaRange
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		quality := 1.0
		if q, ok := params["q"]; ok {
			parsed, err := strconv.ParseFloat(q, 64)
			if err != nil {
				continue
			}
			quality = parsed
		}
		ranges = append(ranges, mediaRange{mediaType: mediaType, quality: quality})
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].quality > ranges[j].quality
	})
	return ranges
}

// JSONCodec reads and writes JSON. Unknown request fields are rejected.
type JSONCodec struct{}

func (JSONCodec) MediaTypes() []string { return []string{MediaTypeJSON} }

func (JSONCodec) Decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func (JSONCodec) Encode(w io.Writer, v any, _ language.Tag) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// YAMLCodec reads and writes YAML. Unknown request fields are rejected.
type YAMLCodec struct{}

func (YAMLCodec) MediaTypes() []string {
	return []string{MediaTypeYAML, "application/x-yaml", "text/yaml"}
}

func (YAMLCodec) Decode(data []byte, v any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (YAMLCodec) Encode(w io.Writer, v any, _ language.Tag) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

// TextCodec writes values as localized plain text, one line per element for
// slices. It only reads empty bodies, which suits parameterless operations.
type TextCodec struct{}

func (TextCodec) MediaTypes() []string { return []string{MediaTypeText} }

func (TextCodec) Decode(data []byte, _ any) error {
	if len(bytes.TrimSpace(data)) != 0 {
		return errors.New("plain text requests must have an empty body")
	}
	return nil
}

func (TextCodec) Encode(w io.Writer, v any, tag language.Tag) error {
	printer := message.NewPrinter(tag)
	if v == nil {
		return nil
	}
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Slice && value.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < value.Len(); i++ {
			if _, err := printer.Fprintf(w, "%+v\n", value.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := printer.Fprintf(w, "%+v\n", v)
	return err
}
