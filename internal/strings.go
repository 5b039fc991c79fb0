package dbgmodel

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CodePage selects the byte representation a string is transcoded through
// when it crosses the boundary.
type CodePage uint32

const (
	CodePageUTF16LE     CodePage = 1200
	CodePageWindows1252 CodePage = 1252
	CodePageLatin1      CodePage = 28591
	CodePageUTF8        CodePage = 65001
)

func encodingFor(page CodePage) (encoding.Encoding, error) {
	switch page {
	case CodePageUTF8:
		return unicode.UTF8, nil
	case CodePageUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case CodePageWindows1252:
		return charmap.Windows1252, nil
	case CodePageLatin1:
		return charmap.ISO8859_1, nil
	}
	return nil, invalidArgument("unsupported code page %d", page)
}

// encodedString is the payload of a string handle: a private transcoded copy
// of the text plus the page it was encoded with.
type encodedString struct {
	data []byte
	page CodePage
	text string
}

func (es encodedString) decode() (string, error) {
	if es.data == nil {
		return es.text, nil
	}

	enc, err := encodingFor(es.page)
	if err != nil {
		return "", err
	}

	decoded, err := enc.NewDecoder().Bytes(es.data)
	if err != nil {
		return "", fmt.Errorf("could not decode string data: %w", err)
	}

	return string(decoded), nil
}

// transcode encodes s for the given page in two passes: a sizing pass and a
// writing pass. The two must agree on the byte count; a mismatch means the
// input changed underneath us, which is an invariant violation.
func transcode(s string, page CodePage) (encodedString, error) {
	enc, err := encodingFor(page)
	if err != nil {
		return encodedString{}, err
	}

	sized, _, err := transform.Bytes(enc.NewEncoder(), []byte(s))
	if err != nil {
		return encodedString{}, fmt.Errorf("could not size string for code page %d: %w", page, err)
	}

	buf := make([]byte, len(sized))
	n, _, err := enc.NewEncoder().Transform(buf, []byte(s), true)
	if err != nil {
		return encodedString{}, fmt.Errorf("could not encode string for code page %d: %w", page, err)
	}

	if n != len(sized) {
		return encodedString{}, unexpected("transcoding length mismatch: sized %d bytes, wrote %d", len(sized), n)
	}

	return encodedString{data: buf[:n], page: page, text: s}, nil
}

type stringType struct {
	baseType
	page CodePage
}

func (st *stringType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	stringVal, ok := o.(string)
	if !ok {
		return Value{}, invalidArgument("value must be of type string, is %T", o)
	}

	enc, err := transcode(stringVal, st.page)
	if err != nil {
		return Value{}, err
	}

	return e.host.Intrinsic(KindString, enc)
}

func (st *stringType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if e.host.KindOf(v) != KindString {
		return nil, invalidArgument("cannot unbox %s value as string", e.host.KindOf(v))
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}

	enc, ok := payload.(encodedString)
	if !ok {
		return nil, unexpected("string handle carries %T", payload)
	}

	return enc.decode()
}

func (st *stringType) GoType() string {
	return "string"
}

// charArrayType boxes byte arrays and slices as strings instead of owning
// containers.
type charArrayType struct {
	baseType
	goType reflect.Type
}

func (cat *charArrayType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	rv := reflect.ValueOf(o)
	if rv.Type() != cat.goType {
		return Value{}, invalidArgument("value must be of type %s, is %T", cat.goType, o)
	}

	data := make([]byte, rv.Len())
	reflect.Copy(reflect.ValueOf(data), rv)

	enc, err := transcode(string(data), CodePageUTF8)
	if err != nil {
		return Value{}, err
	}

	return e.host.Intrinsic(KindString, enc)
}

func (cat *charArrayType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if e.host.KindOf(v) != KindString {
		return nil, invalidArgument("cannot unbox %s value as %s", e.host.KindOf(v), cat.goType)
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}

	enc, ok := payload.(encodedString)
	if !ok {
		return nil, unexpected("string handle carries %T", payload)
	}

	text, err := enc.decode()
	if err != nil {
		return nil, err
	}

	if cat.goType.Kind() == reflect.Slice {
		return []byte(text), nil
	}

	if len(text) != cat.goType.Len() {
		return nil, invalidArgument("string of %d bytes does not fit %s", len(text), cat.goType)
	}

	out := reflect.New(cat.goType).Elem()
	reflect.Copy(out, reflect.ValueOf([]byte(text)))
	return out.Interface(), nil
}

func (cat *charArrayType) GoType() string {
	return cat.goType.String()
}
