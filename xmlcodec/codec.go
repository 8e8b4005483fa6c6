package xmlcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"unicode/utf8"

	"github.com/andaru/unicomm/framing"
	"github.com/andaru/unicomm/message"
	"github.com/andaru/unicomm/ucerr"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/pkg/errors"
)

// Name is the codec name used in configuration.
const Name = "xml"

// Codec is the XML message codec. Each message is one <message>
// document followed by framing.Delimiter.
type Codec struct{}

// New returns an XML Codec.
func New() *Codec { return &Codec{} }

// Name returns the codec name.
func (c *Codec) Name() string { return Name }

// Encode returns the XML encoding of m.
//
// The payload is written as character data when it is valid UTF-8
// made only of characters XML allows, and as base64 otherwise.
func (c *Codec) Encode(m message.Message) ([]byte, error) {
	var buf bytes.Buffer
	xe := xml.NewEncoder(&buf)

	se := xml.StartElement{Name: xml.Name{Local: elemMessage}}
	se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrID}, Value: strconv.FormatUint(uint64(m.ID), 10)})
	if m.Seq != 0 {
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrSeq}, Value: strconv.FormatUint(m.Seq, 10)})
	}
	if m.ReplyTo != 0 {
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrReplyTo}, Value: strconv.FormatUint(m.ReplyTo, 10)})
	}
	text := string(m.Payload)
	if !isXMLText(m.Payload) {
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrEncoding}, Value: encodingBase64})
		text = base64.StdEncoding.EncodeToString(m.Payload)
	}

	err := xe.EncodeToken(se)
	if err == nil && text != "" {
		err = xe.EncodeToken(xml.CharData(text))
	}
	if err == nil {
		err = xe.EncodeToken(se.End())
	}
	if err == nil {
		err = xe.Flush()
	}
	if err != nil {
		return nil, ucerr.EncodeFailure(ucerr.WithContext(Name), ucerr.WithMessageID(m.ID), ucerr.WithCause(err))
	}
	return framing.AppendDelimited(buf.Bytes(), nil, framing.Delimiter), nil
}

// Decode decodes the complete messages at the head of b.
func (c *Codec) Decode(b []byte) ([]message.Message, int, error) {
	return message.Split(Name, b, framing.SplitDelimited(framing.Delimiter), parse)
}

const (
	elemMessage    = "message"
	attrID         = "id"
	attrSeq        = "seq"
	attrReplyTo    = "rid"
	attrEncoding   = "encoding"
	encodingBase64 = "base64"
)

var xpMessage = xpath.MustCompile(`/message`)

func parse(frame []byte) (message.Message, error) {
	var m message.Message
	doc, err := xmlquery.Parse(bytes.NewReader(frame))
	if err != nil {
		return m, errors.Wrap(err, "parse")
	}
	node := xmlquery.QuerySelector(doc, xpMessage)
	if node == nil {
		return m, errors.New("missing <message> element")
	}

	id, err := strconv.ParseUint(node.SelectAttr(attrID), 10, 32)
	if err != nil {
		return m, errors.Wrap(err, "invalid id attribute")
	}
	m.ID = uint32(id)
	if v := node.SelectAttr(attrSeq); v != "" {
		if m.Seq, err = strconv.ParseUint(v, 10, 64); err != nil {
			return m, errors.Wrap(err, "invalid seq attribute")
		}
	}
	if v := node.SelectAttr(attrReplyTo); v != "" {
		if m.ReplyTo, err = strconv.ParseUint(v, 10, 64); err != nil {
			return m, errors.Wrap(err, "invalid rid attribute")
		}
	}

	text := node.InnerText()
	switch enc := node.SelectAttr(attrEncoding); enc {
	case "":
		if text != "" {
			m.Payload = []byte(text)
		}
	case encodingBase64:
		p, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return m, errors.Wrap(err, "invalid base64 payload")
		}
		if len(p) > 0 {
			m.Payload = p
		}
	default:
		return m, errors.Errorf("unknown payload encoding %q", enc)
	}
	return m, nil
}

// isXMLText reports whether b can be carried as XML character data.
func isXMLText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		switch {
		case r == 0x09, r == 0x0A, r == 0x0D:
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

var _ message.Codec = (*Codec)(nil)
