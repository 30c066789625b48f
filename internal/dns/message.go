package dns

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"strings"
)

// Message is a DNS message. See RFC 1035, 4.1.
//
//	+---------------------+
//	|        Header       |
//	+---------------------+
//	|       Question      | the question for the name server
//	+---------------------+
//	|        Answer       | RRs answering the question
//	+---------------------+
//	|      Authority      | RRs pointing toward an authority
//	+---------------------+
//	|      Additional     | RRs holding additional information
//	+---------------------+
type Message struct {
	Header      Header
	Question    Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// HeaderLen is the fixed size of the header: six 16-bit fields.
const HeaderLen = 12

var (
	ErrMismatchedHeader   = errors.New("dns: mismatched response header")
	ErrMismatchedQuestion = errors.New("dns: response data doesn't match question")
)

// Header is the fixed message header. See RFC 1035, 4.1.1.
//
//	                                1  1  1  1  1  1
//	  0  1  2  3  4  5  6  7  8  9  0  1  2  3  4  5
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                      ID                       |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA|   Z    |   RCODE   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                    QDCOUNT                    |
//	|                    ANCOUNT                    |
//	|                    NSCOUNT                    |
//	|                    ARCOUNT                    |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

const (
	flagQR = 1 << 15
	flagAA = 1 << 10
	flagTC = 1 << 9
	flagRD = 1 << 8
	flagRA = 1 << 7
)

func (h Header) Response() bool           { return h.Flags&flagQR != 0 }
func (h Header) Opcode() uint8            { return uint8(h.Flags>>11) & 0x0F }
func (h Header) Authoritative() bool      { return h.Flags&flagAA != 0 }
func (h Header) Truncated() bool          { return h.Flags&flagTC != 0 }
func (h Header) RecursionDesired() bool   { return h.Flags&flagRD != 0 }
func (h Header) RecursionAvailable() bool { return h.Flags&flagRA != 0 }
func (h Header) RCode() RCode             { return RCodeFromFlags(h.Flags) }

func (h Header) pack(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.ID)
	b = binary.BigEndian.AppendUint16(b, h.Flags)
	b = binary.BigEndian.AppendUint16(b, h.QDCount)
	b = binary.BigEndian.AppendUint16(b, h.ANCount)
	b = binary.BigEndian.AppendUint16(b, h.NSCount)
	return binary.BigEndian.AppendUint16(b, h.ARCount)
}

func readHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, formatErr("can't parse response header with length: %d", len(buf))
	}
	return Header{
		ID:      binary.BigEndian.Uint16(buf[0:]),
		Flags:   binary.BigEndian.Uint16(buf[2:]),
		QDCount: binary.BigEndian.Uint16(buf[4:]),
		ANCount: binary.BigEndian.Uint16(buf[6:]),
		NSCount: binary.BigEndian.Uint16(buf[8:]),
		ARCount: binary.BigEndian.Uint16(buf[10:]),
	}, nil
}

// PeekHeader decodes only the header, e.g. to inspect the TC bit of a
// response whose body may be cut short.
func PeekHeader(buf []byte) (Header, error) { return readHeader(buf) }

// Question is the question section entry. See RFC 1035, 4.1.2.
type Question struct {
	Name  string
	Type  RecordType
	Class RecordClass
}

func (q Question) matches(o Question) bool {
	return strings.EqualFold(strings.TrimSuffix(q.Name, "."), strings.TrimSuffix(o.Name, ".")) &&
		q.Type == o.Type &&
		q.Class == o.Class
}

func (q Question) pack(b []byte) ([]byte, error) {
	b, err := appendName(b, q.Name)
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint16(b, uint16(q.Type))
	return binary.BigEndian.AppendUint16(b, uint16(q.Class)), nil
}

func readQuestion(buf []byte, off int) (Question, int, error) {
	name, pos, err := readName(buf, off)
	if err != nil {
		return Question{}, 0, err
	}
	// QTYPE and QCLASS follow the terminating zero of QNAME
	if pos+4 > len(buf) {
		return Question{}, 0, formatErr("question field is out of bound")
	}
	class, err := parseClass(binary.BigEndian.Uint16(buf[pos+2:]))
	if err != nil {
		return Question{}, 0, err
	}
	return Question{
		Name:  name,
		Type:  RecordType(binary.BigEndian.Uint16(buf[pos:])),
		Class: class,
	}, pos + 4, nil
}

// NewQuery builds a standard, non-recursive query for one question.
// QR and OPCODE are zero (a standard query); the ID is random.
func NewQuery(name string, t RecordType) *Message {
	return &Message{
		Header:   Header{ID: uint16(rand.Uint32()), QDCount: 1},
		Question: Question{Name: name, Type: t, Class: ClassIN},
	}
}

// Pack encodes the message. Names are written uncompressed; section counts
// are taken from the slices rather than the header fields.
func (m *Message) Pack() ([]byte, error) {
	h := m.Header
	h.QDCount = 1
	h.ANCount = uint16(len(m.Answers))
	h.NSCount = uint16(len(m.Authorities))
	h.ARCount = uint16(len(m.Additionals))

	b := h.pack(make([]byte, 0, 512))
	b, err := m.Question.pack(b)
	if err != nil {
		return nil, err
	}
	for _, section := range [][]ResourceRecord{m.Answers, m.Authorities, m.Additionals} {
		for _, rr := range section {
			if b, err = appendRecord(b, rr); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// Unpack decodes a complete message without checking it against a query.
func Unpack(buf []byte) (*Message, error) {
	h, err := readHeader(buf)
	if err != nil {
		return nil, err
	}
	return unpackBody(buf, h)
}

// ParseResponse decodes buf and checks it answers query: the rcode must be
// zero, ID and QDCOUNT must match, and the echoed question must be the one
// asked.
func ParseResponse(buf []byte, query *Message) (*Message, error) {
	h, err := readHeader(buf)
	if err != nil {
		return nil, err
	}
	if rc := h.RCode(); rc != RCodeSuccess {
		return nil, &ServerError{RCode: rc}
	}
	// section counts are not compared; the query carries none
	if h.ID != query.Header.ID || h.QDCount != query.Header.QDCount {
		return nil, ErrMismatchedHeader
	}

	m, err := unpackBody(buf, h)
	if err != nil {
		return nil, err
	}
	if !m.Question.matches(query.Question) {
		return nil, ErrMismatchedQuestion
	}
	return m, nil
}

func unpackBody(buf []byte, h Header) (*Message, error) {
	if h.QDCount != 1 {
		return nil, formatErr("expected one question, got %d", h.QDCount)
	}
	q, pos, err := readQuestion(buf, HeaderLen)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: h, Question: q}
	sections := []struct {
		count uint16
		dst   *[]ResourceRecord
	}{
		{h.ANCount, &m.Answers},
		{h.NSCount, &m.Authorities},
		{h.ARCount, &m.Additionals},
	}
	for _, s := range sections {
		for i := 0; i < int(s.count); i++ {
			rr, end, err := readRecord(buf, pos)
			if err != nil {
				return nil, err
			}
			*s.dst = append(*s.dst, rr)
			pos = end
		}
	}
	return m, nil
}

// AnswersOf returns the answer records of type t.
func (m *Message) AnswersOf(t RecordType) []ResourceRecord {
	var out []ResourceRecord
	for _, rr := range m.Answers {
		if rr.Type == t {
			out = append(out, rr)
		}
	}
	return out
}

// MinAnswerTTL returns the smallest TTL among the answers, or 0 when there are none.
func (m *Message) MinAnswerTTL() uint32 {
	if len(m.Answers) == 0 {
		return 0
	}
	lowest := m.Answers[0].TTL
	for _, rr := range m.Answers[1:] {
		if rr.TTL < lowest {
			lowest = rr.TTL
		}
	}
	return lowest
}
