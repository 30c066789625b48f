package dns

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// RecordType is the TYPE/QTYPE field. See RFC 1035, 3.2.2 and RFC 3596.
type RecordType uint16

const (
	TypeA     RecordType = 1  // host address
	TypeNS    RecordType = 2  // authoritative name server
	TypeMD    RecordType = 3  // mail destination (obsolete)
	TypeMF    RecordType = 4  // mail forwarder (obsolete)
	TypeCNAME RecordType = 5  // canonical name for an alias
	TypeSOA   RecordType = 6  // start of a zone of authority
	TypeMB    RecordType = 7  // mailbox domain name
	TypeMG    RecordType = 8  // mail group member
	TypeMR    RecordType = 9  // mail rename domain name
	TypeNULL  RecordType = 10 // null RR
	TypeWKS   RecordType = 11 // well known service description
	TypePTR   RecordType = 12 // domain name pointer
	TypeHINFO RecordType = 13 // host information
	TypeMINFO RecordType = 14 // mailbox or mail list information
	TypeMX    RecordType = 15 // mail exchange
	TypeTXT   RecordType = 16 // text strings
	TypeAAAA  RecordType = 28 // IPv6 address
)

var typeNames = map[RecordType]string{
	TypeA:     "A",
	TypeNS:    "NS",
	TypeMD:    "MD",
	TypeMF:    "MF",
	TypeCNAME: "CNAME",
	TypeSOA:   "SOA",
	TypeMB:    "MB",
	TypeMG:    "MG",
	TypeMR:    "MR",
	TypeNULL:  "NULL",
	TypeWKS:   "WKS",
	TypePTR:   "PTR",
	TypeHINFO: "HINFO",
	TypeMINFO: "MINFO",
	TypeMX:    "MX",
	TypeTXT:   "TXT",
	TypeAAAA:  "AAAA",
}

func (t RecordType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "TYPE" + strconv.Itoa(int(t))
}

// ParseRecordType accepts mnemonics ("aaaa") and the generic TYPE<n> form.
func ParseRecordType(s string) (RecordType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	if n, ok := strings.CutPrefix(s, "TYPE"); ok {
		v, err := strconv.ParseUint(n, 10, 16)
		if err == nil && v > 0 {
			return RecordType(v), nil
		}
	}
	return 0, fmt.Errorf("dns: unknown record type %q", s)
}

// RecordClass is the CLASS/QCLASS field. See RFC 1035, 3.2.4.
type RecordClass uint16

const (
	ClassIN RecordClass = 1 // the Internet
	ClassCS RecordClass = 2 // CSNET (obsolete)
	ClassCH RecordClass = 3 // CHAOS
	ClassHS RecordClass = 4 // Hesiod
)

func (c RecordClass) String() string {
	switch c {
	case ClassIN:
		return "IN"
	case ClassCS:
		return "CS"
	case ClassCH:
		return "CH"
	case ClassHS:
		return "HS"
	default:
		return "CLASS" + strconv.Itoa(int(c))
	}
}

func parseClass(v uint16) (RecordClass, error) {
	c := RecordClass(v)
	switch c {
	case ClassIN, ClassCS, ClassCH, ClassHS:
		return c, nil
	default:
		return 0, formatErr("unknown RR class: %d", v)
	}
}

// RecordData is the decoded RDATA of a resource record.
type RecordData interface {
	// Type is the RR type this data belongs to.
	Type() RecordType
	// String renders the data in presentation form.
	String() string
	pack(b []byte) ([]byte, error)
}

type A struct{ Addr netip.Addr }

func (*A) Type() RecordType { return TypeA }
func (r *A) String() string { return r.Addr.String() }
func (r *A) pack(b []byte) ([]byte, error) {
	if !r.Addr.Is4() {
		return nil, fmt.Errorf("dns: A record needs an IPv4 address, got %s", r.Addr)
	}
	a := r.Addr.As4()
	return append(b, a[:]...), nil
}

type AAAA struct{ Addr netip.Addr }

func (*AAAA) Type() RecordType { return TypeAAAA }
func (r *AAAA) String() string { return r.Addr.String() }
func (r *AAAA) pack(b []byte) ([]byte, error) {
	if !r.Addr.Is6() || r.Addr.Is4In6() {
		return nil, fmt.Errorf("dns: AAAA record needs an IPv6 address, got %s", r.Addr)
	}
	a := r.Addr.As16()
	return append(b, a[:]...), nil
}

type CNAME struct{ Target string }

func (*CNAME) Type() RecordType                { return TypeCNAME }
func (r *CNAME) String() string                { return r.Target }
func (r *CNAME) pack(b []byte) ([]byte, error) { return appendName(b, r.Target) }

type NS struct{ Host string }

func (*NS) Type() RecordType                { return TypeNS }
func (r *NS) String() string                { return r.Host }
func (r *NS) pack(b []byte) ([]byte, error) { return appendName(b, r.Host) }

type PTR struct{ Target string }

func (*PTR) Type() RecordType                { return TypePTR }
func (r *PTR) String() string                { return r.Target }
func (r *PTR) pack(b []byte) ([]byte, error) { return appendName(b, r.Target) }

// Mailbox carries the single domain name of the RFC 1035 mail types MD, MF,
// MB, MG and MR.
type Mailbox struct {
	RRType RecordType
	Host   string
}

func (r *Mailbox) Type() RecordType              { return r.RRType }
func (r *Mailbox) String() string                { return r.Host }
func (r *Mailbox) pack(b []byte) ([]byte, error) { return appendName(b, r.Host) }

// MINFO names the responsible and error mailboxes of a mail list.
// See RFC 1035, 3.3.7.
type MINFO struct {
	RMailBX string
	EMailBX string
}

func (*MINFO) Type() RecordType { return TypeMINFO }
func (r *MINFO) String() string { return r.RMailBX + " " + r.EMailBX }
func (r *MINFO) pack(b []byte) ([]byte, error) {
	b, err := appendName(b, r.RMailBX)
	if err != nil {
		return nil, err
	}
	return appendName(b, r.EMailBX)
}

type MX struct {
	Preference uint16
	Exchange   string
}

func (*MX) Type() RecordType { return TypeMX }
func (r *MX) String() string { return fmt.Sprintf("%d %s", r.Preference, r.Exchange) }
func (r *MX) pack(b []byte) ([]byte, error) {
	b = binary.BigEndian.AppendUint16(b, r.Preference)
	return appendName(b, r.Exchange)
}

type TXT struct{ Texts []string }

func (*TXT) Type() RecordType { return TypeTXT }
func (r *TXT) String() string {
	quoted := make([]string, len(r.Texts))
	for i, t := range r.Texts {
		quoted[i] = strconv.Quote(t)
	}
	return strings.Join(quoted, " ")
}
func (r *TXT) pack(b []byte) ([]byte, error) {
	for _, t := range r.Texts {
		if len(t) > 255 {
			return nil, fmt.Errorf("dns: TXT string exceeds 255 octets")
		}
		b = append(b, byte(len(t)))
		b = append(b, t...)
	}
	return b, nil
}

// SOA marks the start of a zone of authority. See RFC 1035, 3.3.13.
type SOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh int32
	Retry   int32
	Expire  int32
	Minimum uint32
}

func (*SOA) Type() RecordType { return TypeSOA }
func (r *SOA) String() string {
	return fmt.Sprintf("%s %s %d %d %d %d %d", r.MName, r.RName, r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum)
}
func (r *SOA) pack(b []byte) ([]byte, error) {
	b, err := appendName(b, r.MName)
	if err != nil {
		return nil, err
	}
	if b, err = appendName(b, r.RName); err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint32(b, r.Serial)
	b = binary.BigEndian.AppendUint32(b, uint32(r.Refresh))
	b = binary.BigEndian.AppendUint32(b, uint32(r.Retry))
	b = binary.BigEndian.AppendUint32(b, uint32(r.Expire))
	b = binary.BigEndian.AppendUint32(b, r.Minimum)
	return b, nil
}

// Raw holds RDATA of a type this package does not decode. Every type whose
// RDATA may carry compressed names is decoded, so Raw bytes are position
// independent and survive re-packing.
type Raw struct {
	RRType RecordType
	Data   []byte
}

func (r *Raw) Type() RecordType { return r.RRType }
func (r *Raw) String() string {
	return fmt.Sprintf(`\# %d %x`, len(r.Data), r.Data)
}
func (r *Raw) pack(b []byte) ([]byte, error) { return append(b, r.Data...), nil }

// ResourceRecord is an entry of the answer, authority or additional section.
// See RFC 1035, 4.1.3.
type ResourceRecord struct {
	Name  string
	Type  RecordType
	Class RecordClass
	// TTL is the number of seconds the record may be cached; zero means
	// the record is only valid for the transaction in progress.
	TTL      uint32
	RDLength uint16
	Data     RecordData
}

// IPv4 returns the address of an A record.
func (rr ResourceRecord) IPv4() (netip.Addr, bool) {
	if a, ok := rr.Data.(*A); ok && rr.Type == TypeA {
		return a.Addr, true
	}
	return netip.Addr{}, false
}

func (rr ResourceRecord) String() string {
	data := ""
	if rr.Data != nil {
		data = rr.Data.String()
	}
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s", rr.Name, rr.TTL, rr.Class, rr.Type, data)
}

// fixed part of a resource record after NAME: TYPE, CLASS, TTL, RDLENGTH
const rrFixedLen = 10

func readRecord(msg []byte, off int) (ResourceRecord, int, error) {
	name, pos, err := readName(msg, off)
	if err != nil {
		return ResourceRecord{}, 0, err
	}
	if len(msg) < pos+rrFixedLen {
		return ResourceRecord{}, 0, formatErr("resource record is out of bound")
	}

	rr := ResourceRecord{
		Name:     name,
		Type:     RecordType(binary.BigEndian.Uint16(msg[pos:])),
		TTL:      binary.BigEndian.Uint32(msg[pos+4:]),
		RDLength: binary.BigEndian.Uint16(msg[pos+8:]),
	}
	if rr.Class, err = parseClass(binary.BigEndian.Uint16(msg[pos+2:])); err != nil {
		return ResourceRecord{}, 0, err
	}

	start := pos + rrFixedLen
	end := start + int(rr.RDLength)
	if len(msg) < end {
		return ResourceRecord{}, 0, formatErr(
			"resource record doesn't contain enough space for RDATA, expect: %d, got: %d", end, len(msg))
	}
	if rr.Data, err = readData(msg, rr.Type, start, end); err != nil {
		return ResourceRecord{}, 0, err
	}
	return rr, end, nil
}

// readData decodes RDATA in msg[start:end]. Names may point anywhere in msg.
func readData(msg []byte, t RecordType, start, end int) (RecordData, error) {
	rdata := msg[start:end]

	switch t {
	case TypeA:
		if len(rdata) != 4 {
			return nil, formatErr("can't parse IPv4 address with length %d, expect 4", len(rdata))
		}
		return &A{Addr: netip.AddrFrom4([4]byte(rdata))}, nil

	case TypeAAAA:
		if len(rdata) != 16 {
			return nil, formatErr("can't parse IPv6 address with length %d, expect 16", len(rdata))
		}
		return &AAAA{Addr: netip.AddrFrom16([16]byte(rdata))}, nil

	case TypeCNAME, TypeNS, TypePTR:
		name, n, err := readName(msg, start)
		if err != nil {
			return nil, err
		}
		if n > end {
			return nil, formatErr("%s RDATA overruns RDLENGTH", t)
		}
		switch t {
		case TypeCNAME:
			return &CNAME{Target: name}, nil
		case TypeNS:
			return &NS{Host: name}, nil
		default:
			return &PTR{Target: name}, nil
		}

	case TypeMD, TypeMF, TypeMB, TypeMG, TypeMR:
		host, n, err := readName(msg, start)
		if err != nil {
			return nil, err
		}
		if n > end {
			return nil, formatErr("%s RDATA overruns RDLENGTH", t)
		}
		return &Mailbox{RRType: t, Host: host}, nil

	case TypeMINFO:
		rmail, n, err := readName(msg, start)
		if err != nil {
			return nil, err
		}
		email, n, err := readName(msg, n)
		if err != nil {
			return nil, err
		}
		if n > end {
			return nil, formatErr("MINFO RDATA overruns RDLENGTH")
		}
		return &MINFO{RMailBX: rmail, EMailBX: email}, nil

	case TypeMX:
		if len(rdata) < 3 {
			return nil, formatErr("MX RDATA too short")
		}
		exchange, n, err := readName(msg, start+2)
		if err != nil {
			return nil, err
		}
		if n > end {
			return nil, formatErr("MX RDATA overruns RDLENGTH")
		}
		return &MX{Preference: binary.BigEndian.Uint16(rdata), Exchange: exchange}, nil

	case TypeTXT:
		var texts []string
		for i := 0; i < len(rdata); {
			l := int(rdata[i])
			i++
			if i+l > len(rdata) {
				return nil, formatErr("TXT string overruns RDLENGTH")
			}
			texts = append(texts, string(rdata[i:i+l]))
			i += l
		}
		return &TXT{Texts: texts}, nil

	case TypeSOA:
		mname, n, err := readName(msg, start)
		if err != nil {
			return nil, err
		}
		rname, n, err := readName(msg, n)
		if err != nil {
			return nil, err
		}
		if n+20 > end {
			return nil, formatErr("can't parse SOA record with length %d, expect %d", end, n+20)
		}
		return &SOA{
			MName:   mname,
			RName:   rname,
			Serial:  binary.BigEndian.Uint32(msg[n:]),
			Refresh: int32(binary.BigEndian.Uint32(msg[n+4:])),
			Retry:   int32(binary.BigEndian.Uint32(msg[n+8:])),
			Expire:  int32(binary.BigEndian.Uint32(msg[n+12:])),
			Minimum: binary.BigEndian.Uint32(msg[n+16:]),
		}, nil

	default:
		data := make([]byte, len(rdata))
		copy(data, rdata)
		return &Raw{RRType: t, Data: data}, nil
	}
}

func appendRecord(b []byte, rr ResourceRecord) ([]byte, error) {
	b, err := appendName(b, rr.Name)
	if err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint16(b, uint16(rr.Type))
	b = binary.BigEndian.AppendUint16(b, uint16(rr.Class))
	b = binary.BigEndian.AppendUint32(b, rr.TTL)

	lenAt := len(b)
	b = append(b, 0, 0)
	if rr.Data != nil {
		if b, err = rr.Data.pack(b); err != nil {
			return nil, err
		}
	}
	rdlen := len(b) - lenAt - 2
	if rdlen > 0xFFFF {
		return nil, fmt.Errorf("dns: RDATA exceeds 65535 octets")
	}
	binary.BigEndian.PutUint16(b[lenAt:], uint16(rdlen))
	return b, nil
}
