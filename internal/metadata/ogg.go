package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Ogg page layout, see RFC 3533 section 6.
const (
	oggCapture      = "OggS"
	oggHeaderSize   = 27
	oggMaxSegments  = 255
	oggFlagContinue = 0x01
	oggNoGranule    = ^uint64(0)
)

var (
	errOggCapture     = errors.New("ogg: missing capture pattern")
	errOggTruncated   = errors.New("ogg: truncated page")
	errOggMultiplexed = errors.New("ogg: multiplexed or chained streams are not supported")
	errOggCodec       = errors.New("ogg: only vorbis and opus streams are supported")
	errOggHeaders     = errors.New("ogg: incomplete header packets")
)

var oggCRCTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func oggCRC(b []byte) uint32 {
	var crc uint32
	for _, c := range b {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^c]
	}
	return crc
}

type oggPage struct {
	flags    byte
	granule  uint64
	serial   uint32
	seq      uint32
	segments []byte // lacing values
	body     []byte
}

func (p *oggPage) marshal() []byte {
	b := make([]byte, oggHeaderSize+len(p.segments)+len(p.body))
	copy(b, oggCapture)
	b[5] = p.flags
	binary.LittleEndian.PutUint64(b[6:], p.granule)
	binary.LittleEndian.PutUint32(b[14:], p.serial)
	binary.LittleEndian.PutUint32(b[18:], p.seq)
	b[26] = byte(len(p.segments))
	copy(b[oggHeaderSize:], p.segments)
	copy(b[oggHeaderSize+len(p.segments):], p.body)
	binary.LittleEndian.PutUint32(b[22:], oggCRC(b))
	return b
}

// endsPacket reports whether any packet finishes on this page.
func (p *oggPage) endsPacket() bool {
	for _, l := range p.segments {
		if l < 255 {
			return true
		}
	}
	return false
}

func parseOggPages(data []byte) ([]oggPage, error) {
	var pages []oggPage
	for off := 0; off < len(data); {
		h := data[off:]
		if len(h) < oggHeaderSize {
			return nil, errOggTruncated
		}
		if string(h[:4]) != oggCapture || h[4] != 0 {
			return nil, errOggCapture
		}

		nseg := int(h[26])
		start := oggHeaderSize + nseg
		if len(h) < start {
			return nil, errOggTruncated
		}

		size := 0
		for _, l := range h[oggHeaderSize:start] {
			size += int(l)
		}
		if len(h) < start+size {
			return nil, errOggTruncated
		}

		pages = append(pages, oggPage{
			flags:    h[5],
			granule:  binary.LittleEndian.Uint64(h[6:]),
			serial:   binary.LittleEndian.Uint32(h[14:]),
			seq:      binary.LittleEndian.Uint32(h[18:]),
			segments: h[oggHeaderSize:start],
			body:     h[start : start+size],
		})
		off += start + size
	}
	return pages, nil
}

// oggHeaderPackets reassembles the first n packets. It returns them with the
// index of the first page after the one that completes packet n.
func oggHeaderPackets(pages []oggPage, n int) ([][]byte, int, error) {
	var packets [][]byte
	var cur []byte

	for i := range pages {
		p := &pages[i]
		pos := 0
		for j, l := range p.segments {
			cur = append(cur, p.body[pos:pos+int(l)]...)
			pos += int(l)
			if l == 255 {
				continue
			}

			packets = append(packets, cur)
			cur = nil
			if len(packets) == n {
				if j != len(p.segments)-1 {
					return nil, 0, fmt.Errorf("ogg: header packet %d does not end its page", n)
				}
				return packets, i + 1, nil
			}
		}
	}
	return nil, 0, errOggHeaders
}

// paginate lays packets out on pages starting at seq.
func paginate(packets [][]byte, serial, seq uint32) []oggPage {
	var pages []oggPage
	page := oggPage{serial: serial, seq: seq}

	flush := func() {
		page.granule = 0
		if !page.endsPacket() {
			page.granule = oggNoGranule
		}
		pages = append(pages, page)

		next := oggPage{serial: serial, seq: page.seq + 1}
		if n := len(page.segments); n > 0 && page.segments[n-1] == 255 {
			next.flags = oggFlagContinue
		}
		page = next
	}

	for _, pkt := range packets {
		lacing := make([]byte, 0, len(pkt)/255+1)
		for n := len(pkt); ; n -= 255 {
			if n < 255 {
				lacing = append(lacing, byte(n))
				break
			}
			lacing = append(lacing, 255)
		}

		rest := pkt
		for len(lacing) > 0 {
			if len(page.segments) == oggMaxSegments {
				flush()
			}

			take := oggMaxSegments - len(page.segments)
			if take > len(lacing) {
				take = len(lacing)
			}

			size := 0
			for _, l := range lacing[:take] {
				size += int(l)
			}

			page.segments = append(page.segments, lacing[:take]...)
			page.body = append(page.body, rest[:size]...)
			rest = rest[size:]
			lacing = lacing[take:]
		}
	}

	if len(page.segments) > 0 {
		flush()
	}
	return pages
}

// oggCodec describes where a codec keeps its comment header.
type oggCodec struct {
	magic       string // prefix of the identification packet
	comment     string // prefix of the comment packet
	headers     int    // number of header packets
	framingByte bool
}

var oggCodecs = []oggCodec{
	{magic: "\x01vorbis", comment: "\x03vorbis", headers: 3, framingByte: true},
	{magic: "OpusHead", comment: "OpusTags", headers: 2},
}

// emptyComment rebuilds the comment packet keeping only the vendor string.
func (c oggCodec) emptyComment(packet []byte) ([]byte, error) {
	if !bytes.HasPrefix(packet, []byte(c.comment)) {
		return nil, errors.New("ogg: second packet is not a comment header")
	}

	rest := packet[len(c.comment):]
	if len(rest) < 4 {
		return nil, errOggTruncated
	}
	vendorLen := int(binary.LittleEndian.Uint32(rest))
	if vendorLen < 0 || len(rest)-4 < vendorLen {
		return nil, errOggTruncated
	}
	vendor := rest[4 : 4+vendorLen]

	var buf bytes.Buffer
	buf.WriteString(c.comment)
	binary.Write(&buf, binary.LittleEndian, uint32(len(vendor)))
	buf.Write(vendor)
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	if c.framingByte {
		buf.WriteByte(1)
	}
	return buf.Bytes(), nil
}

// stripOgg replaces the comment header of a single Vorbis or Opus stream with
// an empty one, then renumbers and re-checksums every following page.
func stripOgg(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ogg file: %w", err)
	}

	pages, err := parseOggPages(data)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, errOggTruncated
	}

	serial := pages[0].serial
	for _, p := range pages {
		if p.serial != serial {
			return nil, errOggMultiplexed
		}
	}

	var codec *oggCodec
	for i := range oggCodecs {
		if bytes.HasPrefix(pages[0].body, []byte(oggCodecs[i].magic)) {
			codec = &oggCodecs[i]
			break
		}
	}
	if codec == nil {
		return nil, errOggCodec
	}

	packets, next, err := oggHeaderPackets(pages, codec.headers)
	if err != nil {
		return nil, err
	}

	comment, err := codec.emptyComment(packets[1])
	if err != nil {
		return nil, err
	}
	packets[1] = comment

	// The identification packet keeps its own page.
	first := paginate(packets[:1], serial, pages[0].seq)
	first[0].flags = pages[0].flags
	first[0].granule = pages[0].granule

	out := append(first, paginate(packets[1:], serial, pages[0].seq+1)...)
	for _, p := range pages[next:] {
		p.seq = out[len(out)-1].seq + 1
		out = append(out, p)
	}

	var buf bytes.Buffer
	for i := range out {
		buf.Write(out[i].marshal())
	}
	return buf.Bytes(), nil
}
