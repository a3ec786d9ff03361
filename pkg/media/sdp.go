package media

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/sdp/v3"
)

// Direction is the a=sendrecv family attribute of an audio stream.
type Direction string

const (
	SendRecv Direction = "sendrecv"
	SendOnly Direction = "sendonly"
	RecvOnly Direction = "recvonly"
	Inactive Direction = "inactive"
)

// Held reports whether a remote description with this direction puts us on hold.
func (d Direction) Held() bool {
	return d == SendOnly || d == Inactive
}

// Reverse returns the direction to answer with.
func (d Direction) Reverse() Direction {
	switch d {
	case SendOnly:
		return RecvOnly
	case RecvOnly:
		return SendOnly
	}
	return d
}

// Codec is one static or dynamic payload offered for audio.
type Codec struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Fmtp        string
}

var DefaultCodecs = []Codec{
	{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
	{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
	{PayloadType: 101, Name: "telephone-event", ClockRate: 8000, Fmtp: "0-16"},
}

// Builder produces local session descriptions for one endpoint address.
type Builder struct {
	Host    string
	Port    int
	Codecs  []Codec
	session uint64
	version uint64
}

// NewBuilder returns a builder for audio on host:port.
func NewBuilder(host string, port int) *Builder {
	now := uint64(time.Now().UnixNano() / 1e6)
	return &Builder{
		Host:    host,
		Port:    port,
		Codecs:  DefaultCodecs,
		session: now,
		version: now,
	}
}

// Build marshals a description with the given stream direction. Every call
// bumps the origin version so re-INVITEs carry a fresh o= line.
func (b *Builder) Build(dir Direction) (string, error) {
	addrType := "IP4"
	if ip := net.ParseIP(b.Host); ip != nil && ip.To4() == nil {
		addrType = "IP6"
	}

	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      b.session,
			SessionVersion: atomic.AddUint64(&b.version, 1),
			NetworkType:    "IN",
			AddressType:    addrType,
			UnicastAddress: b.Host,
		},
		SessionName: "go-sip-webphone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addrType,
			Address:     &sdp.Address{Address: b.Host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "audio",
			Port:   sdp.RangedPort{Value: b.Port},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, c := range b.Codecs {
		md.WithCodec(c.PayloadType, c.Name, c.ClockRate, 0, c.Fmtp)
	}
	md.WithPropertyAttribute(string(dir))
	sd.WithMedia(md)

	raw, err := sd.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal sdp: %w", err)
	}
	return string(raw), nil
}

// ParseDirection returns the direction of the first audio stream in raw.
// Media-level attributes win over session-level ones; the default is sendrecv.
func ParseDirection(raw string) (Direction, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return "", fmt.Errorf("unmarshal sdp: %w", err)
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		if dir, ok := directionOf(md.Attributes); ok {
			return dir, nil
		}
		break
	}
	if dir, ok := directionOf(sd.Attributes); ok {
		return dir, nil
	}
	return SendRecv, nil
}

func directionOf(attrs []sdp.Attribute) (Direction, bool) {
	for _, a := range attrs {
		switch Direction(a.Key) {
		case SendRecv, SendOnly, RecvOnly, Inactive:
			return Direction(a.Key), true
		}
	}
	return "", false
}
