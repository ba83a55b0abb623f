// SPDX-License-Identifier: AGPL-3.0-or-later

// Package discovery implements the UDP-multicast service discovery
// overlay (C7, C8, C9): packet codec, the resolver that issues and answers
// resolve requests, and a registry cache wrapping it.
//
// Grounded on original_source/libohxaddon/src/discovery/resolver.rs,
// function for function where Go's concurrency model allows (see
// DESIGN.md).
package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire-format constants (spec.md §3, §4.5).
const (
	requestMagic  = "OHXr1"
	responseMagic = "OHXo1"

	// MaxPacketSize is the datagram size cap; oversize packets are
	// silently dropped.
	MaxPacketSize = 1024

	// magicScanWindow is how many leading bytes are scanned for the "OHX"
	// literal before giving up on a packet.
	magicScanWindow = 10
)

// RequestPacket is the wire shape of a resolve request.
type RequestPacket struct {
	ID          string `json:"id"`
	Challenge   string `json:"challenge"`
	ServiceName string `json:"service_name"`
	MinVersion  string `json:"min_version"`
	MaxVersion  string `json:"max_version,omitempty"`
}

// NewRequestPacket builds a RequestPacket with the wire discriminant set.
func NewRequestPacket(challenge, serviceName, minVersion, maxVersion string) RequestPacket {
	return RequestPacket{
		ID:          requestMagic,
		Challenge:   challenge,
		ServiceName: serviceName,
		MinVersion:  minVersion,
		MaxVersion:  maxVersion,
	}
}

// ResponsePacket is the wire shape of a resolve response.
type ResponsePacket struct {
	ID          string   `json:"id"`
	ResponseID  string   `json:"response_id"`
	ServiceName string   `json:"service_name"`
	Version     string   `json:"version"`
	Addresses   []string `json:"addresses"`
}

// NewResponsePacket builds a ResponsePacket with the wire discriminant set.
func NewResponsePacket(responseID, serviceName, version string, addresses []string) ResponsePacket {
	return ResponsePacket{
		ID:          responseMagic,
		ResponseID:  responseID,
		ServiceName: serviceName,
		Version:     version,
		Addresses:   addresses,
	}
}

// packetKind is the dispatch result of sniffing a datagram's magic bytes.
type packetKind int

const (
	kindUnknown packetKind = iota
	kindRequest
	kindResponse
)

// sniff scans the first magicScanWindow bytes of data for the "OHX"
// literal followed by 'r' or 'o' (spec.md §3 invariant, §4.5).
func sniff(data []byte) packetKind {
	window := data
	if len(window) > magicScanWindow {
		window = window[:magicScanWindow]
	}
	idx := bytes.Index(window, []byte("OHX"))
	if idx < 0 || idx+3 >= len(data) {
		return kindUnknown
	}
	switch data[idx+3] {
	case 'r':
		return kindRequest
	case 'o':
		return kindResponse
	default:
		return kindUnknown
	}
}

// packetBuffers holds the two preallocated decode targets the resolver
// reuses across datagrams, selected by the sniffed magic bytes. decode
// zeroes the selected struct before each unmarshal, so the struct itself
// is reused but the strings and the Addresses slice of every decoded
// packet are freshly allocated; decode is not allocation-free.
type packetBuffers struct {
	req  RequestPacket
	resp ResponsePacket
}

func newPacketBuffers() *packetBuffers {
	return &packetBuffers{}
}

// decode sniffs data and unmarshals it into the matching reusable buffer.
// It returns exactly one of (*RequestPacket, *ResponsePacket) non-nil, or
// an error if the packet is oversize, missing its magic, or malformed
// JSON.
func (b *packetBuffers) decode(data []byte) (*RequestPacket, *ResponsePacket, error) {
	if len(data) > MaxPacketSize {
		return nil, nil, fmt.Errorf("discovery: packet exceeds %d bytes", MaxPacketSize)
	}

	switch sniff(data) {
	case kindRequest:
		b.req = RequestPacket{}
		if err := json.Unmarshal(data, &b.req); err != nil {
			return nil, nil, fmt.Errorf("discovery: decode request: %w", err)
		}
		return &b.req, nil, nil
	case kindResponse:
		b.resp = ResponsePacket{}
		if err := json.Unmarshal(data, &b.resp); err != nil {
			return nil, nil, fmt.Errorf("discovery: decode response: %w", err)
		}
		return nil, &b.resp, nil
	default:
		return nil, nil, fmt.Errorf("discovery: missing OHX magic")
	}
}
