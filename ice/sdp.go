package ice

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// Description is the local or remote half of an ICE session, carried
// out-of-band over whatever signaling channel the host application
// chooses.
type Description struct {
	Ufrag      string
	Password   string
	Candidates []string // raw "a=candidate" values, one per line
	Done       bool      // end-of-candidates seen/reached
}

// marshal renders d in the session-level a=ice-ufrag/a=ice-pwd plus
// a=candidate line format described in RFC 8839,
// using pion/sdp/v3 to build and serialize the session-level envelope.
func (d *Description) marshal(sessionID uint64) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: "-",
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	desc.Attributes = append(desc.Attributes,
		sdp.Attribute{Key: "ice-ufrag", Value: d.Ufrag},
		sdp.Attribute{Key: "ice-pwd", Value: d.Password},
		sdp.Attribute{Key: "ice-options", Value: "trickle"},
	)
	for _, c := range d.Candidates {
		desc.Attributes = append(desc.Attributes, sdp.Attribute{Key: "candidate", Value: c})
	}
	if d.Done {
		desc.Attributes = append(desc.Attributes, sdp.Attribute{Key: "end-of-candidates"})
	}

	return desc.Marshal()
}

// parseDescription tolerates reordering and missing session-level lines;
// it requires ice-ufrag, ice-pwd, and at least one candidate (spec
// section 6, "In:").
func parseDescription(data []byte) (*Description, error) {
	var raw sdp.SessionDescription
	if err := raw.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	d := &Description{}
	for _, attr := range raw.Attributes {
		switch attr.Key {
		case "ice-ufrag":
			d.Ufrag = attr.Value
		case "ice-pwd":
			d.Password = attr.Value
		case "candidate":
			d.Candidates = append(d.Candidates, attr.Value)
		case "end-of-candidates":
			d.Done = true
		}
	}

	// Media-level attributes, tolerated the same way, in case the remote
	// placed ICE lines under an m= section instead of session-level.
	for _, media := range raw.MediaDescriptions {
		for _, attr := range media.Attributes {
			switch attr.Key {
			case "ice-ufrag":
				if d.Ufrag == "" {
					d.Ufrag = attr.Value
				}
			case "ice-pwd":
				if d.Password == "" {
					d.Password = attr.Value
				}
			case "candidate":
				d.Candidates = append(d.Candidates, attr.Value)
			case "end-of-candidates":
				d.Done = true
			}
		}
	}

	if d.Ufrag == "" || d.Password == "" {
		return nil, fmt.Errorf("%w: missing ice-ufrag or ice-pwd", ErrInvalidArgument)
	}
	if len(d.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidArgument)
	}

	return d, nil
}

// crlfLines splits CRLF-delimited wire text into its lines without going
// through the pion/sdp/v3 object model.
func crlfLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\r\n"), "\r\n")
}
