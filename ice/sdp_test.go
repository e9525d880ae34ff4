package ice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptionMarshalContainsRequiredLines(t *testing.T) {
	d := &Description{
		Ufrag:      "abcd",
		Password:   "0123456789012345678901",
		Candidates: []string{"f1 1 udp 2130706431 192.168.1.5 1000 typ host"},
		Done:       true,
	}

	raw, err := d.marshal(12345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := string(raw)

	for _, want := range []string{
		"a=ice-ufrag:abcd",
		"a=ice-pwd:0123456789012345678901",
		"a=ice-options:trickle",
		"a=candidate:f1 1 udp 2130706431 192.168.1.5 1000 typ host",
		"a=end-of-candidates",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("marshaled SDP missing %q:\n%s", want, text)
		}
	}
}

func TestParseDescriptionRoundTrip(t *testing.T) {
	d := &Description{
		Ufrag:      "wxyz",
		Password:   "9876543210987654321098",
		Candidates: []string{"f1 1 udp 2130706431 10.0.0.2 5000 typ host"},
		Done:       true,
	}
	raw, err := d.marshal(1)
	require := assert.New(t)
	require.NoError(err)

	parsed, err := parseDescription(raw)
	require.NoError(err)
	require.Equal(d.Ufrag, parsed.Ufrag)
	require.Equal(d.Password, parsed.Password)
	require.Equal(d.Candidates, parsed.Candidates)
	require.True(parsed.Done)
}

func TestParseDescriptionRejectsMissingCredentials(t *testing.T) {
	d := &Description{Candidates: []string{"f1 1 udp 1 10.0.0.2 5000 typ host"}}
	raw, _ := d.marshal(1)

	if _, err := parseDescription(raw); err == nil {
		t.Error("expected error for description missing ice-ufrag/ice-pwd")
	}
}

func TestParseDescriptionRejectsEndOfCandidatesWithNoLines(t *testing.T) {
	d := &Description{Ufrag: "abcd", Password: "0123456789012345678901", Done: true}
	raw, _ := d.marshal(1)

	if _, err := parseDescription(raw); err == nil {
		t.Error("expected error for end-of-candidates with no candidate lines")
	}
}
