package compare

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scmigrate/pkg/screenconnect"
)

func session(id, name, addr, version string, props ...string) screenconnect.Session {
	cp := make([]string, screenconnect.NumCustomProperties)
	copy(cp, props)
	return screenconnect.Session{
		SessionID:             id,
		Name:                  name,
		GuestNetworkAddress:   addr,
		GuestClientVersion:    version,
		GuestLastActivityTime: "2026-08-30T12:00:00Z",
		CustomPropertyValues:  cp,
	}
}

func TestCompareSameDeviceDifferentSessionIDs(t *testing.T) {
	// The same physical device carries different opaque session ids on the
	// two instances; the fingerprint is what links them.
	source := []screenconnect.Session{session("src-1", "WS01", "10.0.0.5", "23.1")}
	target := []screenconnect.Session{session("tgt-99", "ws01", " 10.0.0.5", "23.1")}

	result := Compare(source, target)
	assert.Equal(t, 1, result.Matched)
	assert.Empty(t, result.Missing)
}

func TestComparePartitionIsComplete(t *testing.T) {
	source := []screenconnect.Session{
		session("s1", "WS01", "10.0.0.1", "23.1"),
		session("s2", "WS02", "10.0.0.2", "23.1"),
		session("s3", "WS03", "10.0.0.3", "23.1"),
		session("s4", "WS04", "10.0.0.4", "23.1"),
	}
	target := []screenconnect.Session{
		session("t1", "WS02", "10.0.0.2", "23.1"),
		session("t2", "WS04", "10.0.0.4", "23.1"),
	}

	result := Compare(source, target)
	assert.Equal(t, len(source), result.Matched+len(result.Missing))
	assert.Equal(t, 2, result.Matched)

	names := make([]string, 0, len(result.Missing))
	for _, d := range result.Missing {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"WS01", "WS03"}, names)
}

func TestCompareIdempotent(t *testing.T) {
	source := []screenconnect.Session{
		session("s1", "WS01", "10.0.0.1", "23.1"),
		session("s2", "WS02", "10.0.0.2", "23.1"),
	}
	target := []screenconnect.Session{
		session("t1", "WS01", "10.0.0.1", "23.1"),
	}

	first := Compare(source, target)
	second := Compare(source, target)
	assert.Equal(t, first, second)
}

func TestCompareCarriesDeviceFields(t *testing.T) {
	src := session("s1", "WS01", "10.0.0.1", "23.1", "Acme", "HQ")
	src.CustomPropertyValues[screenconnect.StatusSlot] = "MIGRATE"
	result := Compare([]screenconnect.Session{src}, nil)

	require.Len(t, result.Missing, 1)
	d := result.Missing[0]
	assert.Equal(t, "s1", d.SessionID)
	assert.Equal(t, "WS01", d.Name)
	assert.Equal(t, "10.0.0.1", d.NetworkAddress)
	assert.Equal(t, "23.1", d.ClientVersion)
	assert.Equal(t, "Acme", d.Company)
	assert.Equal(t, "HQ", d.Site)
	assert.Equal(t, "MIGRATE", d.Status)
	assert.Equal(t, "2026-08-30T12:00:00Z", d.LastActivityTime)
	assert.Len(t, d.Fingerprint, 32)
}

func TestCompareDuplicateTargetFingerprints(t *testing.T) {
	// Two target sessions collapsing to one fingerprint still match the
	// source; the index keeps whichever came last.
	source := []screenconnect.Session{session("s1", "WS01", "10.0.0.1", "23.1")}
	target := []screenconnect.Session{
		session("t1", "WS01", "10.0.0.1", "23.1"),
		session("t2", "ws01", "10.0.0.1 ", "23.1"),
	}

	result := Compare(source, target)
	assert.Equal(t, 1, result.Matched)
	assert.Empty(t, result.Missing)
}

func TestCompareEmptySets(t *testing.T) {
	assert.Equal(t, Result{}, Compare(nil, nil))

	result := Compare(nil, []screenconnect.Session{session("t1", "WS01", "10.0.0.1", "23.1")})
	assert.Equal(t, 0, result.Matched)
	assert.Empty(t, result.Missing)
}

func TestWriteCSV(t *testing.T) {
	result := Compare([]screenconnect.Session{session("s1", "WS01", "10.0.0.1", "23.1", "Acme")}, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result.Missing))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "SessionID,Name,"))
	assert.Contains(t, lines[1], "s1,WS01,10.0.0.1,23.1,Acme")
}
