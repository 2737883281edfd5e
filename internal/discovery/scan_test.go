package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfiles(t *testing.T) *ProfileSet {
	t.Helper()
	ps, err := LoadProfiles("vendors.yaml")
	require.NoError(t, err)
	return ps
}

func TestHostsInCIDRSkipsNetworkAndBroadcast(t *testing.T) {
	hosts, err := hostsInCIDR("192.168.1.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, hosts)
}

func TestLoadProfilesParsesVendorsYAML(t *testing.T) {
	ps := testProfiles(t)
	profiles := ps.Profiles()
	require.NotEmpty(t, profiles)

	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "hikvision")
	assert.Contains(t, names, "generic")
}

func TestFingerprintPortMatchesHeaderAtHighConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "App-webs/3.0")
		w.Write([]byte("hikvision login"))
	}))
	defer srv.Close()

	host, portStr, _ := strings.Cut(strings.TrimPrefix(srv.URL, "http://"), ":")
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	ps := testProfiles(t)
	s := NewScanner(ps)
	cand := s.fingerprintPort(context.Background(), host, port)
	require.NotNil(t, cand)
	assert.Equal(t, "hikvision", cand.Vendor)
	assert.Equal(t, confidenceHeaderBodyMatch, cand.Confidence)
}

func TestFingerprintPortBelowThresholdNotEmitted(t *testing.T) {
	ps := &ProfileSet{}
	ps.profiles = []VendorProfile{{Name: "nothing", Ports: []int{1}}}
	s := NewScanner(ps)
	cand := s.fingerprintPort(context.Background(), "127.0.0.1", 1)
	assert.Nil(t, cand)
}

func TestScanRespectsDeadline(t *testing.T) {
	ps := testProfiles(t)
	s := NewScanner(ps)
	start := time.Now()
	_, err := s.Scan(context.Background(), "10.255.255.0/30", 300*time.Millisecond)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
