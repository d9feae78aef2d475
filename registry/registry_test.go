package registry

import (
	"net"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/google/go-cmp/cmp"
)

func announce(r *Registry, infoHash, ip string, port uint16, peerID string) (*Peer, *Torrent) {
	return r.Upsert(infoHash, net.ParseIP(ip), port, peerID, 0, 0, 100)
}

func TestIdentityRefreshLeavesPeerCountUnchanged(t *testing.T) {
	r := New(clock.NewMock())

	_, t1 := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	if t1.PeerCount() != 1 {
		t.Fatalf("peer count = %d, want 1", t1.PeerCount())
	}

	_, t2 := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	if t2.PeerCount() != 1 {
		t.Fatalf("peer count after reannounce = %d, want 1", t2.PeerCount())
	}

	_, t3 := announce(r, "HASH1", "10.0.0.1", 6882, "PEER01")
	if t3.PeerCount() != 2 {
		t.Fatalf("peer count after differing port = %d, want 2", t3.PeerCount())
	}
}

func TestSelfExclusion(t *testing.T) {
	r := New(clock.NewMock())

	stored, tor := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	for _, v := range r.Others(tor, stored) {
		if v.IP.Equal(stored.IP) && v.Port == stored.Port {
			t.Fatalf("reply contains the announcing peer")
		}
	}

	stored2, tor2 := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	others := r.Others(tor2, stored2)
	if len(others) != 0 {
		t.Fatalf("expected no other peers, got %d", len(others))
	}
}

func TestIntervalFloor(t *testing.T) {
	r := New(clock.NewMock())

	for i := 0; i < 5; i++ {
		announce(r, "HASH1", "10.0.0.1", uint16(6881+i), "PEER01")
	}

	if r.Interval() < 900 {
		t.Fatalf("interval = %d, want >= 900", r.Interval())
	}
}

func TestExpiryMonotonicity(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	stored, _ := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	expireAt := stored.ExpireAt

	clk.Set(expireAt.Add(time.Second))
	r.Sweep()

	if _, ok := r.torrents[key("HASH1")]; ok {
		t.Fatalf("torrent should have been collapsed after its only peer expired")
	}

	_, tor := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	if tor.PeerCount() != 1 {
		t.Fatalf("reinstated peer count = %d, want 1", tor.PeerCount())
	}
}

func TestSweepRemovesOnlyExpiredPeers(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")

	clk.Add(time.Second)
	stored2, tor := announce(r, "HASH1", "10.0.0.2", 6882, "PEER02")

	clk.Set(stored2.ExpireAt.Add(-time.Second))
	r.Sweep()

	if tor.PeerCount() != 2 {
		t.Fatalf("sweep before any expiry should not remove peers, got %d", tor.PeerCount())
	}
}

func TestEmptyTorrentCollapse(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	stored, _ := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	clk.Set(stored.ExpireAt.Add(time.Second))
	r.Sweep()

	_, tor := announce(r, "HASH1", "10.0.0.9", 6899, "PEERFF")
	if tor.PeerCount() != 1 {
		t.Fatalf("fresh torrent peer count = %d, want 1", tor.PeerCount())
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	r := New(clock.NewMock())

	announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	announce(r, "HASH1", "10.0.0.2", 6882, "PEER02")
	stored3, tor := announce(r, "HASH1", "10.0.0.3", 6883, "PEER03")

	others := r.Others(tor, stored3)
	want := []PeerView{
		{IP: net.ParseIP("10.0.0.1"), Port: 6881},
		{IP: net.ParseIP("10.0.0.2"), Port: 6882},
	}
	if diff := cmp.Diff(want, others); diff != "" {
		t.Fatalf("others mismatch (-want +got):\n%s", diff)
	}
}

func TestActiveCountNeverExceedsPeerCount(t *testing.T) {
	r := New(clock.NewMock())

	_, tor := announce(r, "HASH1", "10.0.0.1", 6881, "PEER01")
	if tor.ActiveCount() > tor.PeerCount() {
		t.Fatalf("active count %d exceeds peer count %d", tor.ActiveCount(), tor.PeerCount())
	}
}

func TestInfoHashLookupIsCaseInsensitive(t *testing.T) {
	r := New(clock.NewMock())

	announce(r, "HashMixedCase", "10.0.0.1", 6881, "PEER01")
	_, tor := announce(r, "hashmixedcase", "10.0.0.2", 6882, "PEER02")

	if tor.PeerCount() != 2 {
		t.Fatalf("case-insensitive lookup should have hit the same torrent, got peer count %d", tor.PeerCount())
	}
}
