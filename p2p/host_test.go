package p2p

import (
	"net"
	"strings"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const bootnodeAddr = "/ip4/127.0.0.1/tcp/9000/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

func TestParseBootnodes(t *testing.T) {
	peers, err := ParseBootnodes([]string{bootnodeAddr})
	if err != nil {
		t.Fatalf("ParseBootnodes() = %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("len(peers) = %d, want 1", len(peers))
	}
	if peers[0].ID.String() != "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN" {
		t.Errorf("peer id = %s", peers[0].ID)
	}
	if len(peers[0].Addrs) != 1 || peers[0].Addrs[0].String() != "/ip4/127.0.0.1/tcp/9000" {
		t.Errorf("peer addrs = %v", peers[0].Addrs)
	}
}

// signedRecord builds a self-signed ENR carrying the given endpoints.
func signedRecord(t *testing.T, set ...enr.Entry) (string, peer.ID) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate node key: %v", err)
	}
	db, err := enode.OpenDB("")
	if err != nil {
		t.Fatalf("open node db: %v", err)
	}
	t.Cleanup(db.Close)

	local := enode.NewLocalNode(db, key)
	for _, e := range set {
		local.Set(e)
	}

	pub, err := crypto.UnmarshalSecp256k1PublicKey(gethcrypto.CompressPubkey(&key.PublicKey))
	if err != nil {
		t.Fatalf("convert pubkey: %v", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		t.Fatalf("derive peer id: %v", err)
	}
	return local.Node().String(), id
}

func TestParseBootnodesDecodesENR(t *testing.T) {
	record, wantID := signedRecord(t, enr.IP(net.ParseIP("203.0.113.7")), enr.TCP(9100))

	peers, err := ParseBootnodes([]string{record, bootnodeAddr})
	if err != nil {
		t.Fatalf("ParseBootnodes() = %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("len(peers) = %d, want 2", len(peers))
	}
	if peers[0].ID != wantID {
		t.Errorf("peer id = %s, want the record's identity", peers[0].ID)
	}
	if len(peers[0].Addrs) != 1 || peers[0].Addrs[0].String() != "/ip4/203.0.113.7/tcp/9100" {
		t.Errorf("peer addrs = %v", peers[0].Addrs)
	}
}

func TestENRToAddrInfoPrefersQUIC(t *testing.T) {
	record, _ := signedRecord(t, enr.IP(net.ParseIP("203.0.113.9")), enr.QUIC(9001), enr.TCP(9100))

	pi, err := ENRToAddrInfo(record)
	if err != nil {
		t.Fatalf("ENRToAddrInfo() = %v", err)
	}
	if len(pi.Addrs) != 2 {
		t.Fatalf("len(Addrs) = %d, want quic and tcp", len(pi.Addrs))
	}
	if pi.Addrs[0].String() != "/ip4/203.0.113.9/udp/9001/quic-v1" {
		t.Errorf("Addrs[0] = %s, want the quic endpoint first", pi.Addrs[0])
	}
}

func TestENRToAddrInfoRejections(t *testing.T) {
	noEndpoint, _ := signedRecord(t, enr.IP(net.ParseIP("203.0.113.5")))

	tests := []struct {
		name    string
		record  string
		wantErr string
	}{
		{"not an enr", "enr:-garbage", "parse enr"},
		{"no dialable endpoint", noEndpoint, "no quic or tcp endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ENRToAddrInfo(tt.record)
			if err == nil {
				t.Fatal("ENRToAddrInfo() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ENRToAddrInfo() = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseBootnodesErrors(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr string
	}{
		{"not a multiaddr", "bogus", "parse bootnode"},
		{"missing peer id", "/ip4/127.0.0.1/tcp/9000", "no peer id"},
		{"bad enr", "enr:-garbage", "parse enr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBootnodes([]string{tt.addr})
			if err == nil {
				t.Fatal("ParseBootnodes() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseBootnodes() = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseBootnodesEmpty(t *testing.T) {
	peers, err := ParseBootnodes(nil)
	if err != nil {
		t.Fatalf("ParseBootnodes(nil) = %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("len(peers) = %d, want 0", len(peers))
	}
}
