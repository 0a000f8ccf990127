package p2p

import (
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ENRToAddrInfo converts a signed node record into a dialable peer.
// Beacon bootnode lists publish ENRs rather than multiaddrs; the record
// must carry an IP, a secp256k1 identity, and a QUIC or TCP endpoint.
func ENRToAddrInfo(record string) (*peer.AddrInfo, error) {
	node, err := enode.Parse(enode.ValidSchemes, record)
	if err != nil {
		return nil, fmt.Errorf("parse enr: %w", err)
	}

	ip := node.IP()
	if ip == nil {
		return nil, fmt.Errorf("enr carries no IP address")
	}

	pubkey := node.Pubkey()
	if pubkey == nil {
		return nil, fmt.Errorf("enr carries no secp256k1 identity")
	}
	libp2pKey, err := crypto.UnmarshalSecp256k1PublicKey(gethcrypto.CompressPubkey(pubkey))
	if err != nil {
		return nil, fmt.Errorf("convert enr identity: %w", err)
	}
	id, err := peer.IDFromPublicKey(libp2pKey)
	if err != nil {
		return nil, fmt.Errorf("derive peer id from enr: %w", err)
	}

	proto := "ip4"
	if ip.To4() == nil {
		proto = "ip6"
	}

	var addrs []multiaddr.Multiaddr
	var quicPort enr.QUIC
	if err := node.Record().Load(&quicPort); err == nil {
		addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/%s/%s/udp/%d/quic-v1", proto, ip, quicPort))
		if err != nil {
			return nil, fmt.Errorf("build quic multiaddr: %w", err)
		}
		addrs = append(addrs, addr)
	}
	if port := node.TCP(); port != 0 {
		addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", proto, ip, port))
		if err != nil {
			return nil, fmt.Errorf("build tcp multiaddr: %w", err)
		}
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("enr carries no quic or tcp endpoint")
	}

	return &peer.AddrInfo{ID: id, Addrs: addrs}, nil
}
