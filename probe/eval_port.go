package probe

import (
	"fmt"
	"net"
	"time"
)

// evalPortMsg checks whether something is listening on spec.Port over the
// requested protocol. For TCP, listening means a connection succeeds. UDP
// has no handshake to dial against, so listening is instead determined by
// attempting to bind the port ourselves: the bind succeeds iff nothing else
// is bound to it, so a successful bind means closed and an "address already
// in use" error means something is listening.
func evalPortMsg(spec Spec) string {
	addr := fmt.Sprintf("127.0.0.1:%d", spec.Port)

	var listening bool
	if spec.Protocol == ProtocolUDP {
		listening = udpPortListening(addr)
	} else {
		listening = tcpPortListening(addr)
	}

	if listening == (spec.PortSt == PortListening) {
		return ""
	}
	if spec.PortSt == PortListening {
		return fmt.Sprintf("port %d/%s is not listening", spec.Port, spec.Protocol)
	}
	return fmt.Sprintf("port %d/%s is listening, want closed", spec.Port, spec.Protocol)
}

func tcpPortListening(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// udpPortListening binds addr as a UDP socket: a successful bind means the
// port was free (closed), while an "address already in use" error means
// something else is already bound to it (listening).
func udpPortListening(addr string) bool {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return true
	}
	pc.Close()
	return false
}
