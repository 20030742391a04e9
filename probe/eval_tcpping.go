package probe

import (
	"fmt"
	"net"
	"time"
)

// evalTCPPingMsg dials host:port and classifies the outcome. A connection
// refused (the remote host is up, nothing is listening) still counts as
// reachable: it is evidence the network path to the host works, which is
// the property a tcp_ping probe asserts. Only a dial timeout or routing
// failure counts as unreachable.
func evalTCPPingMsg(spec Spec) string {
	addr := net.JoinHostPort(spec.Host, fmt.Sprintf("%d", spec.Port))
	timeout := time.Duration(spec.TimeoutMS) * time.Millisecond

	reachable := dialReachable(addr, timeout)

	if reachable == (spec.Reachability == Reachable) {
		return ""
	}
	if spec.Reachability == Reachable {
		return fmt.Sprintf("host '%s' is unreachable", spec.Host)
	}
	return fmt.Sprintf("host '%s' is reachable, want unreachable", spec.Host)
}

func dialReachable(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err == nil {
		conn.Close()
		return true
	}
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
		return false
	}
	// connection refused / reset still proves the host answered
	return isConnRefused(err)
}
