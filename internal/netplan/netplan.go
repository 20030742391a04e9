// Package netplan allocates the per-VM LAN addresses for a scenario and
// renders the netplan and /etc/hosts fragments cloud-init embeds in each
// guest. Every VM gets a management address on the qemu usermode NAT
// segment (10.0.2.0/24, gateway 10.0.2.2) plus a shared LAN address
// (10.11.0.0/24) the VMs use to reach each other.
package netplan

import (
	"fmt"
	"strings"
)

const (
	mgmtGateway    = "10.0.2.2"
	mgmtDNS        = "10.0.2.3"
	mgmtBaseOctet  = 100
	lanBaseOctet   = 10
	maxAddressable = 254
)

// Assignment is the LAN/management addressing handed to one VM.
type Assignment struct {
	Name    string
	MgmtIP4 string // on the qemu usermode NAT segment, e.g. 10.0.2.100
	LANIP4  string // on the shared inter-VM LAN, e.g. 10.11.0.10
}

// Allocate assigns sequential management and LAN addresses to each name in
// order, matching the boot order VMs appear in the scenario.
func Allocate(names []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(names))
	for i, name := range names {
		mgmtOctet := mgmtBaseOctet + i
		lanOctet := lanBaseOctet + i
		if mgmtOctet > maxAddressable || lanOctet > maxAddressable {
			return nil, fmt.Errorf("netplan: too many VMs (%d) for /24 addressing", len(names))
		}
		out = append(out, Assignment{
			Name:    name,
			MgmtIP4: fmt.Sprintf("10.0.2.%d", mgmtOctet),
			LANIP4:  fmt.Sprintf("10.11.0.%d", lanOctet),
		})
	}
	return out, nil
}

// Config renders the netplan YAML for a single VM: a mgmt0 interface bound
// to the qemu NAT segment plus an optional lan0 interface on the shared LAN.
func Config(mgmtMAC, mgmtIP string, lan *LANInterface) string {
	var b strings.Builder
	fmt.Fprintf(&b, `network:
  version: 2
  ethernets:
    mgmt0:
      match:
        macaddress: "%s"
      set-name: enp0s1
      dhcp4: false
      dhcp6: false
      addresses:
        - %s/24
      gateway4: %s
      nameservers:
        addresses:
          - %s
      optional: true
`, mgmtMAC, mgmtIP, mgmtGateway, mgmtDNS)

	if lan != nil {
		fmt.Fprintf(&b, `    lan0:
      match:
        macaddress: "%s"
      set-name: enp0s2
      dhcp4: false
      dhcp6: false
      addresses:
        - %s/24
      optional: true
`, lan.MAC, lan.IP4)
	}

	return b.String()
}

// LANInterface is the second NIC a VM gets when it needs to reach its
// scenario siblings.
type LANInterface struct {
	MAC string
	IP4 string
}

// HostsFile renders /etc/hosts content giving every VM a <name>.intar
// alias resolving to its LAN address, plus a k3s-server.intar alias for a
// VM named "k3s-1" (the convention intar's k3s scenarios rely on to find
// the control-plane node without hardcoding its address).
func HostsFile(assignments []Assignment) string {
	var b strings.Builder
	b.WriteString("127.0.0.1 localhost\n")

	for _, a := range assignments {
		names := []string{a.Name + ".intar", a.Name}
		if a.Name == "k3s-1" {
			names = append(names, "k3s-server.intar")
		}
		fmt.Fprintf(&b, "%s %s\n", a.LANIP4, strings.Join(names, " "))
	}

	return b.String()
}
