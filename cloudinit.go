package intar

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"intar.dev/intar/internal/netplan"
	"intar.dev/intar/internal/sshkey"
)

// defaultMaskUnits is the set of systemd units masked at boot to keep
// noisy background timers (apt, snapd, man-db, ...) from stealing CPU and
// disk I/O from a freshly booted lab VM.
var defaultMaskUnits = []string{
	"apt-daily.service", "apt-daily.timer",
	"apt-daily-upgrade.service", "apt-daily-upgrade.timer",
	"motd-news.service", "motd-news.timer",
	"unattended-upgrades.service",
	"man-db.service", "man-db.timer",
	"fstrim.service", "fstrim.timer",
	"e2scrub_all.service", "e2scrub_all.timer",
	"ua-timer.service", "ua-timer.timer",
	"snapd.service", "snapd.socket",
	"snapd.seeded.service", "snapd.autoimport.service",
}

// cloudUser is one entry in cloudConfig.Users.
type cloudUser struct {
	Name               string   `yaml:"name"`
	Sudo               string   `yaml:"sudo"`
	Shell              string   `yaml:"shell"`
	SSHAuthorizedKeys  []string `yaml:"ssh_authorized_keys"`
}

// cloudWriteFile is one entry in cloudConfig.WriteFiles.
type cloudWriteFile struct {
	Path        string `yaml:"path"`
	Permissions string `yaml:"permissions,omitempty"`
	Encoding    string `yaml:"encoding,omitempty"`
	Content     string `yaml:"content"`
}

// cloudConfig is the typed shape of the `user-data` document, marshaled
// with gopkg.in/yaml.v3 rather than hand-concatenated strings.
type cloudConfig struct {
	Hostname        string           `yaml:"hostname"`
	PackageUpdate   bool             `yaml:"package_update"`
	PackageUpgrade  bool             `yaml:"package_upgrade"`
	Users           []cloudUser      `yaml:"users"`
	Packages        []string         `yaml:"packages,omitempty"`
	WriteFiles      []cloudWriteFile `yaml:"write_files"`
	RunCmd          []string         `yaml:"runcmd"`
}

// metaData is the `meta-data` document: an instance id stable within a
// run and unique across runs, plus the VM's local hostname.
type metaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// CloudInitInput bundles everything GenerateSeed needs to build one VM's
// boot media.
type CloudInitInput struct {
	RunID          string
	VM             VMDefinition
	Key            *sshkey.Pair
	AgentBinary    []byte
	Assignment     netplan.Assignment
	AllAssignments []netplan.Assignment
	LAN            *netplan.LANInterface
	MgmtMAC        string
	ExtraPackages  []string
}

func instanceID(runID, vmName string) string {
	return fmt.Sprintf("%s-%s", runID, vmName)
}

// userDataDocument renders the user-data cloud-config for in.
func userDataDocument(in CloudInitInput) (string, error) {
	agentB64 := base64.StdEncoding.EncodeToString(in.AgentBinary)

	cfg := cloudConfig{
		Hostname:       in.VM.Name,
		PackageUpdate:  false,
		PackageUpgrade: false,
		Users: []cloudUser{{
			Name:              "user",
			Sudo:              "ALL=(ALL) NOPASSWD:ALL",
			Shell:             "/bin/bash",
			SSHAuthorizedKeys: []string{in.Key.AuthLine},
		}},
		Packages: in.ExtraPackages,
		WriteFiles: []cloudWriteFile{
			{
				Path:        "/usr/local/bin/intar-agent",
				Permissions: "0755",
				Encoding:    "base64",
				Content:     agentB64,
			},
			{
				Path:    "/etc/hosts",
				Content: netplan.HostsFile(in.AllAssignments),
			},
			{
				Path: "/etc/systemd/system/intar-agent.service",
				Content: strings.Join([]string{
					"[Unit]",
					"Description=Intar Probe Agent",
					"After=multi-user.target",
					"",
					"[Service]",
					"Type=simple",
					"ExecStart=/usr/local/bin/intar-agent",
					"RuntimeDirectory=intar",
					"RuntimeDirectoryMode=0755",
					"Restart=always",
					"RestartSec=1",
					"",
					"[Install]",
					"WantedBy=multi-user.target",
					"",
				}, "\n"),
			},
		},
		RunCmd: []string{
			"systemctl daemon-reload",
			"systemctl enable intar-agent",
			"systemctl start intar-agent",
			maskUnitsCommand(),
		},
	}

	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal user-data: %w", err)
	}
	return "#cloud-config\n" + string(bs), nil
}

func maskUnitsCommand() string {
	return fmt.Sprintf("for unit in %s; do systemctl mask \"$unit\" || true; done", strings.Join(defaultMaskUnits, " "))
}

func metaDataDocument(runID string, vm VMDefinition) (string, error) {
	md := metaData{InstanceID: instanceID(runID, vm.Name), LocalHostname: vm.Name}
	bs, err := yaml.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal meta-data: %w", err)
	}
	return string(bs), nil
}

func networkConfigDocument(in CloudInitInput) string {
	var lan *netplan.LANInterface
	if in.LAN != nil {
		lan = in.LAN
	}
	return netplan.Config(in.MgmtMAC, in.Assignment.MgmtIP4, lan)
}

// GenerateSeed writes user-data/meta-data/network-config to a temp
// directory, copies user-data to logsDir for postmortem inspection, and
// assembles a cidata-labeled ISO at seedPath using whichever ISO tool is
// available on the host.
func GenerateSeed(in CloudInitInput, seedPath, logsDir string) error {
	userData, err := userDataDocument(in)
	if err != nil {
		return err
	}
	meta, err := metaDataDocument(in.RunID, in.VM)
	if err != nil {
		return err
	}
	netCfg := networkConfigDocument(in)

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(logsDir, "user-data.yaml"), []byte(userData), 0o644); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "intar-cloudinit-")
	if err != nil {
		return fmt.Errorf("create seed temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	userDataPath := filepath.Join(tmp, "user-data")
	metaDataPath := filepath.Join(tmp, "meta-data")
	networkConfigPath := filepath.Join(tmp, "network-config")

	if err := os.WriteFile(userDataPath, []byte(userData), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(metaDataPath, []byte(meta), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(networkConfigPath, []byte(netCfg), 0o644); err != nil {
		return err
	}

	return buildSeedISO(seedPath, userDataPath, metaDataPath, networkConfigPath)
}

// buildSeedISO tries, in order, cloud-localds, mkisofs, genisoimage,
// xorriso, and hdiutil (macOS), using exec.LookPath to probe for each
// tool rather than attempting and swallowing errors in sequence.
func buildSeedISO(output, userData, metaData, networkConfig string) error {
	type tool struct {
		name string
		args func() []string
	}

	tools := []tool{
		{"cloud-localds", func() []string {
			return []string{"--network-config=" + networkConfig, output, userData, metaData}
		}},
		{"mkisofs", func() []string {
			return []string{"-output", output, "-volid", "cidata", "-joliet", "-rock", userData, metaData, networkConfig}
		}},
		{"genisoimage", func() []string {
			return []string{"-output", output, "-volid", "cidata", "-joliet", "-rock", userData, metaData, networkConfig}
		}},
		{"xorriso", func() []string {
			return []string{"-as", "genisoimage", "-output", output, "-volid", "cidata", "-joliet", "-rock", userData, metaData, networkConfig}
		}},
		{"hdiutil", func() []string {
			return []string{"makehybrid", "-iso", "-joliet", "-default-volume-name", "cidata", "-o", output, filepath.Dir(userData)}
		}},
	}

	var lastErr error
	for _, t := range tools {
		path, err := exec.LookPath(t.name)
		if err != nil {
			continue
		}
		cmd := exec.Command(path, t.args()...)
		out, err := cmd.CombinedOutput()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("%s: %w: %s", t.name, err, string(out))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("none found")
	}
	return Wrap(Internal, "no ISO creation tool available (install cloud-localds, mkisofs, genisoimage, or xorriso)", lastErr)
}
