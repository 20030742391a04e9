// Package sshkey generates the ephemeral ed25519 keypair each run uses to
// authenticate into its VMs. Keys never leave the run directory and are
// never reused across runs.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Pair is a run-scoped ed25519 keypair plus its OpenSSH-formatted
// authorized_keys line, ready to be embedded in a cloud-init user-data
// document.
type Pair struct {
	Public   ed25519.PublicKey
	Private  ed25519.PrivateKey
	AuthLine string
	Signer   ssh.Signer
}

// Generate creates a fresh keypair and derives the SSH-side material
// needed by both the cloud-init seed (AuthLine) and the host's SSH client
// (Signer).
func Generate() (*Pair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("convert to ssh public key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("build ssh signer: %w", err)
	}

	line := fmt.Sprintf("%s intar-run", strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))))

	return &Pair{
		Public:   pub,
		Private:  priv,
		AuthLine: line,
		Signer:   signer,
	}, nil
}

// WritePrivateKey PEM-encodes the run's private key to path (mode 0600) so
// `intar ssh` can reconnect after `intar start` exits.
func (p *Pair) WritePrivateKey(path string) error {
	block, err := ssh.MarshalPrivateKey(p.Private, "intar-run")
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// LoadPrivateKey reads a key previously written by WritePrivateKey and
// reconstructs a Pair from it.
func LoadPrivateKey(path string) (*Pair, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(bs)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pub := signer.PublicKey()
	line := fmt.Sprintf("%s intar-run", strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))))

	return &Pair{AuthLine: line, Signer: signer}, nil
}

// ClientConfig builds an ssh.ClientConfig authenticating as user with this
// pair, accepting whatever host key the guest presents: a freshly
// provisioned VM has no prior host key for the run to pin against, so
// trust is anchored by possession of the run's private key instead (the
// seed image is the only channel that carries AuthLine to the guest).
func (p *Pair) ClientConfig(user string) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(p.Signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
}
