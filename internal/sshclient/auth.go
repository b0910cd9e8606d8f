package sshclient

import (
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Strategy produces the ssh.AuthMethod(s) for one authentication mechanism.
// Each strategy is self-contained: it does not know about the others, and
// the caller (ssh_connect) picks exactly one per spec §4.3 precedence
// (password > key-file > agent, no fallback within a single connect). The
// interface still returns a slice and an error so a future caller can
// compose strategies into a first-success chain, as the design notes call
// out.
type Strategy interface {
	// Name identifies the strategy for logging and error messages.
	Name() string
	// AuthMethods returns the ssh.AuthMethod(s) this strategy contributes.
	// Failure to even construct a method (bad key file, no agent socket) is
	// reported here, before any network round-trip.
	AuthMethods() ([]ssh.AuthMethod, error)
}

// PasswordStrategy submits a plaintext password.
type PasswordStrategy struct {
	Password string
}

func (s PasswordStrategy) Name() string { return "password" }

func (s PasswordStrategy) AuthMethods() ([]ssh.AuthMethod, error) {
	log.Debug().Str("strategy", s.Name()).Msg("preparing auth method")
	return []ssh.AuthMethod{ssh.Password(s.Password)}, nil
}

// KeyFileStrategy loads a private key from disk and, for RSA keys, wraps it
// so the client negotiates a modern signature hash instead of legacy
// ssh-rsa (SHA-1).
type KeyFileStrategy struct {
	Path       string
	Passphrase string // optional, for encrypted keys
}

func (s KeyFileStrategy) Name() string { return "key-file" }

func (s KeyFileStrategy) AuthMethods() ([]ssh.AuthMethod, error) {
	log.Debug().Str("strategy", s.Name()).Str("key_path", s.Path).Msg("preparing auth method")
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ssh: read key file %s: %w", s.Path, err)
	}

	var signer ssh.Signer
	if s.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(s.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("ssh: parse key file %s: %w", s.Path, err)
	}

	signer, err = preferModernRSAHash(signer)
	if err != nil {
		return nil, fmt.Errorf("ssh: negotiate signature algorithm for %s: %w", s.Path, err)
	}

	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

// AgentStrategy authenticates via the identities held by a local SSH agent,
// reached through SSH_AUTH_SOCK. Every identity is offered to the server in
// turn (via ssh.PublicKeysCallback); the agent package + the ssh package
// together implement the "try each identity" loop, negotiating RSA hash
// algorithms per identity the same way KeyFileStrategy does for a single key.
type AgentStrategy struct {
	// SocketPath overrides SSH_AUTH_SOCK; empty means read the env var.
	SocketPath string
}

func (s AgentStrategy) Name() string { return "agent" }

func (s AgentStrategy) AuthMethods() ([]ssh.AuthMethod, error) {
	log.Debug().Str("strategy", s.Name()).Msg("preparing auth method")
	sock := s.SocketPath
	if sock == "" {
		sock = os.Getenv("SSH_AUTH_SOCK")
	}
	if sock == "" {
		return nil, fmt.Errorf("ssh: SSH_AUTH_SOCK is not set")
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("ssh: dial agent socket %s: %w", sock, err)
	}

	client := agent.NewClient(conn)
	identities, err := client.List()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh: list agent identities: %w", err)
	}
	if len(identities) == 0 {
		conn.Close()
		return nil, fmt.Errorf("ssh: agent authentication failed: agent has no identities")
	}

	signers, err := client.Signers()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh: agent authentication failed: %w", err)
	}

	for i, signer := range signers {
		wrapped, err := preferModernRSAHash(signer)
		if err == nil {
			signers[i] = wrapped
		}
	}

	// ssh.PublicKeysCallback offers each signer to the server in order and
	// reports success on the first one accepted; the net.Conn is kept alive
	// by the closure for the lifetime of the handshake.
	return []ssh.AuthMethod{ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		return signers, nil
	})}, nil
}

// preferModernRSAHash wraps an RSA signer so it never falls back to the
// legacy ssh-rsa (SHA-1) signature scheme when a modern option exists,
// preferring rsa-sha2-512 then rsa-sha2-256 (spec §4.3). Non-RSA signers are
// returned unchanged.
func preferModernRSAHash(signer ssh.Signer) (ssh.Signer, error) {
	if signer.PublicKey().Type() != ssh.KeyAlgoRSA {
		return signer, nil
	}
	algSigner, ok := signer.(ssh.AlgorithmSigner)
	if !ok {
		return signer, nil
	}
	return ssh.NewSignerWithAlgorithms(algSigner, []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256})
}
