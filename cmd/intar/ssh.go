package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"intar.dev/intar/internal/config"
	"intar.dev/intar/internal/sshkey"
)

var sshFlags = struct {
	stateDir string
	runID    string
	command  string
}{}

var sshCmd = &cobra.Command{
	Use:   "ssh <vm>",
	Short: "Open an SSH session into a running VM",
	Args:  cobra.ExactArgs(1),
	RunE:  runSSH,
}

func init() {
	rootCmd.AddCommand(sshCmd)
	sshCmd.Flags().StringVar(&sshFlags.stateDir, "dir", "", "root directory for run state (default: XDG state dir)")
	sshCmd.Flags().StringVar(&sshFlags.runID, "run", "", "run id (default: most recent run)")
	sshCmd.Flags().StringVar(&sshFlags.command, "command", "", "command to run instead of an interactive shell")
}

func runSSH(cmd *cobra.Command, args []string) error {
	vmName := args[0]

	root, err := stateRoot(sshFlags.stateDir)
	if err != nil {
		return err
	}
	runDir, err := resolveRunDir(root, sshFlags.runID)
	if err != nil {
		return err
	}

	run, err := config.Read(runDir + "/run.json")
	if err != nil {
		return err
	}
	vm, ok := run.VMs[vmName]
	if !ok {
		return fmt.Errorf("vm %q not found in run %s", vmName, run.ID)
	}

	dirs := config.Dirs{Root: runDir}
	key, err := sshkey.LoadPrivateKey(dirs.KeyFile())
	if err != nil {
		return err
	}

	client, err := xssh.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", vm.SSHPort), key.ClientConfig("user"))
	if err != nil {
		return fmt.Errorf("dial vm %q: %w", vmName, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	if sshFlags.command != "" {
		session.Stdout = stdout
		session.Stderr = stderr
		return session.Run(sshFlags.command)
	}

	return interactiveSession(session)
}

// interactiveSession puts the local terminal into raw mode and wires it to
// session, matching an interactive `ssh` invocation.
func interactiveSession(session *xssh.Session) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		session.Stdout = stdout
		session.Stderr = stderr
		session.Stdin = os.Stdin
		return session.Run("")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set terminal to raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	w, h, err := term.GetSize(fd)
	if err != nil {
		w, h = 80, 24
	}
	if err := session.RequestPty("xterm-256color", h, w, xssh.TerminalModes{}); err != nil {
		return fmt.Errorf("request pty: %w", err)
	}

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr
	stdin, err := session.StdinPipe()
	if err != nil {
		return err
	}

	if err := session.Shell(); err != nil {
		return err
	}

	go io.Copy(stdin, os.Stdin)

	return session.Wait()
}
