package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/remote"
)

var pushForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch from the upstream remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRemote(cmd, "fetch", func(svc *remote.Service, repo git.Repository, o *remoteOutcome) error {
			return svc.Fetch(repo, o.timeout)
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull from the upstream remote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRemote(cmd, "pull", func(svc *remote.Service, repo git.Repository, o *remoteOutcome) error {
			return svc.Pull(repo, o.conflict, o.timeout)
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the current branch to its upstream",
	Long: `Push the current branch to its upstream. A push rejected because the
remote has commits the branch lacks fails unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRemote(cmd, "push", func(svc *remote.Service, repo git.Repository, o *remoteOutcome) error {
			return svc.Push(repo, pushForce, o.behind, o.timeout)
		})
	},
}

func init() {
	pushCmd.Flags().BoolVarP(&pushForce, "force", "f", false, "overwrite the remote branch")
	rootCmd.AddCommand(fetchCmd, pullCmd, pushCmd)
}

// remoteOutcome collects the callbacks of one remote operation. The fields
// are read after remote.Service.Wait returns.
type remoteOutcome struct {
	timedOut    bool
	conflictMsg string
	rejected    bool
}

func (o *remoteOutcome) timeout() { o.timedOut = true }
func (o *remoteOutcome) conflict(msg string) { o.conflictMsg = msg }
func (o *remoteOutcome) behind() { o.rejected = true }

// err maps the outcome of op to the command's error.
func (o *remoteOutcome) err(op string, timeout time.Duration, failure error) error {
	switch {
	case o.timedOut:
		return fmt.Errorf("%s timed out after %s", op, timeout)
	case o.conflictMsg != "":
		return fmt.Errorf("pull conflict: %s", o.conflictMsg)
	case o.rejected:
		return errors.New("push rejected: the remote has commits this branch lacks; pull first or use --force")
	case failure != nil:
		return fmt.Errorf("%s failed: %w", op, failure)
	}
	return nil
}

func runRemote(cmd *cobra.Command, op string, start func(*remote.Service, git.Repository, *remoteOutcome) error) error {
	services, repo, err := commandServices()
	if err != nil {
		return err
	}
	defer closeServices(services)

	var outcome remoteOutcome
	if err := start(services.Remote, repo, &outcome); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	services.Remote.Wait()

	timeout := cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = remote.DefaultTimeout
	}
	if err := outcome.err(op, timeout, services.Remote.Err()); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s finished in %s\n", op, repo.ShortPath())
	return err
}
