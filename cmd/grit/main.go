package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grit/internal/commit"
	"grit/internal/errors"
	"grit/internal/logging"
	"grit/internal/repo"
	"grit/internal/worktree"
)

var logger = zap.NewNop()

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "grit",
	Short:         "Grit is a local content-addressed version control system",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logLevel)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
}

// openRepo builds the repository context for the invocation directory.
func openRepo() (*repo.Repo, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return repo.Open(dir, logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "enable diagnostic logging at the given level")

	var initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a new Grit repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			if len(args) == 1 {
				if dir, err = filepath.Abs(args[0]); err != nil {
					return fmt.Errorf("resolving %s: %w", args[0], err)
				}
			}
			if err := repo.Init(dir, logger); err != nil {
				return err
			}
			fmt.Println("Initialized empty Grit repository in", dir)
			return nil
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add [paths...]",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := r.Add(path); err != nil {
					return err
				}
			}
			return nil
		},
	}

	var rmCached bool
	var rmCmd = &cobra.Command{
		Use:   "rm [paths...]",
		Short: "Stage files for removal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := r.Rm(path, rmCached); err != nil {
					return err
				}
				fmt.Printf("rm '%s'\n", path)
			}
			return nil
		},
	}
	rmCmd.Flags().BoolVar(&rmCached, "cached", false, "unstage and keep the working copy")

	var unstageCmd = &cobra.Command{
		Use:   "unstage [paths...]",
		Short: "Drop pending additions or removals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := r.Unstage(path); err != nil {
					return err
				}
			}
			return nil
		},
	}

	var statusWatch bool
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show staged, modified, and untracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			st, err := r.Status()
			if err != nil {
				return err
			}
			printStatus(st)
			if !statusWatch {
				return nil
			}
			return watchStatus(r)
		},
	}
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "keep running and reprint on working-tree changes")

	var commitCmd = &cobra.Command{
		Use:   "commit [message]",
		Short: "Record the staged changes as a new commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			c, err := r.Commit(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("[%s] %s\n", c.Hash[:8], c.Message)
			return nil
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show commit history, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			return r.Log(func(c *commit.Commit) bool {
				printCommit(c)
				return true
			})
		},
	}

	var branchDelete string
	var branchCmd = &cobra.Command{
		Use:   "branch [name]",
		Short: "List branches, or create one at the current commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			if branchDelete != "" {
				if err := r.DeleteBranch(branchDelete); err != nil {
					return err
				}
				fmt.Printf("Deleted branch '%s'\n", branchDelete)
				return nil
			}
			if len(args) == 1 {
				return r.CreateBranch(args[0])
			}
			current, all, err := r.Branches()
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			for _, name := range all {
				if name == current {
					fmt.Printf("* %s\n", green(name))
				} else {
					fmt.Printf("  %s\n", name)
				}
			}
			return nil
		},
	}
	branchCmd.Flags().StringVarP(&branchDelete, "delete", "D", "", "delete the named branch")

	var switchCreate bool
	var switchCmd = &cobra.Command{
		Use:   "switch [branch]",
		Short: "Switch branches, updating the working tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			name := args[0]
			if err := r.Switch(name, switchCreate); err != nil {
				if errors.IsKind(err, errors.KindAlreadyOnBranch) {
					fmt.Printf("Already on '%s'\n", name)
					return nil
				}
				return err
			}
			fmt.Printf("Switched to branch '%s'\n", name)
			return nil
		},
	}
	switchCmd.Flags().BoolVarP(&switchCreate, "create", "c", false, "create the branch before switching")

	var mergeCmd = &cobra.Command{
		Use:   "merge [branch]",
		Short: "Merge the named branch into the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			res, err := r.Merge(args[0])
			if err != nil {
				return err
			}
			printMerge(res)
			return nil
		},
	}

	rootCmd.AddCommand(initCmd, addCmd, rmCmd, unstageCmd, statusCmd, commitCmd, logCmd, branchCmd, switchCmd, mergeCmd)
}

func printStatus(st *repo.Status) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("On branch %s\n", cyan(st.Branch))

	fmt.Println("\n=== Staged Files ===")
	for _, path := range st.Staged {
		fmt.Println(green(path))
	}

	fmt.Println("\n=== Removed Files ===")
	for _, path := range st.Removed {
		fmt.Println(red(path))
	}

	fmt.Println("\n=== Unstaged Modifications ===")
	for _, mod := range st.Unstaged {
		if mod.Kind == worktree.Deleted {
			fmt.Printf("%s (deleted)\n", red(mod.Path))
		} else {
			fmt.Println(red(mod.Path))
		}
	}

	fmt.Println("\n=== Untracked Files ===")
	for _, path := range st.Untracked {
		fmt.Println(path)
	}
}

// watchStatus reprints the status whenever the working tree settles after a
// change, until interrupted.
func watchStatus(r *repo.Repo) error {
	w, err := worktree.NewWatcher(r.Root, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			return nil
		case <-w.Changes():
			st, err := r.Status()
			if err != nil {
				return err
			}
			fmt.Println()
			printStatus(st)
		}
	}
}

func printCommit(c *commit.Commit) {
	header := color.New(color.FgYellow).SprintFunc()
	fmt.Println("===")
	fmt.Printf("commit %s\n", header(c.Hash))
	fmt.Printf("Date: %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC1123Z))
	fmt.Println(c.Message)
	fmt.Println()
}

func printMerge(res *worktree.MergeResult) {
	switch res.Kind {
	case worktree.MergeUpToDate:
		fmt.Println("Already up to date.")
	case worktree.MergeFastForward:
		fmt.Printf("Fast-forwarded to %s\n", res.Commit)
	case worktree.MergeConflicted:
		red := color.New(color.FgRed).SprintFunc()
		for _, path := range res.Conflicts {
			fmt.Printf("CONFLICT (content): Merge conflict in %s\n", red(path))
		}
		fmt.Println("Automatic merge failed; fix conflicts and then commit the result.")
	case worktree.MergeCommitted:
		fmt.Printf("Merged %s into %s\n", res.Branch, res.Into)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
