package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/client"
	"github.com/spf13/cobra"
)

type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() *client.Client {
	return client.New(o.server, &http.Client{Timeout: o.timeout})
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "taskctl",
		Short: "Manage scheduled tasks",
		Long: `taskctl talks to a task scheduler server and prints JSON.

Examples:
  taskctl list
  taskctl get ping
  taskctl create -f ping.json
  echo '{"interval_seconds":30}' | taskctl update ping
  taskctl delete ping
  taskctl attempts ping --limit 5`,
		SilenceUsage: true,
	}

	defaultServer := os.Getenv("TASKCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "Server base URL (env TASKCTL_SERVER)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	root.AddCommand(
		newListCmd(opts),
		newGetCmd(opts),
		newCreateCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newAttemptsCmd(opts),
	)
	return root
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := opts.client().List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tasks)
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := opts.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func newCreateCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task from a JSON document",
		Long:  "Create a task. The JSON task object is read from --file, or stdin when no file is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := readSpec(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			task, err := opts.client().Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the task (default stdin)")
	return cmd
}

func newUpdateCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update fields of a task",
		Long:  "Update a task. Only fields present in the JSON document are changed; the name cannot change.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			task, err := opts.client().Update(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the fields to change (default stdin)")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"message": "Task deleted"})
		},
	}
}

func newAttemptsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "attempts <name>",
		Short: "Show recent dispatch attempts of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attempts, err := opts.client().Attempts(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), attempts)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum attempts to show (default server side)")
	return cmd
}

func readSpec(stdin io.Reader, file string) (client.TaskSpec, error) {
	r := stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return client.TaskSpec{}, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var spec client.TaskSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return client.TaskSpec{}, fmt.Errorf("read task JSON: %w", err)
	}
	return spec, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
