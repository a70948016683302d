package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fastygo/hustle/pkg/client"
)

var rootCmd = &cobra.Command{
	Use:   "hustlectl",
	Short: "Command line client for the hustle marketplace",
	Long: `hustlectl talks to a hustle server.
Set HUSTLE_SERVER and HUSTLE_TOKEN, or pass --server and --token.
Sign in once and export the printed token to reuse it.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HUSTLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
}

func registerCommands() {
	rootCmd.AddCommand(signUpCmd())
	rootCmd.AddCommand(signInCmd())
	rootCmd.AddCommand(meCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(rateCmd())
	rootCmd.AddCommand(collegesCmd())
}

func newClient() *client.Client {
	c := client.New(viper.GetString("server"), viper.GetString("token"))
	c.Timeout = viper.GetDuration("timeout")
	return c
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSession(s client.Session) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	if s.User != nil {
		fmt.Printf("signed in as %s (%s)\n", s.User.Name, s.User.College)
	} else if s.NeedsCollegeInfo {
		fmt.Println("profile incomplete: college required")
	}
	fmt.Printf("export HUSTLE_TOKEN=%s\n", s.Token)
	return nil
}

func signUpCmd() *cobra.Command {
	var in client.SignUp
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a password account",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient().SignUp(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printSession(s)
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.College, "college", "", "college")
	cmd.Flags().StringVar(&in.Department, "department", "", "department")
	cmd.Flags().StringVar(&in.Year, "year", "", "year of study")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func signInCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and print a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient().SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printSession(s)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := newClient().Me(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(u)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Field", "Value"})
			tw.AppendRow(table.Row{"ID", u.ID})
			tw.AppendRow(table.Row{"Name", u.Name})
			tw.AppendRow(table.Row{"College", u.College})
			tw.AppendRow(table.Row{"Department", u.Department})
			tw.AppendRow(table.Row{"Rating", fmt.Sprintf("%.2f (%d)", u.Rating, u.TotalRatings)})
			tw.AppendRow(table.Row{"Completed", u.CompletedHustles})
			tw.AppendRow(table.Row{"Earned", u.TotalEarned})
			tw.Render()
			return nil
		},
	}
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tasks", Short: "Browse and work on tasks"}
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskMineCmd())
	cmd.AddCommand(taskPostCmd())
	cmd.AddCommand(taskActionCmd("accept", "Accept an open task", (*client.Client).Accept))
	cmd.AddCommand(taskActionCmd("complete", "Mark an accepted task completed", (*client.Client).Complete))
	cmd.AddCommand(taskPayCmd())
	return cmd
}

func renderTasks(tasks []client.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Amount", "Status", "Posted By", "Paid"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Amount, t.Status, t.PostedByName, t.PaymentCompleted})
	}
	tw.Render()
	return nil
}

func taskListCmd() *cobra.Command {
	var search, sort string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks of your college",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := newClient().ListTasks(cmd.Context(), search, sort)
			if err != nil {
				return err
			}
			return renderTasks(tasks)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by title or description")
	cmd.Flags().StringVar(&sort, "sort", "", "latest or price")
	return cmd
}

func taskMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List tasks you posted or accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			owned, err := newClient().MyTasks(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(owned)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Role", "ID", "Title", "Amount", "Status", "Paid"})
			for _, t := range owned.Posted {
				tw.AppendRow(table.Row{"poster", t.ID, t.Title, t.Amount, t.Status, t.PaymentCompleted})
			}
			for _, t := range owned.Accepted {
				tw.AppendRow(table.Row{"worker", t.ID, t.Title, t.Amount, t.Status, t.PaymentCompleted})
			}
			tw.Render()
			return nil
		},
	}
}

func taskPostCmd() *cobra.Command {
	var (
		in       client.NewTask
		deadline string
	)
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deadline != "" {
				d, err := time.Parse(time.RFC3339, deadline)
				if err != nil {
					return fmt.Errorf("deadline must be RFC3339: %w", err)
				}
				in.Deadline = &d
			}
			t, err := newClient().PostTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			return renderTasks([]client.Task{t})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "task title")
	cmd.Flags().StringVar(&in.Description, "description", "", "task description")
	cmd.Flags().Int64Var(&in.Amount, "amount", 0, "payment amount")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func taskActionCmd(use, short string, fn func(*client.Client, context.Context, string) (client.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := fn(newClient(), cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			return renderTasks([]client.Task{t})
		},
	}
}

func taskPayCmd() *cobra.Command {
	var (
		workerID string
		amount   int64
	)
	cmd := &cobra.Command{
		Use:   "pay <task-id>",
		Short: "Confirm payment for a task you posted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newClient().Pay(cmd.Context(), args[0], workerID, amount)
			if err != nil {
				return explain(err)
			}
			return renderTasks([]client.Task{t})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id (defaults to the accepted worker)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount (defaults to the task amount)")
	return cmd
}

func rateCmd() *cobra.Command {
	var (
		taskID string
		text   string
	)
	cmd := &cobra.Command{
		Use:   "rate <user-id> <stars>",
		Short: "Rate a user from 1 to 5",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stars, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("stars must be a number: %w", err)
			}
			if err := newClient().Rate(cmd.Context(), args[0], taskID, stars, text); err != nil {
				return explain(err)
			}
			fmt.Println("rating submitted")
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task the rating is about")
	cmd.Flags().StringVar(&text, "text", "", "review text")
	return cmd
}

func collegesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "colleges",
		Short: "List known colleges",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := newClient().Colleges(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(names)
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

// explain turns lifecycle conflicts into a readable message.
func explain(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Code == "INVALID_TRANSITION" {
		return fmt.Errorf("task cannot move to that state: %s", apiErr.Message)
	}
	return err
}
